package repository

import "context"

type OrderRepository interface {
	// ActiveOrders returns IDs of the user's orders in a non-terminal
	// status. Account deletion is refused while any exist.
	ActiveOrders(ctx context.Context, userID int64) ([]int64, error)
}
