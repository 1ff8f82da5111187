package models

import "time"

type OrderStatus string

const (
	OrderNew       OrderStatus = "new"
	OrderConfirmed OrderStatus = "confirmed"
	OrderPreparing OrderStatus = "preparing"
	OrderDelivered OrderStatus = "delivered"
	OrderReady     OrderStatus = "ready"
	OrderFinished  OrderStatus = "finished"
	OrderCancelled OrderStatus = "cancelled"
)

// Terminal reports whether the order can no longer change. Accounts with
// non-terminal orders cannot be deleted.
func (s OrderStatus) Terminal() bool {
	return s == OrderFinished || s == OrderCancelled
}

type Order struct {
	ID        int64       `json:"order_id"`
	UserID    int64       `json:"user_id"`
	Status    OrderStatus `json:"status"`
	Price     float64     `json:"price"`
	CreatedAt time.Time   `json:"created_at"`
}
