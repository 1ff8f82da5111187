package repository

import (
	"context"

	"github.com/alexlazarev/shopcore/internal/models"
)

type UserRepository interface {
	// Create inserts the user and fills in the generated ID. A duplicate
	// email or phone reports pkg/errors.ErrUserExists; the unique constraint
	// is the final backstop against double registration.
	Create(ctx context.Context, user *models.User) error
	// FindByIdentifier looks the user up by email or phone, whichever is
	// non-empty. Missing user reports pkg/errors.ErrUserNotFound.
	FindByIdentifier(ctx context.Context, email, phone string) (*models.User, error)
	// DeleteWithOrders removes the user's orders and the user row in one
	// transaction.
	DeleteWithOrders(ctx context.Context, userID int64) error
}
