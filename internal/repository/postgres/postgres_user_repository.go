package repository

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"

	"github.com/alexlazarev/shopcore/internal/infrastructure/observability"
	"github.com/alexlazarev/shopcore/internal/models"
	pkgerrors "github.com/alexlazarev/shopcore/pkg/errors"
)

const uniqueViolation = "23505"

type PostgresUserRepository struct {
	db *sql.DB
}

func NewPostgresUserRepository(db *sql.DB) *PostgresUserRepository {
	return &PostgresUserRepository{db: db}
}

func (r *PostgresUserRepository) Create(ctx context.Context, user *models.User) error {
	var err error
	tracer := otel.Tracer("user-repository")
	ctx, span := tracer.Start(ctx, "CreateUser")
	defer span.End()

	start := time.Now()
	defer func() {
		status := "success"
		if err != nil {
			status = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		observability.RepositoryCalls.WithLabelValues("CreateUser", status).Inc()
		observability.RepositoryDuration.WithLabelValues("CreateUser").Observe(time.Since(start).Seconds())
	}()

	if user == nil {
		err = pkgerrors.ErrNilUser
		return err
	}
	if user.Email == "" && user.Phone == "" {
		err = fmt.Errorf("email or phone is required")
		return err
	}
	if user.PasswordHash == "" {
		err = fmt.Errorf("password hash is required")
		return err
	}
	if user.Role == "" {
		user.Role = models.RoleUser
	}

	query := `
	INSERT INTO users (email, phone, hashed_password, city, home_address, pickup_store_id, role)
	VALUES (NULLIF($1, ''), NULLIF($2, ''), $3, $4, $5, NULLIF($6, 0), $7)
	RETURNING user_id
	`
	err = r.db.QueryRowContext(
		ctx,
		query,
		user.Email,
		user.Phone,
		user.PasswordHash,
		user.City,
		user.HomeAddress,
		user.PickupStoreID,
		string(user.Role),
	).Scan(&user.ID)

	var pqErr *pq.Error
	if stderrors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		err = pkgerrors.ErrUserExists
		return err
	}
	if err != nil {
		slog.Error("failed to create user", "email", user.Email, "error", err)
		err = fmt.Errorf("failed to create user: %w", err)
		return err
	}
	return nil
}

func (r *PostgresUserRepository) FindByIdentifier(ctx context.Context, email, phone string) (*models.User, error) {
	var err error
	tracer := otel.Tracer("user-repository")
	ctx, span := tracer.Start(ctx, "FindByIdentifier")
	defer span.End()

	start := time.Now()
	defer func() {
		status := "success"
		if err != nil && !stderrors.Is(err, pkgerrors.ErrUserNotFound) {
			status = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		observability.RepositoryCalls.WithLabelValues("FindByIdentifier", status).Inc()
		observability.RepositoryDuration.WithLabelValues("FindByIdentifier").Observe(time.Since(start).Seconds())
	}()

	if email == "" && phone == "" {
		err = pkgerrors.ErrUserNotFound
		return nil, err
	}

	query := `
	SELECT user_id, COALESCE(email, ''), COALESCE(phone, ''), hashed_password,
	       COALESCE(city, ''), COALESCE(home_address, ''), COALESCE(pickup_store_id, 0), role
	FROM users
	WHERE ($1 <> '' AND email = $1) OR ($2 <> '' AND phone = $2)
	`
	var user models.User
	err = r.db.QueryRowContext(ctx, query, email, phone).Scan(
		&user.ID,
		&user.Email,
		&user.Phone,
		&user.PasswordHash,
		&user.City,
		&user.HomeAddress,
		&user.PickupStoreID,
		&user.Role,
	)
	switch {
	case stderrors.Is(err, sql.ErrNoRows):
		err = pkgerrors.ErrUserNotFound
		return nil, err
	case err != nil:
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return &user, nil
}

// DeleteWithOrders removes the user's orders first, then the user row, in a
// single transaction. User deletion must not leave orphaned orders behind.
func (r *PostgresUserRepository) DeleteWithOrders(ctx context.Context, userID int64) error {
	var err error
	tracer := otel.Tracer("user-repository")
	ctx, span := tracer.Start(ctx, "DeleteWithOrders")
	defer span.End()

	start := time.Now()
	defer func() {
		status := "success"
		if err != nil {
			status = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		observability.RepositoryCalls.WithLabelValues("DeleteWithOrders", status).Inc()
		observability.RepositoryDuration.WithLabelValues("DeleteWithOrders").Observe(time.Since(start).Seconds())
	}()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err = tx.ExecContext(ctx, `DELETE FROM orders WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("failed to delete user orders: %w", err)
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM users WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check deleted rows: %w", err)
	}
	if affected == 0 {
		err = pkgerrors.ErrUserNotFound
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit user deletion: %w", err)
	}
	slog.Info("user deleted with orders", "user_id", userID)
	return nil
}
