package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"

	"github.com/alexlazarev/shopcore/internal/infrastructure/observability"
)

type PostgresOrderRepository struct {
	db *sql.DB
}

func NewPostgresOrderRepository(db *sql.DB) *PostgresOrderRepository {
	return &PostgresOrderRepository{db: db}
}

// ActiveOrders returns the user's orders that are not finished or cancelled.
func (r *PostgresOrderRepository) ActiveOrders(ctx context.Context, userID int64) ([]int64, error) {
	var err error
	tracer := otel.Tracer("order-repository")
	ctx, span := tracer.Start(ctx, "ActiveOrders")
	defer span.End()

	start := time.Now()
	defer func() {
		status := "success"
		if err != nil {
			status = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		observability.RepositoryCalls.WithLabelValues("ActiveOrders", status).Inc()
		observability.RepositoryDuration.WithLabelValues("ActiveOrders").Observe(time.Since(start).Seconds())
	}()

	query := `
	SELECT order_id FROM orders
	WHERE user_id = $1 AND status NOT IN ('finished', 'cancelled')
	`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query active orders: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err = rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan order id: %w", err)
		}
		ids = append(ids, id)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read active orders: %w", err)
	}
	return ids, nil
}
