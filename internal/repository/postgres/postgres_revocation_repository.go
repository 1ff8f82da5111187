package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"

	"github.com/alexlazarev/shopcore/internal/infrastructure/observability"
)

// PostgresRevocationRepository keeps the refresh-token blacklist. Rows are
// never deleted; a revoked jti stays revoked for the token's whole lifetime.
type PostgresRevocationRepository struct {
	db *sql.DB
}

func NewPostgresRevocationRepository(db *sql.DB) *PostgresRevocationRepository {
	return &PostgresRevocationRepository{db: db}
}

func (r *PostgresRevocationRepository) IsRevoked(ctx context.Context, jti string) (bool, error) {
	var err error
	tracer := otel.Tracer("revocation-repository")
	ctx, span := tracer.Start(ctx, "IsRevoked")
	defer span.End()

	start := time.Now()
	defer func() {
		status := "success"
		if err != nil {
			status = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		observability.RepositoryCalls.WithLabelValues("IsRevoked", status).Inc()
		observability.RepositoryDuration.WithLabelValues("IsRevoked").Observe(time.Since(start).Seconds())
	}()

	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM refresh_token_blacklist WHERE jti = $1)`
	if err = r.db.QueryRowContext(ctx, query, jti).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check revocation: %w", err)
	}
	return exists, nil
}

func (r *PostgresRevocationRepository) Revoke(ctx context.Context, jti string) error {
	var err error
	tracer := otel.Tracer("revocation-repository")
	ctx, span := tracer.Start(ctx, "Revoke")
	defer span.End()

	start := time.Now()
	defer func() {
		status := "success"
		if err != nil {
			status = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		observability.RepositoryCalls.WithLabelValues("Revoke", status).Inc()
		observability.RepositoryDuration.WithLabelValues("Revoke").Observe(time.Since(start).Seconds())
	}()

	query := `INSERT INTO refresh_token_blacklist (jti) VALUES ($1) ON CONFLICT (jti) DO NOTHING`
	if _, err = r.db.ExecContext(ctx, query, jti); err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	slog.Info("refresh token revoked", "jti", jti)
	return nil
}
