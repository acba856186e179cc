package service

import (
	"context"
	stderrors "errors"
	"strings"

	"SafeCircle/internal/models"
	"SafeCircle/pkg/errors"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// isMissingTable recognizes "relation does not exist" across the supported drivers.
func isMissingTable(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if stderrors.As(err, &pgErr) {
		return pgErr.Code == "42P01"
	}
	var myErr *mysql.MySQLError
	if stderrors.As(err, &myErr) {
		return myErr.Number == 1146
	}
	return strings.Contains(err.Error(), "no such table")
}

// retryOnMissingSchema runs fn; when it fails on a missing table the schema is
// migrated and fn runs exactly once more.
func retryOnMissingSchema[T any](ctx context.Context, db *gorm.DB, lg *zap.Logger, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	v, err := fn(ctx)
	if !isMissingTable(err) {
		return v, err
	}
	lg.Warn("table missing, migrating before retry", zap.String("op", op), zap.Error(err))
	if merr := models.Migrate(db.WithContext(ctx)); merr != nil {
		var zero T
		return zero, errors.Wrap(merr, "migrate")
	}
	return fn(ctx)
}
