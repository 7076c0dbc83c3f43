package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"go.uber.org/zap"
)

const pqUniqueViolation = pq.ErrorCode("23505")

var postgresDialect = dialect{
	name:            "postgres",
	numbered:        true,
	uniqueViolation: isPostgresUniqueViolation,
}

// PostgresDSN builds a lib/pq connection string.
func PostgresDSN(host, port, user, password, dbName, sslMode string) string {
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		host, port, user, password, dbName, sslMode)
}

// OpenPostgres connects to PostgreSQL and applies the embedded migrations.
func OpenPostgres(ctx context.Context, dsn string, logger *zap.Logger) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	store, err := newStore(ctx, db, postgresDialect, logger)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	store.log.Info("successfully connected to the PostgreSQL database")
	return store, nil
}

func isPostgresUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == pqUniqueViolation
	}
	return false
}
