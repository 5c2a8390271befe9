package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"

	"github.com/geniechat/geniechat-backend/internal/config"
)

// TokenSource provides the password for new physical connections.
// Implemented by auth.TokenMinter.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// DB wraps the pooled database connection.
type DB struct {
	*sqlx.DB
}

// NewConnection opens a pooled connection to the warehouse. The pool asks the
// token source for a fresh token on every physical connect and injects it as
// the connection password; connections already in the pool keep the token
// they were dialed with until the lifetime recycle replaces them.
func NewConnection(cfg config.DatabaseConfig, tokens TokenSource) (*DB, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Database, cfg.SSLMode)

	connConfig, err := pgx.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	sqlDB := stdlib.OpenDB(*connConfig, stdlib.OptionBeforeConnect(func(ctx context.Context, cc *pgx.ConnConfig) error {
		logrus.Debug("Providing token for new database connection")
		token, err := tokens.Token(ctx)
		if err != nil {
			logrus.WithError(err).Error("Failed to provide token for database connection")
			return err
		}
		cc.Password = token
		return nil
	}))

	db := sqlx.NewDb(sqlDB, "pgx")

	// Bounded pool with overflow allowance; the lifetime cap forcibly
	// recycles idle-but-healthy connections so no connection outlives its
	// credential by much.
	db.SetMaxOpenConns(cfg.PoolSize + cfg.MaxOverflow)
	db.SetMaxIdleConns(cfg.PoolSize)
	db.SetConnMaxLifetime(time.Duration(cfg.PoolRecycle) * time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.PoolTimeout)*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{db}, nil
}

// Close closes the database connection pool.
func (db *DB) Close() error {
	return db.DB.Close()
}
