package wallet

import (
	"context"
	"errors"
	"fmt"
	"os"

	sq "github.com/Masterminds/squirrel"
	model "github.com/glkeru/loyalty/wallet/internal/models"
	"github.com/jackc/pgtype"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// Таблица wallet_kv: key text primary key, value text not null
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

func NewPostgresStore(logger *zap.Logger) (store *PostgresStore, err error) {
	// config
	purl := os.Getenv("WALLET_DB")
	if purl == "" {
		return nil, fmt.Errorf("env WALLET_DB is not set")
	}
	port := os.Getenv("WALLET_DB_PORT")
	if port == "" {
		return nil, fmt.Errorf("env WALLET_DB_PORT is not set")
	}
	user := os.Getenv("WALLET_DB_USER")
	if user == "" {
		return nil, fmt.Errorf("env WALLET_DB_USER is not set")
	}
	password := os.Getenv("WALLET_DB_PASSWORD")
	if password == "" {
		return nil, fmt.Errorf("env WALLET_DB_PASSWORD is not set")
	}
	database := os.Getenv("WALLET_DB_BASE")
	if database == "" {
		return nil, fmt.Errorf("env WALLET_DB_BASE is not set")
	}
	dsn := "postgres://" + user + ":" + password + "@" + purl + ":" + port + "/" + database

	pool, err := pgxpool.New(context.Background(), dsn)
	return &PostgresStore{pool, logger}, err
}

func (p *PostgresStore) Get(ctx context.Context, key string) (value string, err error) {
	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return "", err
	}
	defer conn.Release()

	var val pgtype.Text
	row := conn.QueryRow(ctx, "SELECT value FROM wallet_kv WHERE key = $1", key)
	err = row.Scan(&val)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", fmt.Errorf("key %s: %w", key, model.ErrNotFound)
		}
		return "", err
	}
	return val.String, nil
}

func (p *PostgresStore) Put(ctx context.Context, key string, value string) error {
	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	sql, args, err := sq.Insert("wallet_kv").
		Columns("key", "value").
		Values(key, value).
		Suffix("ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value").
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		p.logger.Error("SQL error",
			zap.Error(err),
			zap.String("query", sql),
			zap.Any("args", args),
		)
		return err
	}

	_, err = conn.Exec(ctx, sql, args...)
	if err != nil {
		p.logger.Error("SQL error",
			zap.Error(err),
			zap.String("query", sql),
			zap.Any("args", args),
		)
		return err
	}
	return nil
}

func (p *PostgresStore) PutIfAbsent(ctx context.Context, key string, value string) error {
	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	sql, args, err := sq.Insert("wallet_kv").
		Columns("key", "value").
		Values(key, value).
		Suffix("ON CONFLICT (key) DO NOTHING").
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return err
	}

	ct, err := conn.Exec(ctx, sql, args...)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("key %s: %w", key, model.ErrConflict)
	}
	return nil
}

// CAS через условие по старому значению
func (p *PostgresStore) CompareAndSwap(ctx context.Context, key string, oldValue string, newValue string) error {
	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	sql, args, err := sq.Update("wallet_kv").
		Set("value", newValue).
		Where(sq.Eq{"key": key}).
		Where(sq.Eq{"value": oldValue}).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return err
	}

	ct, err := conn.Exec(ctx, sql, args...)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		// ключа нет или значение поменялось
		var exists bool
		row := conn.QueryRow(ctx, "SELECT EXISTS(SELECT 1 FROM wallet_kv WHERE key = $1)", key)
		err = row.Scan(&exists)
		if err != nil {
			return err
		}
		if !exists {
			return fmt.Errorf("key %s: %w", key, model.ErrNotFound)
		}
		return fmt.Errorf("key %s: %w", key, model.ErrConflict)
	}
	return nil
}

func (p *PostgresStore) Delete(ctx context.Context, key string) error {
	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	sql, args, err := sq.Delete("wallet_kv").
		Where(sq.Eq{"key": key}).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return err
	}

	_, err = conn.Exec(ctx, sql, args...)
	return err
}
