package db

import (
	"context"
	"fmt"

	"github.com/Kitbitz/haveekos/config"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var Pool *pgxpool.Pool

var connString string

func Init(cfg config.DBConfig) error {
	connString = fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Database,
	)
	var err error
	Pool, err = pgxpool.New(context.Background(), connString)
	return err
}

func Close() {
	if Pool != nil {
		Pool.Close()
	}
}

// Listen opens a dedicated connection subscribed to the given notification
// channel. LISTEN cannot run on pooled connections because pgxpool resets
// session state between checkouts, so the realtime provider holds its own.
func Listen(ctx context.Context, channel string) (*pgx.Conn, error) {
	conn, err := pgx.Connect(ctx, connString)
	if err != nil {
		return nil, err
	}
	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{channel}.Sanitize()); err != nil {
		conn.Close(ctx)
		return nil, err
	}
	return conn, nil
}
