package interfaces

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX - общий интерфейс для *pgxpool.Pool и pgx.Tx, чтобы репозитории
// могли работать как вне транзакции, так и внутри неё.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// TxRunner выдаёт querier для чтения и выполняет функцию в транзакции.
type TxRunner interface {
	Querier() DBTX
	InTx(ctx context.Context, fn func(tx DBTX) error) error
}
