package mocks

import (
	"context"

	"novel-fork/internal/interfaces"

	"github.com/stretchr/testify/mock"
)

// ptr достаёт типизированный указатель из аргументов мока, допуская nil.
func ptr[T any](args mock.Arguments, i int) *T {
	v := args.Get(i)
	if v == nil {
		return nil
	}
	return v.(*T)
}

func slice[T any](args mock.Arguments, i int) []T {
	v := args.Get(i)
	if v == nil {
		return nil
	}
	return v.([]T)
}

// TxRunner выполняет fn без реальной транзакции: querier равен nil,
// поэтому ожидания репозиториев задаются через mock.Anything.
type TxRunner struct {
	Tx interfaces.DBTX
}

func (r *TxRunner) Querier() interfaces.DBTX { return r.Tx }

func (r *TxRunner) InTx(_ context.Context, fn func(tx interfaces.DBTX) error) error {
	return fn(r.Tx)
}

var _ interfaces.TxRunner = (*TxRunner)(nil)
