package testutil

import (
	"context"

	"gorm.io/gorm"
)

// MockPostgresClient satisfies postgres.IClient for service tests. The
// in-memory stores apply writes immediately, so transactions degrade to plain
// function calls and retries never fire.
type MockPostgresClient struct{}

func NewMockPostgresClient() *MockPostgresClient {
	return &MockPostgresClient{}
}

func (c *MockPostgresClient) WithTx(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}

func (c *MockPostgresClient) WithRetryableTx(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}

func (c *MockPostgresClient) TxFromContext(ctx context.Context) *gorm.DB {
	return nil
}

func (c *MockPostgresClient) Querier(ctx context.Context) *gorm.DB {
	return nil
}
