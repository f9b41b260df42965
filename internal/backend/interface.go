// internal/backend/interface.go
package backend

import (
	"context"

	"github.com/rusenback/berrymon/internal/model"
)

// BackendClient interface allows mocking in tests
type BackendClient interface {
	FetchBatch(ctx context.Context, feed Feed) ([]model.ExchangeRecord, error)
	Clear(ctx context.Context, feed Feed) error
	Status(ctx context.Context, feed Feed) (bool, error)
	Start(ctx context.Context, feed Feed) (bool, error)
	Stop(ctx context.Context, feed Feed) error
	Send(ctx context.Context, feed Feed) error
	FeedLogin(ctx context.Context, feed Feed) error
	Close() error
}

// Make sure Client implements the interface
var _ BackendClient = (*Client)(nil)

// ConsoleClient runs commands from the backend's CLI registry
type ConsoleClient interface {
	Commands(ctx context.Context) ([]Command, error)
	Execute(ctx context.Context, command string, args map[string]any) (ExecuteResult, error)
}

// OverviewClient reports backend health and per-feed process status
type OverviewClient interface {
	Health(ctx context.Context) (string, error)
	Status(ctx context.Context, feed Feed) (bool, error)
}

var (
	_ ConsoleClient  = (*Client)(nil)
	_ OverviewClient = (*Client)(nil)
)
