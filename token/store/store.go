package store

import "context"

// Store persists the single access token string the client survives restarts with.
// Absence is reported as errors.ErrNotFound; presence says nothing about validity.
type Store interface {
	Get(ctx context.Context) (string, error)
	Set(ctx context.Context, token string) error
	Delete(ctx context.Context) error
	Close() error
}
