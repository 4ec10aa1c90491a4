package scraper

import (
	"context"

	"followsweep/pkg/collector"
	"followsweep/pkg/export"
	"followsweep/pkg/models"
	"followsweep/pkg/session"
)

// Sessions runs collection sessions
type Sessions interface {
	Start(subject string) error
	Stop() bool
	Snapshot() session.Snapshot
	Wait(ctx context.Context) (collector.Result, error)
}

// Records is the follower store as the operator sees it
type Records interface {
	export.Source
	Count(ctx context.Context, subject string) (int, error)
	ListBySubject(ctx context.Context, subject string) ([]models.FollowerRecord, error)
	Get(ctx context.Context, subject, sourceID string) (models.FollowerRecord, error)
	DeleteOne(ctx context.Context, subject, sourceID string) error
	ClearAll(ctx context.Context, subject string) (int64, error)
}

// Compacter is implemented by record stores that can reclaim space after a
// bulk delete
type Compacter interface {
	Vacuum(ctx context.Context) error
}

// FollowerActions acts on a follower's remote profile
type FollowerActions interface {
	Remove(ctx context.Context, handle string) error
	Block(ctx context.Context, handle string) error
}

// AccountResolver returns the logged-in account
type AccountResolver func(ctx context.Context) (string, error)
