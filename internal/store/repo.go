package store

import (
	"context"

	"github.com/MrDDream/ReminderVoteBot/internal/domain"
)

// Repo persists the whole subscription collection. Save always rewrites
// everything; the Store is the only caller and serializes access.
type Repo interface {
	LoadSubscriptions(ctx context.Context) ([]domain.Subscription, error)
	SaveSubscriptions(ctx context.Context, subs []domain.Subscription) error
	Close() error
}
