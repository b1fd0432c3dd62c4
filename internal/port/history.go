package port

import (
	"context"

	"taxrag/internal/domain"
)

// HistoryStore persists the ordered turns of each session.
type HistoryStore interface {
	// Load returns the turns of a session in the order they were appended.
	// An unknown session has an empty history.
	Load(ctx context.Context, sessionID string) ([]domain.Turn, error)

	Append(ctx context.Context, sessionID string, turn domain.Turn) error

	Delete(ctx context.Context, sessionID string) error
}

// FeedbackStore records manual flags raised by users.
type FeedbackStore interface {
	SaveFeedback(ctx context.Context, fb domain.Feedback) error

	ListFeedback(ctx context.Context) ([]domain.Feedback, error)
}
