package flags

import (
	"context"
	"time"

	"github.com/dmitrijs2005/flagkeeper/internal/models"
)

// ValidateRequest carries the caller and target of a prospective flag.
type ValidateRequest struct {
	UID        string
	TargetType string
	TargetID   string
}

// Repository is the flag store contract consumed by the orchestrator.
//
// Collections come back ordered most-recent-first; callers pass them through
// without re-sorting. GetNote reports a missing note as common.ErrInvalidData
// so callers can distinguish "no such note" from infrastructure failures by
// error kind.
type Repository interface {
	Validate(ctx context.Context, req ValidateRequest) error
	Create(ctx context.Context, targetType, targetID, reporterUID, reason string) (*models.Flag, error)
	Update(ctx context.Context, flagID, uid string, fields map[string]string) error
	GetHistory(ctx context.Context, flagID string) ([]models.HistoryEntry, error)
	GetNotes(ctx context.Context, flagID string) ([]models.Note, error)
	GetNote(ctx context.Context, flagID string, created time.Time) (*models.Note, error)
	AppendNote(ctx context.Context, flagID, uid, body string, created *time.Time) error
	DeleteNote(ctx context.Context, flagID string, created time.Time) error
	AppendHistory(ctx context.Context, flagID, uid string, entry models.HistoryEntry) error
}
