package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dmitrijs2005/flagkeeper/internal/common"
	"github.com/dmitrijs2005/flagkeeper/internal/logging"
	"github.com/dmitrijs2005/flagkeeper/internal/models"
	"github.com/dmitrijs2005/flagkeeper/internal/notify"
	"github.com/dmitrijs2005/flagkeeper/internal/repositories/flags"
	"github.com/dmitrijs2005/flagkeeper/internal/repositories/repomanager"
)

// CreateRequest carries the required fields for raising a new flag.
type CreateRequest struct {
	Type   string
	ID     string
	Reason string
}

// UpdateRequest carries a field map to apply to an existing flag. A "flagId"
// key inside Fields is ignored; the identifier travels only in FlagID.
type UpdateRequest struct {
	FlagID string
	Fields map[string]string
}

// AppendNoteRequest adds or edits a moderator note. A non-nil Datetime marks
// an edit of the note at that timestamp rather than a brand-new note.
type AppendNoteRequest struct {
	FlagID   string
	Note     string
	Datetime *time.Time
}

// DeleteNoteRequest identifies the note to remove by its composite key.
type DeleteNoteRequest struct {
	FlagID   string
	Datetime time.Time
}

// NotesAndHistory is the combined read returned after note mutations.
type NotesAndHistory struct {
	Notes   []models.Note
	History []models.HistoryEntry
}

// FlagService orchestrates the moderation-flag workflow: creation, privileged
// updates, and the note-and-history trail. It validates preconditions,
// consults the user repository for privilege checks, and delegates all
// persistence to the flag repository. Notification delivery is best-effort.
type FlagService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	notifier    notify.Notifier
	logger      logging.Logger
	now         func() time.Time
}

func NewFlagService(db *sql.DB, m repomanager.RepositoryManager, notifier notify.Notifier, logger logging.Logger) *FlagService {
	return &FlagService{
		db:          db,
		repomanager: m,
		notifier:    notifier,
		logger:      logger,
		now:         time.Now,
	}
}

// Create validates and raises a new flag on behalf of the caller, then
// notifies interested parties. A notifier failure is logged and swallowed:
// the flag exists whether or not the notification got through.
func (s *FlagService) Create(ctx context.Context, callerUID string, req CreateRequest) (*models.Flag, error) {
	if req.Type == "" || req.ID == "" || req.Reason == "" {
		return nil, fmt.Errorf("type, id and reason are required: %w", common.ErrInvalidData)
	}

	repo := s.repomanager.Flags(s.db)

	err := repo.Validate(ctx, flags.ValidateRequest{UID: callerUID, TargetType: req.Type, TargetID: req.ID})
	if err != nil {
		return nil, err
	}

	flag, err := repo.Create(ctx, req.Type, req.ID, callerUID, req.Reason)
	if err != nil {
		return nil, err
	}

	event := notify.Event{Type: notify.EventFlagCreated, Flag: flag, Occurred: s.now()}
	if err := s.notifier.Notify(ctx, event); err != nil {
		s.logger.Warn(ctx, "flag notification failed", "flag_id", flag.ID, "error", err)
	}

	return flag, nil
}

// Update applies a moderation update to the flag and returns the fresh
// history, so the caller observes the change as an audit entry. Requires
// moderation privilege.
func (s *FlagService) Update(ctx context.Context, callerUID string, req UpdateRequest) ([]models.HistoryEntry, error) {
	if req.FlagID == "" {
		return nil, fmt.Errorf("flag id is required: %w", common.ErrInvalidData)
	}

	if err := s.requirePrivilege(ctx, callerUID); err != nil {
		return nil, err
	}

	fields := make(map[string]string, len(req.Fields))
	for k, v := range req.Fields {
		if k == "flagId" {
			continue
		}
		fields[k] = v
	}

	repo := s.repomanager.Flags(s.db)

	if err := repo.Update(ctx, req.FlagID, callerUID, fields); err != nil {
		return nil, err
	}

	return repo.GetHistory(ctx, req.FlagID)
}

// AppendNote adds a note to the flag, or edits an existing one when Datetime
// is set. Requires moderation privilege; an edit additionally requires
// authorship of the targeted note. A missing prior note is not an error for
// an edit, it degrades to appending a new note.
func (s *FlagService) AppendNote(ctx context.Context, callerUID string, req AppendNoteRequest) (*NotesAndHistory, error) {
	if req.FlagID == "" || req.Note == "" {
		return nil, fmt.Errorf("flag id and note are required: %w", common.ErrInvalidData)
	}

	if err := s.requirePrivilege(ctx, callerUID); err != nil {
		return nil, err
	}

	repo := s.repomanager.Flags(s.db)

	if req.Datetime != nil {
		existing, err := repo.GetNote(ctx, req.FlagID, *req.Datetime)
		switch {
		case err == nil:
			if existing.UID != callerUID {
				return nil, fmt.Errorf("only the author may edit a note: %w", common.ErrNoPrivileges)
			}
		case errors.Is(err, common.ErrInvalidData):
			s.logger.Debug(ctx, "no prior note at edit timestamp, appending new", "flag_id", req.FlagID)
		default:
			return nil, err
		}
	}

	if err := repo.AppendNote(ctx, req.FlagID, callerUID, req.Note, req.Datetime); err != nil {
		return nil, err
	}

	return s.notesAndHistory(ctx, req.FlagID)
}

// DeleteNote removes the caller's own note and records a "note deleted"
// history entry. Deleting a nonexistent note is an error, and there is no
// moderator override: only the author may delete their note.
func (s *FlagService) DeleteNote(ctx context.Context, callerUID string, req DeleteNoteRequest) (*NotesAndHistory, error) {
	if req.FlagID == "" || req.Datetime.IsZero() {
		return nil, fmt.Errorf("flag id and datetime are required: %w", common.ErrInvalidData)
	}

	repo := s.repomanager.Flags(s.db)

	note, err := repo.GetNote(ctx, req.FlagID, req.Datetime)
	if err != nil {
		return nil, err
	}
	if note.UID != callerUID {
		return nil, fmt.Errorf("only the author may delete a note: %w", common.ErrNoPrivileges)
	}

	if err := repo.DeleteNote(ctx, req.FlagID, req.Datetime); err != nil {
		return nil, err
	}

	entry := models.HistoryEntry{Note: common.NoteDeletedText, Created: s.now()}
	if err := repo.AppendHistory(ctx, req.FlagID, callerUID, entry); err != nil {
		return nil, err
	}

	return s.notesAndHistory(ctx, req.FlagID)
}

func (s *FlagService) requirePrivilege(ctx context.Context, uid string) error {
	privileged, err := s.repomanager.Users(s.db).IsPrivileged(ctx, uid)
	if err != nil {
		return err
	}
	if !privileged {
		return fmt.Errorf("user %s: %w", uid, common.ErrNoPrivileges)
	}
	return nil
}

// notesAndHistory re-reads both collections concurrently; the reads are
// independent, and either failure fails the whole result.
func (s *FlagService) notesAndHistory(ctx context.Context, flagID string) (*NotesAndHistory, error) {
	repo := s.repomanager.Flags(s.db)

	var result NotesAndHistory
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		notes, err := repo.GetNotes(ctx, flagID)
		if err != nil {
			return err
		}
		result.Notes = notes
		return nil
	})
	g.Go(func() error {
		history, err := repo.GetHistory(ctx, flagID)
		if err != nil {
			return err
		}
		result.History = history
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &result, nil
}
