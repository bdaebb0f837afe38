// Package flags provides the PostgreSQL-backed flag store: flags, their
// append-only history trail, and moderator notes keyed by (flag, timestamp).
package flags

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/flagkeeper/internal/common"
	"github.com/dmitrijs2005/flagkeeper/internal/dbx"
	"github.com/dmitrijs2005/flagkeeper/internal/models"
)

// updatable maps update field names to their columns. Anything else in an
// update body is rejected with ErrInvalidData.
var updatable = map[string]string{
	"state":    "state",
	"assignee": "assignee_uid",
	"reason":   "reason",
}

// maxNoteInsertAttempts bounds the timestamp-offset retries when two notes on
// the same flag collide at the store's timestamp granularity.
const maxNoteInsertAttempts = 3

// PostgresRepository implements the flag store over a dbx.DBTX
// (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db  dbx.DBTX
	now func() time.Time
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db, now: time.Now}
}

// Validate checks that the caller and target form a flaggable pair: known
// target type, non-empty identifiers, and no existing flag by the same
// reporter on the same target.
func (r *PostgresRepository) Validate(ctx context.Context, req ValidateRequest) error {
	if req.UID == "" || req.TargetID == "" {
		return fmt.Errorf("caller and target required: %w", common.ErrInvalidData)
	}
	switch req.TargetType {
	case common.TargetTypePost, common.TargetTypeTopic, common.TargetTypeUser:
	default:
		return fmt.Errorf("target type %q: %w", req.TargetType, common.ErrInvalidData)
	}

	row := r.db.QueryRowContext(ctx,
		`SELECT 1 FROM flags WHERE reporter_uid = $1 AND target_type = $2 AND target_id = $3 LIMIT 1`,
		req.UID, req.TargetType, req.TargetID)
	var n int
	err := row.Scan(&n)
	if err == nil {
		return common.ErrAlreadyFlagged
	}
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	return fmt.Errorf("db error: %w", err)
}

// Create inserts a new open flag and returns it. The identifier is assigned
// here; callers treat it as opaque.
func (r *PostgresRepository) Create(ctx context.Context, targetType, targetID, reporterUID, reason string) (*models.Flag, error) {
	f := &models.Flag{
		ID:          uuid.New().String(),
		TargetType:  targetType,
		TargetID:    targetID,
		ReporterUID: reporterUID,
		Reason:      reason,
		State:       common.FlagStateOpen,
		Created:     r.now().UTC(),
	}

	query := `
		INSERT INTO flags (id, target_type, target_id, reporter_uid, reason, state, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.db.ExecContext(ctx, query,
		f.ID, f.TargetType, f.TargetID, f.ReporterUID, f.Reason, f.State, f.Created)
	if err != nil {
		if dbx.IsUniqueViolation(err) {
			return nil, common.ErrAlreadyFlagged
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return f, nil
}

// Update applies a whitelisted field map to the flag and records the changed
// fields as one history entry, atomically via a data-modifying CTE. Unknown
// field names are rejected with ErrInvalidData; an unknown flag id yields
// ErrorNotFound.
func (r *PostgresRepository) Update(ctx context.Context, flagID, uid string, fields map[string]string) error {
	if len(fields) == 0 {
		return nil
	}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	args := []any{flagID}
	set := ""
	for _, k := range keys {
		col, ok := updatable[k]
		if !ok {
			return fmt.Errorf("field %q: %w", k, common.ErrInvalidData)
		}
		args = append(args, fields[k])
		if set != "" {
			set += ", "
		}
		set += fmt.Sprintf("%s = $%d", col, len(args))
	}

	fieldsJSON, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("marshal fields: %w", err)
	}
	args = append(args, uid)
	uidPos := len(args)
	args = append(args, string(fieldsJSON))
	jsonPos := len(args)
	args = append(args, r.now().UTC())
	tsPos := len(args)

	query := fmt.Sprintf(`
		WITH updated AS (
			UPDATE flags SET %s WHERE id = $1
			RETURNING id
		)
		INSERT INTO flag_history (flag_id, uid, fields_json, created_at)
		SELECT id, $%d, $%d, $%d FROM updated;
	`, set, uidPos, jsonPos, tsPos)

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("flag %s: %w", flagID, common.ErrorNotFound)
	}
	return nil
}

// GetHistory returns the flag's audit trail, most recent first.
func (r *PostgresRepository) GetHistory(ctx context.Context, flagID string) ([]models.HistoryEntry, error) {
	query := `
		SELECT flag_id, uid, fields_json, note, created_at FROM flag_history
		WHERE flag_id = $1
		ORDER BY created_at DESC
	`
	rows, err := r.db.QueryContext(ctx, query, flagID)
	if err != nil {
		return nil, fmt.Errorf("failed to select history: %w", err)
	}
	defer rows.Close()

	var result []models.HistoryEntry
	for rows.Next() {
		var item models.HistoryEntry
		var fieldsJSON string
		if err := rows.Scan(&item.FlagID, &item.UID, &fieldsJSON, &item.Note, &item.Created); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(fieldsJSON), &item.Fields); err != nil {
			return nil, fmt.Errorf("unmarshal history fields: %w", err)
		}
		result = append(result, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// GetNotes returns the flag's notes, most recent first.
func (r *PostgresRepository) GetNotes(ctx context.Context, flagID string) ([]models.Note, error) {
	query := `
		SELECT flag_id, uid, note, created_at FROM flag_notes
		WHERE flag_id = $1
		ORDER BY created_at DESC
	`
	rows, err := r.db.QueryContext(ctx, query, flagID)
	if err != nil {
		return nil, fmt.Errorf("failed to select notes: %w", err)
	}
	defer rows.Close()

	var result []models.Note
	for rows.Next() {
		var item models.Note
		if err := rows.Scan(&item.FlagID, &item.UID, &item.Body, &item.Created); err != nil {
			return nil, err
		}
		result = append(result, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// GetNote returns the single note at the (flagID, created) key. A missing
// note is reported as ErrInvalidData.
func (r *PostgresRepository) GetNote(ctx context.Context, flagID string, created time.Time) (*models.Note, error) {
	query := `
		SELECT flag_id, uid, note, created_at FROM flag_notes
		WHERE flag_id = $1 AND created_at = $2
	`
	note := &models.Note{}
	err := r.db.QueryRowContext(ctx, query, flagID, created.UTC()).
		Scan(&note.FlagID, &note.UID, &note.Body, &note.Created)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("note %s@%s: %w", flagID, created.UTC().Format(time.RFC3339Nano), common.ErrInvalidData)
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return note, nil
}

// AppendNote writes a note and its history record atomically. With an
// explicit created timestamp the write is an upsert at the composite key
// (edit-in-place overwrite). Without one, the current time is used and a
// collision at the key is resolved by offsetting the timestamp one
// microsecond and retrying, so a brand-new note never silently overwrites
// another.
func (r *PostgresRepository) AppendNote(ctx context.Context, flagID, uid, body string, created *time.Time) error {
	if created != nil {
		query := `
			WITH note AS (
				INSERT INTO flag_notes (flag_id, uid, note, created_at)
				VALUES ($1, $2, $3, $4)
				ON CONFLICT (flag_id, created_at)
				DO UPDATE SET uid = EXCLUDED.uid, note = EXCLUDED.note
				RETURNING flag_id
			)
			INSERT INTO flag_history (flag_id, uid, note, created_at)
			SELECT flag_id, $2, $3, $5 FROM note;
		`
		if _, err := r.db.ExecContext(ctx, query, flagID, uid, body, created.UTC(), r.now().UTC()); err != nil {
			return fmt.Errorf("db error: %w", err)
		}
		return nil
	}

	query := `
		WITH note AS (
			INSERT INTO flag_notes (flag_id, uid, note, created_at)
			VALUES ($1, $2, $3, $4)
			RETURNING flag_id
		)
		INSERT INTO flag_history (flag_id, uid, note, created_at)
		SELECT flag_id, $2, $3, $4 FROM note;
	`
	ts := r.now().UTC()
	for attempt := 1; ; attempt++ {
		_, err := r.db.ExecContext(ctx, query, flagID, uid, body, ts)
		if err == nil {
			return nil
		}
		if dbx.IsUniqueViolation(err) && attempt < maxNoteInsertAttempts {
			ts = ts.Add(time.Microsecond)
			continue
		}
		return fmt.Errorf("db error: %w", err)
	}
}

// DeleteNote removes the note at the (flagID, created) key. A missing note is
// reported as ErrInvalidData.
func (r *PostgresRepository) DeleteNote(ctx context.Context, flagID string, created time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM flag_notes WHERE flag_id = $1 AND created_at = $2`,
		flagID, created.UTC())
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("note %s@%s: %w", flagID, created.UTC().Format(time.RFC3339Nano), common.ErrInvalidData)
	}
	return nil
}

// AppendHistory inserts one audit record as-is. A zero entry timestamp is
// replaced with the current time.
func (r *PostgresRepository) AppendHistory(ctx context.Context, flagID, uid string, entry models.HistoryEntry) error {
	fields := entry.Fields
	if fields == nil {
		fields = map[string]string{}
	}
	fieldsJSON, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("marshal fields: %w", err)
	}
	ts := entry.Created
	if ts.IsZero() {
		ts = r.now()
	}

	query := `
		INSERT INTO flag_history (flag_id, uid, fields_json, note, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	if _, err := r.db.ExecContext(ctx, query, flagID, uid, string(fieldsJSON), entry.Note, ts.UTC()); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
