package flags

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/dmitrijs2005/flagkeeper/internal/common"
	"github.com/dmitrijs2005/flagkeeper/internal/models"
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	repo := NewPostgresRepository(db)
	repo.now = func() time.Time {
		return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	}
	return repo, mock, db
}

func TestValidate_OK(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)^SELECT\s+1\s+FROM\s+flags\s+WHERE\s+reporter_uid\s*=\s*\$1\s+AND\s+target_type\s*=\s*\$2\s+AND\s+target_id\s*=\s*\$3\s+LIMIT\s+1\s*$`

	mock.ExpectQuery(q).
		WithArgs("u-1", common.TargetTypePost, "p-9").
		WillReturnError(sql.ErrNoRows)

	err := repo.Validate(context.Background(), ValidateRequest{UID: "u-1", TargetType: common.TargetTypePost, TargetID: "p-9"})
	if err != nil {
		t.Fatalf("Validate error: %v", err)
	}
}

func TestValidate_AlreadyFlagged(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	rows := sqlmock.NewRows([]string{"?column?"}).AddRow(1)
	mock.ExpectQuery(`(?s)SELECT\s+1\s+FROM\s+flags`).
		WithArgs("u-1", common.TargetTypePost, "p-9").
		WillReturnRows(rows)

	err := repo.Validate(context.Background(), ValidateRequest{UID: "u-1", TargetType: common.TargetTypePost, TargetID: "p-9"})
	if !errors.Is(err, common.ErrAlreadyFlagged) {
		t.Fatalf("expected ErrAlreadyFlagged, got %v", err)
	}
}

func TestValidate_BadInput(t *testing.T) {
	repo, _, db := newRepoWithMock(t)
	defer db.Close()

	tests := []struct {
		name string
		req  ValidateRequest
	}{
		{"unknown target type", ValidateRequest{UID: "u-1", TargetType: "comment", TargetID: "c-1"}},
		{"empty target id", ValidateRequest{UID: "u-1", TargetType: common.TargetTypeTopic}},
		{"empty uid", ValidateRequest{TargetType: common.TargetTypeTopic, TargetID: "t-1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := repo.Validate(context.Background(), tt.req); !errors.Is(err, common.ErrInvalidData) {
				t.Fatalf("expected ErrInvalidData, got %v", err)
			}
		})
	}
}

func TestFlagCreate_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)^\s*INSERT\s+INTO\s+flags\s*\(id,\s*target_type,\s*target_id,\s*reporter_uid,\s*reason,\s*state,\s*created_at\)`

	mock.ExpectExec(q).
		WithArgs(sqlmock.AnyArg(), common.TargetTypePost, "p-9", "u-1", "spam", common.FlagStateOpen, repo.now()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	got, err := repo.Create(context.Background(), common.TargetTypePost, "p-9", "u-1", "spam")
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if got.ID == "" || got.State != common.FlagStateOpen || got.TargetID != "p-9" {
		t.Fatalf("unexpected flag: %+v", got)
	}
}

func TestFlagCreate_Duplicate(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`(?s)INSERT\s+INTO\s+flags`).
		WillReturnError(&pgconn.PgError{Code: "23505"})

	_, err := repo.Create(context.Background(), common.TargetTypePost, "p-9", "u-1", "spam")
	if !errors.Is(err, common.ErrAlreadyFlagged) {
		t.Fatalf("expected ErrAlreadyFlagged, got %v", err)
	}
}

func TestUpdate_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)WITH\s+updated\s+AS\s*\(\s*UPDATE\s+flags\s+SET\s+assignee_uid = \$2, state = \$3\s+WHERE\s+id = \$1.*INSERT\s+INTO\s+flag_history`

	mock.ExpectExec(q).
		WithArgs("f-1", "mod-1", common.FlagStateWIP, "mod-1",
			`{"assignee":"mod-1","state":"wip"}`, repo.now()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Update(context.Background(), "f-1", "mod-1",
		map[string]string{"state": common.FlagStateWIP, "assignee": "mod-1"})
	if err != nil {
		t.Fatalf("Update error: %v", err)
	}
}

func TestUpdate_UnknownField(t *testing.T) {
	repo, _, db := newRepoWithMock(t)
	defer db.Close()

	err := repo.Update(context.Background(), "f-1", "mod-1", map[string]string{"severity": "high"})
	if !errors.Is(err, common.ErrInvalidData) {
		t.Fatalf("expected ErrInvalidData, got %v", err)
	}
}

func TestUpdate_FlagNotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`(?s)WITH\s+updated\s+AS`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Update(context.Background(), "missing", "mod-1", map[string]string{"state": common.FlagStateResolved})
	if !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("expected ErrorNotFound, got %v", err)
	}
}

func TestUpdate_EmptyFields(t *testing.T) {
	repo, _, db := newRepoWithMock(t)
	defer db.Close()

	// no expectations set: an empty field map must not touch the db
	if err := repo.Update(context.Background(), "f-1", "mod-1", nil); err != nil {
		t.Fatalf("Update error: %v", err)
	}
}

func TestGetHistory(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	ts := repo.now()
	rows := sqlmock.NewRows([]string{"flag_id", "uid", "fields_json", "note", "created_at"}).
		AddRow("f-1", "mod-1", `{"state":"wip"}`, "", ts).
		AddRow("f-1", "mod-2", `{}`, "escalating", ts.Add(-time.Hour))
	mock.ExpectQuery(`(?s)SELECT\s+flag_id,\s*uid,\s*fields_json,\s*note,\s*created_at\s+FROM\s+flag_history`).
		WithArgs("f-1").
		WillReturnRows(rows)

	got, err := repo.GetHistory(context.Background(), "f-1")
	if err != nil {
		t.Fatalf("GetHistory error: %v", err)
	}
	if len(got) != 2 || got[0].Fields["state"] != common.FlagStateWIP || got[1].Note != "escalating" {
		t.Fatalf("unexpected history: %+v", got)
	}
}

func TestGetNotes(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	ts := repo.now()
	rows := sqlmock.NewRows([]string{"flag_id", "uid", "note", "created_at"}).
		AddRow("f-1", "mod-1", "looks like spam", ts)
	mock.ExpectQuery(`(?s)SELECT\s+flag_id,\s*uid,\s*note,\s*created_at\s+FROM\s+flag_notes`).
		WithArgs("f-1").
		WillReturnRows(rows)

	got, err := repo.GetNotes(context.Background(), "f-1")
	if err != nil {
		t.Fatalf("GetNotes error: %v", err)
	}
	if len(got) != 1 || got[0].Body != "looks like spam" {
		t.Fatalf("unexpected notes: %+v", got)
	}
}

func TestGetNote_Found(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	ts := repo.now()
	rows := sqlmock.NewRows([]string{"flag_id", "uid", "note", "created_at"}).
		AddRow("f-1", "mod-1", "looks like spam", ts)
	mock.ExpectQuery(`(?s)FROM\s+flag_notes\s+WHERE\s+flag_id\s*=\s*\$1\s+AND\s+created_at\s*=\s*\$2`).
		WithArgs("f-1", ts).
		WillReturnRows(rows)

	got, err := repo.GetNote(context.Background(), "f-1", ts)
	if err != nil {
		t.Fatalf("GetNote error: %v", err)
	}
	if got.UID != "mod-1" {
		t.Fatalf("unexpected note: %+v", got)
	}
}

func TestGetNote_Missing(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`(?s)FROM\s+flag_notes\s+WHERE\s+flag_id\s*=\s*\$1\s+AND\s+created_at\s*=\s*\$2`).
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetNote(context.Background(), "f-1", repo.now())
	if !errors.Is(err, common.ErrInvalidData) {
		t.Fatalf("expected ErrInvalidData, got %v", err)
	}
}

func TestAppendNote_New(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)WITH\s+note\s+AS\s*\(\s*INSERT\s+INTO\s+flag_notes.*RETURNING\s+flag_id\s*\)\s*INSERT\s+INTO\s+flag_history`

	mock.ExpectExec(q).
		WithArgs("f-1", "mod-1", "first note", repo.now()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.AppendNote(context.Background(), "f-1", "mod-1", "first note", nil); err != nil {
		t.Fatalf("AppendNote error: %v", err)
	}
}

func TestAppendNote_CollisionRetries(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	ts := repo.now()
	q := `(?s)WITH\s+note\s+AS`
	mock.ExpectExec(q).
		WithArgs("f-1", "mod-1", "x", ts).
		WillReturnError(&pgconn.PgError{Code: "23505"})
	mock.ExpectExec(q).
		WithArgs("f-1", "mod-1", "x", ts.Add(time.Microsecond)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.AppendNote(context.Background(), "f-1", "mod-1", "x", nil); err != nil {
		t.Fatalf("AppendNote error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAppendNote_Edit(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	edited := time.Date(2025, 5, 20, 8, 30, 0, 0, time.UTC)
	q := `(?s)WITH\s+note\s+AS\s*\(\s*INSERT\s+INTO\s+flag_notes.*ON\s+CONFLICT\s*\(flag_id,\s*created_at\)\s*DO\s+UPDATE`

	mock.ExpectExec(q).
		WithArgs("f-1", "mod-1", "corrected wording", edited, repo.now()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.AppendNote(context.Background(), "f-1", "mod-1", "corrected wording", &edited); err != nil {
		t.Fatalf("AppendNote error: %v", err)
	}
}

func TestDeleteNote_Missing(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`(?s)DELETE\s+FROM\s+flag_notes`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.DeleteNote(context.Background(), "f-1", repo.now())
	if !errors.Is(err, common.ErrInvalidData) {
		t.Fatalf("expected ErrInvalidData, got %v", err)
	}
}

func TestDeleteNote_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	ts := repo.now()
	mock.ExpectExec(`(?s)DELETE\s+FROM\s+flag_notes\s+WHERE\s+flag_id\s*=\s*\$1\s+AND\s+created_at\s*=\s*\$2`).
		WithArgs("f-1", ts).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.DeleteNote(context.Background(), "f-1", ts); err != nil {
		t.Fatalf("DeleteNote error: %v", err)
	}
}

func TestAppendHistory(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`(?s)INSERT\s+INTO\s+flag_history\s*\(flag_id,\s*uid,\s*fields_json,\s*note,\s*created_at\)`).
		WithArgs("f-1", "mod-1", `{}`, common.NoteDeletedText, repo.now()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	entry := models.HistoryEntry{Note: common.NoteDeletedText}
	if err := repo.AppendHistory(context.Background(), "f-1", "mod-1", entry); err != nil {
		t.Fatalf("AppendHistory error: %v", err)
	}
}
