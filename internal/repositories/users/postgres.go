package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/flagkeeper/internal/common"
	"github.com/dmitrijs2005/flagkeeper/internal/dbx"
	"github.com/dmitrijs2005/flagkeeper/internal/models"
)

type PostgresRepository struct {
	db  dbx.DBTX
	now func() time.Time
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db, now: time.Now}
}

func (r *PostgresRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	if user.UID == "" {
		user.UID = uuid.New().String()
	}
	if user.Role == "" {
		user.Role = models.RoleUser
	}
	user.Created = r.now().UTC()

	query :=
		`INSERT INTO users (uid, username, role, created_at)
		 VALUES ($1, $2, $3, $4)
		 `

	_, err := r.db.ExecContext(ctx, query,
		user.UID, user.Username, user.Role, user.Created)

	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return user, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, uid string) (*models.User, error) {
	query :=
		`SELECT uid, username, role, created_at FROM users
		 WHERE uid = $1
		 `

	user := &models.User{}
	err := r.db.QueryRowContext(ctx, query, uid).Scan(&user.UID, &user.Username, &user.Role, &user.Created)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return user, nil
}

// IsPrivileged reports whether the user may act on flags beyond creating
// them. Admins and moderators qualify; an unknown uid is simply not
// privileged.
func (r *PostgresRepository) IsPrivileged(ctx context.Context, uid string) (bool, error) {
	user, err := r.GetByID(ctx, uid)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return false, nil
		}
		return false, err
	}
	return user.Role == models.RoleAdmin || user.Role == models.RoleModerator, nil
}
