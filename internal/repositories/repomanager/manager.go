package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/flagkeeper/internal/dbx"
	"github.com/dmitrijs2005/flagkeeper/internal/repositories/flags"
	"github.com/dmitrijs2005/flagkeeper/internal/repositories/users"
)

type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Flags(db dbx.DBTX) flags.Repository
	Users(db dbx.DBTX) users.Repository
}
