// Package repomanager hands out repositories bound to a database handle so
// that services can run the same code inside or outside a transaction.
package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/accounts/internal/dbx"
	"github.com/dmitrijs2005/accounts/internal/server/repositories/accesstokens"
	"github.com/dmitrijs2005/accounts/internal/server/repositories/users"
)

type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Users(db dbx.DBTX) users.Repository
	AccessTokens(db dbx.DBTX) accesstokens.Repository
}
