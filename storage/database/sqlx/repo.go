// Package sqlxrepos implements the domain repositories on sqlx, building queries with squirrel.
package sqlxrepos

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/learnwise/backend/core"
	"github.com/learnwise/backend/storage/database"
)

type baseRepo struct {
	exec core.DBExecutor
	sb   sq.StatementBuilderType
}

func newBaseRepo(exec core.DBExecutor, engine string) baseRepo {
	return baseRepo{
		exec: exec,
		sb:   sq.StatementBuilder.PlaceholderFormat(database.Placeholder(engine)),
	}
}

func (repo baseRepo) getExec(svcExec []core.DBExecutor) core.DBExecutor {
	if len(svcExec) > 0 && svcExec[0] != nil {
		return svcExec[0]
	}
	return repo.exec
}

func (repo baseRepo) get(ctx context.Context, exec core.DBExecutor, dest interface{}, qb sq.Sqlizer) error {
	query, args, err := qb.ToSql()
	if err != nil {
		return errors.Wrap(err, "building query")
	}
	return sqlx.GetContext(ctx, exec, dest, query, args...)
}

func (repo baseRepo) selectAll(ctx context.Context, exec core.DBExecutor, dest interface{}, qb sq.Sqlizer) error {
	query, args, err := qb.ToSql()
	if err != nil {
		return errors.Wrap(err, "building query")
	}
	return sqlx.SelectContext(ctx, exec, dest, query, args...)
}

func (repo baseRepo) execute(ctx context.Context, exec core.DBExecutor, qb sq.Sqlizer) (sql.Result, error) {
	query, args, err := qb.ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "building query")
	}
	return exec.ExecContext(ctx, query, args...)
}

// executeOne runs qb and returns notFound when no row was affected.
func (repo baseRepo) executeOne(ctx context.Context, exec core.DBExecutor, qb sq.Sqlizer, notFound error, msg string) error {
	res, err := repo.execute(ctx, exec, qb)
	if err != nil {
		return errors.Wrap(err, msg)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, msg)
	}
	switch {
	case n == 0:
		return notFound
	case n > 1:
		return core.NewShutdownError(fmt.Sprintf("%s: %d rows affected instead of 1", msg, n))
	}
	return nil
}

func (repo baseRepo) count(ctx context.Context, exec core.DBExecutor, qb sq.SelectBuilder) (int, error) {
	var n int
	if err := repo.get(ctx, exec, &n, qb); err != nil {
		return 0, err
	}
	return n, nil
}

// trapNoRowsErr maps the sql "no rows" err to notFound
func trapNoRowsErr(err error, notFound error, msg string) error {
	if errors.Cause(err) == sql.ErrNoRows {
		return notFound
	}
	return errors.Wrap(err, msg)
}

// likeValue returns the LIKE pattern matching s anywhere, lowered.
func likeValue(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(strings.ToLower(s)) + "%"
}

func ilike(column string, s string) sq.Sqlizer {
	return sq.Expr("LOWER("+column+") LIKE ? ESCAPE '\\'", likeValue(s))
}

func orderBy(ordering []core.DBOrdering, fallback ...string) []string {
	if len(ordering) == 0 {
		return fallback
	}
	list := make([]string, 0, len(ordering))
	for _, ord := range ordering {
		list = append(list, ord.String())
	}
	return list
}
