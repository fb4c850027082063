package repository

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"

	"github.com/RealZimboGuy/approvalflow/pkg/approvalflow/core"
)

const (
	driverPostgres = "postgres"
	driverMysql    = "mysql"
	driverSqlite   = "sqlite3"
)

const timestampLayout = "2006-01-02 15:04:05.000000"

// supportsReturning is true for Postgres, which returns generated ids via RETURNING.
func supportsReturning(q sqlx.ExtContext) bool {
	return q.DriverName() == driverPostgres
}

// formatDateInDatabase renders a timestamp for the given dialect. MySQL and
// SQLite get a fixed width UTC string so lexical and time order agree.
func formatDateInDatabase(q sqlx.ExtContext, t time.Time) any {
	if q.DriverName() == driverPostgres {
		return t.UTC()
	}
	return t.UTC().Format(timestampLayout)
}

func formatDateInDatabaseNull(q sqlx.ExtContext, t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatDateInDatabase(q, *t)
}

// upsertClause builds the dialect specific "insert or update" suffix.
func upsertClause(q sqlx.ExtContext, conflictCols []string, updateCols []string) string {
	sets := make([]string, 0, len(updateCols))
	if q.DriverName() == driverMysql {
		for _, c := range updateCols {
			sets = append(sets, fmt.Sprintf("%s = VALUES(%s)", c, c))
		}
		return " ON DUPLICATE KEY UPDATE " + strings.Join(sets, ", ")
	}
	for _, c := range updateCols {
		sets = append(sets, fmt.Sprintf("%s = EXCLUDED.%s", c, c))
	}
	return " ON CONFLICT (" + strings.Join(conflictCols, ", ") + ") DO UPDATE SET " + strings.Join(sets, ", ")
}

// upsertIfNewerClause is upsertClause for rows carrying a monotonic guard
// column: an existing row is only overwritten when the incoming guard is not
// older. The guard must be the last entry of updateCols so MySQL compares
// against the stored value.
func upsertIfNewerClause(q sqlx.ExtContext, table string, conflictCols []string, updateCols []string, guard string) string {
	if q.DriverName() == driverMysql {
		sets := make([]string, 0, len(updateCols))
		for _, c := range updateCols {
			sets = append(sets, fmt.Sprintf("%s = IF(VALUES(%s) >= %s, VALUES(%s), %s)", c, guard, guard, c, c))
		}
		return " ON DUPLICATE KEY UPDATE " + strings.Join(sets, ", ")
	}
	return upsertClause(q, conflictCols, updateCols) +
		fmt.Sprintf(" WHERE %s.%s <= EXCLUDED.%s", table, guard, guard)
}

// insertReturningID runs an INSERT and returns the generated id on every dialect.
func insertReturningID(ctx context.Context, q sqlx.ExtContext, query string, args ...any) (int64, error) {
	query = q.Rebind(query)
	var id int64
	if supportsReturning(q) {
		if err := q.QueryRowxContext(ctx, query+" RETURNING id", args...).Scan(&id); err != nil {
			return 0, classify(err)
		}
		return id, nil
	}
	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, classify(err)
	}
	id, err = res.LastInsertId()
	if err != nil {
		return 0, classify(err)
	}
	return id, nil
}

// classify maps driver failures onto the engine error taxonomy. Connection
// level failures become Unavailable, missing rows NotFound.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var coreErr *core.Error
	if errors.As(err, &coreErr) {
		return err
	}
	if errors.Is(err, sql.ErrNoRows) {
		return &core.Error{Kind: core.KindNotFound, Message: "record not found", Err: err}
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return core.Unavailable(err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return core.Unavailable(err)
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "connection refused") || strings.Contains(msg, "database is closed") ||
		strings.Contains(msg, "broken pipe") {
		return core.Unavailable(err)
	}
	return err
}

// isUniqueViolation reports a duplicate key on any of the supported dialects.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == 1062
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintUnique || liteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}
