package repository

import (
	"fmt"

	"github.com/RealZimboGuy/approvalflow/pkg/approvalflow/core"
)

func buildLimitsAndOffset(limit int, offset int) string {
	if limit <= 0 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}
	s := fmt.Sprintf(" LIMIT %d", limit)
	if offset > 0 {
		s += fmt.Sprintf(" OFFSET %d", offset)
	}
	return s
}

// notFound replaces the generic not found message with a specific one.
func notFound(err error, format string, args ...any) error {
	if core.IsKind(err, core.KindNotFound) {
		e := core.NotFoundf(format, args...)
		e.Err = err
		return e
	}
	return err
}
