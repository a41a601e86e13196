package gateway

import (
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"
	"github.com/salesops/harrier/internal/domain"
)

// Postgres error codes worth classifying.
const (
	pgUniqueViolation  = "23505"
	pgUndefinedTable   = "42P01"
	pgUndefinedColumn  = "42703"
)

// classifyErr maps driver-specific failures onto the domain sentinels so
// callers never match on driver error strings.
func classifyErr(err error) error {
	if err == nil {
		return nil
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch string(pqErr.Code) {
		case pgUniqueViolation:
			return fmt.Errorf("%w: %v", domain.ErrDuplicateKey, err)
		case pgUndefinedTable, pgUndefinedColumn:
			return fmt.Errorf("%w: %v", domain.ErrMissingRelation, err)
		}
		return err
	}

	// modernc.org/sqlite surfaces constraint and schema failures as strings.
	msg := err.Error()
	switch {
	case strings.Contains(msg, "UNIQUE constraint failed"),
		strings.Contains(msg, "duplicate key"):
		return fmt.Errorf("%w: %v", domain.ErrDuplicateKey, err)
	case strings.Contains(msg, "no such table"),
		strings.Contains(msg, "no such column"),
		strings.Contains(msg, "does not exist"):
		return fmt.Errorf("%w: %v", domain.ErrMissingRelation, err)
	}

	return err
}
