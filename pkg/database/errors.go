package database

import (
	"database/sql"
	"errors"
)

// IsNotFound reports whether err is the sql sentinel for an empty result.
func IsNotFound(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
