package db

import (
	"errors"

	"github.com/ncruces/go-sqlite3"
)

// IsConstraintViolation reports whether err was raised by a UNIQUE, NOT
// NULL, CHECK or FOREIGN KEY constraint.
func IsConstraintViolation(err error) bool {
	var serr *sqlite3.Error
	if errors.As(err, &serr) {
		return serr.Code() == sqlite3.CONSTRAINT
	}
	return false
}

// IsBusy reports whether err was caused by a locked database after the busy
// timeout expired.
func IsBusy(err error) bool {
	var serr *sqlite3.Error
	if errors.As(err, &serr) {
		return serr.Code() == sqlite3.BUSY || serr.Code() == sqlite3.LOCKED
	}
	return false
}
