package db

import (
	"errors"
	"fmt"
	"regexp"
)

var (
	ErrInvalidIdentifier = errors.New("invalid identifier")
	ErrUnknownDriver     = errors.New("unknown driver")
)

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// checkIdent guards names that end up formatted into DDL.
func checkIdent(kind, name string) error {
	if !identRe.MatchString(name) {
		return fmt.Errorf("%w: %s %q", ErrInvalidIdentifier, kind, name)
	}
	return nil
}
