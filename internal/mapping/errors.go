package mapping

import (
	"errors"
	"fmt"
	"strings"
)

// ErrConfiguration classifies every mapping misconfiguration. It is raised while
// a mapping is built or configured, never while DDL is written.
var ErrConfiguration = errors.New("invalid document mapping")

// NamingConflictError reports mapped types whose aliases collide within one schema.
type NamingConflictError struct {
	Schema string
	Alias  string
	Types  []string
}

func (e *NamingConflictError) Error() string {
	return fmt.Sprintf("alias %q is used by more than one document type in schema %s: %s",
		e.Alias, e.Schema, strings.Join(e.Types, ", "))
}

func configErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfiguration, fmt.Sprintf(format, args...))
}
