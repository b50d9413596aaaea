// Package phase validates caller-supplied pipeline phase identifiers before
// they are used to build a script path.
package phase

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidName is returned when a phase identifier fails validation.
var ErrInvalidName = errors.New("invalid phase name")

// Name is a validated phase identifier. It only ever contains ASCII letters,
// digits, '.', '-' and '_', and never contains "..", "/" or "\".
type Name string

func (n Name) String() string { return string(n) }

// ScriptName returns the script filename for the phase, e.g. "brain.detect.sh".
func (n Name) ScriptName() string {
	return "brain." + string(n) + ".sh"
}

// Validate checks raw for traversal sequences, filters it down to the allowed
// character set and checks the result again.
//
// The raw check runs first so that input like "../x" is rejected outright
// instead of being silently filtered into something that looks safe.
func Validate(raw string) (Name, error) {
	if hasTraversal(raw) {
		return "", fmt.Errorf("%w: %q contains a path separator or \"..\"", ErrInvalidName, raw)
	}

	var b strings.Builder
	b.Grow(len(raw))
	for i := 0; i < len(raw); i++ {
		if allowed(raw[i]) {
			b.WriteByte(raw[i])
		}
	}
	filtered := b.String()

	if filtered == "" {
		return "", fmt.Errorf("%w: %q is empty after filtering", ErrInvalidName, raw)
	}
	if hasTraversal(filtered) {
		return "", fmt.Errorf("%w: %q contains \"..\" after filtering", ErrInvalidName, raw)
	}
	return Name(filtered), nil
}

func hasTraversal(s string) bool {
	return strings.Contains(s, "..") || strings.ContainsAny(s, `/\`)
}

func allowed(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	case c == '.', c == '-', c == '_':
		return true
	}
	return false
}
