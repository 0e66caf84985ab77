package session

import (
	"fmt"
	"regexp"
)

// idPattern validates spec §4.6's session id format `{program}[-{env}].{task}`.
var idPattern = regexp.MustCompile(`^[a-zA-Z0-9_]+(-[a-zA-Z0-9_]+)?\.[a-zA-Z0-9_-]+$`)

// legacyIDPattern matches ids that predate the {program}[-{env}].{task}
// convention — a single dot-free token. Accepted with a warning rather than
// rejected outright (spec §4.6: "legacy ids emit a warning or are rejected
// depending on policy" — this implementation chooses warn-and-accept).
var legacyIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// ValidateID reports whether id matches the current format, and whether it
// is merely a legacy-format id that should be accepted with a warning.
func ValidateID(id string) (ok bool, legacy bool, err error) {
	if id == "" {
		return false, false, fmt.Errorf("session: empty id")
	}
	if idPattern.MatchString(id) {
		return true, false, nil
	}
	if legacyIDPattern.MatchString(id) {
		return true, true, nil
	}
	return false, false, fmt.Errorf("session: id %q does not match {program}[-{env}].{task}", id)
}
