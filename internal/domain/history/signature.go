package history

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/okian/ttlink/internal/domain/model"
)

// Normalize folds s into its history key form: NFKC, Unicode case folding,
// then runs of whitespace collapsed to one space and trimmed. Full-width and
// half-width spellings of the same subject normalize identically.
func Normalize(s string) string {
	s = norm.NFKC.String(s)
	s = cases.Fold().String(s)
	return strings.Join(strings.Fields(s), " ")
}

// Signature derives the history key of ev from its subject, and optionally
// its organizer. Distinct events with equal signatures share history.
func Signature(ev model.Event, withOrganizer bool) string {
	sig := Normalize(ev.Name)
	if withOrganizer && sig != "" {
		if org := Normalize(ev.Organizer); org != "" {
			sig += "|" + org
		}
	}
	return sig
}
