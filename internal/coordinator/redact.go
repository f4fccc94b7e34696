package coordinator

import (
	"cmp"
	"slices"
	"strings"

	"github.com/cryguy/edgefn/internal/core"
)

const redacted = "[REDACTED]"

// redactor masks a unit's secret values in text bound for the server log.
// A nil redactor passes text through.
type redactor struct {
	r *strings.Replacer
}

func newRedactor(secrets core.SecretMap) *redactor {
	values := make([]string, 0, len(secrets))
	for _, v := range secrets {
		if v != "" {
			values = append(values, v)
		}
	}
	if len(values) == 0 {
		return nil
	}
	// longest first, so a secret containing another is masked whole
	slices.SortFunc(values, func(a, b string) int { return cmp.Compare(len(b), len(a)) })
	pairs := make([]string, 0, 2*len(values))
	for _, v := range values {
		pairs = append(pairs, v, redacted)
	}
	return &redactor{r: strings.NewReplacer(pairs...)}
}

func (r *redactor) String(s string) string {
	if r == nil {
		return s
	}
	return r.r.Replace(s)
}
