// Package redact strips credential values from text before it is logged or
// wrapped into an error. Upstream APIs occasionally echo the presented
// credential back in their error messages; scrubbing at the call boundary
// keeps it out of log files.
//
// Redaction is best-effort: it operates on string representations and
// relies on callers to pass the right set of sensitive terms. It is not a
// substitute for keeping secrets out of log call-sites in the first place.
package redact

import "strings"

const placeholder = "[REDACTED]"

// String replaces every occurrence of each sensitive value in s with
// [REDACTED]. Values shorter than 4 characters are skipped to avoid
// spurious redaction of common substrings.
func String(s string, sensitiveValues ...string) string {
	for _, v := range sensitiveValues {
		if len(v) < 4 {
			continue
		}
		s = strings.ReplaceAll(s, v, placeholder)
	}
	return s
}
