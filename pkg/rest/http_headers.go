package rest

import (
	"fmt"
	"net/http"
	"strings"
)

// Prefer holds preferences from the Prefer header (RFC 7240).
type Prefer struct {
	Return string // "minimal", "representation", "headers-only"
	Count  string // "exact"
}

// parsePrefer parses the Prefer header. Unknown or invalid preferences are
// ignored, as the RFC requires; an absent header yields the zero Prefer.
func parsePrefer(r *http.Request) Prefer {
	var p Prefer
	for _, header := range r.Header.Values("Prefer") {
		parseKeyValPairs(header, func(key, value string) {
			value = strings.ToLower(value)
			switch key {
			case "return":
				if isValidReturn(value) {
					p.Return = value
				}
			case "count":
				if value == "exact" {
					p.Count = value
				}
			}
		})
	}
	return p
}

// parseKeyValPairs parses comma-separated preference directives.
// For each key=value pair found, it calls fn with the key and value.
func parseKeyValPairs(header string, fn func(key, value string)) {
	for pref := range strings.SplitSeq(header, ",") {
		// parameters after ';' do not apply to the preferences handled here
		pref, _, _ = strings.Cut(pref, ";")
		if key, value, found := strings.Cut(strings.TrimSpace(pref), "="); found {
			key = strings.TrimSpace(strings.ToLower(key))
			value = strings.Trim(strings.TrimSpace(value), `"`)
			fn(key, value)
		}
	}
}

func isValidReturn(s string) bool {
	switch s {
	case "minimal", "representation", "headers-only":
		return true
	}
	return false
}

// WantsRepresentation reports whether the client prefers full representation
// in the response body for mutation operations.
func (p Prefer) WantsRepresentation() bool { return p.Return == "representation" }

// WantsCountExact reports whether the client wants an exact count in the response.
func (p Prefer) WantsCountExact() bool { return p.Count == "exact" }

// applied renders the Preference-Applied header value for the honored
// preferences.
func (p Prefer) applied(mutation bool) string {
	var parts []string
	if mutation && p.Return != "" {
		parts = append(parts, "return="+p.Return)
	}
	if !mutation && p.Count != "" {
		parts = append(parts, "count="+p.Count)
	}
	return strings.Join(parts, ", ")
}

// contentRange renders the Content-Range of a page of n rows starting at
// offset, out of total rows. Negative totals are unknown.
func contentRange(offset, n int, total int64) string {
	size := "*"
	if total >= 0 {
		size = fmt.Sprint(total)
	}
	if n == 0 {
		return "*/" + size
	}
	return fmt.Sprintf("%d-%d/%s", offset, offset+n-1, size)
}
