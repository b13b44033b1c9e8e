package doc

import "strings"

// cutPath splits a dotted path at the first separator.
func cutPath(path string) (first, rest string, nested bool) {
	return strings.Cut(path, ".")
}

// joinPath appends a segment to a (possibly empty) base path.
func joinPath(base, seg string) string {
	if base == "" {
		return seg
	}
	return base + "." + seg
}
