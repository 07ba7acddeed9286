// Package util holds small request helpers shared across services.
package util

// Pagination clamps client-supplied limit and offset to sane bounds.
func Pagination(limit, offset int) (int, int) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
