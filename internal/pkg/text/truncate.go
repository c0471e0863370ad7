// Package text holds small string helpers for log output.
package text

// Truncate caps s at max bytes for logging, marking the cut with an
// ellipsis. Message bodies can be arbitrarily long and do not belong in
// log lines whole.
func Truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
