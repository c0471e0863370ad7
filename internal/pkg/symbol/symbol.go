// Package symbol normalizes instrument symbols across the message stream and
// the execution gateways.
package symbol

import (
	"strings"
)

var separators = []string{"/", "-", "_", ".", " "}

// Normalize strips separator characters and uppercases the symbol, so that
// "xau/usd", "XAU-USD" and "xauusd" all compare equal as "XAUUSD".
// Returns "" for blank input.
func Normalize(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return ""
	}
	if idx := strings.Index(s, ":"); idx >= 0 {
		s = s[:idx]
	}
	for _, sep := range separators {
		s = strings.ReplaceAll(s, sep, "")
	}
	return s
}

// NormalizeList normalizes and deduplicates symbols, preserving order.
func NormalizeList(symbols []string) []string {
	if len(symbols) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		n := Normalize(s)
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}

var knownQuotes = []string{"USDT", "USDC", "BUSD", "USD", "EUR", "GBP", "JPY", "BTC", "ETH"}

// SplitBaseQuote guesses the base/quote split of a normalized symbol by known
// quote currency suffixes. Returns ("", "") when no split is recognized.
func SplitBaseQuote(s string) (base, quote string) {
	s = Normalize(s)
	for _, q := range knownQuotes {
		if strings.HasSuffix(s, q) && len(s) > len(q) {
			return s[:len(s)-len(q)], q
		}
	}
	return "", ""
}
