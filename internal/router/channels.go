package router

import (
	"strings"

	"sigrelay/internal/logger"
)

// channelKey canonicalizes a provider channel identifier. Providers
// report the same channel as "1234567890", "-1234567890" or
// "-1001234567890" depending on the API surface; the canonical form is
// the bare digit string with sign and the supergroup marker removed.
func channelKey(id string) string {
	s := strings.TrimSpace(id)
	s = strings.TrimPrefix(s, "-")
	if len(s) > 3 && strings.HasPrefix(s, "100") {
		s = s[3:]
	}
	return s
}

// channelsEqual reports whether two identifiers name the same channel.
// Empty identifiers never match anything.
func channelsEqual(a, b string) bool {
	ka, kb := channelKey(a), channelKey(b)
	if ka == "" || kb == "" {
		return false
	}
	return ka == kb
}

// channelSelected reports whether id matches any selected channel.
func channelSelected(id string, selected []string) bool {
	for _, s := range selected {
		if channelsEqual(id, s) {
			if id != s {
				logger.Debugf("channel id %q matched selection %q after normalization", id, s)
			}
			return true
		}
	}
	return false
}
