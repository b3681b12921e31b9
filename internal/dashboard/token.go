package dashboard

import "crypto/subtle"

// tokensEqual compares two tokens in constant time, independent of where
// the first differing byte falls.
func tokensEqual(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
