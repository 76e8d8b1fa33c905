package session

import (
	"strconv"
	"unicode/utf16"
)

// CookiePrefix starts every session cookie name.
const CookiePrefix = "opensilex-token-"

// HashCode folds s over its UTF-16 code units as hash*31 + unit with
// 32-bit wraparound. HashCode("") is 0.
func HashCode(s string) int32 {
	var hash int32
	for _, unit := range utf16.Encode([]rune(s)) {
		hash = hash*31 + int32(unit)
	}
	return hash
}

// CookieName returns the session cookie name for a deployment suffix.
func CookieName(suffix string) string {
	hash := int64(HashCode(suffix))
	if hash < 0 {
		hash = -hash
	}
	return CookiePrefix + strconv.FormatInt(hash, 10)
}

