// Package identity canonicalizes raw WhatsApp identifiers into the single
// key every store and policy operates on. The bot's home country is Brazil,
// so a bare 11-digit subscriber number gains the 55 country code.
package identity

import "strings"

const (
	// UserServer is the canonical personal-JID domain suffix.
	UserServer = "s.whatsapp.net"

	homeCountryCode = "55"
	localNumberLen  = 11
)

// Normalize maps any raw representation of an account (with or without the
// domain suffix, device suffix, punctuation or country code) to one canonical
// key. It is pure and total: malformed input degrades to best-effort digit
// extraction. Normalize(Normalize(x)) == Normalize(x) for all x.
func Normalize(raw string) string {
	digits := Digits(raw)
	if len(digits) == localNumberLen && !strings.HasPrefix(digits, homeCountryCode) {
		digits = homeCountryCode + digits
	}
	return digits + "@" + UserServer
}

// Digits strips the domain suffix, the device suffix and every non-digit
// character from a raw identifier.
func Digits(raw string) string {
	if at := strings.IndexByte(raw, '@'); at >= 0 {
		raw = raw[:at]
	}
	if colon := strings.IndexByte(raw, ':'); colon >= 0 {
		raw = raw[:colon]
	}

	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Same reports whether two raw identifiers refer to the same account.
func Same(a, b string) bool {
	return Normalize(a) == Normalize(b)
}
