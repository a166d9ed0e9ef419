// Package phone converts user-typed phone numbers into the canonical
// international form used as the storage and lookup key.
package phone

import "strings"

// CountryPrefix is prepended to national numbers (Cameroon).
const CountryPrefix = "+237"

// Normalize strips everything but ASCII digits and a leading '+', then
// rewrites national numbers into CountryPrefix form:
//
//	"0690123456"      -> "+237690123456"
//	"690 12 34 56"    -> "+237690123456"
//	"+237690123456"   -> "+237690123456"
//
// Normalize never fails and Normalize(Normalize(x)) == Normalize(x).
func Normalize(raw string) string {
	var b strings.Builder
	b.Grow(len(raw) + len(CountryPrefix))
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		switch {
		case c >= '0' && c <= '9':
			b.WriteByte(c)
		case c == '+' && b.Len() == 0:
			b.WriteByte(c)
		}
	}
	n := b.String()

	if strings.HasPrefix(n, "0") {
		return CountryPrefix + n[1:]
	}
	if !strings.HasPrefix(n, "+") {
		return CountryPrefix + n
	}
	return n
}
