package email

import "regexp"

var addressPattern = regexp.MustCompile(`^[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}$`)

// ValidAddress reports whether addr has the local@domain.tld shape accepted for delivery
func ValidAddress(addr string) bool {
	return addressPattern.MatchString(addr)
}
