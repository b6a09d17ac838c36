package sensitive

import "regexp"

var contactPattern = regexp.MustCompile(`(\b\d{10}\b)|(\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b)`)

// ContainsContactDetails reports whether text carries a ten-digit phone
// number or an email address.
func ContainsContactDetails(text string) bool {
	return contactPattern.MatchString(text)
}
