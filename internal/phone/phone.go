// Package phone normalizes mobile numbers so (name, mobile) dedupe
// keys match regardless of how the caller formatted the number.
package phone

import (
	"github.com/nyaruka/phonenumbers"
)

// Normalize returns the E.164 form of number, parsed against region
// for national-format input. Unparseable or invalid numbers pass
// through unchanged.
func Normalize(number, region string) string {
	parsed, err := phonenumbers.Parse(number, region)
	if err != nil {
		return number
	}
	if !phonenumbers.IsValidNumber(parsed) {
		return number
	}
	return phonenumbers.Format(parsed, phonenumbers.E164)
}
