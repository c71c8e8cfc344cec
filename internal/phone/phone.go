// Package phone validates phone numbers and stores them in E.164 form.
package phone

import (
	"errors"

	"github.com/ttacon/libphonenumber"
)

var ErrInvalid = errors.New("phone number is not valid")

// Normalize validates a phone number and returns it in E.164 form.
// Numbers without a country prefix are read in defaultRegion.
func Normalize(number, defaultRegion string) (string, error) {
	p, err := libphonenumber.Parse(number, defaultRegion)
	if err != nil {
		return "", ErrInvalid
	}
	if !libphonenumber.IsValidNumber(p) {
		return "", ErrInvalid
	}
	return libphonenumber.Format(p, libphonenumber.E164), nil
}
