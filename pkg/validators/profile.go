package validators

import (
	"errors"
	"slices"
	"strings"
	"time"
)

var (
	ErrNameEmpty       = errors.New("first and last name are required")
	ErrNameTooLong     = errors.New("name is too long")
	ErrCountryInvalid  = errors.New("country must be a two letter country code")
	ErrTimezoneInvalid = errors.New("unknown timezone")
)

// EU member states, the UK and the rest of the EEA. Both UK and GB are
// accepted for the United Kingdom.
var euUK = []string{
	"AT", "BE", "BG", "HR", "CY", "CZ", "DK", "EE", "FI", "FR", "DE", "GR",
	"HU", "IE", "IT", "LV", "LT", "LU", "MT", "NL", "PL", "PT", "RO", "SK",
	"SI", "ES", "SE", "UK", "GB", "IS", "LI", "NO",
}

func NameValidator(first, last string) error {
	first, last = strings.TrimSpace(first), strings.TrimSpace(last)

	if first == "" || last == "" {
		return ErrNameEmpty
	}

	if len(first) > 100 || len(last) > 100 {
		return ErrNameTooLong
	}

	return nil
}

func CountryValidator(c string) error {
	if len(c) != 2 {
		return ErrCountryInvalid
	}

	for _, r := range c {
		if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') {
			return ErrCountryInvalid
		}
	}

	return nil
}

// TimezoneValidator accepts an empty value or an IANA zone name
func TimezoneValidator(tz string) error {
	if tz == "" {
		return nil
	}

	if _, err := time.LoadLocation(tz); err != nil || tz == "Local" {
		return ErrTimezoneInvalid
	}

	return nil
}

// IsEUOrUK reports whether optional consents must default to off for country
func IsEUOrUK(country string) bool {
	return slices.Contains(euUK, strings.ToUpper(country))
}
