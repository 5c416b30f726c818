// Package phone turns phone-like text into canonical E.164 identifiers using
// the libphonenumber numbering-plan metadata.
package phone

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/nyaruka/phonenumbers"
)

type Reason string

const (
	ReasonNoDigits      Reason = "NO_DIGITS"
	ReasonMissingRegion Reason = "MISSING_REGION"
	ReasonUnparseable   Reason = "UNPARSEABLE"
	ReasonNotPossible   Reason = "NOT_POSSIBLE"
	ReasonNotValid      Reason = "NOT_VALID"
)

type InvalidPhoneError struct {
	Input  string
	Reason Reason
	Err    error
}

func (e *InvalidPhoneError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid phone %q: %s: %v", e.Input, e.Reason, e.Err)
	}
	return fmt.Sprintf("invalid phone %q: %s", e.Input, e.Reason)
}

func (e *InvalidPhoneError) Unwrap() error { return e.Err }

// ReasonOf extracts the reason code from a Normalize error, or "" if err is
// not an InvalidPhoneError.
func ReasonOf(err error) Reason {
	var ip *InvalidPhoneError
	if errors.As(err, &ip) {
		return ip.Reason
	}
	return ""
}

// Canonical is a validated phone number.
type Canonical struct {
	E164        string
	Region      string
	CountryCode int
}

// Clean keeps the digits of raw, plus a '+' when it is the first non-space character.
func Clean(raw string) string {
	trimmed := strings.TrimLeftFunc(raw, unicode.IsSpace)
	var b strings.Builder
	if strings.HasPrefix(trimmed, "+") {
		b.WriteByte('+')
	}
	for _, r := range trimmed {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Normalize parses raw with defaultRegion as the hint for numbers written
// without a country calling code. It never panics; every failure is an
// *InvalidPhoneError.
func Normalize(raw, defaultRegion string) (Canonical, error) {
	cleaned := Clean(raw)
	digits := strings.TrimPrefix(cleaned, "+")
	if digits == "" {
		return Canonical{}, &InvalidPhoneError{Input: raw, Reason: ReasonNoDigits}
	}
	region := strings.ToUpper(strings.TrimSpace(defaultRegion))
	international := strings.HasPrefix(cleaned, "+")
	if !international && region == "" {
		return Canonical{}, &InvalidPhoneError{Input: raw, Reason: ReasonMissingRegion}
	}

	num, err := phonenumbers.Parse(cleaned, region)
	if err != nil {
		return Canonical{}, &InvalidPhoneError{Input: raw, Reason: ReasonUnparseable, Err: err}
	}
	if !phonenumbers.IsPossibleNumber(num) {
		return Canonical{}, &InvalidPhoneError{Input: raw, Reason: ReasonNotPossible}
	}
	if !phonenumbers.IsValidNumber(num) {
		return Canonical{}, &InvalidPhoneError{Input: raw, Reason: ReasonNotValid}
	}

	return Canonical{
		E164:        phonenumbers.Format(num, phonenumbers.E164),
		Region:      phonenumbers.GetRegionCodeForNumber(num),
		CountryCode: int(num.GetCountryCode()),
	}, nil
}

// FormatInternational renders an E.164 number for display, e.g. "+1 650-253-0000".
// Unparseable input is returned unchanged.
func FormatInternational(e164 string) string {
	num, err := phonenumbers.Parse(e164, "")
	if err != nil {
		return e164
	}
	return phonenumbers.Format(num, phonenumbers.INTERNATIONAL)
}
