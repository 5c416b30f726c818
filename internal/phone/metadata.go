package phone

import (
	"fmt"

	"github.com/nyaruka/phonenumbers"
)

// Metadata is optional descriptive data about a number.
type Metadata struct {
	Location string
	Carrier  string
}

// NumberingPlanLookup resolves location and carrier from the offline
// geocoding and carrier tables shipped with libphonenumber.
type NumberingPlanLookup struct {
	Language string
}

func (l NumberingPlanLookup) Lookup(e164 string) (Metadata, error) {
	lang := l.Language
	if lang == "" {
		lang = "en"
	}
	num, err := phonenumbers.Parse(e164, "")
	if err != nil {
		return Metadata{}, fmt.Errorf("lookup %s: %w", e164, err)
	}
	var md Metadata
	if loc, err := phonenumbers.GetGeocodingForNumber(num, lang); err == nil {
		md.Location = loc
	}
	if c, err := phonenumbers.GetCarrierForNumber(num, lang); err == nil {
		md.Carrier = c
	}
	return md, nil
}

// NumberType names the libphonenumber line type (MOBILE, FIXED_LINE, ...).
func NumberType(e164 string) string {
	num, err := phonenumbers.Parse(e164, "")
	if err != nil {
		return "UNKNOWN"
	}
	switch phonenumbers.GetNumberType(num) {
	case phonenumbers.FIXED_LINE:
		return "FIXED_LINE"
	case phonenumbers.MOBILE:
		return "MOBILE"
	case phonenumbers.FIXED_LINE_OR_MOBILE:
		return "FIXED_LINE_OR_MOBILE"
	case phonenumbers.TOLL_FREE:
		return "TOLL_FREE"
	case phonenumbers.VOIP:
		return "VOIP"
	default:
		return "UNKNOWN"
	}
}
