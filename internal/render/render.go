// Package render fills message templates with per-contact fields.
package render

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/example/groupmsg/internal/domain/contact"
	"github.com/example/groupmsg/internal/domain/delivery"
	"github.com/example/groupmsg/internal/phone"
)

var placeholder = regexp.MustCompile(`\{(\w+)\}`)

// Known lists the placeholders the renderer can fill.
var Known = []string{"name", "first_name", "phone", "location", "carrier", "country_code"}

// MetadataLookup resolves optional location and carrier data for a number.
type MetadataLookup interface {
	Lookup(phoneE164 string) (phone.Metadata, error)
}

type Renderer struct {
	Lookup MetadataLookup
}

// FirstName returns name up to its first whitespace.
func FirstName(name string) string {
	name = strings.TrimSpace(name)
	if i := strings.IndexFunc(name, unicode.IsSpace); i >= 0 {
		return name[:i]
	}
	return name
}

// Render fills template for c. It never fails: unresolved placeholders stay
// literal in the body and are listed in Missing, in order of first use.
func (r Renderer) Render(template string, c contact.Contact) delivery.RenderedMessage {
	fields := map[string]string{
		"name":         c.Name,
		"first_name":   FirstName(c.Name),
		"phone":        phone.FormatInternational(c.PhoneE164),
		"country_code": c.CountryCode,
	}
	if r.Lookup != nil && (strings.Contains(template, "{location}") || strings.Contains(template, "{carrier}")) {
		if md, err := r.Lookup.Lookup(c.PhoneE164); err == nil {
			if md.Location != "" {
				fields["location"] = md.Location
			}
			if md.Carrier != "" {
				fields["carrier"] = md.Carrier
			}
		}
	}

	var missing []string
	flagged := map[string]bool{}
	body := placeholder.ReplaceAllStringFunc(template, func(tok string) string {
		key := tok[1 : len(tok)-1]
		if v, ok := fields[key]; ok && v != "" {
			return v
		}
		if !flagged[key] {
			flagged[key] = true
			missing = append(missing, key)
		}
		return tok
	})
	return delivery.RenderedMessage{Contact: c, Body: body, Missing: missing}
}

// Placeholders lists the distinct placeholder names used by template in order.
func Placeholders(template string) []string {
	var out []string
	seen := map[string]bool{}
	for _, m := range placeholder.FindAllStringSubmatch(template, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			out = append(out, m[1])
		}
	}
	return out
}
