// Package validator turns parser candidates into deduplicated contacts.
package validator

import (
	"log/slog"
	"regexp"
	"strings"

	"github.com/example/groupmsg/internal/domain/contact"
	"github.com/example/groupmsg/internal/phone"
)

var (
	spaceRun     = regexp.MustCompile(`\s+`)
	trailingJunk = regexp.MustCompile(`[\s:;|.,]+$`)
)

// NormalizeFunc matches phone.Normalize.
type NormalizeFunc func(raw, defaultRegion string) (phone.Canonical, error)

type Validator struct {
	DefaultRegion string
	// Regions, when set, rejects contacts whose number belongs to any other region.
	Regions   []string
	Normalize NormalizeFunc
	Logger    *slog.Logger
}

func New(defaultRegion string) *Validator {
	return &Validator{DefaultRegion: defaultRegion, Normalize: phone.Normalize, Logger: slog.Default()}
}

type Result struct {
	Found    int
	Contacts []contact.Contact
	Rejected []contact.RejectedCandidate
}

// CleanName collapses whitespace and strips trailing OCR punctuation.
func CleanName(s string) string {
	s = spaceRun.ReplaceAllString(strings.TrimSpace(s), " ")
	return trailingJunk.ReplaceAllString(s, "")
}

// Validate checks every candidate in order. The first candidate to claim a
// canonical number keeps it; later ones are rejected as DUPLICATE. Every
// candidate ends up in exactly one of Contacts or Rejected.
func (v *Validator) Validate(candidates []contact.RawCandidate) Result {
	norm := v.Normalize
	if norm == nil {
		norm = phone.Normalize
	}
	log := v.Logger
	if log == nil {
		log = slog.Default()
	}

	res := Result{Found: len(candidates)}
	allow := regionSet(v.Regions)
	seen := make(map[string]string, len(candidates))
	reject := func(c contact.RawCandidate, reason contact.RejectReason, detail string) {
		log.Debug("candidate rejected", "name", c.Name, "phone", c.PhoneRaw, "reason", reason, "detail", detail, "span", c.Span.String())
		res.Rejected = append(res.Rejected, contact.RejectedCandidate{Raw: c, Reason: reason, Detail: detail})
	}

	for _, c := range candidates {
		name := CleanName(c.Name)
		if name == "" {
			reject(c, contact.RejectEmptyName, "")
			continue
		}
		if strings.TrimSpace(c.PhoneRaw) == "" {
			reject(c, contact.RejectNoPhone, "")
			continue
		}
		canon, err := norm(c.PhoneRaw, v.DefaultRegion)
		if err != nil {
			reject(c, contact.RejectInvalidPhone, string(phone.ReasonOf(err)))
			continue
		}
		if first, dup := seen[canon.E164]; dup {
			reject(c, contact.RejectDuplicate, first+" "+canon.E164)
			continue
		}
		seen[canon.E164] = name
		if allow != nil && !allow[canon.Region] {
			reject(c, contact.RejectFilteredRegion, canon.Region)
			continue
		}
		res.Contacts = append(res.Contacts, contact.Contact{
			Name:        name,
			PhoneE164:   canon.E164,
			CountryCode: canon.Region,
			SourceLine:  c.Span.Start,
		})
	}
	return res
}

func regionSet(regions []string) map[string]bool {
	if len(regions) == 0 {
		return nil
	}
	allow := make(map[string]bool, len(regions))
	for _, r := range regions {
		allow[strings.ToUpper(strings.TrimSpace(r))] = true
	}
	return allow
}
