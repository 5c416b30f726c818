package contact

import "fmt"

// LineSpan is an inclusive range of 1-based line numbers in the source text.
type LineSpan struct {
	Start int
	End   int
}

func (s LineSpan) String() string {
	if s.Start == s.End {
		return fmt.Sprintf("line %d", s.Start)
	}
	return fmt.Sprintf("lines %d-%d", s.Start, s.End)
}

// RawCandidate is an unvalidated (name, phone text) pair extracted from OCR text.
type RawCandidate struct {
	Name     string
	PhoneRaw string
	Span     LineSpan
}

// Contact is a validated participant. PhoneE164 is the dedup key.
type Contact struct {
	Name        string `json:"name"`
	PhoneE164   string `json:"phone_e164"`
	CountryCode string `json:"country_code"`
	SourceLine  int    `json:"source_line"`
}

type RejectReason string

const (
	RejectNoPhone        RejectReason = "NO_PHONE"
	RejectInvalidPhone   RejectReason = "INVALID_PHONE"
	RejectEmptyName      RejectReason = "EMPTY_NAME"
	RejectDuplicate      RejectReason = "DUPLICATE"
	RejectFilteredRegion RejectReason = "FILTERED_REGION"
)

// RejectedCandidate records why a candidate did not become a Contact.
// Detail carries the normalizer reason for INVALID_PHONE, the kept phone for
// DUPLICATE and the number's region for FILTERED_REGION.
type RejectedCandidate struct {
	Raw    RawCandidate
	Reason RejectReason
	Detail string
}

// OrphanLine is a phone-like line that followed an already-paired name.
type OrphanLine struct {
	Line int
	Text string
}
