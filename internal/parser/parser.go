// Package parser pairs participant names with phone numbers in raw OCR text.
//
// Parsing is a pure function of the input text: the same text always yields
// the same candidates in the same order.
package parser

import (
	"iter"
	"regexp"
	"strings"
	"unicode"

	"github.com/example/groupmsg/internal/domain/contact"
)

const (
	// PairWindow is how many significant lines after a name a phone may appear.
	PairWindow = 3
	// NameLookahead bounds the search that promotes an unmarked line to a name.
	NameLookahead = 2

	minPhoneDigits  = 7
	minDigitRatio   = 0.8
	minLetterRatio  = 0.5
	nameMarkerChars = "~•·*->«»"
)

// inlinePhone finds a phone number written on the same line as a name.
var inlinePhone = regexp.MustCompile(`\+?\d[\d\s\-().]{5,}\d`)

// Line is a non-empty, trimmed input line and its 1-based number in the source.
type Line struct {
	No   int
	Text string
}

type Result struct {
	Candidates []contact.RawCandidate
	Orphans    []contact.OrphanLine
}

type lineKind int

const (
	kindOther lineKind = iota
	kindName
	kindPhone
	kindInline
)

// Lines splits text into trimmed, non-empty lines.
func Lines(text string) []Line {
	raw := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	out := make([]Line, 0, len(raw))
	for i, l := range raw {
		l = strings.TrimSpace(l)
		if l == "" {
			continue
		}
		out = append(out, Line{No: i + 1, Text: l})
	}
	return out
}

// IsPhoneLike reports whether s is mostly digits with at least seven of them
// once spaces, dashes, dots and parentheses are removed.
func IsPhoneLike(s string) bool {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "+")
	var digits, other int
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			digits++
		case r == ' ' || r == '-' || r == '(' || r == ')' || r == '.' || r == '\u00a0':
		default:
			other++
		}
	}
	if digits < minPhoneDigits {
		return false
	}
	return float64(digits)/float64(digits+other) >= minDigitRatio
}

// StripMarker removes a leading bullet-like marker and reports whether one was present.
func StripMarker(s string) (string, bool) {
	trimmed := strings.TrimLeft(s, nameMarkerChars+" \t")
	return strings.TrimSpace(trimmed), len(trimmed) != len(s)
}

func isNoise(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

func looksLikeName(s string) bool {
	var letters, total int
	for _, r := range s {
		if unicode.IsSpace(r) {
			continue
		}
		total++
		if unicode.IsLetter(r) {
			letters++
		}
	}
	return letters > 0 && float64(letters)/float64(total) >= minLetterRatio
}

// splitInline returns the name and phone parts of a line such as
// "~ Alice +1 650 253 0000".
func splitInline(s string) (name, phone string, ok bool) {
	loc := inlinePhone.FindStringIndex(s)
	if loc == nil {
		return "", "", false
	}
	phone = strings.TrimSpace(s[loc[0]:loc[1]])
	if !IsPhoneLike(phone) {
		return "", "", false
	}
	name, _ = StripMarker(strings.TrimSpace(s[:loc[0]] + " " + s[loc[1]:]))
	if !looksLikeName(name) {
		return "", "", false
	}
	return name, phone, true
}

func classify(lines []Line) []lineKind {
	kinds := make([]lineKind, len(lines))
	phoneAt := make([]bool, len(lines))
	for i, l := range lines {
		phoneAt[i] = IsPhoneLike(l.Text)
	}
	for i, l := range lines {
		if phoneAt[i] {
			kinds[i] = kindPhone
			continue
		}
		if _, _, ok := splitInline(l.Text); ok {
			kinds[i] = kindInline
			continue
		}
		name, marked := StripMarker(l.Text)
		if !looksLikeName(name) {
			continue
		}
		if marked {
			kinds[i] = kindName
			continue
		}
		for j := i + 1; j <= i+NameLookahead && j < len(lines); j++ {
			if phoneAt[j] {
				kinds[i] = kindName
				break
			}
		}
	}
	return kinds
}

// Parse extracts candidates from text.
//
// Each phone-like line pairs with the most recent unpaired name at most
// PairWindow significant lines above it. Names left without a phone are
// emitted with an empty PhoneRaw. Phone lines that trail an already-paired
// name are reported as orphans; any other unpaired phone line is dropped.
func Parse(text string) Result {
	var lines []Line
	for _, l := range Lines(text) {
		if !isNoise(l.Text) {
			lines = append(lines, l)
		}
	}
	kinds := classify(lines)

	var res Result
	slot := make(map[int]int) // name line index -> position in res.Candidates
	var pending []int
	lastPaired := -1

	for i, k := range kinds {
		switch k {
		case kindInline:
			name, phone, _ := splitInline(lines[i].Text)
			res.Candidates = append(res.Candidates, contact.RawCandidate{
				Name:     name,
				PhoneRaw: phone,
				Span:     contact.LineSpan{Start: lines[i].No, End: lines[i].No},
			})
		case kindName:
			name, _ := StripMarker(lines[i].Text)
			slot[i] = len(res.Candidates)
			res.Candidates = append(res.Candidates, contact.RawCandidate{
				Name: name,
				Span: contact.LineSpan{Start: lines[i].No, End: lines[i].No},
			})
			pending = append(pending, i)
		case kindPhone:
			if n := len(pending); n > 0 && i-pending[n-1] <= PairWindow {
				nameIdx := pending[n-1]
				pending = pending[:n-1]
				c := &res.Candidates[slot[nameIdx]]
				c.PhoneRaw = lines[i].Text
				c.Span.End = lines[i].No
				lastPaired = nameIdx
				continue
			}
			if lastPaired >= 0 && i-lastPaired <= PairWindow {
				res.Orphans = append(res.Orphans, contact.OrphanLine{Line: lines[i].No, Text: lines[i].Text})
			}
		}
	}
	return res
}

// All yields the candidates of text in order. The sequence can be ranged over
// any number of times.
func All(text string) iter.Seq[contact.RawCandidate] {
	return func(yield func(contact.RawCandidate) bool) {
		for _, c := range Parse(text).Candidates {
			if !yield(c) {
				return
			}
		}
	}
}
