package render

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
	"unicode/utf8"
)

const (
	MinTemplateLen = 10
	MaxTemplateLen = 4000
)

var spamPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)click\s+here\s+now`),
	regexp.MustCompile(`(?i)urgent.*action.*required`),
	regexp.MustCompile(`(?i)limited.*time.*offer`),
	regexp.MustCompile(`(?i)congratulations.*you.*won`),
	regexp.MustCompile(`(?i)free.*money`),
}

type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

type Issue struct {
	Severity Severity
	Message  string
}

// Lint reports problems with a template before any message is sent.
func Lint(template string) []Issue {
	var issues []Issue
	if strings.TrimSpace(template) == "" {
		return []Issue{{Severity: SeverityError, Message: "template is empty"}}
	}
	if n := utf8.RuneCountInString(template); n < MinTemplateLen || n > MaxTemplateLen {
		issues = append(issues, Issue{SeverityWarning, fmt.Sprintf("template length %d outside %d..%d characters", n, MinTemplateLen, MaxTemplateLen)})
	}
	for _, p := range Placeholders(template) {
		if !slices.Contains(Known, p) {
			issues = append(issues, Issue{SeverityWarning, fmt.Sprintf("unknown placeholder {%s} will be sent literally", p)})
		}
	}
	for _, re := range spamPatterns {
		if re.MatchString(template) {
			issues = append(issues, Issue{SeverityWarning, fmt.Sprintf("spam-like phrase matches %q", re.String())})
			break
		}
	}
	if !strings.Contains(template, "{name}") && !strings.Contains(template, "{first_name}") {
		issues = append(issues, Issue{SeverityWarning, "template is not personalized; add {name} or {first_name}"})
	}
	return issues
}

// HasErrors reports whether any issue blocks sending.
func HasErrors(issues []Issue) bool {
	for _, i := range issues {
		if i.Severity == SeverityError {
			return true
		}
	}
	return false
}

type Stats struct {
	Characters   int
	Words        int
	Lines        int
	Placeholders []string
}

func TemplateStats(template string) Stats {
	return Stats{
		Characters:   utf8.RuneCountInString(template),
		Words:        len(strings.Fields(template)),
		Lines:        strings.Count(template, "\n") + 1,
		Placeholders: Placeholders(template),
	}
}
