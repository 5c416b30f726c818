// Package report renders run reports for people and for monitoring.
package report

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/example/groupmsg/internal/domain/delivery"
	"github.com/example/groupmsg/internal/phone"
)

// Markdown renders rep as a Markdown document.
func Markdown(rep delivery.RunReport) string {
	var b strings.Builder
	title := "Delivery run"
	if rep.DryRun {
		title = "Delivery run (dry run)"
	}
	fmt.Fprintf(&b, "# %s %s\n\n", title, rep.RunID)
	fmt.Fprintf(&b, "Started %s, took %s.\n\n", rep.StartedAt.Format(time.RFC3339), rep.Duration().Round(time.Second))
	if rep.Aborted {
		fmt.Fprintf(&b, "**Aborted:** %s\n\n", escape(rep.AbortReason))
	}

	b.WriteString("## Summary\n\n| Found | Valid | Rejected | Sent | Failed | Skipped |\n|---|---|---|---|---|---|\n")
	fmt.Fprintf(&b, "| %d | %d | %d | %d | %d | %d |\n\n", rep.Found, rep.Valid, rep.Rejected, rep.Sent, rep.Failed, rep.Skipped)

	if len(rep.Attempts) > 0 {
		b.WriteString("## Contacts\n\n| Name | Phone | Outcome | Attempts | Detail |\n|---|---|---|---|---|\n")
		for _, a := range rep.Attempts {
			outcome := string(a.Outcome)
			if a.Reason != "" {
				outcome += " (" + string(a.Reason) + ")"
			}
			fmt.Fprintf(&b, "| %s | %s | %s | %d | %s |\n",
				escape(a.Name), phone.FormatInternational(a.ContactKey), outcome, a.AttemptNo, escape(a.ErrorDetail))
		}
		b.WriteString("\n")
	}

	if len(rep.RejectedCandidates) > 0 {
		b.WriteString("## Rejected\n\n| Name | Phone text | Reason | Source |\n|---|---|---|---|\n")
		for _, r := range rep.RejectedCandidates {
			reason := string(r.Reason)
			if r.Detail != "" {
				reason += ": " + r.Detail
			}
			fmt.Fprintf(&b, "| %s | %s | %s | %s |\n", escape(r.Raw.Name), escape(r.Raw.PhoneRaw), escape(reason), r.Raw.Span)
		}
		b.WriteString("\n")
	}

	if len(rep.Orphans) > 0 {
		b.WriteString("## Unpaired phone lines\n\n")
		for _, o := range rep.Orphans {
			fmt.Fprintf(&b, "- line %d: `%s`\n", o.Line, o.Text)
		}
		b.WriteString("\n")
	}

	if rep.Template != "" {
		b.WriteString("## Template\n\n```\n")
		b.WriteString(rep.Template)
		if !strings.HasSuffix(rep.Template, "\n") {
			b.WriteString("\n")
		}
		b.WriteString("```\n")
	}
	return b.String()
}

func escape(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	return strings.ReplaceAll(s, "\n", " ")
}

// HTML converts Markdown output to a standalone HTML page.
func HTML(markdown string) ([]byte, error) {
	md := goldmark.New(goldmark.WithExtensions(extension.Table))
	var body bytes.Buffer
	if err := md.Convert([]byte(markdown), &body); err != nil {
		return nil, err
	}
	var out bytes.Buffer
	out.WriteString("<!doctype html>\n<html><head><meta charset=\"utf-8\"><title>groupmsg run</title></head><body>\n")
	out.Write(body.Bytes())
	out.WriteString("</body></html>\n")
	return out.Bytes(), nil
}
