package usecases

import (
	"github.com/example/groupmsg/internal/domain/contact"
	"github.com/example/groupmsg/internal/domain/delivery"
	"github.com/example/groupmsg/internal/render"
)

type Preview struct {
	Issues   []render.Issue
	Stats    render.Stats
	Messages []delivery.RenderedMessage
	// Total is the number of contacts the template would be sent to.
	Total int
}

type PreviewMessages struct {
	Renderer render.Renderer
	Limit    int
}

func (u PreviewMessages) Execute(template string, contacts []contact.Contact) Preview {
	p := Preview{
		Issues: render.Lint(template),
		Stats:  render.TemplateStats(template),
		Total:  len(contacts),
	}
	limit := u.Limit
	if limit <= 0 || limit > len(contacts) {
		limit = len(contacts)
	}
	for _, c := range contacts[:limit] {
		p.Messages = append(p.Messages, u.Renderer.Render(template, c))
	}
	return p
}
