package usecases

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/example/groupmsg/internal/domain/contact"
	"github.com/example/groupmsg/internal/ocr"
	"github.com/example/groupmsg/internal/parser"
	"github.com/example/groupmsg/internal/validator"
)

// Source is where contact text comes from: an image to OCR, a text file,
// or text supplied directly.
type Source struct {
	ImagePath string
	TextPath  string
	Text      string
}

func (s Source) String() string {
	switch {
	case s.ImagePath != "":
		return s.ImagePath
	case s.TextPath != "":
		return s.TextPath
	default:
		return "inline text"
	}
}

type Extraction struct {
	Text     string                      `json:"-"`
	Found    int                         `json:"found"`
	Contacts []contact.Contact           `json:"contacts"`
	Rejected []contact.RejectedCandidate `json:"rejected"`
	Orphans  []contact.OrphanLine        `json:"orphans"`
}

// ExtractContacts reads, parses and validates contact text. Region filtering
// is configured on the Validator.
type ExtractContacts struct {
	OCR       ocr.Engine
	Validator *validator.Validator
	Logger    *slog.Logger
}

func (u ExtractContacts) Execute(ctx context.Context, src Source) (Extraction, error) {
	if u.Validator == nil {
		return Extraction{}, fmt.Errorf("validator is nil")
	}
	text, err := u.readText(ctx, src)
	if err != nil {
		return Extraction{}, err
	}

	parsed := parser.Parse(text)
	res := u.Validator.Validate(parsed.Candidates)

	u.logger().Info("contacts extracted", "source", src.String(), "found", res.Found, "valid", len(res.Contacts), "rejected", len(res.Rejected), "orphans", len(parsed.Orphans))
	return Extraction{
		Text:     text,
		Found:    res.Found,
		Contacts: res.Contacts,
		Rejected: res.Rejected,
		Orphans:  parsed.Orphans,
	}, nil
}

func (u ExtractContacts) readText(ctx context.Context, src Source) (string, error) {
	switch {
	case src.ImagePath != "":
		if u.OCR == nil {
			return "", fmt.Errorf("no OCR engine configured for %s", src.ImagePath)
		}
		img, err := ocr.LoadImage(src.ImagePath)
		if err != nil {
			return "", err
		}
		text, err := u.OCR.ExtractText(ctx, img)
		if err != nil {
			return "", fmt.Errorf("%s ocr: %w", u.OCR.Name(), err)
		}
		if strings.TrimSpace(text) == "" {
			u.logger().Warn("no text recognized", "image", src.ImagePath)
		}
		return text, nil
	case src.TextPath != "":
		b, err := os.ReadFile(src.TextPath)
		if err != nil {
			return "", err
		}
		return string(b), nil
	default:
		return src.Text, nil
	}
}

func (u ExtractContacts) logger() *slog.Logger {
	if u.Logger == nil {
		return slog.Default()
	}
	return u.Logger
}
