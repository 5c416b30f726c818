// Package tesseract provides an ocr.Engine backed by the Tesseract library.
package tesseract

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/otiai10/gosseract/v2"

	"github.com/example/groupmsg/internal/ocr"
)

type Engine struct {
	Languages []string
	// PSM is Tesseract's page segmentation mode; 6 assumes a single uniform block of text.
	PSM int

	clientFactory func() *gosseract.Client
}

func New(languages []string, psm int) *Engine {
	if len(languages) == 0 {
		languages = []string{"eng"}
	}
	return &Engine{Languages: languages, PSM: psm, clientFactory: gosseract.NewClient}
}

func (e *Engine) Name() string { return "tesseract" }

func (e *Engine) ExtractText(ctx context.Context, img ocr.Image) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	c := e.clientFactory()
	defer c.Close()

	if err := c.SetLanguage(e.Languages...); err != nil {
		return "", fmt.Errorf("set language: %w", err)
	}
	if e.PSM > 0 {
		if err := c.SetPageSegMode(gosseract.PageSegMode(e.PSM)); err != nil {
			return "", fmt.Errorf("set page segmentation mode: %w", err)
		}
	}
	// keep inter-word spacing so names and numbers stay on separate tokens
	if err := c.SetVariable(gosseract.SettableVariable("preserve_interword_spaces"), "1"); err != nil {
		return "", fmt.Errorf("set variable: %w", err)
	}
	if err := c.SetImageFromBytes(img.PNG); err != nil {
		return "", fmt.Errorf("set image: %w", err)
	}
	text, err := c.Text()
	if err != nil {
		return "", fmt.Errorf("recognize %s: %w", img.Path, err)
	}
	return strings.TrimSpace(text), nil
}

// ParseLanguages splits a "+" or "," separated language list such as "eng+spa".
func ParseLanguages(s string) []string {
	var out []string
	for _, p := range strings.FieldsFunc(s, func(r rune) bool { return r == '+' || r == ',' }) {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ParsePSM validates a page segmentation mode value.
func ParsePSM(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 || n > 13 {
		return 0, fmt.Errorf("invalid page segmentation mode %q", s)
	}
	return n, nil
}
