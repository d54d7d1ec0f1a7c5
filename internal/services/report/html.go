package report

import (
	"bytes"
	"fmt"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/bobmcallan/fintrack/internal/models"
)

var markdownRenderer = goldmark.New(goldmark.WithExtensions(extension.Table))

// HTML renders the markdown summary as an HTML fragment.
func (s *Service) HTML(snap models.LedgerSnapshot) ([]byte, error) {
	var buf bytes.Buffer
	if err := markdownRenderer.Convert([]byte(s.Markdown(snap)), &buf); err != nil {
		return nil, fmt.Errorf("failed to render report html: %w", err)
	}
	return buf.Bytes(), nil
}
