// Package parser turns downloaded files into page documents.
package parser

import (
	"log/slog"
	"path/filepath"
	"strings"

	"taxrag/internal/domain"
	"taxrag/internal/port"
)

// ByExtension dispatches to the PDF parser for .pdf files and to the HTML
// parser for everything else.
type ByExtension struct {
	pdf  port.DocumentParser
	html port.DocumentParser
}

func NewByExtension(logger *slog.Logger) *ByExtension {
	return &ByExtension{
		pdf:  NewPDFParser(logger),
		html: NewHTMLParser(logger),
	}
}

func (b *ByExtension) Parse(path, source string) ([]domain.Document, error) {
	if strings.EqualFold(filepath.Ext(path), ".pdf") {
		return b.pdf.Parse(path, source)
	}
	return b.html.Parse(path, source)
}
