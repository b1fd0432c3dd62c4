package parser

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"

	"taxrag/internal/domain"
)

// PDFParser emits one document per page of a PDF file.
type PDFParser struct {
	logger *slog.Logger
}

func NewPDFParser(logger *slog.Logger) *PDFParser {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &PDFParser{logger: logger}
}

func (p *PDFParser) Parse(path, source string) ([]domain.Document, error) {
	const op = "parser.pdf"

	f, reader, err := pdf.Open(path)
	if err != nil {
		p.logger.Error("Failed to open PDF",
			slog.String("path", path),
			slog.String("error", err.Error()))
		return nil, domain.E(domain.KindParse, op, fmt.Errorf("failed to open %s: %w", path, err))
	}
	defer f.Close()

	total := reader.NumPage()
	p.logger.Debug("Starting PDF text extraction",
		slog.String("path", path),
		slog.Int("total_pages", total))

	title := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	var docs []domain.Document
	for i := 1; i <= total; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			p.logger.Debug("Null page encountered", slog.Int("page_number", i))
			continue
		}

		text, err := page.GetPlainText(nil)
		if err != nil {
			p.logger.Error("Failed to extract text from page",
				slog.Int("page_number", i),
				slog.String("error", err.Error()))
			return nil, domain.E(domain.KindParse, op, fmt.Errorf("failed to extract text from page %d: %w", i, err))
		}
		if strings.TrimSpace(text) == "" {
			p.logger.Debug("Page has no text", slog.Int("page_number", i))
			continue
		}

		docs = append(docs, domain.Document{
			ID:        DocumentID(source, i),
			Source:    source,
			Path:      path,
			Title:     title,
			Page:      i,
			PageCount: total,
			Text:      text,
		})
	}

	if len(docs) == 0 {
		p.logger.Error("No text extracted from PDF",
			slog.String("path", path),
			slog.Int("total_pages", total))
		return nil, domain.Errorf(domain.KindParse, op, "no text content extracted from %s", path)
	}

	p.logger.Info("Extracted text from PDF",
		slog.String("source", source),
		slog.Int("total_pages", total),
		slog.Int("pages_with_text", len(docs)))
	return docs, nil
}

// DocumentID is stable for a given source and page.
func DocumentID(source string, page int) string {
	h := sha256.Sum256([]byte(fmt.Sprintf("%s#%d", source, page)))
	return hex.EncodeToString(h[:8])
}
