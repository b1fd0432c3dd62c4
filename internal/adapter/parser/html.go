package parser

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"taxrag/internal/domain"
)

// HTMLParser extracts the visible text of an HTML page as a single document.
type HTMLParser struct {
	logger *slog.Logger
}

func NewHTMLParser(logger *slog.Logger) *HTMLParser {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &HTMLParser{logger: logger}
}

func (p *HTMLParser) Parse(path, source string) ([]domain.Document, error) {
	const op = "parser.html"

	f, err := os.Open(path)
	if err != nil {
		return nil, domain.E(domain.KindParse, op, fmt.Errorf("failed to open %s: %w", path, err))
	}
	defer f.Close()

	doc, err := goquery.NewDocumentFromReader(f)
	if err != nil {
		p.logger.Error("Failed to parse HTML",
			slog.String("path", path),
			slog.String("error", err.Error()))
		return nil, domain.E(domain.KindParse, op, fmt.Errorf("failed to parse %s: %w", path, err))
	}

	doc.Find("script, style, noscript, nav, footer, header").Remove()

	title := collapseSpace(doc.Find("title").First().Text())
	body := doc.Find("main, article").First()
	if body.Length() == 0 {
		body = doc.Find("body")
	}
	text := collapseSpace(body.Text())
	if text == "" {
		p.logger.Error("No text extracted from HTML", slog.String("path", path))
		return nil, domain.Errorf(domain.KindParse, op, "no text content extracted from %s", path)
	}

	p.logger.Info("Extracted text from HTML",
		slog.String("source", source),
		slog.Int("text_length", len(text)))

	return []domain.Document{{
		ID:        DocumentID(source, 1),
		Source:    source,
		Path:      path,
		Title:     title,
		Page:      1,
		PageCount: 1,
		Text:      text,
	}}, nil
}

// collapseSpace squeezes runs of spaces and tabs and drops blank lines, keeping
// line structure for the splitter.
func collapseSpace(s string) string {
	var lines []string
	for _, line := range strings.Split(s, "\n") {
		if line = strings.Join(strings.Fields(line), " "); line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}
