package chunker

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"taxrag/internal/domain"
)

// DefaultSeparators are tried in order: paragraphs, lines, words, characters.
var DefaultSeparators = []string{"\n\n", "\n", " ", ""}

// RecursiveSplitter splits text on the coarsest separator that occurs in it,
// recursing into pieces that are still too long, then greedily merges the
// pieces back into chunks of at most chunkSize characters that overlap by up
// to chunkOverlap characters.
type RecursiveSplitter struct {
	chunkSize    int
	chunkOverlap int
	separators   []string
	logger       *slog.Logger
}

func NewRecursiveSplitter(chunkSize, chunkOverlap int, logger *slog.Logger) *RecursiveSplitter {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if chunkOverlap < 0 {
		logger.Warn("Negative chunk overlap, using 0", slog.Int("chunk_overlap", chunkOverlap))
		chunkOverlap = 0
	}
	if chunkSize < 1 {
		logger.Warn("Chunk size below 1, using 1", slog.Int("chunk_size", chunkSize))
		chunkSize = 1
	}
	return &RecursiveSplitter{
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
		separators:   DefaultSeparators,
		logger:       logger,
	}
}

// SplitDocuments splits every document into chunks carrying the document's
// source metadata. Misconfiguration and empty input are warned about only.
func (s *RecursiveSplitter) SplitDocuments(docs []domain.Document) []domain.Chunk {
	if s.chunkSize <= s.chunkOverlap {
		s.logger.Warn("Chunk size must be greater than chunk overlap",
			slog.Int("chunk_size", s.chunkSize),
			slog.Int("chunk_overlap", s.chunkOverlap))
	}
	if len(docs) == 0 {
		s.logger.Warn("No documents to split")
	}

	s.logger.Info("Splitting documents into chunks",
		slog.Int("documents", len(docs)),
		slog.Int("chunk_size", s.chunkSize),
		slog.Int("chunk_overlap", s.chunkOverlap))

	var chunks []domain.Chunk
	for _, doc := range docs {
		for i, text := range s.SplitText(doc.Text) {
			chunks = append(chunks, domain.Chunk{
				ID:     generateChunkID(doc.ID, i),
				DocID:  doc.ID,
				Source: doc.Source,
				Page:   doc.Page,
				Index:  i,
				Text:   text,
			})
		}
	}
	return chunks
}

// SplitText splits a single text.
func (s *RecursiveSplitter) SplitText(text string) []string {
	return s.split(text, s.separators)
}

func (s *RecursiveSplitter) split(text string, separators []string) []string {
	separator := separators[len(separators)-1]
	var rest []string
	for i, sep := range separators {
		if sep == "" {
			separator = sep
			break
		}
		if strings.Contains(text, sep) {
			separator = sep
			rest = separators[i+1:]
			break
		}
	}

	var final, good []string
	for _, piece := range splitKeepSeparator(text, separator) {
		if utf8.RuneCountInString(piece) < s.chunkSize {
			good = append(good, piece)
			continue
		}
		if len(good) > 0 {
			final = append(final, s.merge(good)...)
			good = nil
		}
		if len(rest) == 0 {
			if piece = strings.TrimSpace(piece); piece != "" {
				final = append(final, piece)
			}
		} else {
			final = append(final, s.split(piece, rest)...)
		}
	}
	if len(good) > 0 {
		final = append(final, s.merge(good)...)
	}
	return final
}

// merge joins pieces (which already carry their separators) into chunks.
func (s *RecursiveSplitter) merge(pieces []string) []string {
	var docs []string
	var current []string
	total := 0

	for _, p := range pieces {
		n := utf8.RuneCountInString(p)
		if total+n > s.chunkSize {
			if total > s.chunkSize {
				s.logger.Warn("Created a chunk longer than the chunk size",
					slog.Int("length", total),
					slog.Int("chunk_size", s.chunkSize))
			}
			if len(current) > 0 {
				if doc := joinPieces(current); doc != "" {
					docs = append(docs, doc)
				}
				for total > s.chunkOverlap || (total+n > s.chunkSize && total > 0) {
					total -= utf8.RuneCountInString(current[0])
					current = current[1:]
				}
			}
		}
		current = append(current, p)
		total += n
	}
	if doc := joinPieces(current); doc != "" {
		docs = append(docs, doc)
	}
	return docs
}

func joinPieces(pieces []string) string {
	return strings.TrimSpace(strings.Join(pieces, ""))
}

// splitKeepSeparator splits text on sep, attaching each separator to the start
// of the piece that follows it. An empty sep splits into characters.
func splitKeepSeparator(text, sep string) []string {
	if sep == "" {
		out := make([]string, 0, utf8.RuneCountInString(text))
		for _, r := range text {
			out = append(out, string(r))
		}
		return out
	}

	parts := strings.Split(text, sep)
	out := make([]string, 0, len(parts))
	for i, part := range parts {
		if i > 0 {
			part = sep + part
		}
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func generateChunkID(docID string, index int) string {
	data := fmt.Sprintf("%s:%d", docID, index)
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:8])
}
