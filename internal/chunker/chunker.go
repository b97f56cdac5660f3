// Package chunker turns raw text and structured records into bounded,
// overlapping passages suitable for embedding. All lengths are measured in
// runes so multilingual text is budgeted correctly.
package chunker

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"

	"digital.vasic.snakerag/internal/config"
	"digital.vasic.snakerag/internal/dataset"
)

// Chunk is a derived text unit. Text carries the optional context prefix;
// Record and Field identify the source when record-level chunking was used.
type Chunk struct {
	Text    string
	Record  string
	Field   string
	Ordinal int
}

// SizePolicy overrides the engine's chunking configuration for specific
// record fields, keyed by field label.
type SizePolicy map[string]config.ChunkingConfig

// Engine splits cleaned text into overlapping chunks. It holds no state
// beyond its configuration and is safe for concurrent use.
type Engine struct {
	cfg    config.ChunkingConfig
	logger *logrus.Logger
}

var (
	whitespaceRun = regexp.MustCompile(`\s+`)
	disallowed    = regexp.MustCompile(`[^\p{L}\p{N}_\s.,!?;:\-'"()]`)
)

// NewEngine validates the chunking configuration and returns an engine.
func NewEngine(cfg config.ChunkingConfig, logger *logrus.Logger) (*Engine, error) {
	if err := validateChunking(cfg); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Engine{cfg: cfg, logger: logger}, nil
}

func validateChunking(cfg config.ChunkingConfig) error {
	if cfg.ChunkSize <= 0 {
		return fmt.Errorf("%w: chunk size must be positive, got %d", config.ErrInvalidConfig, cfg.ChunkSize)
	}
	if cfg.ChunkOverlap < 0 || cfg.ChunkOverlap >= cfg.ChunkSize {
		return fmt.Errorf("%w: chunk overlap %d must be in [0, chunk size %d)",
			config.ErrInvalidConfig, cfg.ChunkOverlap, cfg.ChunkSize)
	}
	return nil
}

// Clean collapses whitespace runs to a single space, strips characters
// outside the allow-list (word characters, whitespace, standard punctuation)
// and trims the ends. Idempotent.
func (e *Engine) Clean(text string) string {
	// Strip before collapsing: removing a character between two spaces must
	// not leave a double space behind, or Clean would not be idempotent.
	text = disallowed.ReplaceAllString(text, "")
	text = whitespaceRun.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// splitSentences splits cleaned text after sentence terminators (. ! ?)
// followed by whitespace. The trailing terminator stays with its sentence.
func splitSentences(text string) []string {
	var sentences []string
	runes := []rune(text)
	start := 0
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if (r == '.' || r == '!' || r == '?') && i+1 < len(runes) && isSpace(runes[i+1]) {
			sentences = append(sentences, string(runes[start:i+1]))
			j := i + 1
			for j < len(runes) && isSpace(runes[j]) {
				j++
			}
			start = j
			i = j - 1
		}
	}
	if start < len(runes) {
		sentences = append(sentences, string(runes[start:]))
	}
	return sentences
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r'
}

// Chunk cleans text and splits it into overlapping chunks bounded by the
// engine's chunk size. Sentences are accumulated greedily; on overflow the
// buffer is emitted and the next buffer is seeded with its trailing
// chunk-overlap runes. A single sentence longer than the budget is split on
// word boundaries instead. An overlap-seeded final buffer that never
// overflows again is emitted as is, so a chunk may exceed the size by up to
// the overlap length plus one.
func (e *Engine) Chunk(text string) []Chunk {
	return e.chunkWithPrefix(text, "", "", "")
}

// ChunkWithContext behaves like Chunk but carves the context prefix
// "{name} - {field}: " out of the size budget and prepends it to every
// emitted chunk. The prefix is never carried into the overlap seed. When
// name or field is empty no prefix is applied.
func (e *Engine) ChunkWithContext(text, name, field string) []Chunk {
	prefix := ""
	if name != "" && field != "" {
		prefix = name + " - " + field + ": "
	}
	return e.chunkWithPrefix(text, prefix, name, field)
}

func (e *Engine) chunkWithPrefix(text, prefix, record, field string) []Chunk {
	text = e.Clean(text)
	budget := e.cfg.ChunkSize - len([]rune(prefix))
	overlap := e.cfg.ChunkOverlap

	var bodies []string
	emit := func(body string) {
		body = strings.TrimSpace(body)
		if body != "" {
			bodies = append(bodies, body)
		}
	}

	current := ""
	for _, sentence := range splitSentences(text) {
		if runeLen(current)+runeLen(sentence) > budget {
			if current != "" {
				emit(current)
				if overlap > 0 {
					current = tailRunes(current, overlap) + " " + sentence
				} else {
					current = sentence
				}
				continue
			}
			// Single sentence exceeds the budget: fall back to greedy
			// word accumulation, bypassing sentence-level overflow.
			if runeLen(sentence) > budget {
				temp := ""
				for _, word := range strings.Fields(sentence) {
					if runeLen(temp)+runeLen(word)+1 <= budget {
						if temp == "" {
							temp = word
						} else {
							temp += " " + word
						}
					} else {
						emit(temp)
						temp = word
					}
				}
				current = temp
			} else {
				current = sentence
			}
			continue
		}
		if current == "" {
			current = sentence
		} else {
			current += " " + sentence
		}
	}
	emit(current)

	chunks := make([]Chunk, 0, len(bodies))
	for i, body := range bodies {
		chunks = append(chunks, Chunk{
			Text:    prefix + body,
			Record:  record,
			Field:   field,
			Ordinal: i,
		})
	}
	return chunks
}

func runeLen(s string) int {
	return len([]rune(s))
}

func tailRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[len(runes)-n:])
}

// ChunkRecord chunks every listed field of a record with the context prefix,
// resolving the chunking configuration per field from the policy when an
// override exists. Fields absent from the record or empty are skipped.
// Ordering is deterministic: field order as given, chunk order within field.
func (e *Engine) ChunkRecord(rec dataset.Record, fields []string, policy SizePolicy) ([]Chunk, error) {
	var all []Chunk
	for _, field := range fields {
		text, ok := rec.Fields[field]
		if !ok || strings.TrimSpace(text) == "" {
			continue
		}

		engine := e
		if override, ok := policy[field]; ok {
			var err error
			engine, err = NewEngine(override, e.logger)
			if err != nil {
				return nil, fmt.Errorf("size policy for field %q: %w", field, err)
			}
		}

		chunks := engine.ChunkWithContext(text, rec.Name, field)
		e.logger.WithFields(logrus.Fields{
			"record": rec.Name,
			"field":  field,
			"chunks": len(chunks),
		}).Debug("Field chunked")
		all = append(all, chunks...)
	}
	return all, nil
}

// Stats summarizes a chunk set for ingest reporting.
type Stats struct {
	Count     int
	AvgLength float64
	MinLength int
	MaxLength int
}

// Summarize computes length statistics over chunk texts, in runes.
func Summarize(chunks []Chunk) Stats {
	if len(chunks) == 0 {
		return Stats{}
	}
	s := Stats{Count: len(chunks), MinLength: runeLen(chunks[0].Text)}
	total := 0
	for _, c := range chunks {
		n := runeLen(c.Text)
		total += n
		if n < s.MinLength {
			s.MinLength = n
		}
		if n > s.MaxLength {
			s.MaxLength = n
		}
	}
	s.AvgLength = float64(total) / float64(len(chunks))
	return s
}
