package chunker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"digital.vasic.snakerag/internal/config"
	"digital.vasic.snakerag/internal/dataset"
)

func newEngine(t *testing.T, size, overlap int) *Engine {
	t.Helper()
	e, err := NewEngine(config.ChunkingConfig{ChunkSize: size, ChunkOverlap: overlap}, nil)
	require.NoError(t, err)
	return e
}

func TestNewEngine(t *testing.T) {
	t.Run("rejects zero chunk size", func(t *testing.T) {
		_, err := NewEngine(config.ChunkingConfig{ChunkSize: 0, ChunkOverlap: 0}, nil)
		assert.ErrorIs(t, err, config.ErrInvalidConfig)
	})

	t.Run("rejects overlap >= chunk size", func(t *testing.T) {
		_, err := NewEngine(config.ChunkingConfig{ChunkSize: 50, ChunkOverlap: 50}, nil)
		assert.ErrorIs(t, err, config.ErrInvalidConfig)
	})

	t.Run("rejects negative overlap", func(t *testing.T) {
		_, err := NewEngine(config.ChunkingConfig{ChunkSize: 50, ChunkOverlap: -1}, nil)
		assert.ErrorIs(t, err, config.ErrInvalidConfig)
	})
}

func TestClean(t *testing.T) {
	e := newEngine(t, 200, 50)

	t.Run("collapses whitespace", func(t *testing.T) {
		assert.Equal(t, "a b c", e.Clean("a \t b\n\n  c"))
	})

	t.Run("strips disallowed characters", func(t *testing.T) {
		assert.Equal(t, "hello world!", e.Clean("hello @#$ world!"))
	})

	t.Run("keeps standard punctuation", func(t *testing.T) {
		in := `He said: "wait, really?!" - yes; (no).`
		assert.Equal(t, in, e.Clean(in))
	})

	t.Run("keeps vietnamese letters", func(t *testing.T) {
		in := "Rắn hổ mang là loài độc."
		assert.Equal(t, in, e.Clean(in))
	})

	t.Run("idempotent", func(t *testing.T) {
		in := "  Rắn   hổ mang\t(Naja) — sống ở rừng.  "
		once := e.Clean(in)
		assert.Equal(t, once, e.Clean(once))
	})
}

func TestSplitSentences(t *testing.T) {
	sentences := splitSentences("One. Two! Three? Four")
	require.Len(t, sentences, 4)
	assert.Equal(t, "One.", sentences[0])
	assert.Equal(t, "Two!", sentences[1])
	assert.Equal(t, "Three?", sentences[2])
	assert.Equal(t, "Four", sentences[3])

	t.Run("terminator without trailing space stays inline", func(t *testing.T) {
		assert.Equal(t, []string{"v1.2 is out"}, splitSentences("v1.2 is out"))
	})
}

func TestChunkTwoSentences(t *testing.T) {
	e := newEngine(t, 50, 10)
	text := "Rắn hổ mang là loài độc. Chúng sống ở rừng nhiệt đới."

	chunks := e.Chunk(text)
	require.Len(t, chunks, 2)

	first := []rune(chunks[0].Text)
	assert.LessOrEqual(t, len(first), 50)
	assert.Equal(t, '.', first[len(first)-1], "first chunk should end at a sentence boundary")

	// Second chunk starts with the 10-rune tail of the first. The seeded
	// buffer is trimmed on emit, so a tail beginning mid-word loses its
	// leading space.
	tail := strings.TrimSpace(string(first[len(first)-10:]))
	assert.True(t, strings.HasPrefix(chunks[1].Text, tail),
		"second chunk %q should start with overlap %q", chunks[1].Text, tail)

	assert.Equal(t, 0, chunks[0].Ordinal)
	assert.Equal(t, 1, chunks[1].Ordinal)
}

func TestChunkOverlapSeedOvershoot(t *testing.T) {
	e := newEngine(t, 50, 10)
	sentence := strings.Repeat("ab cd ", 7) + "end."
	require.Equal(t, 46, len([]rune(sentence)))

	chunks := e.Chunk(sentence + " " + sentence)
	require.Len(t, chunks, 2)
	assert.Equal(t, sentence, chunks[0].Text)

	// The seeded final buffer is emitted without another overflow check, so
	// it may exceed the size by up to overlap plus the joining space.
	second := len([]rune(chunks[1].Text))
	assert.Greater(t, second, 50)
	assert.LessOrEqual(t, second, 50+10+1)
	assert.Equal(t, "ab cd end. "+sentence, chunks[1].Text)
}

func TestChunkSizeInvariant(t *testing.T) {
	e := newEngine(t, 80, 20)
	text := "Con rắn này sống ở rừng. Nó ăn chuột và chim nhỏ. Nó đẻ trứng vào mùa hè. " +
		"Nọc độc của nó rất mạnh. Khi bị cắn cần đến bệnh viện ngay. Loài này được bảo vệ."

	chunks := e.Chunk(text)
	require.NotEmpty(t, chunks)
	for _, c := range chunks {
		assert.LessOrEqual(t, len([]rune(c.Text)), 80, "chunk %q exceeds budget", c.Text)
		assert.NotEmpty(t, strings.TrimSpace(c.Text))
	}
}

func TestChunkLongSentenceSplitsOnWords(t *testing.T) {
	e := newEngine(t, 20, 5)
	// A single "sentence" far beyond the budget, no terminators.
	text := strings.Repeat("independence ", 10)

	chunks := e.Chunk(text)
	require.NotEmpty(t, chunks)
	for _, c := range chunks {
		assert.LessOrEqual(t, len([]rune(c.Text)), 20)
	}
}

func TestChunkEmptyInput(t *testing.T) {
	e := newEngine(t, 50, 10)
	assert.Empty(t, e.Chunk(""))
	assert.Empty(t, e.Chunk("   \n\t  "))
}

func TestChunkWithContext(t *testing.T) {
	e := newEngine(t, 80, 10)
	name := "Naja atra"
	field := "Độc tính"
	prefix := name + " - " + field + ": "
	text := "Nọc độc thần kinh rất mạnh. Vết cắn gây hoại tử cục bộ. Cần huyết thanh kháng nọc sớm."

	chunks := e.ChunkWithContext(text, name, field)
	require.NotEmpty(t, chunks)

	for _, c := range chunks {
		assert.True(t, strings.HasPrefix(c.Text, prefix))
		assert.LessOrEqual(t, len([]rune(c.Text)), 80, "prefix must be carved out of the budget")
		assert.Equal(t, name, c.Record)
		assert.Equal(t, field, c.Field)
	}

	t.Run("prefix not carried into overlap seed", func(t *testing.T) {
		if len(chunks) < 2 {
			t.Skip("need at least two chunks")
		}
		body := strings.TrimPrefix(chunks[1].Text, prefix)
		assert.False(t, strings.HasPrefix(body, prefix))
	})

	t.Run("no prefix when name missing", func(t *testing.T) {
		chunks := e.ChunkWithContext("Một câu ngắn.", "", field)
		require.Len(t, chunks, 1)
		assert.Equal(t, "Một câu ngắn.", chunks[0].Text)
	})
}

func TestChunkRecord(t *testing.T) {
	e := newEngine(t, 100, 20)
	rec := dataset.Record{
		Name: "Bungarus fasciatus",
		Fields: map[string]string{
			"Độc tính": "Nọc độc thần kinh mạnh. Hoạt động về đêm.",
			"Phân bố":  "Sống ở Đông Nam Á. Ưa vùng đất thấp gần nước.",
			"Trống":    "   ",
		},
	}

	t.Run("field order preserved", func(t *testing.T) {
		chunks, err := e.ChunkRecord(rec, []string{"Phân bố", "Độc tính"}, nil)
		require.NoError(t, err)
		require.NotEmpty(t, chunks)
		assert.Equal(t, "Phân bố", chunks[0].Field)
		assert.Equal(t, "Độc tính", chunks[len(chunks)-1].Field)
	})

	t.Run("missing and empty fields skipped", func(t *testing.T) {
		chunks, err := e.ChunkRecord(rec, []string{"Trống", "Không có"}, nil)
		require.NoError(t, err)
		assert.Empty(t, chunks)
	})

	t.Run("per-field size policy", func(t *testing.T) {
		policy := SizePolicy{
			"Độc tính": {ChunkSize: 60, ChunkOverlap: 10},
		}
		chunks, err := e.ChunkRecord(rec, []string{"Độc tính"}, policy)
		require.NoError(t, err)
		for _, c := range chunks {
			assert.LessOrEqual(t, len([]rune(c.Text)), 60)
		}
	})

	t.Run("invalid policy override rejected", func(t *testing.T) {
		policy := SizePolicy{
			"Độc tính": {ChunkSize: 10, ChunkOverlap: 10},
		}
		_, err := e.ChunkRecord(rec, []string{"Độc tính"}, policy)
		assert.ErrorIs(t, err, config.ErrInvalidConfig)
	})

	t.Run("deterministic", func(t *testing.T) {
		a, err := e.ChunkRecord(rec, []string{"Độc tính", "Phân bố"}, nil)
		require.NoError(t, err)
		b, err := e.ChunkRecord(rec, []string{"Độc tính", "Phân bố"}, nil)
		require.NoError(t, err)
		assert.Equal(t, a, b)
	})
}

func TestSummarize(t *testing.T) {
	assert.Equal(t, Stats{}, Summarize(nil))

	chunks := []Chunk{{Text: "abcd"}, {Text: "ab"}}
	s := Summarize(chunks)
	assert.Equal(t, 2, s.Count)
	assert.Equal(t, 2, s.MinLength)
	assert.Equal(t, 4, s.MaxLength)
	assert.Equal(t, 3.0, s.AvgLength)
}
