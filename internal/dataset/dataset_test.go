package dataset

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadRecords(t *testing.T) {
	t.Run("bare array", func(t *testing.T) {
		path := writeFile(t, `[
			{"name_vn": "Rắn hổ mang chúa", "name_en": "King Cobra", "venom": "Neurotoxic.", "id": "42"},
			{"name_vn": "Trăn gấm", "habitat": "Rainforest."}
		]`)

		records, err := LoadRecords(path, "name_vn", nil)
		require.NoError(t, err)
		require.Len(t, records, 2)

		assert.Equal(t, "Rắn hổ mang chúa", records[0].Name)
		assert.Equal(t, "Neurotoxic.", records[0].Fields["venom"])
		_, hasID := records[0].Fields["id"]
		assert.False(t, hasID, "id is metadata, not text")
		_, hasName := records[0].Fields["name_vn"]
		assert.False(t, hasName, "the name field is not duplicated as text")
	})

	t.Run("documents wrapper", func(t *testing.T) {
		path := writeFile(t, `{"documents": [{"name_vn": "Cạp nia", "venom": "Potent."}]}`)
		records, err := LoadRecords(path, "name_vn", nil)
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, "Cạp nia", records[0].Name)
	})

	t.Run("name fallback chain", func(t *testing.T) {
		path := writeFile(t, `[
			{"name_en": "Reticulated Python", "size": "Up to 10 m."},
			{"size": "Unnamed entity."}
		]`)
		records, err := LoadRecords(path, "name_vn", nil)
		require.NoError(t, err)
		require.Len(t, records, 2)
		assert.Equal(t, "Reticulated Python", records[0].Name)
		assert.Equal(t, "Unknown", records[1].Name)
	})

	t.Run("malformed entries skipped", func(t *testing.T) {
		path := writeFile(t, `[{}, {"name_vn": "Valid", "f": "text"}]`)
		records, err := LoadRecords(path, "name_vn", nil)
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, "Valid", records[0].Name)
	})

	t.Run("invalid shapes rejected", func(t *testing.T) {
		path := writeFile(t, `{"other": 1}`)
		_, err := LoadRecords(path, "name_vn", nil)
		assert.Error(t, err)

		_, err = LoadRecords(filepath.Join(t.TempDir(), "missing.json"), "name_vn", nil)
		assert.Error(t, err)
	})
}

func TestLoadEvalRecords(t *testing.T) {
	path := writeFile(t, `[
		{"question": "Rắn hổ mang ăn gì?", "ground_truth": "Chủ yếu ăn các loài rắn khác."},
		{"question": "", "ground_truth": "orphaned"},
		{"question": "no truth"}
	]`)

	records, err := LoadEvalRecords(path, nil)
	require.NoError(t, err)
	require.Len(t, records, 1, "incomplete pairs are skipped")
	assert.Equal(t, "Rắn hổ mang ăn gì?", records[0].Question)
}

func TestPredictionsRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "predictions.json")
	preds := []Prediction{
		{
			Question:    "Câu hỏi?",
			GroundTruth: "Đáp án.",
			Contexts:    []string{"ctx a", "ctx b"},
			Answer:      "Trả lời.",
		},
		{
			Question:    "Failed one?",
			GroundTruth: "gt",
			Contexts:    []string{},
			Answer:      "ERROR: Rate limit exceeded after retries",
		},
	}

	require.NoError(t, SavePredictions(path, preds))

	loaded, err := LoadPredictions(path, nil)
	require.NoError(t, err)
	assert.Equal(t, preds, loaded, "sentinel rows survive the round trip")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Câu hỏi?", "UTF-8 preserved, not escaped to ASCII")
}

func TestLoadPredictionsSkipsMissingQuestion(t *testing.T) {
	path := writeFile(t, `[{"question": "", "answer": "x"}, {"question": "q", "answer": "a"}]`)
	preds, err := LoadPredictions(path, nil)
	require.NoError(t, err)
	require.Len(t, preds, 1)
	assert.Equal(t, "q", preds[0].Question)
}
