// Package dataset defines the persisted record formats the engine consumes
// and produces: structured entity records for ingestion, question/answer
// records for evaluation, and prediction artifacts linking the two.
package dataset

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
)

// ErrBadRecord marks a malformed input record. Loaders skip such records and
// keep going; the batch never fails because of a single bad entry.
var ErrBadRecord = errors.New("malformed record")

// Record is a structured entity: a display name plus a mapping from field
// label to text. Records are immutable once loaded.
type Record struct {
	Name   string
	Fields map[string]string
}

// EvalRecord is a single evaluation input: a question and its reference answer.
type EvalRecord struct {
	Question    string `json:"question"`
	GroundTruth string `json:"ground_truth"`
}

// Prediction is one logged pipeline run: the question, the reference answer,
// the retrieved contexts in rank order and the generated answer.
type Prediction struct {
	Question    string   `json:"question"`
	GroundTruth string   `json:"ground_truth"`
	Contexts    []string `json:"contexts"`
	Answer      string   `json:"answer"`
}

// LoadRecords reads entity records from a JSON file. The file may hold either
// a bare array of objects or an object with a "documents" array. The name is
// resolved from nameField, falling back to "name_en" and then "Unknown"; all
// other string-valued keys become fields.
func LoadRecords(path, nameField string, logger *logrus.Logger) ([]Record, error) {
	if logger == nil {
		logger = logrus.New()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read records file: %w", err)
	}

	raw, err := decodeDocumentList(data)
	if err != nil {
		return nil, err
	}

	records := make([]Record, 0, len(raw))
	for i, entry := range raw {
		rec, err := recordFromMap(entry, nameField)
		if err != nil {
			logger.WithFields(logrus.Fields{
				"index": i,
				"error": err,
			}).Warn("Skipping malformed record")
			continue
		}
		records = append(records, rec)
	}

	return records, nil
}

func decodeDocumentList(data []byte) ([]map[string]any, error) {
	var list []map[string]any
	if err := json.Unmarshal(data, &list); err == nil {
		return list, nil
	}

	var wrapper struct {
		Documents []map[string]any `json:"documents"`
	}
	if err := json.Unmarshal(data, &wrapper); err != nil || wrapper.Documents == nil {
		return nil, fmt.Errorf("invalid records file: expected an array or a \"documents\" key")
	}
	return wrapper.Documents, nil
}

func recordFromMap(entry map[string]any, nameField string) (Record, error) {
	if len(entry) == 0 {
		return Record{}, fmt.Errorf("%w: empty object", ErrBadRecord)
	}

	name, _ := entry[nameField].(string)
	if name == "" {
		name, _ = entry["name_en"].(string)
	}
	if name == "" {
		name = "Unknown"
	}

	fields := make(map[string]string, len(entry))
	for key, value := range entry {
		if key == nameField || key == "id" {
			continue
		}
		if text, ok := value.(string); ok {
			fields[key] = text
		}
	}

	return Record{Name: name, Fields: fields}, nil
}

// LoadEvalRecords reads question/ground-truth pairs from a JSON array.
// Records missing either field are skipped and logged.
func LoadEvalRecords(path string, logger *logrus.Logger) ([]EvalRecord, error) {
	if logger == nil {
		logger = logrus.New()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read evaluation file: %w", err)
	}

	var raw []EvalRecord
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse evaluation file: %w", err)
	}

	records := make([]EvalRecord, 0, len(raw))
	for i, rec := range raw {
		if rec.Question == "" || rec.GroundTruth == "" {
			logger.WithField("index", i).Warn("Skipping record without question or ground_truth")
			continue
		}
		records = append(records, rec)
	}

	return records, nil
}

// LoadPredictions reads a prediction artifact written by SavePredictions.
// Predictions missing a question are skipped; empty contexts and ERROR answers
// are legitimate sentinel rows and pass through unchanged.
func LoadPredictions(path string, logger *logrus.Logger) ([]Prediction, error) {
	if logger == nil {
		logger = logrus.New()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read predictions file: %w", err)
	}

	var raw []Prediction
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse predictions file: %w", err)
	}

	predictions := make([]Prediction, 0, len(raw))
	for i, pred := range raw {
		if pred.Question == "" {
			logger.WithField("index", i).Warn("Skipping prediction without question")
			continue
		}
		predictions = append(predictions, pred)
	}

	return predictions, nil
}

// SavePredictions writes predictions as indented JSON.
func SavePredictions(path string, predictions []Prediction) error {
	return SaveJSON(path, predictions)
}

// SaveJSON writes any artifact as indented JSON.
func SaveJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal artifact: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write artifact: %w", err)
	}
	return nil
}
