// snakerag is the command-line entry point for the snake knowledge base:
// ingestion, querying, prediction generation and quality evaluation.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"digital.vasic.snakerag/internal/chunker"
	"digital.vasic.snakerag/internal/config"
	"digital.vasic.snakerag/internal/dataset"
	"digital.vasic.snakerag/internal/embedding"
	"digital.vasic.snakerag/internal/eval"
	"digital.vasic.snakerag/internal/llm"
	"digital.vasic.snakerag/internal/rag"
	"digital.vasic.snakerag/internal/vectorstore"
)

const usage = `Usage: snakerag <command> [flags]

Commands:
  ingest           Ingest documents from a JSON file into the vector index
  query            Answer a question against the knowledge base
  stats            Show pipeline statistics
  reset            Clear the vector index
  check            Probe every configured component
  predict          Generate predictions for an evaluation question set
  eval-retrieval   Score retrieval quality of a prediction file
  eval-generation  Score answer quality of a prediction file
  filter           Remove the lowest-quality predictions from a file
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	logger := newLogger()
	cfg, err := config.Load()
	if err != nil {
		logger.WithError(err).Fatal("Invalid configuration")
	}

	ctx := context.Background()
	command := os.Args[1]
	args := os.Args[2:]

	switch command {
	case "ingest":
		err = runIngest(ctx, cfg, logger, args)
	case "query":
		err = runQuery(ctx, cfg, logger, args)
	case "stats":
		err = runStats(ctx, cfg, logger)
	case "reset":
		err = runReset(ctx, cfg, logger)
	case "check":
		err = runCheck(ctx, cfg, logger)
	case "predict":
		err = runPredict(ctx, cfg, logger, args)
	case "eval-retrieval":
		err = runEvalRetrieval(ctx, cfg, logger, args)
	case "eval-generation":
		err = runEvalGeneration(ctx, logger, args)
	case "filter":
		err = runFilter(logger, args)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", command, usage)
		os.Exit(2)
	}
	if err != nil {
		logger.WithError(err).Fatal("Command failed")
	}
}

func newLogger() *logrus.Logger {
	logger := logrus.New()
	if level, err := logrus.ParseLevel(os.Getenv("LOG_LEVEL")); err == nil {
		logger.SetLevel(level)
	}
	return logger
}

// buildPipeline wires the configured services together. Generation is
// optional: commands that never call the LLM pass withGenerator=false so
// they run without an API key.
func buildPipeline(cfg *config.Config, logger *logrus.Logger, withGenerator bool) (*rag.Pipeline, embedding.Service, error) {
	embedder, err := embedding.New(cfg.Embedding, logger)
	if err != nil {
		return nil, nil, err
	}
	store, err := vectorstore.New(cfg, logger)
	if err != nil {
		return nil, nil, err
	}

	var encoder rag.CrossEncoder
	if cfg.Retrieval.UseReranking && cfg.Retrieval.CrossEncoder != "" {
		encoder, err = rag.NewHTTPCrossEncoder(rag.CrossEncoderConfig{
			Endpoint: cfg.Retrieval.CrossEncoder,
			Model:    cfg.Retrieval.CrossEncModel,
		}, logger)
		if err != nil {
			return nil, nil, err
		}
	}

	var generator llm.Generator
	if withGenerator {
		base, err := llm.NewOpenAIGenerator(cfg.LLM, logger)
		if err != nil {
			return nil, nil, err
		}
		generator = llm.NewPacedGenerator(base, cfg.LLM, logger)
	}

	pipeline, err := rag.NewPipeline(cfg, embedder, store, encoder, generator, logger)
	if err != nil {
		return nil, nil, err
	}
	return pipeline, embedder, nil
}

func runIngest(ctx context.Context, cfg *config.Config, logger *logrus.Logger, args []string) error {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	file := fs.String("file", "data/documents.json", "JSON file with documents")
	fields := fs.String("fields", "content", "comma-separated JSON fields to extract")
	useMetadata := fs.Bool("use-metadata-context", false, "prefix chunks with entity name and field label")
	nameField := fs.String("name-field", "name_vn", "field holding the entity name")
	_ = fs.Parse(args)

	pipeline, _, err := buildPipeline(cfg, logger, false)
	if err != nil {
		return err
	}

	records, err := dataset.LoadRecords(*file, *nameField, logger)
	if err != nil {
		return err
	}
	fieldList := splitList(*fields)

	var stats rag.IngestStats
	if *useMetadata {
		stats, err = pipeline.IngestRecords(ctx, records, fieldList, chunker.SizePolicy{})
	} else {
		stats, err = pipeline.Ingest(ctx, flattenFields(records, fieldList))
	}
	if err != nil {
		return err
	}

	fmt.Printf("Ingestion completed: %d documents, %d chunks, %d embeddings", stats.Documents, stats.Chunks, stats.Embeddings)
	if stats.Failures > 0 {
		fmt.Printf(" (%d failures)", stats.Failures)
	}
	fmt.Println()
	return nil
}

// flattenFields turns entity records into plain documents by joining the
// selected field values.
func flattenFields(records []dataset.Record, fields []string) []string {
	documents := make([]string, 0, len(records))
	for _, rec := range records {
		var parts []string
		for _, field := range fields {
			if value := rec.Fields[field]; value != "" {
				parts = append(parts, value)
			}
		}
		if len(parts) > 0 {
			documents = append(documents, strings.Join(parts, " "))
		}
	}
	return documents
}

func runQuery(ctx context.Context, cfg *config.Config, logger *logrus.Logger, args []string) error {
	fs := flag.NewFlagSet("query", flag.ExitOnError)
	_ = fs.Parse(args)
	question := strings.Join(fs.Args(), " ")
	if question == "" {
		return fmt.Errorf("usage: snakerag query <question>")
	}

	pipeline, _, err := buildPipeline(cfg, logger, true)
	if err != nil {
		return err
	}
	ok, err := pipeline.LoadExisting(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("no index found, run ingest first")
	}

	answer, err := pipeline.Query(ctx, question)
	if err != nil {
		return err
	}

	fmt.Println(answer.Response)
	fmt.Printf("\nUsed %d context chunks (reranked: %v)\n", len(answer.Contexts), answer.Reranked)
	for i, score := range answer.Scores {
		fmt.Printf("  %d. score %.4f\n", i+1, score)
	}
	return nil
}

func runStats(ctx context.Context, cfg *config.Config, logger *logrus.Logger) error {
	pipeline, _, err := buildPipeline(cfg, logger, false)
	if err != nil {
		return err
	}
	stats, err := pipeline.Stats(ctx)
	if err != nil {
		return err
	}

	fmt.Println("Pipeline statistics:")
	fmt.Printf("  Indexed:          %v\n", stats.Indexed)
	fmt.Printf("  Backend:          %s\n", stats.Store.Backend)
	fmt.Printf("  Passages:         %d\n", stats.Store.Count)
	fmt.Printf("  Dimension:        %d\n", stats.Store.Dimension)
	fmt.Printf("  Chunk size:       %d\n", stats.ChunkSize)
	fmt.Printf("  Chunk overlap:    %d\n", stats.ChunkOverlap)
	fmt.Printf("  Top-K:            %d\n", stats.TopK)
	fmt.Printf("  Reranking:        %v\n", stats.RerankingUsed)
	fmt.Printf("  Embedding model:  %s\n", stats.EmbeddingModel)
	fmt.Printf("  LLM model:        %s\n", stats.LLMModel)
	return nil
}

func runReset(ctx context.Context, cfg *config.Config, logger *logrus.Logger) error {
	pipeline, _, err := buildPipeline(cfg, logger, false)
	if err != nil {
		return err
	}
	if err := pipeline.Reset(ctx); err != nil {
		return err
	}
	fmt.Println("Pipeline reset completed")
	return nil
}

func runCheck(ctx context.Context, cfg *config.Config, logger *logrus.Logger) error {
	withGenerator := cfg.LLM.APIKey != ""
	pipeline, _, err := buildPipeline(cfg, logger, withGenerator)
	if err != nil {
		return err
	}

	results := pipeline.Check(ctx)
	names := make([]string, 0, len(results))
	for name := range results {
		names = append(names, name)
	}
	sort.Strings(names)

	allPassed := true
	fmt.Println("Component checks:")
	for _, name := range names {
		status := "PASS"
		if !results[name] {
			status = "FAIL"
			allPassed = false
		}
		fmt.Printf("  %-14s %s\n", name, status)
	}
	if !allPassed {
		return fmt.Errorf("some components failed")
	}
	return nil
}

func runPredict(ctx context.Context, cfg *config.Config, logger *logrus.Logger, args []string) error {
	fs := flag.NewFlagSet("predict", flag.ExitOnError)
	input := fs.String("input", "data/evaluate.json", "question/ground-truth file")
	output := fs.String("output", "data/predictions.json", "prediction output file")
	_ = fs.Parse(args)

	pipeline, _, err := buildPipeline(cfg, logger, true)
	if err != nil {
		return err
	}
	ok, err := pipeline.LoadExisting(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("no index found, run ingest first")
	}

	records, err := dataset.LoadEvalRecords(*input, logger)
	if err != nil {
		return err
	}

	predictions, err := eval.GeneratePredictions(ctx, pipeline, records, logger)
	if err != nil {
		return err
	}
	if err := dataset.SavePredictions(*output, predictions); err != nil {
		return err
	}
	fmt.Printf("Saved %d predictions to %s\n", len(predictions), *output)
	return nil
}

func runEvalRetrieval(ctx context.Context, cfg *config.Config, logger *logrus.Logger, args []string) error {
	fs := flag.NewFlagSet("eval-retrieval", flag.ExitOnError)
	input := fs.String("input", "data/predictions.json", "prediction file")
	output := fs.String("output", "data/retrieval_evaluation_results.json", "report output file")
	kList := fs.String("k", "1,3,5", "comma-separated k values")
	threshold := fs.Float64("threshold", 0.5, "similarity threshold for relevance")
	_ = fs.Parse(args)

	embedder, err := embedding.New(cfg.Embedding, logger)
	if err != nil {
		return err
	}
	predictions, err := dataset.LoadPredictions(*input, logger)
	if err != nil {
		return err
	}
	ks, err := parseInts(*kList)
	if err != nil {
		return err
	}

	evaluator := eval.NewEvaluator(eval.NewEmbeddingSimilarity(embedder), nil, logger)
	report, err := evaluator.EvaluateRetrieval(ctx, predictions, ks, *threshold)
	if err != nil {
		return err
	}
	if err := dataset.SaveJSON(*output, report); err != nil {
		return err
	}

	fmt.Println("Average metrics:")
	for _, k := range ks {
		fmt.Printf("  Recall@%d:    %.4f\n", k, report.Metrics[fmt.Sprintf("Recall@%d", k)])
		fmt.Printf("  Precision@%d: %.4f\n", k, report.Metrics[fmt.Sprintf("Precision@%d", k)])
	}
	fmt.Printf("Report saved to %s\n", *output)
	return nil
}

func runEvalGeneration(ctx context.Context, logger *logrus.Logger, args []string) error {
	fs := flag.NewFlagSet("eval-generation", flag.ExitOnError)
	input := fs.String("input", "data/predictions.json", "prediction file")
	output := fs.String("output", "data/bertscore_evaluation_results.json", "report output file")
	endpoint := fs.String("endpoint", os.Getenv("BERTSCORE_URL"), "BERTScore service URL (empty = lexical fallback)")
	_ = fs.Parse(args)

	predictions, err := dataset.LoadPredictions(*input, logger)
	if err != nil {
		return err
	}

	var scorer eval.OverlapScorer
	if *endpoint != "" {
		scorer, err = eval.NewBERTScoreClient(eval.BERTScoreConfig{Endpoint: *endpoint}, logger)
		if err != nil {
			return err
		}
	} else {
		logger.Warn("No BERTScore endpoint configured, using lexical overlap scoring")
		scorer = eval.NewLexicalOverlap()
	}

	evaluator := eval.NewEvaluator(nil, scorer, logger)
	report, err := evaluator.EvaluateGeneration(ctx, predictions)
	if err != nil {
		return err
	}
	if err := dataset.SaveJSON(*output, report); err != nil {
		return err
	}

	fmt.Println("Average metrics:")
	fmt.Printf("  Precision: %.4f ± %.4f\n", report.Metrics["BERTScore_Precision"], report.Metrics["BERTScore_Precision_std"])
	fmt.Printf("  Recall:    %.4f ± %.4f\n", report.Metrics["BERTScore_Recall"], report.Metrics["BERTScore_Recall_std"])
	fmt.Printf("  F1:        %.4f ± %.4f\n", report.Metrics["BERTScore_F1"], report.Metrics["BERTScore_F1_std"])
	fmt.Printf("Report saved to %s\n", *output)
	return nil
}

func runFilter(logger *logrus.Logger, args []string) error {
	fs := flag.NewFlagSet("filter", flag.ExitOnError)
	input := fs.String("input", "data/predictions.json", "prediction file")
	reportFile := fs.String("report", "data/bertscore_evaluation_results.json", "generation report file")
	output := fs.String("output", "data/predictions_cleaned.json", "cleaned output file")
	n := fs.Int("n", 0, "number of lowest-F1 predictions to remove")
	yes := fs.Bool("yes", false, "skip the interactive confirmation")
	_ = fs.Parse(args)

	if *n <= 0 {
		return fmt.Errorf("usage: snakerag filter --n <count>")
	}

	predictions, err := dataset.LoadPredictions(*input, logger)
	if err != nil {
		return err
	}
	report, err := loadGenerationReport(*reportFile)
	if err != nil {
		return err
	}

	doomed := eval.SelectLowest(report, *n)
	if len(doomed) == 0 {
		fmt.Println("Nothing to remove")
		return nil
	}

	fmt.Printf("About to remove %d predictions:\n", len(doomed))
	for i, question := range doomed {
		fmt.Printf("  %d. %s\n", i+1, question)
	}

	if !*yes {
		fmt.Print("\nType 'yes' to confirm removal: ")
		line, _ := bufio.NewReader(os.Stdin).ReadString('\n')
		if strings.TrimSpace(strings.ToLower(line)) != "yes" {
			fmt.Println("Removal cancelled")
			return nil
		}
	}

	kept := eval.ApplyRemoval(predictions, doomed)
	if err := dataset.SavePredictions(*output, kept); err != nil {
		return err
	}
	fmt.Printf("Removed %d predictions, %d remaining, saved to %s\n",
		len(predictions)-len(kept), len(kept), *output)
	return nil
}

func loadGenerationReport(path string) (*eval.GenerationReport, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read report: %w", err)
	}
	var report eval.GenerationReport
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("failed to parse report: %w", err)
	}
	return &report, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func parseInts(s string) ([]int, error) {
	var out []int
	for _, part := range splitList(s) {
		n, err := strconv.Atoi(part)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid k value %q", part)
		}
		out = append(out, n)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no k values given")
	}
	return out, nil
}
