// Package rag wires chunking, embedding, vector search, hybrid reranking and
// answer generation into one retrieval pipeline.
package rag

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"digital.vasic.snakerag/internal/chunker"
	"digital.vasic.snakerag/internal/config"
	"digital.vasic.snakerag/internal/dataset"
	"digital.vasic.snakerag/internal/embedding"
	"digital.vasic.snakerag/internal/llm"
	"digital.vasic.snakerag/internal/vectorstore"
)

// Answer is a full query result.
type Answer struct {
	Response string    `json:"response"`
	Contexts []string  `json:"contexts"`
	Scores   []float64 `json:"scores"`
	Reranked bool      `json:"reranked"`
}

// IngestStats summarizes one ingestion run.
type IngestStats struct {
	Documents  int `json:"documents"`
	Chunks     int `json:"chunks"`
	Embeddings int `json:"embeddings"`
	Failures   int `json:"failures"`
}

// Pipeline is the retrieval engine.
type Pipeline struct {
	cfg       *config.Config
	engine    *chunker.Engine
	embedder  embedding.Service
	store     vectorstore.Store
	reranker  *Reranker
	generator llm.Generator
	logger    *logrus.Logger
}

// NewPipeline assembles a pipeline. The generator may be nil for
// retrieval-only workflows (ingest, stats, retrieval evaluation); Query then
// fails with a clear error. The encoder may be nil to disable reranking.
func NewPipeline(cfg *config.Config, embedder embedding.Service, store vectorstore.Store,
	encoder CrossEncoder, generator llm.Generator, logger *logrus.Logger) (*Pipeline, error) {
	if logger == nil {
		logger = logrus.New()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	engine, err := chunker.NewEngine(cfg.Chunking, logger)
	if err != nil {
		return nil, err
	}

	var reranker *Reranker
	if cfg.Retrieval.UseReranking {
		reranker = NewReranker(encoder, cfg.Retrieval.RerankAlpha, cfg.Retrieval.FinalTopK, logger)
	}

	return &Pipeline{
		cfg:       cfg,
		engine:    engine,
		embedder:  embedder,
		store:     store,
		reranker:  reranker,
		generator: generator,
		logger:    logger,
	}, nil
}

// IngestRecords chunks entity records with the metadata context prefix,
// embeds the chunks and stores them. Per-record chunking failures are counted
// and skipped so one bad entity cannot abort a batch.
func (p *Pipeline) IngestRecords(ctx context.Context, records []dataset.Record, fields []string, policy chunker.SizePolicy) (IngestStats, error) {
	stats := IngestStats{}
	var all []chunker.Chunk

	for _, rec := range records {
		chunks, err := p.engine.ChunkRecord(rec, fields, policy)
		if err != nil {
			p.logger.WithFields(logrus.Fields{
				"record": rec.Name,
			}).WithError(err).Warn("Skipping record")
			stats.Failures++
			continue
		}
		stats.Documents++
		all = append(all, chunks...)
		stats.Chunks += len(chunks)
	}

	texts := make([]string, len(all))
	for i, c := range all {
		texts[i] = c.Text
	}
	if err := p.index(ctx, texts); err != nil {
		return stats, err
	}
	stats.Embeddings = len(texts)

	sizes := chunker.Summarize(all)
	p.logger.WithFields(logrus.Fields{
		"documents":  stats.Documents,
		"chunks":     stats.Chunks,
		"embeddings": stats.Embeddings,
		"failures":   stats.Failures,
		"avg_length": sizes.AvgLength,
		"max_length": sizes.MaxLength,
	}).Info("Ingestion completed")
	return stats, nil
}

// Ingest chunks plain documents without a context prefix.
func (p *Pipeline) Ingest(ctx context.Context, documents []string) (IngestStats, error) {
	stats := IngestStats{Documents: len(documents)}
	var texts []string

	for _, doc := range documents {
		for _, c := range p.engine.Chunk(doc) {
			texts = append(texts, c.Text)
		}
	}
	stats.Chunks = len(texts)

	if err := p.index(ctx, texts); err != nil {
		return stats, err
	}
	stats.Embeddings = len(texts)

	p.logger.WithFields(logrus.Fields{
		"documents": stats.Documents,
		"chunks":    stats.Chunks,
	}).Info("Ingestion completed")
	return stats, nil
}

func (p *Pipeline) index(ctx context.Context, texts []string) error {
	if len(texts) == 0 {
		p.logger.Warn("Nothing to index")
		return nil
	}
	vectors, err := p.embedder.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("failed to embed chunks: %w", err)
	}
	if err := p.store.Add(ctx, vectors, texts); err != nil {
		return fmt.Errorf("failed to store chunks: %w", err)
	}
	if err := p.store.Save(ctx); err != nil {
		return fmt.Errorf("failed to persist index: %w", err)
	}
	return nil
}

// Retrieve runs vector search only.
func (p *Pipeline) Retrieve(ctx context.Context, question string, k int) ([]vectorstore.Candidate, error) {
	vector, err := p.embedder.EmbedQuery(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	return p.store.Search(ctx, vector, k)
}

// Query retrieves context for the question and generates an answer. With
// reranking enabled the search fans out to RerankTopK candidates before the
// hybrid scorer cuts them down to FinalTopK.
func (p *Pipeline) Query(ctx context.Context, question string) (*Answer, error) {
	if p.generator == nil {
		return nil, fmt.Errorf("no generation service configured")
	}

	k := p.cfg.Retrieval.TopK
	if p.reranker != nil {
		k = p.cfg.Retrieval.RerankTopK
	}

	candidates, err := p.Retrieve(ctx, question, k)
	if err != nil {
		return nil, fmt.Errorf("retrieval failed: %w", err)
	}
	if len(candidates) == 0 {
		p.logger.WithField("question", question).Warn("No relevant passages found")
		return &Answer{
			Response: "No relevant information found in the knowledge base.",
			Contexts: []string{},
			Scores:   []float64{},
		}, nil
	}

	contexts := make([]string, 0, len(candidates))
	scores := make([]float64, 0, len(candidates))
	reranked := false

	if p.reranker != nil {
		result, err := p.reranker.Rerank(ctx, question, candidates)
		if err != nil {
			return nil, fmt.Errorf("reranking failed: %w", err)
		}
		for _, cand := range result.Candidates {
			contexts = append(contexts, cand.Passage)
			scores = append(scores, cand.CombinedScore)
		}
		reranked = result.Applied
	} else {
		for _, cand := range candidates {
			contexts = append(contexts, cand.Passage)
			scores = append(scores, float64(cand.Score))
		}
	}

	response, err := p.generator.Generate(ctx, BuildPrompt(question, contexts))
	if err != nil {
		return nil, fmt.Errorf("generation failed: %w", err)
	}

	p.logger.WithFields(logrus.Fields{
		"contexts": len(contexts),
		"reranked": reranked,
	}).Debug("Query answered")

	return &Answer{
		Response: response,
		Contexts: contexts,
		Scores:   scores,
		Reranked: reranked,
	}, nil
}

// LoadExisting reports whether a populated index is available.
func (p *Pipeline) LoadExisting(ctx context.Context) (bool, error) {
	return p.store.Load(ctx)
}

// Stats reports store state plus the active configuration.
func (p *Pipeline) Stats(ctx context.Context) (PipelineStats, error) {
	storeStats, err := p.store.Stats(ctx)
	if err != nil {
		return PipelineStats{}, err
	}
	return PipelineStats{
		Indexed:        storeStats.Count > 0,
		Store:          storeStats,
		ChunkSize:      p.cfg.Chunking.ChunkSize,
		ChunkOverlap:   p.cfg.Chunking.ChunkOverlap,
		TopK:           p.cfg.Retrieval.TopK,
		RerankingUsed:  p.reranker != nil,
		EmbeddingModel: p.embedder.Name(),
		LLMModel:       p.cfg.LLM.Model,
	}, nil
}

// PipelineStats is the shape behind the stats command.
type PipelineStats struct {
	Indexed        bool              `json:"indexed"`
	Store          vectorstore.Stats `json:"vector_store"`
	ChunkSize      int               `json:"chunk_size"`
	ChunkOverlap   int               `json:"chunk_overlap"`
	TopK           int               `json:"top_k"`
	RerankingUsed  bool              `json:"reranking_used"`
	EmbeddingModel string            `json:"embedding_model"`
	LLMModel       string            `json:"llm_model"`
}

// Reset clears the vector index.
func (p *Pipeline) Reset(ctx context.Context) error {
	if err := p.store.Reset(ctx); err != nil {
		return fmt.Errorf("failed to reset index: %w", err)
	}
	p.logger.Info("Pipeline reset")
	return nil
}

// Check probes each component and reports pass/fail per name. Probes are
// cheap: one embedding call, one store stats call and, when configured, one
// tiny generation.
func (p *Pipeline) Check(ctx context.Context) map[string]bool {
	results := map[string]bool{}

	_, err := p.embedder.EmbedQuery(ctx, "health check")
	results["embedding"] = err == nil

	_, err = p.store.Stats(ctx)
	results["vector_store"] = err == nil

	if p.generator != nil {
		_, err = p.generator.Generate(ctx, "Reply with OK.")
		results["llm"] = err == nil
	}

	if p.reranker != nil && p.reranker.encoder != nil {
		_, err = p.reranker.encoder.Score(ctx, "health check", "health check")
		results["reranker"] = err == nil
	}

	for component, ok := range results {
		if !ok {
			p.logger.WithField("component", component).Warn("Component check failed")
		}
	}
	return results
}

// BuildPrompt assembles the snake-expert prompt with numbered context blocks.
func BuildPrompt(question string, contexts []string) string {
	blocks := make([]string, len(contexts))
	for i, text := range contexts {
		blocks[i] = fmt.Sprintf("Context %d: %s", i+1, text)
	}
	contextText := strings.Join(blocks, "\n\n")

	return fmt.Sprintf(`Consider yourself a snake expert to give professional answers, answer users like an expert and not answer like you rely on this or that information to give results even though you have to get results from context to answer

Based on the following context information, please answer the question accurately and comprehensively.

Context Information: (But when answering, don't write that it is based on any context.)
%s

Question: %s

Please provide a detailed answer based on the context provided. If the context doesn't contain enough information to answer the question, please mention that.

Position yourself as a snake expert, give the user some more questions related to the current question so the user can build on that and then continue saying what question you want me to help you answer

With the question structure including the main content as follows, 3 to 5 questions can be randomly given to users for reference.
-Scientific name and common name
-Taxonomy
-Morphological characteristics
-Toxicology
-Predation behavior
-Behavior and ecology
-Geographic distribution and habitat
-Reproduction
-Conservation status
-Research value
-Human relevance
-Symptoms when bitten
-How to handle`, contextText, question)
}
