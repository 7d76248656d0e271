package ingest

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/raaihank/fin-sentinel/internal/embeddings"
	"github.com/raaihank/fin-sentinel/internal/privacy"
	"github.com/raaihank/fin-sentinel/internal/vector"
)

// indexBuilder is implemented by indexes that can build an ANN index after a
// bulk load.
type indexBuilder interface {
	CreateIndex(ctx context.Context) error
}

// Pipeline turns statement exports into masked, embedded snippets.
type Pipeline struct {
	masker   *privacy.Masker
	embedder embeddings.EmbeddingService
	index    vector.Index
	config   Config
	logger   *zap.Logger

	// serializes runs so a reset cannot interleave with another upload
	mu sync.Mutex
}

// NewPipeline creates a new ingestion pipeline
func NewPipeline(masker *privacy.Masker, embedder embeddings.EmbeddingService, index vector.Index, config Config, logger *zap.Logger) *Pipeline {
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultConfig().BatchSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		masker:   masker,
		embedder: embedder,
		index:    index,
		config:   config,
		logger:   logger,
	}
}

// IngestFile ingests a statement file from disk.
func (p *Pipeline) IngestFile(ctx context.Context, path string, reset bool) (*Result, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open statement file: %w", err)
	}
	defer file.Close()

	return p.Ingest(ctx, filepath.Base(path), file, reset)
}

// Ingest reads rows from r, masks them and adds them to the index under
// source. With reset the index is emptied first.
func (p *Pipeline) Ingest(ctx context.Context, source string, r io.Reader, reset bool) (*Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	start := time.Now()
	format := DetectFormat(source)
	result := &Result{Source: source, Format: format, Findings: []privacy.Finding{}}

	rows, err := ReadRows(r, format)
	if err != nil {
		return result, err
	}
	result.Rows = int64(len(rows))

	texts, findings := p.maskRows(rows)
	result.Findings = findings
	result.Skipped = int64(len(rows) - len(texts))

	if reset {
		if err := p.index.Reset(ctx); err != nil {
			return result, fmt.Errorf("failed to reset index: %w", err)
		}
	}

	p.logger.Info("Starting ingestion",
		zap.String("source", source),
		zap.String("format", string(format)),
		zap.Int64("rows", result.Rows),
		zap.Int("snippets", len(texts)),
		zap.Bool("reset", reset))

	for i := 0; i < len(texts); i += p.config.BatchSize {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		end := i + p.config.BatchSize
		if end > len(texts) {
			end = len(texts)
		}
		if err := p.processBatch(ctx, source, texts[i:end], result); err != nil {
			p.logger.Error("Batch processing failed", zap.Error(err), zap.Int("offset", i))
			result.Failed += int64(end - i)
			result.Errors = append(result.Errors, err.Error())
		}
	}

	if builder, ok := p.index.(indexBuilder); ok && p.config.CreateIndex && result.Indexed > 0 {
		if err := builder.CreateIndex(ctx); err != nil {
			p.logger.Warn("Failed to create vector index", zap.Error(err))
		}
	}

	result.Duration = time.Since(start)
	p.logger.Info("Ingestion completed",
		zap.String("source", source),
		zap.Int64("indexed", result.Indexed),
		zap.Int64("skipped", result.Skipped),
		zap.Int64("failed", result.Failed),
		zap.Duration("duration", result.Duration),
		zap.Duration("embedding_time", result.EmbeddingTime),
		zap.Duration("index_time", result.IndexTime))

	return result, nil
}

// maskRows renders and masks every row. Empty rows and rows over the length
// limit are dropped. Findings are aggregated in detector order.
func (p *Pipeline) maskRows(rows []Row) ([]string, []privacy.Finding) {
	counts := make(map[privacy.Class]int)
	texts := make([]string, 0, len(rows))

	for _, row := range rows {
		text := row.Text()
		if text == "" {
			continue
		}
		if p.config.MaxTextLength > 0 && len(text) > p.config.MaxTextLength {
			p.logger.Debug("Row dropped, text too long", zap.Int("length", len(text)))
			continue
		}

		res := p.masker.Process(text)
		for _, f := range res.Findings {
			counts[f.Class] += f.Count
		}
		texts = append(texts, res.MaskedText)
	}

	findings := make([]privacy.Finding, 0, len(counts))
	for _, class := range privacy.Classes() {
		if n := counts[class]; n > 0 {
			findings = append(findings, privacy.Finding{Class: class, Count: n})
		}
	}
	return texts, findings
}

// processBatch embeds and indexes already masked texts.
func (p *Pipeline) processBatch(ctx context.Context, source string, texts []string, result *Result) error {
	embeddingStart := time.Now()
	batch, err := p.embedder.GenerateBatchEmbeddings(ctx, texts)
	if err != nil {
		return fmt.Errorf("batch embedding generation failed: %w", err)
	}
	result.EmbeddingTime += time.Since(embeddingStart)

	if len(batch.Embeddings) != len(texts) {
		return fmt.Errorf("embedding count mismatch: got %d, expected %d", len(batch.Embeddings), len(texts))
	}

	docs := make([]*vector.Document, 0, len(texts))
	for i, text := range texts {
		if batch.Embeddings[i] == nil {
			result.Failed++
			continue
		}
		docs = append(docs, &vector.Document{
			Text:      text,
			TextHash:  vector.TextHash(text),
			Source:    source,
			Embedding: batch.Embeddings[i],
		})
	}
	for _, e := range batch.Errors {
		result.Errors = append(result.Errors, e.Error())
	}
	if len(docs) == 0 {
		return nil
	}

	indexStart := time.Now()
	inserted, err := p.index.BatchInsert(ctx, docs)
	if err != nil {
		return fmt.Errorf("index batch insert failed: %w", err)
	}
	result.IndexTime += time.Since(indexStart)
	result.Indexed += inserted.Inserted
	result.Skipped += inserted.Skipped

	p.logger.Debug("Batch processed successfully",
		zap.Int("batch_size", len(texts)),
		zap.Int64("inserted", inserted.Inserted),
		zap.Int64("duplicates_skipped", inserted.Skipped))

	return nil
}

// Stats returns the statistics of the underlying index.
func (p *Pipeline) Stats(ctx context.Context) (*vector.Stats, error) {
	return p.index.GetStats(ctx)
}

// Reset empties the underlying index.
func (p *Pipeline) Reset(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.index.Reset(ctx)
}
