package assistant

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/raaihank/fin-sentinel/internal/logger"
	"github.com/raaihank/fin-sentinel/internal/privacy"
	"github.com/raaihank/fin-sentinel/internal/safety"
)

// Pipeline wraps every model call with masking on the way in and masking plus
// the output safety gate on the way out. It keeps no per-request state.
type Pipeline struct {
	masker    *privacy.Masker
	gate      *safety.Gate
	model     Model
	retriever Retriever
	logger    *logger.Logger
}

// NewPipeline creates a pipeline. retriever may be nil, in which case every
// request is answered without context.
func NewPipeline(masker *privacy.Masker, model Model, retriever Retriever, log *logger.Logger) *Pipeline {
	if log == nil {
		log = logger.NewNop()
	}
	return &Pipeline{
		masker:    masker,
		gate:      safety.NewGate(masker, log),
		model:     model,
		retriever: retriever,
		logger:    log.WithComponent("assistant"),
	}
}

// Answer runs one request through the pipeline. A model failure is returned as
// a *GenerationError. If ctx is done by the time the model returns, the call
// fails with the context error and no partial answer.
func (p *Pipeline) Answer(ctx context.Context, req Request) (*Answer, error) {
	start := time.Now()

	prompt := p.masker.Process(req.Prompt)
	recordFindings("prompt", prompt.Findings)
	promptHash := privacy.AuditHash(prompt.MaskedText)

	log := p.logger.With(
		zap.String("prompt_hash", promptHash),
		zap.String("user", p.masker.Mask(req.UserID)),
	)

	snippets := p.retrieve(ctx, log, prompt.MaskedText, req)

	raw, err := p.model.Generate(ctx, composePrompt(prompt.MaskedText, snippets), req.Options)
	if err != nil {
		generationFailures.Inc()
		log.Error("Model call failed", zap.Error(err))
		return nil, &GenerationError{Err: err}
	}
	if err := ctx.Err(); err != nil {
		log.Warn("Request cancelled during generation", zap.Error(err))
		return nil, fmt.Errorf("answer: %w", err)
	}

	response := p.masker.Process(raw)
	recordFindings("response", response.Findings)

	verdict := p.gate.Evaluate(response.MaskedText, snippets)

	log.Info("Answer generated",
		zap.String("status", string(verdict.Status)),
		zap.Int("prompt_findings", prompt.Total()),
		zap.Int("response_findings", response.Total()),
		zap.Int("context_snippets", len(snippets)),
		zap.Duration("duration", time.Since(start)),
	)

	return &Answer{
		Status:     verdict.Status,
		Summary:    summarize(verdict.Answer, verdict.Status),
		Answer:     verdict.Answer,
		Actionable: actionsFor(verdict.Status),
		Confidence: verdict.Confidence,
		Sources:    verdict.Sources,
		PromptHash: promptHash,
		Findings:   prompt.Findings,
	}, nil
}

// Mask exposes the pipeline's masking engine for callers that only need
// redaction.
func (p *Pipeline) Mask(text string) privacy.ProcessResult {
	return p.masker.Process(text)
}

func (p *Pipeline) retrieve(ctx context.Context, log *zap.Logger, maskedQuery string, req Request) []string {
	if !req.UseRetrieval || req.TopK <= 0 || p.retriever == nil {
		return nil
	}

	snippets, err := p.retriever.Retrieve(ctx, maskedQuery, req.TopK)
	if err != nil {
		retrievalDegraded.Inc()
		log.Warn("Retrieval unavailable, answering without context", zap.Error(err))
		return nil
	}
	if len(snippets) > req.TopK {
		snippets = snippets[:req.TopK]
	}
	// Snippets were masked at ingestion and are used as stored.
	return snippets
}
