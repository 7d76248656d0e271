package assistant

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raaihank/fin-sentinel/internal/privacy"
	"github.com/raaihank/fin-sentinel/internal/safety"
)

type fakeModel struct {
	prompts []string
	options map[string]any
	reply   func(ctx context.Context, prompt string) (string, error)
}

func (m *fakeModel) Generate(ctx context.Context, prompt string, options map[string]any) (string, error) {
	m.prompts = append(m.prompts, prompt)
	m.options = options
	if m.reply == nil {
		return "Here is a summary.\nSecond line.", nil
	}
	return m.reply(ctx, prompt)
}

type fakeRetriever struct {
	snippets []string
	err      error
	calls    int
	query    string
	topK     int
}

func (r *fakeRetriever) Retrieve(_ context.Context, maskedQuery string, topK int) ([]string, error) {
	r.calls++
	r.query = maskedQuery
	r.topK = topK
	return r.snippets, r.err
}

func newTestMasker(t *testing.T) *privacy.Masker {
	t.Helper()
	p, err := privacy.NewPseudonymizer([]byte("pipeline-salt"))
	require.NoError(t, err)
	return privacy.NewMasker(p, nil)
}

const scenario = "Please show account 123456789012 and PAN ABCDE1234F for Mr. Rahul Sharma"

func TestAnswerMasksPromptBeforeModelCall(t *testing.T) {
	masker := newTestMasker(t)
	model := &fakeModel{}
	p := NewPipeline(masker, model, nil, nil)

	ans, err := p.Answer(context.Background(), Request{Prompt: scenario})
	require.NoError(t, err)
	require.Len(t, model.prompts, 1)

	sent := model.prompts[0]
	assert.NotContains(t, sent, "123456789012")
	assert.NotContains(t, sent, "ABCDE1234F")
	assert.Contains(t, sent, "PAN:234F")
	assert.Regexp(t, `ACC:[a-p]{12}`, sent)
	assert.True(t, strings.HasPrefix(sent, safetyPreamble))

	assert.Equal(t, privacy.AuditHash(masker.Mask(scenario)), ans.PromptHash)
	assert.Equal(t, []privacy.Finding{
		{Class: privacy.ClassTaxID, Count: 1},
		{Class: privacy.ClassAccountNumber, Count: 1},
	}, ans.Findings)
}

func TestAnswerEnvelope(t *testing.T) {
	p := NewPipeline(newTestMasker(t), &fakeModel{}, nil, nil)

	ans, err := p.Answer(context.Background(), Request{Prompt: "how am I doing?"})
	require.NoError(t, err)

	assert.Equal(t, safety.StatusPass, ans.Status)
	assert.Equal(t, safety.ConfidenceMedium, ans.Confidence)
	assert.Equal(t, "Here is a summary.", ans.Summary)
	assert.Equal(t, "Here is a summary.\nSecond line.", ans.Answer)
	assert.Equal(t, []string{"Download masked report", "Ask a follow-up question"}, ans.Actionable)
	assert.Empty(t, ans.Sources)
	assert.Empty(t, ans.Findings)
}

func TestAnswerMasksModelOutput(t *testing.T) {
	model := &fakeModel{reply: func(context.Context, string) (string, error) {
		return "The PAN on file is ABCDE1234F.", nil
	}}
	p := NewPipeline(newTestMasker(t), model, nil, nil)

	ans, err := p.Answer(context.Background(), Request{Prompt: "which PAN?"})
	require.NoError(t, err)

	assert.Equal(t, safety.StatusPass, ans.Status)
	assert.Equal(t, "The PAN on file is PAN:234F.", ans.Answer)
}

func TestAnswerGateEscalation(t *testing.T) {
	model := &fakeModel{reply: func(context.Context, string) (string, error) {
		return "Transaction TXN12345678901 settled.", nil
	}}
	retriever := &fakeRetriever{snippets: []string{"Date: 01/04 | Narration: UPI"}}
	p := NewPipeline(newTestMasker(t), model, retriever, nil)

	ans, err := p.Answer(context.Background(), Request{Prompt: "last txn?", UseRetrieval: true, TopK: 3})
	require.NoError(t, err)

	assert.Equal(t, safety.StatusRedacted, ans.Status)
	assert.Equal(t, safety.ConfidenceLow, ans.Confidence)
	assert.Equal(t, "Response redacted for safety.", ans.Summary)
	assert.Equal(t, []string{"Retry with masked input"}, ans.Actionable)
	assert.Empty(t, ans.Sources)
	assert.NotContains(t, ans.Answer, "12345678901")
}

func TestAnswerRetrieval(t *testing.T) {
	t.Run("NoRetriever", func(t *testing.T) {
		model := &fakeModel{}
		p := NewPipeline(newTestMasker(t), model, nil, nil)

		ans, err := p.Answer(context.Background(), Request{Prompt: "hi", UseRetrieval: true, TopK: 4})
		require.NoError(t, err)
		assert.NotContains(t, model.prompts[0], "Context:")
		assert.Equal(t, safety.StatusPass, ans.Status)
	})

	t.Run("RetrieverFailureDegrades", func(t *testing.T) {
		model := &fakeModel{}
		retriever := &fakeRetriever{err: errors.New("index offline")}
		p := NewPipeline(newTestMasker(t), model, retriever, nil)

		ans, err := p.Answer(context.Background(), Request{Prompt: "hi", UseRetrieval: true, TopK: 4})
		require.NoError(t, err)
		assert.Equal(t, 1, retriever.calls)
		assert.NotContains(t, model.prompts[0], "Context:")
		assert.Empty(t, ans.Sources)
	})

	t.Run("TopKCapsContext", func(t *testing.T) {
		model := &fakeModel{}
		retriever := &fakeRetriever{snippets: []string{"s1", "s2", "s3", "s4", "s5"}}
		p := NewPipeline(newTestMasker(t), model, retriever, nil)

		ans, err := p.Answer(context.Background(), Request{Prompt: "acct 123456789012", UseRetrieval: true, TopK: 2})
		require.NoError(t, err)

		assert.Equal(t, 2, retriever.topK)
		assert.NotContains(t, retriever.query, "123456789012", "retrieval sees only the masked query")
		assert.Contains(t, model.prompts[0], "\n\nContext:\ns1\n---\ns2\n\nAnswer concisely:")
		assert.NotContains(t, model.prompts[0], "s3")
		assert.Equal(t, []string{"s1", "s2"}, ans.Sources)
	})

	t.Run("NonPositiveTopKSkipsRetrieval", func(t *testing.T) {
		retriever := &fakeRetriever{snippets: []string{"s1"}}
		p := NewPipeline(newTestMasker(t), &fakeModel{}, retriever, nil)

		_, err := p.Answer(context.Background(), Request{Prompt: "hi", UseRetrieval: true, TopK: 0})
		require.NoError(t, err)
		assert.Zero(t, retriever.calls)
	})

	t.Run("RetrievalDisabled", func(t *testing.T) {
		retriever := &fakeRetriever{snippets: []string{"s1"}}
		p := NewPipeline(newTestMasker(t), &fakeModel{}, retriever, nil)

		_, err := p.Answer(context.Background(), Request{Prompt: "hi", TopK: 5})
		require.NoError(t, err)
		assert.Zero(t, retriever.calls)
	})

	t.Run("SnippetsUsedAsStored", func(t *testing.T) {
		stored := "Date: 01/04 | Narration: NEFT ACC:abcdefabcdef १२"
		model := &fakeModel{}
		retriever := &fakeRetriever{snippets: []string{stored}}
		p := NewPipeline(newTestMasker(t), model, retriever, nil)

		ans, err := p.Answer(context.Background(), Request{Prompt: "hi", UseRetrieval: true, TopK: 1})
		require.NoError(t, err)
		assert.Contains(t, model.prompts[0], "Context:\n"+stored+"\n")
		assert.Equal(t, []string{stored}, ans.Sources)
	})
}

func TestAnswerGenerationFailure(t *testing.T) {
	cause := errors.New("upstream 503")
	model := &fakeModel{reply: func(context.Context, string) (string, error) {
		return "", cause
	}}
	p := NewPipeline(newTestMasker(t), model, nil, nil)

	ans, err := p.Answer(context.Background(), Request{Prompt: "hi"})
	require.Error(t, err)
	assert.Nil(t, ans)
	assert.ErrorIs(t, err, ErrGeneration)
	assert.ErrorIs(t, err, cause)

	var genErr *GenerationError
	require.ErrorAs(t, err, &genErr)
	assert.Equal(t, cause, genErr.Err)
}

func TestAnswerCancelledDuringGeneration(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	model := &fakeModel{reply: func(context.Context, string) (string, error) {
		cancel()
		return "late answer", nil
	}}
	p := NewPipeline(newTestMasker(t), model, nil, nil)

	ans, err := p.Answer(ctx, Request{Prompt: "hi"})
	assert.Nil(t, ans)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrGeneration)
}

func TestAnswerForwardsOptions(t *testing.T) {
	model := &fakeModel{}
	p := NewPipeline(newTestMasker(t), model, nil, nil)

	opts := map[string]any{"temperature": 0.2}
	_, err := p.Answer(context.Background(), Request{Prompt: "hi", Options: opts})
	require.NoError(t, err)
	assert.Equal(t, opts, model.options)
}

func TestSummarize(t *testing.T) {
	long := strings.Repeat("é", 200)
	assert.Len(t, []rune(summarize(long, safety.StatusPass)), maxSummaryRunes)
	assert.Equal(t, "first", summarize("  first  \nsecond", safety.StatusPass))
	assert.Equal(t, redactedSummary, summarize("anything", safety.StatusRedacted))
}

func TestComposePrompt(t *testing.T) {
	assert.Equal(t,
		safetyPreamble+"\n\nUser Query (masked):\nq\n\nAnswer concisely:",
		composePrompt("q", nil))
	assert.Equal(t,
		safetyPreamble+"\n\nUser Query (masked):\nq\n\nContext:\na\n---\nb\n\nAnswer concisely:",
		composePrompt("q", []string{"a", "b"}))
}
