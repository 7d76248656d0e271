package ingest

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/segmentio/parquet-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/raaihank/fin-sentinel/internal/embeddings"
	"github.com/raaihank/fin-sentinel/internal/privacy"
	"github.com/raaihank/fin-sentinel/internal/vector"
)

const statementCSV = `Date,Narration,Withdrawal Amt.,Deposit Amt.,Closing Balance
01/04/2024,SALARY CREDIT FROM 123456789012,,50000,72000
03/04/2024,UPI rahul@example.com PAN ABCDE1234F,1200,,70800
,,,,
05/04/2024,RENT IFSC SBIN0001234,15000,,55800
`

type recordingIndex struct {
	*vector.MemoryIndex
	docs   []*vector.Document
	resets int
}

func (r *recordingIndex) BatchInsert(ctx context.Context, docs []*vector.Document) (*vector.BatchInsertResult, error) {
	r.docs = append(r.docs, docs...)
	return r.MemoryIndex.BatchInsert(ctx, docs)
}

func (r *recordingIndex) Reset(ctx context.Context) error {
	r.resets++
	r.docs = nil
	return r.MemoryIndex.Reset(ctx)
}

func newTestPipeline(t *testing.T, config Config) (*Pipeline, *recordingIndex) {
	t.Helper()
	p, err := privacy.NewPseudonymizer([]byte("ingest-test-salt"))
	require.NoError(t, err)
	svc, err := embeddings.NewHashEmbeddingService(&embeddings.ModelConfig{ModelName: "test"}, zap.NewNop())
	require.NoError(t, err)

	index := &recordingIndex{MemoryIndex: vector.NewMemoryIndex(embeddings.EmbeddingDimensions, nil)}
	return NewPipeline(privacy.NewMasker(p, nil), svc, index, config, zap.NewNop()), index
}

func TestRowText(t *testing.T) {
	row := Row{Date: "01/04/2024", Narration: " SALARY ", Deposit: "50000", Balance: "72000"}
	assert.Equal(t, "Date: 01/04/2024 | Narration: SALARY | Credit: 50000 | Balance: 72000", row.Text())
	assert.Empty(t, Row{Narration: "  "}.Text())
}

func TestDetectFormat(t *testing.T) {
	tests := map[string]Format{
		"jan.csv":         FormatCSV,
		"jan.CSV":         FormatCSV,
		"jan.parquet":     FormatParquet,
		"jan.jsonl":       FormatJSON,
		"jan.json":        FormatJSON,
		"statement":       FormatCSV,
		"dir.v2/feb.xlsx": FormatCSV,
	}
	for name, want := range tests {
		assert.Equal(t, want, DetectFormat(name), name)
	}
}

func TestReadRows(t *testing.T) {
	t.Run("CSV", func(t *testing.T) {
		rows, err := ReadRows(strings.NewReader(statementCSV), FormatCSV)
		require.NoError(t, err)
		require.Len(t, rows, 4)
		assert.Equal(t, "1200", rows[1].Withdrawal)
		assert.Equal(t, "70800", rows[1].Balance)
	})

	t.Run("CSVMissingColumns", func(t *testing.T) {
		rows, err := ReadRows(strings.NewReader("narration,date\nATM,02/04/2024\n"), FormatCSV)
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, "Date: 02/04/2024 | Narration: ATM", rows[0].Text())
	})

	t.Run("JSONLines", func(t *testing.T) {
		input := `{"date":"01/04/2024","narration":"SALARY","deposit amt.":"50000"}
{"date":"02/04/2024","withdrawal amt.":"300","closing balance":"49700"}
`
		rows, err := ReadRows(strings.NewReader(input), FormatJSON)
		require.NoError(t, err)
		require.Len(t, rows, 2)
		assert.Equal(t, "50000", rows[0].Deposit)
		assert.Equal(t, "49700", rows[1].Balance)
	})

	t.Run("JSONInvalid", func(t *testing.T) {
		_, err := ReadRows(strings.NewReader("{not json"), FormatJSON)
		assert.Error(t, err)
	})

	t.Run("Parquet", func(t *testing.T) {
		want := []Row{
			{Date: "01/04/2024", Narration: "SALARY", Deposit: "50000", Balance: "72000"},
			{Date: "02/04/2024", Narration: "ATM", Withdrawal: "300", Balance: "71700"},
		}
		var buf bytes.Buffer
		require.NoError(t, parquet.Write(&buf, want))

		rows, err := ReadRows(&buf, FormatParquet)
		require.NoError(t, err)
		assert.Equal(t, want, rows)
	})

	t.Run("ParquetInvalid", func(t *testing.T) {
		_, err := ReadRows(strings.NewReader("not parquet"), FormatParquet)
		assert.Error(t, err)
	})

	t.Run("Unsupported", func(t *testing.T) {
		_, err := ReadRows(strings.NewReader(""), Format("xlsx"))
		assert.Error(t, err)
	})
}

var rawPII = regexp.MustCompile(`\d{10,}|(?i)[A-Z]{5}[0-9]{4}[A-Z]|@example\.com|SBIN0001234`)

func TestPipelineIngest(t *testing.T) {
	ctx := context.Background()

	t.Run("MasksBeforeIndexing", func(t *testing.T) {
		pipeline, index := newTestPipeline(t, Config{BatchSize: 2})

		result, err := pipeline.Ingest(ctx, "april.csv", strings.NewReader(statementCSV), false)
		require.NoError(t, err)

		assert.Equal(t, FormatCSV, result.Format)
		assert.Equal(t, int64(4), result.Rows)
		assert.Equal(t, int64(3), result.Indexed)
		assert.Equal(t, int64(1), result.Skipped)
		assert.Zero(t, result.Failed)

		require.Len(t, index.docs, 3)
		for _, d := range index.docs {
			assert.False(t, rawPII.MatchString(d.Text), "raw PII indexed: %s", d.Text)
			assert.Equal(t, "april.csv", d.Source)
		}
		assert.Contains(t, index.docs[0].Text, "ACC:")
		assert.Contains(t, index.docs[1].Text, "PAN:234F")
		assert.Contains(t, index.docs[2].Text, "IFSC:SBINXXXXXXX")

		assert.Equal(t, []privacy.Finding{
			{Class: privacy.ClassTaxID, Count: 1},
			{Class: privacy.ClassBankRoutingCode, Count: 1},
			{Class: privacy.ClassAccountNumber, Count: 1},
			{Class: privacy.ClassEmailAddress, Count: 1},
		}, result.Findings)
	})

	t.Run("DuplicatesSkipped", func(t *testing.T) {
		pipeline, _ := newTestPipeline(t, DefaultConfig())

		_, err := pipeline.Ingest(ctx, "a.csv", strings.NewReader(statementCSV), false)
		require.NoError(t, err)
		result, err := pipeline.Ingest(ctx, "a.csv", strings.NewReader(statementCSV), false)
		require.NoError(t, err)

		assert.Zero(t, result.Indexed)
		stats, err := pipeline.Stats(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(3), stats.TotalDocuments)
	})

	t.Run("ResetReplacesIndex", func(t *testing.T) {
		pipeline, index := newTestPipeline(t, DefaultConfig())

		_, err := pipeline.Ingest(ctx, "a.csv", strings.NewReader(statementCSV), false)
		require.NoError(t, err)
		result, err := pipeline.Ingest(ctx, "b.csv", strings.NewReader("date,narration\n09/04/2024,ATM\n"), true)
		require.NoError(t, err)

		assert.Equal(t, 1, index.resets)
		assert.Equal(t, int64(1), result.Indexed)
		stats, err := pipeline.Stats(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), stats.TotalDocuments)
	})

	t.Run("ReadFailureKeepsIndex", func(t *testing.T) {
		pipeline, index := newTestPipeline(t, DefaultConfig())

		_, err := pipeline.Ingest(ctx, "a.csv", strings.NewReader(statementCSV), false)
		require.NoError(t, err)
		_, err = pipeline.Ingest(ctx, "broken.jsonl", strings.NewReader("{"), true)
		require.Error(t, err)

		assert.Zero(t, index.resets)
		assert.Len(t, index.docs, 3)
	})

	t.Run("MaxTextLength", func(t *testing.T) {
		pipeline, _ := newTestPipeline(t, Config{BatchSize: 8, MaxTextLength: 30})

		result, err := pipeline.Ingest(ctx, "a.csv", strings.NewReader(statementCSV), false)
		require.NoError(t, err)
		assert.Zero(t, result.Indexed)
		assert.Equal(t, int64(4), result.Skipped)
	})

	t.Run("Cancelled", func(t *testing.T) {
		pipeline, _ := newTestPipeline(t, DefaultConfig())
		cctx, cancel := context.WithCancel(ctx)
		cancel()

		_, err := pipeline.Ingest(cctx, "a.csv", strings.NewReader(statementCSV), false)
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("File", func(t *testing.T) {
		pipeline, _ := newTestPipeline(t, DefaultConfig())
		path := filepath.Join(t.TempDir(), "april.csv")
		require.NoError(t, os.WriteFile(path, []byte(statementCSV), 0o600))

		result, err := pipeline.IngestFile(ctx, path, true)
		require.NoError(t, err)
		assert.Equal(t, "april.csv", result.Source)
		assert.Equal(t, int64(3), result.Indexed)

		_, err = pipeline.IngestFile(ctx, filepath.Join(t.TempDir(), "missing.csv"), false)
		assert.Error(t, err)
	})
}
