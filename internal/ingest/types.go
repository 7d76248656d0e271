package ingest

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/raaihank/fin-sentinel/internal/privacy"
)

// Row is one statement line. Column names follow the common bank export
// layout; missing columns stay empty.
type Row struct {
	Date       string `parquet:"date,optional" json:"date"`
	Narration  string `parquet:"narration,optional" json:"narration"`
	Withdrawal string `parquet:"withdrawal_amt,optional" json:"withdrawal amt."`
	Deposit    string `parquet:"deposit_amt,optional" json:"deposit amt."`
	Balance    string `parquet:"closing_balance,optional" json:"closing balance"`
}

// Text renders the row as a retrieval snippet. Empty fields are left out.
func (r Row) Text() string {
	parts := make([]string, 0, 5)
	add := func(label, value string) {
		if v := strings.TrimSpace(value); v != "" {
			parts = append(parts, label+": "+v)
		}
	}
	add("Date", r.Date)
	add("Narration", r.Narration)
	add("Debit", r.Withdrawal)
	add("Credit", r.Deposit)
	add("Balance", r.Balance)
	return strings.Join(parts, " | ")
}

// Result describes one ingestion run. It carries counts only.
type Result struct {
	Source   string            `json:"source"`
	Format   Format            `json:"format"`
	Rows     int64             `json:"rows"`
	Indexed  int64             `json:"indexed"`
	Skipped  int64             `json:"skipped"`
	Failed   int64             `json:"failed"`
	Findings []privacy.Finding `json:"findings"`
	Duration time.Duration     `json:"duration"`

	EmbeddingTime time.Duration `json:"embedding_time"`
	IndexTime     time.Duration `json:"index_time"`
	Errors        []string      `json:"errors,omitempty"`
}

// Config contains ingestion configuration
type Config struct {
	BatchSize     int  `yaml:"batch_size" mapstructure:"batch_size"`
	MaxTextLength int  `yaml:"max_text_length" mapstructure:"max_text_length"`
	ResetOnUpload bool `yaml:"reset_on_upload" mapstructure:"reset_on_upload"`
	CreateIndex   bool `yaml:"create_index" mapstructure:"create_index"`
}

// DefaultConfig returns the ingestion defaults.
func DefaultConfig() Config {
	return Config{
		BatchSize:     64,
		MaxTextLength: 2000,
		ResetOnUpload: true,
		CreateIndex:   true,
	}
}

// Format represents supported file formats
type Format string

const (
	FormatCSV     Format = "csv"
	FormatJSON    Format = "jsonl"
	FormatParquet Format = "parquet"
)

// DetectFormat picks the format from the file extension; unknown
// extensions are read as CSV.
func DetectFormat(filename string) Format {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".parquet":
		return FormatParquet
	case ".json", ".jsonl", ".ndjson":
		return FormatJSON
	default:
		return FormatCSV
	}
}
