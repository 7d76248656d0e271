package vector

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

const tableName = "statement_snippets"

// Store handles vector storage operations with PostgreSQL + pgvector
type Store struct {
	db        *sqlx.DB
	dimension int
	logger    *zap.Logger
}

// Config contains database configuration
type Config struct {
	DatabaseURL     string        `yaml:"database_url" mapstructure:"database_url"`
	MaxOpenConns    int           `yaml:"max_open_conns" mapstructure:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns" mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time" mapstructure:"conn_max_idle_time"`
}

// NewStore connects to PostgreSQL and bootstraps the snippet table.
func NewStore(config *Config, dimension int, logger *zap.Logger) (*Store, error) {
	db, err := sqlx.Connect("postgres", config.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	store := &Store{
		db:        db,
		dimension: dimension,
		logger:    logger,
	}

	if err := store.initialize(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}

	logger.Info("Vector store initialized successfully",
		zap.String("database_url", maskDatabaseURL(config.DatabaseURL)),
		zap.Int("dimension", dimension),
		zap.Int("max_open_conns", config.MaxOpenConns))

	return store, nil
}

// initialize checks the pgvector extension and creates the table
func (s *Store) initialize() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	var extensionExists bool
	query := "SELECT EXISTS(SELECT 1 FROM pg_extension WHERE extname = 'vector')"
	if err := s.db.GetContext(ctx, &extensionExists, query); err != nil {
		return fmt.Errorf("failed to check pgvector extension: %w", err)
	}
	if !extensionExists {
		return fmt.Errorf("pgvector extension is not installed")
	}

	if _, err := s.db.ExecContext(ctx, schemaSQL(s.dimension)); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

func schemaSQL(dimension int) string {
	return fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id BIGSERIAL PRIMARY KEY,
			text TEXT NOT NULL,
			text_hash TEXT NOT NULL UNIQUE,
			source TEXT NOT NULL DEFAULT '',
			embedding vector(%d) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, tableName, dimension)
}

// BatchInsert adds documents in one statement; rows whose text hash already
// exists are skipped.
func (s *Store) BatchInsert(ctx context.Context, docs []*Document) (*BatchInsertResult, error) {
	if len(docs) == 0 {
		return &BatchInsertResult{}, nil
	}
	for _, d := range docs {
		if len(d.Embedding) != s.dimension {
			return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(d.Embedding), s.dimension)
		}
	}

	start := time.Now()
	query, args := batchInsertSQL(docs)

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		s.logger.Error("Batch insert failed", zap.Error(err), zap.Int("documents", len(docs)))
		return nil, fmt.Errorf("batch insert failed: %w", err)
	}

	inserted, err := res.RowsAffected()
	if err != nil {
		s.logger.Warn("Could not get rows affected", zap.Error(err))
		inserted = int64(len(docs))
	}

	result := &BatchInsertResult{
		Inserted: inserted,
		Skipped:  int64(len(docs)) - inserted,
		Duration: time.Since(start),
	}

	s.logger.Info("Batch insert completed",
		zap.Int64("inserted", result.Inserted),
		zap.Int64("duplicates_skipped", result.Skipped),
		zap.Duration("duration", result.Duration))

	return result, nil
}

func batchInsertSQL(docs []*Document) (string, []interface{}) {
	valueStrings := make([]string, 0, len(docs))
	valueArgs := make([]interface{}, 0, len(docs)*4)

	for i, d := range docs {
		hash := d.TextHash
		if hash == "" {
			hash = TextHash(d.Text)
		}
		valueStrings = append(valueStrings, fmt.Sprintf("($%d, $%d, $%d, $%d)", i*4+1, i*4+2, i*4+3, i*4+4))
		valueArgs = append(valueArgs, d.Text, hash, d.Source, formatEmbedding(d.Embedding))
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (text, text_hash, source, embedding)
		VALUES %s
		ON CONFLICT (text_hash) DO NOTHING`,
		tableName, strings.Join(valueStrings, ","))

	return query, valueArgs
}

// FindSimilar finds documents similar to the given embedding
func (s *Store) FindSimilar(ctx context.Context, embedding []float32, options *SearchOptions) ([]*SimilarityResult, error) {
	if len(embedding) != s.dimension {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(embedding), s.dimension)
	}
	query, args := similarSQL(embedding, defaultSearchOptions(options))

	type row struct {
		Document
		Similarity float32 `db:"similarity"`
		Distance   float32 `db:"distance"`
	}

	start := time.Now()
	var rows []row
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		s.logger.Error("Similarity search failed", zap.Error(err))
		return nil, fmt.Errorf("similarity search failed: %w", err)
	}

	results := make([]*SimilarityResult, len(rows))
	for i := range rows {
		doc := rows[i].Document
		results[i] = &SimilarityResult{
			Document:   &doc,
			Similarity: rows[i].Similarity,
			Distance:   rows[i].Distance,
		}
	}

	s.logger.Debug("Similarity search completed",
		zap.Int("results", len(results)),
		zap.Duration("duration", time.Since(start)))

	return results, nil
}

func similarSQL(embedding []float32, opts SearchOptions) (string, []interface{}) {
	whereClause := "WHERE (1 - (embedding <=> $1)) >= $2"
	args := []interface{}{formatEmbedding(embedding), opts.MinSimilarity}
	argIndex := 3

	if opts.Source != "" {
		whereClause += fmt.Sprintf(" AND source = $%d", argIndex)
		args = append(args, opts.Source)
		argIndex++
	}

	query := fmt.Sprintf(`
		SELECT
			id, text, text_hash, source, created_at,
			(1 - (embedding <=> $1)) AS similarity,
			(embedding <=> $1) AS distance
		FROM %s
		%s
		ORDER BY embedding <=> $1
		LIMIT $%d`, tableName, whereClause, argIndex)

	return query, append(args, opts.Limit)
}

// GetStats returns database statistics
func (s *Store) GetStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{Backend: "pgvector"}
	query := fmt.Sprintf(`
		SELECT
			COUNT(*) AS total_documents,
			COUNT(DISTINCT source) AS sources
		FROM %s`, tableName)

	if err := s.db.GetContext(ctx, stats, query); err != nil {
		return nil, fmt.Errorf("failed to get vector stats: %w", err)
	}
	return stats, nil
}

// Reset removes every document.
func (s *Store) Reset(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "TRUNCATE "+tableName+" RESTART IDENTITY"); err != nil {
		return fmt.Errorf("failed to reset vector store: %w", err)
	}
	s.logger.Info("Vector store reset")
	return nil
}

// CreateIndex creates the vector similarity index for better performance
func (s *Store) CreateIndex(ctx context.Context) error {
	var count int64
	if err := s.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM "+tableName); err != nil {
		return fmt.Errorf("failed to count documents: %w", err)
	}

	if count < 1000 {
		s.logger.Info("Skipping index creation, not enough documents", zap.Int64("count", count))
		return nil
	}

	s.logger.Info("Creating vector similarity index", zap.Int64("document_count", count))

	query := fmt.Sprintf(`
		CREATE INDEX CONCURRENTLY IF NOT EXISTS idx_%s_embedding
		ON %s USING ivfflat (embedding vector_cosine_ops)
		WITH (lists = 100)`, tableName, tableName)

	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create vector index: %w", err)
	}
	return nil
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// formatEmbedding converts float32 slice to PostgreSQL vector format
func formatEmbedding(embedding []float32) string {
	if len(embedding) == 0 {
		return "[]"
	}

	var b strings.Builder
	b.WriteByte('[')
	for i, v := range embedding {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(v), 'g', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}

// maskDatabaseURL masks the password in a database URL for logging
func maskDatabaseURL(raw string) string {
	at := strings.LastIndex(raw, "@")
	if at < 0 {
		return raw
	}
	userInfo := raw[:at]
	colon := strings.LastIndex(userInfo, ":")
	if colon < 0 || colon < strings.Index(userInfo, "//") {
		return raw
	}
	return userInfo[:colon+1] + "***" + raw[at:]
}
