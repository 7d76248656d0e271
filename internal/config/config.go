package config

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Loader reads configuration from a YAML file and SENTINEL_ environment
// variables. Each Loader owns its own viper instance.
type Loader struct {
	v  *viper.Viper
	mu sync.Mutex
}

// NewLoader creates a loader with the default search paths.
func NewLoader() *Loader {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	v.AddConfigPath("/etc/fin-sentinel/")
	v.AddConfigPath("$HOME/.fin-sentinel/")

	// Environment variable overrides
	v.SetEnvPrefix("SENTINEL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v, GetDefaults())
	return &Loader{v: v}
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	return NewLoader().Load(configPath)
}

// Load reads configPath, or the first config.yaml on the search path when
// configPath is empty. A missing default file is not an error.
func (l *Loader) Load(configPath string) (*Config, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if configPath != "" {
		l.v.SetConfigFile(configPath)
	}

	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	return l.decode()
}

func (l *Loader) decode() (*Config, error) {
	config := GetDefaults()
	if err := l.v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return config, nil
}

// ConfigFile returns the file in use, if any.
func (l *Loader) ConfigFile() string {
	return l.v.ConfigFileUsed()
}

// Watch reloads the configuration when the file changes and passes every
// valid result to callback. Invalid edits are logged and ignored.
func (l *Loader) Watch(logger *zap.Logger, callback func(*Config)) {
	if logger == nil {
		logger = zap.NewNop()
	}
	l.v.OnConfigChange(func(e fsnotify.Event) {
		l.mu.Lock()
		newConfig, err := l.decode()
		l.mu.Unlock()
		if err != nil {
			logger.Warn("Ignoring configuration change",
				zap.String("file", e.Name),
				zap.Error(err))
			return
		}

		logger.Info("Configuration reloaded", zap.String("file", e.Name))
		callback(newConfig)
	})
	l.v.WatchConfig()
}

// validateConfig validates the loaded configuration
func validateConfig(config *Config) error {
	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	if config.Server.RequestTimeout <= 0 {
		return fmt.Errorf("invalid request timeout: %s", config.Server.RequestTimeout)
	}

	if config.Server.MaxUploadSize <= 0 {
		return fmt.Errorf("invalid max upload size: %d", config.Server.MaxUploadSize)
	}

	if strings.TrimSpace(config.Privacy.Salt) == "" {
		return fmt.Errorf("privacy salt is required (set privacy.salt or SENTINEL_PRIVACY_SALT)")
	}

	if config.RateLimit.Enabled && (config.RateLimit.RequestsPerSecond <= 0 || config.RateLimit.Burst <= 0) {
		return fmt.Errorf("invalid rate limit: %.2f req/s, burst %d", config.RateLimit.RequestsPerSecond, config.RateLimit.Burst)
	}

	if config.Logging.Level != "debug" && config.Logging.Level != "info" && config.Logging.Level != "warn" && config.Logging.Level != "error" {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", config.Logging.Level)
	}

	if config.Logging.Format != "json" && config.Logging.Format != "console" {
		return fmt.Errorf("invalid log format: %s (must be json or console)", config.Logging.Format)
	}

	if config.Retrieval.Backend != "memory" && config.Retrieval.Backend != "pgvector" {
		return fmt.Errorf("invalid retrieval backend: %s (must be memory or pgvector)", config.Retrieval.Backend)
	}

	if config.Retrieval.TopK < 0 {
		return fmt.Errorf("invalid retrieval top_k: %d", config.Retrieval.TopK)
	}

	if config.WebSocket.Enabled && !strings.HasPrefix(config.WebSocket.Path, "/") {
		return fmt.Errorf("invalid websocket path: %q", config.WebSocket.Path)
	}

	return nil
}

// setDefaults registers every default key with viper so that AutomaticEnv
// can override keys absent from the config file.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.read_timeout", d.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", d.Server.WriteTimeout)
	v.SetDefault("server.idle_timeout", d.Server.IdleTimeout)
	v.SetDefault("server.request_timeout", d.Server.RequestTimeout)
	v.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout)
	v.SetDefault("server.max_upload_size", d.Server.MaxUploadSize)

	v.SetDefault("privacy.salt", d.Privacy.Salt)

	v.SetDefault("rate_limit.enabled", d.RateLimit.Enabled)
	v.SetDefault("rate_limit.requests_per_second", d.RateLimit.RequestsPerSecond)
	v.SetDefault("rate_limit.burst", d.RateLimit.Burst)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.file.enabled", d.Logging.File.Enabled)
	v.SetDefault("logging.file.path", d.Logging.File.Path)

	v.SetDefault("model.provider", string(d.Model.Provider))
	v.SetDefault("model.base_url", d.Model.BaseURL)
	v.SetDefault("model.model", d.Model.Model)
	v.SetDefault("model.timeout", d.Model.Timeout)

	v.SetDefault("retrieval.enabled", d.Retrieval.Enabled)
	v.SetDefault("retrieval.backend", d.Retrieval.Backend)
	v.SetDefault("retrieval.top_k", d.Retrieval.TopK)
	v.SetDefault("retrieval.min_similarity", d.Retrieval.MinSimilarity)

	v.SetDefault("embeddings.type", string(d.Embeddings.Type))
	v.SetDefault("embeddings.cache_enabled", d.Embeddings.CacheEnabled)
	v.SetDefault("embeddings.model.model_name", d.Embeddings.Model.ModelName)
	v.SetDefault("embeddings.model.model_path", d.Embeddings.Model.ModelPath)
	v.SetDefault("embeddings.model.vocab_path", d.Embeddings.Model.VocabPath)
	v.SetDefault("embeddings.model.max_length", d.Embeddings.Model.MaxLength)
	v.SetDefault("embeddings.model.batch_size", d.Embeddings.Model.BatchSize)
	v.SetDefault("embeddings.model.model_timeout", d.Embeddings.Model.ModelTimeout)
	v.SetDefault("embeddings.cache.redis_url", d.Embeddings.Cache.RedisURL)
	v.SetDefault("embeddings.cache.max_connections", d.Embeddings.Cache.MaxConnections)
	v.SetDefault("embeddings.cache.min_idle_conns", d.Embeddings.Cache.MinIdleConns)
	v.SetDefault("embeddings.cache.default_ttl", d.Embeddings.Cache.DefaultTTL)
	v.SetDefault("embeddings.cache.key_prefix", d.Embeddings.Cache.KeyPrefix)

	v.SetDefault("database.database_url", d.Database.DatabaseURL)
	v.SetDefault("database.max_open_conns", d.Database.MaxOpenConns)
	v.SetDefault("database.max_idle_conns", d.Database.MaxIdleConns)
	v.SetDefault("database.conn_max_lifetime", d.Database.ConnMaxLifetime)
	v.SetDefault("database.conn_max_idle_time", d.Database.ConnMaxIdleTime)

	v.SetDefault("ingest.batch_size", d.Ingest.BatchSize)
	v.SetDefault("ingest.max_text_length", d.Ingest.MaxTextLength)
	v.SetDefault("ingest.reset_on_upload", d.Ingest.ResetOnUpload)
	v.SetDefault("ingest.create_index", d.Ingest.CreateIndex)

	v.SetDefault("websocket.enabled", d.WebSocket.Enabled)
	v.SetDefault("websocket.path", d.WebSocket.Path)
	v.SetDefault("websocket.username", d.WebSocket.Username)
	v.SetDefault("websocket.password", d.WebSocket.Password)
	v.SetDefault("websocket.allowed_origins", d.WebSocket.AllowedOrigins)
	v.SetDefault("websocket.events.broadcast_findings", d.WebSocket.Events.BroadcastFindings)
	v.SetDefault("websocket.events.broadcast_verdicts", d.WebSocket.Events.BroadcastVerdicts)
	v.SetDefault("websocket.events.broadcast_ingest", d.WebSocket.Events.BroadcastIngest)
	v.SetDefault("websocket.events.broadcast_connections", d.WebSocket.Events.BroadcastConnections)
}
