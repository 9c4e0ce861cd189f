// Package audit provides the append-only trail of access decisions and
// emergency token lifecycle events
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ParthasarathiMohanty986/healthcare-security/internal/metrics"
	"github.com/ParthasarathiMohanty986/healthcare-security/pkg/types"
)

// Sink appends audit entries. Entries are never mutated or deleted once
// appended.
type Sink interface {
	Append(ctx context.Context, entry *types.AuditEntry) error
}

// Closer is implemented by sinks holding resources that must be released
type Closer interface {
	Close() error
}

// Config for the audit sink
type Config struct {
	// Output type: memory, stdout, file, syslog, postgres
	Type string `mapstructure:"type"`

	// For file output
	FilePath       string `mapstructure:"file_path"`
	FileMaxSize    int    `mapstructure:"file_max_size"` // MB
	FileMaxAge     int    `mapstructure:"file_max_age"`  // Days
	FileMaxBackups int    `mapstructure:"file_max_backups"`

	// For syslog
	SyslogAddr     string `mapstructure:"syslog_addr"`
	SyslogProtocol string `mapstructure:"syslog_protocol"` // tcp, udp, unix

	// Async delivery. A zero BufferSize appends synchronously.
	BufferSize int           `mapstructure:"buffer_size"`
	MaxRetries int           `mapstructure:"max_retries"`
	RetryDelay time.Duration `mapstructure:"retry_delay"`

	// HashChain links every entry to its predecessor
	HashChain bool `mapstructure:"hash_chain"`
}

// DefaultConfig returns default configuration
func DefaultConfig() Config {
	return Config{
		Type:           "stdout",
		FileMaxSize:    100,
		FileMaxAge:     30,
		FileMaxBackups: 10,
		SyslogProtocol: "tcp",
		MaxRetries:     3,
		RetryDelay:     50 * time.Millisecond,
		HashChain:      true,
	}
}

// Validate validates the configuration
func (c Config) Validate() error {
	switch c.Type {
	case "memory", "stdout", "postgres":
	case "file":
		if c.FilePath == "" {
			return fmt.Errorf("file_path required for file audit type")
		}
	case "syslog":
		if c.SyslogAddr == "" {
			return fmt.Errorf("syslog_addr required for syslog audit type")
		}
	default:
		return fmt.Errorf("invalid audit type: %s (must be memory, stdout, file, syslog, or postgres)", c.Type)
	}
	if c.BufferSize < 0 {
		return fmt.Errorf("buffer_size must be non-negative")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max_retries must be non-negative")
	}
	return nil
}

// NewSink builds the configured sink. db is only used for the postgres type.
// Entries the async sink gives up on are counted through m.
func NewSink(cfg Config, db *sql.DB, m metrics.Metrics, logger *zap.Logger) (Sink, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid audit config: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	var sink Sink
	switch cfg.Type {
	case "memory":
		sink = NewMemorySink()
	case "stdout":
		sink = NewWriterSink(NewStdoutWriter())
	case "file":
		w, err := NewFileWriter(cfg.FilePath, cfg.FileMaxSize, cfg.FileMaxAge, cfg.FileMaxBackups)
		if err != nil {
			return nil, fmt.Errorf("create file writer: %w", err)
		}
		sink = NewWriterSink(w)
	case "syslog":
		w, err := NewSyslogWriter(cfg.SyslogProtocol, cfg.SyslogAddr)
		if err != nil {
			return nil, fmt.Errorf("create syslog writer: %w", err)
		}
		sink = NewWriterSink(w)
	case "postgres":
		if db == nil {
			return nil, fmt.Errorf("database connection required for postgres audit type")
		}
		sink = NewPostgresSink(db)
	}

	sink, err := wrapSink(sink, cfg, m, logger)
	if err != nil {
		return nil, err
	}

	logger.Info("Audit sink initialized",
		zap.String("type", cfg.Type),
		zap.Bool("hash_chain", cfg.HashChain),
		zap.Int("buffer_size", cfg.BufferSize),
	)
	return sink, nil
}

// wrapSink layers the hash chain and async delivery over a base sink
func wrapSink(base Sink, cfg Config, m metrics.Metrics, logger *zap.Logger) (Sink, error) {
	if m == nil {
		m = metrics.NewNoOpMetrics()
	}

	sink := base
	if cfg.HashChain {
		chained, err := NewChainedSink(context.Background(), sink)
		if err != nil {
			return nil, err
		}
		sink = chained
	}

	if cfg.BufferSize > 0 {
		sink = NewAsyncSink(sink, AsyncOptions{
			BufferSize: cfg.BufferSize,
			MaxRetries: cfg.MaxRetries,
			RetryDelay: cfg.RetryDelay,
			Logger:     logger,
			OnFailure: func(entry *types.AuditEntry, _ error) {
				m.RecordAuditFailure(string(entry.Action))
			},
		})
	}
	return sink, nil
}

// Close releases sink resources if it holds any
func Close(s Sink) error {
	if c, ok := s.(Closer); ok {
		return c.Close()
	}
	return nil
}

// assignID gives the entry an id if it has none
func assignID(e *types.AuditEntry) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
}

type originKey struct{}

// WithOrigin returns a context carrying the request's origin address
func WithOrigin(ctx context.Context, addr string) context.Context {
	return context.WithValue(ctx, originKey{}, addr)
}

// OriginFrom returns the origin address stored by WithOrigin
func OriginFrom(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if addr, ok := ctx.Value(originKey{}).(string); ok {
		return addr
	}
	return ""
}
