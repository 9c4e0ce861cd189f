package audit

import (
	"context"

	"github.com/ParthasarathiMohanty986/healthcare-security/pkg/types"
)

// Writer writes audit entries to a destination
type Writer interface {
	// Write writes an entry
	Write(entry *types.AuditEntry) error

	// Close closes the writer
	Close() error
}

// WriterSink adapts a Writer to the Sink interface
type WriterSink struct {
	w Writer
}

// NewWriterSink creates a sink over w
func NewWriterSink(w Writer) *WriterSink {
	return &WriterSink{w: w}
}

// Append writes the entry
func (s *WriterSink) Append(_ context.Context, entry *types.AuditEntry) error {
	assignID(entry)
	return s.w.Write(entry)
}

// Close closes the underlying writer
func (s *WriterSink) Close() error {
	return s.w.Close()
}
