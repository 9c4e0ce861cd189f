package audit

import (
	"encoding/json"
	"io"
	"os"
	"sync"

	"github.com/ParthasarathiMohanty986/healthcare-security/pkg/types"
)

// streamWriter writes audit entries to a stream as JSON lines
type streamWriter struct {
	encoder *json.Encoder
	mu      sync.Mutex
}

// NewStdoutWriter creates a new stdout writer
func NewStdoutWriter() Writer {
	return NewStreamWriter(os.Stdout)
}

// NewStreamWriter creates a writer encoding one JSON entry per line to out
func NewStreamWriter(out io.Writer) Writer {
	return &streamWriter{
		encoder: json.NewEncoder(out),
	}
}

func (w *streamWriter) Write(entry *types.AuditEntry) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.encoder.Encode(entry)
}

// Close is a no-op; the stream is owned by the caller
func (w *streamWriter) Close() error {
	return nil
}
