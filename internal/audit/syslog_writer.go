package audit

import (
	"encoding/json"
	"fmt"
	"log/syslog"
	"sync"

	"github.com/ParthasarathiMohanty986/healthcare-security/pkg/types"
)

// syslogWriter writes audit entries to syslog
type syslogWriter struct {
	writer *syslog.Writer
	mu     sync.Mutex
}

// NewSyslogWriter creates a new syslog writer
func NewSyslogWriter(protocol, address string) (Writer, error) {
	if protocol == "" {
		protocol = "tcp"
	}

	writer, err := syslog.Dial(protocol, address, syslog.LOG_INFO|syslog.LOG_AUTH, "ehr-pdp")
	if err != nil {
		return nil, fmt.Errorf("connect to syslog: %w", err)
	}

	return &syslogWriter{
		writer: writer,
	}, nil
}

// Write writes an entry to syslog as JSON. Denials go out at warning level.
func (w *syslogWriter) Write(entry *types.AuditEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal entry: %w", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if isDenial(entry) {
		return w.writer.Warning(string(data))
	}
	return w.writer.Info(string(data))
}

func (w *syslogWriter) Close() error {
	return w.writer.Close()
}

func isDenial(e *types.AuditEntry) bool {
	switch e.Action {
	case types.ActionAccessEHR, types.ActionAccessReport, types.ActionAccessLab:
		return !e.Granted
	}
	return false
}
