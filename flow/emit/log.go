package emit

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// LogEmitter writes events to a writer as human-readable text or as JSON
// lines. Writes are serialized, so a LogEmitter may be shared across runs.
//
// Text mode:
//
//	[node] run=run-001 node=greet PENDING->RUNNING
//
// JSON mode (one object per line):
//
//	{"run_id":"run-001","node_id":"greet","from":"PENDING","to":"RUNNING",...}
type LogEmitter struct {
	mu       sync.Mutex
	writer   io.Writer
	jsonMode bool
}

// NewLogEmitter creates a LogEmitter. A nil writer defaults to os.Stdout.
func NewLogEmitter(writer io.Writer, jsonMode bool) *LogEmitter {
	if writer == nil {
		writer = os.Stdout
	}
	return &LogEmitter{writer: writer, jsonMode: jsonMode}
}

// Emit writes one event in the configured format.
func (l *LogEmitter) Emit(event Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.jsonMode {
		l.emitJSON(event)
		return
	}
	l.emitText(event)
}

func (l *LogEmitter) emitJSON(event Event) {
	data, err := json.Marshal(struct {
		RunID     string         `json:"run_id"`
		NodeID    string         `json:"node_id,omitempty"`
		From      string         `json:"from,omitempty"`
		To        string         `json:"to"`
		Timestamp time.Time      `json:"timestamp"`
		Msg       string         `json:"msg,omitempty"`
		Meta      map[string]any `json:"meta,omitempty"`
	}(event))
	if err != nil {
		fmt.Fprintf(l.writer, "{\"error\":\"failed to marshal event: %v\"}\n", err)
		return
	}
	fmt.Fprintf(l.writer, "%s\n", data)
}

func (l *LogEmitter) emitText(event Event) {
	scope := "run"
	if event.NodeID != "" {
		scope = "node"
	}
	fmt.Fprintf(l.writer, "[%s] run=%s", scope, event.RunID)
	if event.NodeID != "" {
		fmt.Fprintf(l.writer, " node=%s", event.NodeID)
	}
	if event.From != "" {
		fmt.Fprintf(l.writer, " %s->%s", event.From, event.To)
	} else {
		fmt.Fprintf(l.writer, " %s", event.To)
	}
	if event.Msg != "" {
		fmt.Fprintf(l.writer, " msg=%q", event.Msg)
	}
	if len(event.Meta) > 0 {
		if meta, err := json.Marshal(event.Meta); err == nil {
			fmt.Fprintf(l.writer, " meta=%s", meta)
		}
	}
	fmt.Fprint(l.writer, "\n")
}
