// Package sse writes and reads text/event-stream responses.
package sse

import (
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Event is one server-sent event. Empty fields are omitted on the wire.
type Event struct {
	ID   string
	Name string
	Data string
}

// Writer emits events on an HTTP response and flushes after each one
type Writer struct {
	w  http.ResponseWriter
	rc *http.ResponseController
}

// NewWriter sets the event-stream headers and commits the response
func NewWriter(w http.ResponseWriter) (*Writer, error) {
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	sw := &Writer{w: w, rc: http.NewResponseController(w)}
	if err := sw.rc.Flush(); err != nil {
		return nil, fmt.Errorf("streaming unsupported: %w", err)
	}
	return sw, nil
}

// Send writes one event and flushes it
func (sw *Writer) Send(e Event) error {
	var b strings.Builder
	if e.ID != "" {
		b.WriteString("id: " + e.ID + "\n")
	}
	if e.Name != "" {
		b.WriteString("event: " + e.Name + "\n")
	}
	for _, line := range strings.Split(e.Data, "\n") {
		b.WriteString("data: " + line + "\n")
	}
	b.WriteString("\n")
	return sw.write(b.String())
}

// Retry tells the client how long to wait before reconnecting
func (sw *Writer) Retry(d time.Duration) error {
	return sw.write(fmt.Sprintf("retry: %d\n\n", d.Milliseconds()))
}

func (sw *Writer) write(s string) error {
	if _, err := sw.w.Write([]byte(s)); err != nil {
		return err
	}
	return sw.rc.Flush()
}
