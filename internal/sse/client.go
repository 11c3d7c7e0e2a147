package sse

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// DefaultReconnectDelay is the wait between a dropped stream and the next attempt
const DefaultReconnectDelay = 5 * time.Second

// Message is one delivered item. Err is set for server-side error payloads.
type Message struct {
	ID    string
	Event string
	Data  json.RawMessage
	Err   error
}

// Client follows an event stream, reconnecting until its context ends.
// Items are de-duplicated by id across reconnects.
type Client struct {
	URL            string
	HTTP           *http.Client
	ReconnectDelay time.Duration

	seen   map[string]struct{}
	lastID string
}

// payload is the subset of a data line the client inspects
type payload struct {
	Type    string          `json:"type"`
	Message string          `json:"message"`
	ID      json.RawMessage `json:"id"`
}

// Stream calls fn for each message until ctx is cancelled or fn returns an error
func (c *Client) Stream(ctx context.Context, fn func(Message) error) error {
	if c.seen == nil {
		c.seen = make(map[string]struct{})
	}
	delay := c.ReconnectDelay
	if delay <= 0 {
		delay = DefaultReconnectDelay
	}

	for {
		err := c.connect(ctx, fn)
		var stop *stopError
		if errors.As(err, &stop) {
			return stop.err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			log.Warn().Err(err).Str("url", c.URL).Dur("retry_in", delay).Msg("SSE connection failed")
		} else {
			log.Debug().Str("url", c.URL).Dur("retry_in", delay).Msg("SSE stream ended")
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

// stopError carries an error returned by the callback out of connect
type stopError struct{ err error }

func (e *stopError) Error() string { return e.err.Error() }

func (c *Client) connect(ctx context.Context, fn func(Message) error) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL, nil)
	if err != nil {
		return &stopError{fmt.Errorf("failed to create request: %w", err)}
	}
	req.Header.Set("Accept", "text/event-stream")
	if c.lastID != "" {
		req.Header.Set("Last-Event-ID", c.lastID)
	}

	httpClient := c.HTTP
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	return parse(resp.Body, func(ev rawEvent) error {
		if ev.id != "" {
			c.lastID = ev.id
		}
		msg, ok := c.handle(ev)
		if !ok {
			return nil
		}
		if err := fn(msg); err != nil {
			return &stopError{err}
		}
		return nil
	})
}

// handle applies error, empty and duplicate filtering
func (c *Client) handle(ev rawEvent) (Message, bool) {
	var p payload
	_ = json.Unmarshal([]byte(ev.data), &p)

	switch p.Type {
	case "error":
		msg := p.Message
		if msg == "" {
			msg = "server error"
		}
		return Message{Event: ev.event, Err: errors.New(msg)}, true
	case "empty":
		log.Info().Str("message", p.Message).Msg("SSE stream has nothing to deliver")
		return Message{}, false
	}

	id := ev.id
	if id == "" {
		id = rawID(p.ID)
	}
	if id != "" {
		if _, dup := c.seen[id]; dup {
			return Message{}, false
		}
		c.seen[id] = struct{}{}
	}

	return Message{ID: id, Event: ev.event, Data: json.RawMessage(ev.data)}, true
}

// rawID renders a JSON string or number id without float rounding
func rawID(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	if _, err := strconv.ParseInt(string(raw), 10, 64); err == nil {
		return string(raw)
	}
	return ""
}

type rawEvent struct {
	id    string
	event string
	data  string
}

// parse splits an event stream into events and calls emit for each
func parse(r io.Reader, emit func(rawEvent) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	var (
		ev      rawEvent
		data    []string
		hasData bool
	)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			if hasData {
				ev.data = strings.Join(data, "\n")
				if err := emit(ev); err != nil {
					return err
				}
			}
			ev, data, hasData = rawEvent{}, nil, false
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "id":
			ev.id = value
		case "event":
			ev.event = value
		case "data":
			data = append(data, value)
			hasData = true
		}
	}
	return scanner.Err()
}
