// Package hot pushes a few random hot QA entries over server-sent events.
package hot

import (
	"context"
	"encoding/json"
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"shaneshark.com/portfolio/internal/metrics"
	"shaneshark.com/portfolio/internal/sse"
	"shaneshark.com/portfolio/internal/store"
)

const (
	// RetryHint is sent first so browsers wait this long before reconnecting
	RetryHint       = 5 * time.Second
	DefaultInterval = 5 * time.Second

	EmptyMessage = "no recommendations yet"
	eventName    = "message"
)

// Picker selects the entries for one push
type Picker interface {
	PickHot(ctx context.Context, rng *rand.Rand) ([]store.QaInfo, error)
}

// notice is the data of empty and error events
type notice struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Handler serves one recommendation stream per request
type Handler struct {
	picker   Picker
	interval time.Duration
}

func NewHandler(p Picker, interval time.Duration) *Handler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Handler{picker: p, interval: interval}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	sw, err := sse.NewWriter(w)
	if err != nil {
		log.Error().Err(err).Msg("Hot stream cannot flush")
		return
	}
	metrics.StreamOpened()
	defer metrics.StreamClosed()

	if err := sw.Retry(RetryHint); err != nil {
		return
	}

	rng := rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), rand.Uint64()))
	picked, err := h.picker.PickHot(ctx, rng)
	if err != nil {
		log.Error().Err(err).Msg("Failed to load hot QA entries")
		h.sendNotice(sw, "error", "failed to load recommendations")
		return
	}
	if len(picked) == 0 {
		h.sendNotice(sw, "empty", EmptyMessage)
		return
	}

	for i, qa := range picked {
		if i > 0 {
			select {
			case <-ctx.Done():
				log.Debug().Msg("Hot stream client went away")
				return
			case <-time.After(h.interval):
			}
		}

		data, err := json.Marshal(qa)
		if err != nil {
			log.Error().Err(err).Str("id", qa.ID.String()).Msg("Failed to encode hot QA entry")
			continue
		}
		if err := sw.Send(sse.Event{ID: qa.ID.String(), Name: eventName, Data: string(data)}); err != nil {
			log.Debug().Err(err).Msg("Hot stream write failed")
			return
		}
	}

	log.Debug().Int("sent", len(picked)).Msg("Hot stream finished")
}

func (h *Handler) sendNotice(sw *sse.Writer, kind, message string) {
	name := eventName
	if kind == "error" {
		name = "error"
	}
	data, _ := json.Marshal(notice{Type: kind, Message: message})
	if err := sw.Send(sse.Event{Name: name, Data: string(data)}); err != nil {
		log.Debug().Err(err).Msg("Hot stream write failed")
	}
}
