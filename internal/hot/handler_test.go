package hot

import (
	"context"
	"errors"
	"io"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"shaneshark.com/portfolio/internal/sse"
	"shaneshark.com/portfolio/internal/store"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fixedPicker struct {
	entries []store.QaInfo
	err     error
}

func (p fixedPicker) PickHot(ctx context.Context, rng *rand.Rand) ([]store.QaInfo, error) {
	return p.entries, p.err
}

func TestStreamEntries(t *testing.T) {
	picker := fixedPicker{entries: []store.QaInfo{
		{ID: 11, Question: "q1", IsHot: 1},
		{ID: 12, Question: "q2", IsHot: 1},
	}}
	rec := httptest.NewRecorder()
	NewHandler(picker, time.Millisecond).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/qa/hot/sse", nil))

	body := rec.Body.String()
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.True(t, strings.HasPrefix(body, "retry: 5000\n\n"))
	assert.Contains(t, body, "id: 11\nevent: message\ndata: {\"id\":\"11\"")
	assert.Contains(t, body, "id: 12\nevent: message\n")
	assert.Less(t, strings.Index(body, "id: 11"), strings.Index(body, "id: 12"))
}

func TestStreamEmpty(t *testing.T) {
	rec := httptest.NewRecorder()
	NewHandler(fixedPicker{}, time.Millisecond).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, "retry: 5000\n\nevent: message\ndata: {\"type\":\"empty\",\"message\":\"no recommendations yet\"}\n\n", rec.Body.String())
}

func TestStreamError(t *testing.T) {
	rec := httptest.NewRecorder()
	NewHandler(fixedPicker{err: errors.New("db down")}, time.Millisecond).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Contains(t, rec.Body.String(), "event: error\ndata: {\"type\":\"error\",\"message\":\"failed to load recommendations\"}")
	assert.NotContains(t, rec.Body.String(), "db down")
}

func TestStreamStopsOnDisconnect(t *testing.T) {
	picker := fixedPicker{entries: []store.QaInfo{{ID: 1}, {ID: 2}, {ID: 3}}}
	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		defer close(done)
		NewHandler(picker, time.Hour).ServeHTTP(rec, req)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("handler did not stop after the client went away")
	}
	assert.NotContains(t, rec.Body.String(), "id: 2")
}

func TestClientReadsHotStream(t *testing.T) {
	picker := fixedPicker{entries: []store.QaInfo{{ID: 21, Question: "q"}, {ID: 22, Question: "r"}}}
	srv := httptest.NewServer(NewHandler(picker, time.Millisecond))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c := &sse.Client{URL: srv.URL, HTTP: srv.Client(), ReconnectDelay: 5 * time.Millisecond}
	var ids []string
	err := c.Stream(ctx, func(m sse.Message) error {
		require.NoError(t, m.Err)
		ids = append(ids, m.ID)
		if len(ids) == 2 {
			return io.EOF
		}
		return nil
	})
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, []string{"21", "22"}, ids, "reconnects do not repeat entries")
}
