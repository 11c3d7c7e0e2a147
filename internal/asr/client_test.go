package asr

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTranscribe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/hf-inference/models/openai/whisper-large-v3", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, "audio/webm", r.Header.Get("Content-Type"))
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, "RIFF", string(body))
		w.Write([]byte(`{"text":" hello world "}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", "openai/whisper-large-v3", "tok", time.Second)
	text, err := c.Transcribe(context.Background(), strings.NewReader("RIFF"), "")
	require.NoError(t, err)
	assert.Equal(t, "hello world", text)
}

func TestTranscribeErrors(t *testing.T) {
	_, err := NewClient("http://127.0.0.1:1", "m", "", time.Second).Transcribe(context.Background(), strings.NewReader("x"), "audio/wav")
	assert.ErrorIs(t, err, ErrMissingToken)

	tests := []struct {
		status int
		want   string
	}{
		{http.StatusGone, "410"},
		{http.StatusNotFound, "model m not found"},
		{http.StatusServiceUnavailable, "503 loading"},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte("loading"))
			}))
			defer srv.Close()

			_, err := NewClient(srv.URL, "m", "tok", time.Second).Transcribe(context.Background(), strings.NewReader("x"), "audio/wav")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestTooLargeMessage(t *testing.T) {
	assert.Equal(t, "audio exceeds the 25 MiB upload limit", ErrTooLarge.Error())
}
