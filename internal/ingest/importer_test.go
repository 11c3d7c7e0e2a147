package ingest

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shaneshark.com/portfolio/internal/apperr"
	"shaneshark.com/portfolio/internal/qa"
	"shaneshark.com/portfolio/internal/store"
)

type recorder struct {
	got []qa.CreateRequest
}

func (r *recorder) Create(_ context.Context, req qa.CreateRequest) (store.ID, error) {
	if req.Question == "" {
		return 0, apperr.Params("question, answer and tag are required")
	}
	r.got = append(r.got, req)
	return store.ID(len(r.got)), nil
}

const bundleJSON = `{"entries":[
  {"question":"What is a goroutine?","answer":"A lightweight thread.","tag":"Go"},
  {"question":"","answer":"orphan","tag":"Go"},
  {"question":"What is a slice?","answer":"A view on an array.","tag":"Go","isHot":1}
]}`

func TestImportFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "qa.json")
	require.NoError(t, os.WriteFile(path, []byte(bundleJSON), 0o600))

	rec := &recorder{}
	report, err := NewImporter(rec, time.Second).Import(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, 3, report.Total)
	assert.Equal(t, 2, report.Stored)
	want := []Failure{{Index: 1, Question: "", Reason: "question, answer and tag are required"}}
	if diff := cmp.Diff(want, report.Failures); diff != "" {
		t.Errorf("failures mismatch (-want +got):\n%s", diff)
	}

	require.Len(t, rec.got, 2)
	assert.Equal(t, "What is a slice?", rec.got[1].Question)
	require.NotNil(t, rec.got[1].IsHot)
	assert.Equal(t, 1, *rec.got[1].IsHot)
}

func TestImportURLAcceptsBareArray(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		fmt.Fprint(w, `[{"question":"q","answer":"a","tag":"t"}]`)
	}))
	defer srv.Close()

	rec := &recorder{}
	report, err := NewImporter(rec, time.Second).Import(context.Background(), srv.URL+"/qa.json")
	require.NoError(t, err)
	assert.Equal(t, 1, report.Stored)
	assert.Empty(t, report.Failures)
}

func TestImportErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	badJSON := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(badJSON, []byte(`{"entries":`), 0o600))

	tests := []struct {
		name   string
		source string
		want   string
	}{
		{"missing file", filepath.Join(t.TempDir(), "nope.json"), "no such file"},
		{"bad json", badJSON, "failed to parse QA bundle"},
		{"http status", srv.URL, "import source returned status 404"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewImporter(&recorder{}, time.Second).Import(context.Background(), tt.source)
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

func TestImportStopsOnCancel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "qa.json")
	require.NoError(t, os.WriteFile(path, []byte(bundleJSON), 0o600))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rec := &recorder{}
	report, err := NewImporter(rec, time.Second).Import(ctx, path)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, report.Stored)
	assert.Empty(t, rec.got)
}
