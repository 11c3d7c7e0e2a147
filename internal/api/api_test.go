package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/netip"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shaneshark.com/portfolio/internal/apperr"
	"shaneshark.com/portfolio/internal/asr"
	"shaneshark.com/portfolio/internal/auth"
	"shaneshark.com/portfolio/internal/llm"
	"shaneshark.com/portfolio/internal/qa"
	"shaneshark.com/portfolio/internal/review"
	"shaneshark.com/portfolio/internal/sandbox"
	"shaneshark.com/portfolio/internal/session"
	"shaneshark.com/portfolio/internal/store"
	"shaneshark.com/portfolio/internal/store/sqlite"
)

const adminPassword = "s3cret"

type envelope struct {
	Code    apperr.Code     `json:"code"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
}

// upstreams fakes the LLM, runner and ASR services
func upstreams(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"choices":[{"message":{"content":"{\"transcription\":\"t\",\"accuracyScore\":0.9,\"completenessScore\":80,\"constructiveFeedback\":\"good\",\"improvedAnswerSuggestion\":\"more\"}"}}]}`)
	})
	mux.HandleFunc("/code/run", func(w http.ResponseWriter, r *http.Request) {
		var req sandbox.ExecutionRequest
		json.NewDecoder(r.Body).Decode(&req)
		fmt.Fprintf(w, `{"code":0,"data":{"output":"ran %s %s","code":0,"time":3,"message":""}}`, req.Type, req.Version)
	})
	mux.HandleFunc("/hf-inference/models/whisper", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		fmt.Fprintf(w, `{"text":"%d bytes of %s"}`, len(body), r.Header.Get("Content-Type"))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

type testEnv struct {
	srv    *httptest.Server
	client *http.Client
	store  *sqlite.Store
}

func newTestEnv(t *testing.T, opts ...func(*Server)) *testEnv {
	t.Helper()
	ids, err := store.NewIDGenerator(1)
	require.NoError(t, err)
	st, err := sqlite.Open(filepath.Join(t.TempDir(), "api.db"), ids)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	up := upstreams(t)
	codes := auth.NewCodeService(st, auth.LogMailer{}, auth.NewHTTPSMSSender("", "test"))

	s := &Server{
		QA:          qa.NewService(st, 3),
		Admin:       auth.NewAdminService(adminPassword, st, codes),
		Sessions:    session.NewManager(session.NewMemoryStore(), "test-secret", time.Hour, false),
		Review:      review.NewService(llm.NewClient(up.URL+"/v1", "m", "key", time.Second)),
		Runner:      sandbox.NewRunner(up.URL+"/code/run", time.Second),
		ASR:         asr.NewClient(up.URL, "whisper", "tok", time.Second),
		Store:       st,
		StoreName:   "sqlite",
		HotInterval: time.Millisecond,
		ContextPath: "/api",
		Origins:     []string{"http://localhost:5173"},
	}

	for _, opt := range opts {
		opt(s)
	}

	srv := httptest.NewServer(SetupRoutes(s))
	t.Cleanup(srv.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &testEnv{srv: srv, client: &http.Client{Jar: jar}, store: st}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) (*http.Response, envelope) {
	t.Helper()
	var rdr io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, e.srv.URL+path, rdr)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := e.client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var env envelope
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &env), string(raw))
	}
	return resp, env
}

func TestHealthAndTags(t *testing.T) {
	e := newTestEnv(t)

	resp, env := e.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok","store":"sqlite"}`, string(env.Data))

	_, env = e.do(t, http.MethodGet, "/api/qa/tags", nil)
	var tags []string
	require.NoError(t, json.Unmarshal(env.Data, &tags))
	assert.Equal(t, qa.Tags(), tags)

	mresp, err := e.client.Get(e.srv.URL + "/metrics")
	require.NoError(t, err)
	mresp.Body.Close()
	assert.Equal(t, http.StatusOK, mresp.StatusCode)
}

func TestAdminGuard(t *testing.T) {
	e := newTestEnv(t)

	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/api/qa/admin/list"},
		{http.MethodGet, "/api/qa/admin/1"},
		{http.MethodPost, "/api/qa/admin"},
		{http.MethodPut, "/api/qa/admin/1"},
		{http.MethodDelete, "/api/qa/admin/1"},
	} {
		resp, env := e.do(t, tc.method, tc.path, map[string]string{})
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, tc.path)
		assert.Equal(t, apperr.NoAuthError, env.Code)
		assert.Equal(t, ErrAdminRequired, env.Message)
	}

	_, env := e.do(t, http.MethodGet, "/api/qa/admin/session", nil)
	assert.Equal(t, "false", string(env.Data))
}

func TestAdminQaLifecycle(t *testing.T) {
	e := newTestEnv(t)

	_, env := e.do(t, http.MethodPost, "/api/qa/admin/login", AdminLoginRequest{Password: "nope"})
	assert.Equal(t, apperr.OK, env.Code)
	assert.Equal(t, "false", string(env.Data))

	_, env = e.do(t, http.MethodPost, "/api/qa/admin/login", AdminLoginRequest{Password: adminPassword})
	require.Equal(t, "true", string(env.Data))
	_, env = e.do(t, http.MethodGet, "/api/qa/admin/session", nil)
	assert.Equal(t, "true", string(env.Data))

	hot := 1
	_, env = e.do(t, http.MethodPost, "/api/qa/admin", qa.CreateRequest{Question: "What is GC?", Answer: "{}", Tag: "Go", IsHot: &hot})
	require.Equal(t, apperr.OK, env.Code, env.Message)
	var id store.ID
	require.NoError(t, json.Unmarshal(env.Data, &id))
	assert.True(t, strings.HasPrefix(string(env.Data), `"`), "ids travel as strings")

	_, env = e.do(t, http.MethodGet, "/api/qa/list?tag=Go", nil)
	var page store.Page[store.QaInfo]
	require.NoError(t, json.Unmarshal(env.Data, &page))
	assert.Equal(t, int64(1), page.Total)
	assert.Equal(t, int64(12), page.Size)

	_, env = e.do(t, http.MethodGet, "/api/qa/"+id.String(), nil)
	var info store.QaInfo
	require.NoError(t, json.Unmarshal(env.Data, &info))
	assert.Equal(t, int64(1), info.ViewCount)

	_, env = e.do(t, http.MethodPut, "/api/qa/admin/"+id.String(), map[string]string{"tag": "Runtime"})
	assert.Equal(t, "true", string(env.Data))

	_, env = e.do(t, http.MethodGet, "/api/qa/admin/"+id.String(), nil)
	require.NoError(t, json.Unmarshal(env.Data, &info))
	assert.Equal(t, "Runtime", info.Tag)
	assert.Equal(t, int64(1), info.ViewCount, "admin reads are not counted")

	_, env = e.do(t, http.MethodDelete, "/api/qa/admin/"+id.String(), nil)
	assert.Equal(t, "true", string(env.Data))

	resp, env := e.do(t, http.MethodGet, "/api/qa/"+id.String(), nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, apperr.NotFoundError, env.Code)

	_, env = e.do(t, http.MethodPost, "/api/qa/admin/logout", nil)
	assert.Equal(t, "true", string(env.Data))
	resp, _ = e.do(t, http.MethodGet, "/api/qa/admin/list", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestParamErrors(t *testing.T) {
	e := newTestEnv(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
	}{
		{"bad id", http.MethodGet, "/api/qa/abc", ""},
		{"zero id", http.MethodGet, "/api/qa/0", ""},
		{"page too large", http.MethodGet, "/api/qa/list?pageSize=50", ""},
		{"bad isHot", http.MethodGet, "/api/qa/list?isHot=2", ""},
		{"bad current", http.MethodGet, "/api/qa/list?current=x", ""},
		{"bad json", http.MethodPost, "/api/review/analyze", "{"},
		{"blank analyze", http.MethodPost, "/api/review/analyze", `{"topic":"","standardAnswer":"a","transcription":"b"}`},
		{"blank email", http.MethodPost, "/api/qa/admin/email/check-or-send?email=", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := http.NewRequest(tt.method, e.srv.URL+tt.path, strings.NewReader(tt.body))
			require.NoError(t, err)
			resp, err := e.client.Do(req)
			require.NoError(t, err)
			defer resp.Body.Close()

			var env envelope
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.Equal(t, apperr.ParamsError, env.Code)
		})
	}
}

func TestEmailRegistration(t *testing.T) {
	e := newTestEnv(t)

	_, env := e.do(t, http.MethodPost, "/api/qa/admin/email/check-or-send?email=new@example.com", nil)
	require.Equal(t, apperr.OK, env.Code, env.Message)
	assert.Equal(t, "false", string(env.Data))

	_, env = e.do(t, http.MethodPost, "/api/qa/admin/email/register-or-login", EmailLoginRequest{Email: "new@example.com", Password: "pw", Code: "000000x"})
	assert.Equal(t, apperr.ParamsError, env.Code)

	_, env = e.do(t, http.MethodPost, "/api/qa/admin/email/check-or-send?email=new@example.com", nil)
	assert.Equal(t, apperr.TooManyError, env.Code, "second send inside a minute is throttled")
}

func TestCORSPreflight(t *testing.T) {
	e := newTestEnv(t)

	req, err := http.NewRequest(http.MethodOptions, e.srv.URL+"/api/qa/admin/login", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", "POST")
	resp, err := e.client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "http://localhost:5173", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", resp.Header.Get("Access-Control-Allow-Credentials"))

	req, _ = http.NewRequest(http.MethodGet, e.srv.URL+"/api/qa/tags", nil)
	req.Header.Set("Origin", "http://evil.example")
	resp, err = e.client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestReviewEndpoints(t *testing.T) {
	e := newTestEnv(t)

	_, env := e.do(t, http.MethodPost, "/api/review/analyze", AnalyzeRequest{Topic: "GC", StandardAnswer: "mark", Transcription: "t"})
	require.Equal(t, apperr.OK, env.Code, env.Message)
	var res review.Result
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.Equal(t, 90, res.AccuracyScore)
	assert.Equal(t, []string{}, res.MissingKeyPoints)

	_, env = e.do(t, http.MethodPost, "/api/review/insight", review.InsightRequest{CardTitle: "c", Result: res})
	require.Equal(t, apperr.OK, env.Code)
	var ins review.Insight
	require.NoError(t, json.Unmarshal(env.Data, &ins))
	assert.NotEmpty(t, ins.Summary)

	_, env = e.do(t, http.MethodPost, "/api/sandbox/review", CodeReviewRequest{Code: "x", Language: "Go"})
	require.Equal(t, apperr.OK, env.Code)
}

func TestSandboxEndpoints(t *testing.T) {
	e := newTestEnv(t)

	resp, err := e.client.Post(e.srv.URL+"/api/sandbox/run", "application/json", strings.NewReader(`{"code":"print(1)","type":"python"}`))
	require.NoError(t, err)
	var run sandbox.RunResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&run))
	resp.Body.Close()
	assert.Equal(t, 0, run.Code)
	assert.Equal(t, "ran python 3.9.18", run.Data.Output)

	resp, err = e.client.Post(e.srv.URL+"/api/sandbox/run", "application/json", strings.NewReader(`{"code":"x","type":"cobol"}`))
	require.NoError(t, err)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&run))
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, -1, run.Code)
	assert.Contains(t, run.Data.Message, "cobol")

	_, env := e.do(t, http.MethodGet, "/api/sandbox/languages", nil)
	var langs []sandbox.Language
	require.NoError(t, json.Unmarshal(env.Data, &langs))
	assert.Len(t, langs, 6)
}

func TestTranscribe(t *testing.T) {
	e := newTestEnv(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("lang", "zh"))
	part, err := mw.CreatePart(map[string][]string{
		"Content-Disposition": {`form-data; name="audio"; filename="a.wav"`},
		"Content-Type":        {"audio/wav"},
	})
	require.NoError(t, err)
	part.Write([]byte("12345"))
	require.NoError(t, mw.Close())

	resp, err := e.client.Post(e.srv.URL+"/api/asr/transcribe", mw.FormDataContentType(), &buf)
	require.NoError(t, err)
	var env envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	resp.Body.Close()
	require.Equal(t, apperr.OK, env.Code, env.Message)
	assert.JSONEq(t, `{"text":"5 bytes of audio/wav"}`, string(env.Data))

	resp, err = e.client.Post(e.srv.URL+"/api/asr/transcribe", "application/octet-stream", strings.NewReader("abc"))
	require.NoError(t, err)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	resp.Body.Close()
	assert.JSONEq(t, `{"text":"3 bytes of audio/webm"}`, string(env.Data))

	resp, err = e.client.Post(e.srv.URL+"/api/asr/transcribe", "audio/webm", strings.NewReader(""))
	require.NoError(t, err)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	resp.Body.Close()
	assert.Equal(t, apperr.ParamsError, env.Code)
}

func TestHotStreamRoute(t *testing.T) {
	e := newTestEnv(t)
	now := time.Now()
	require.NoError(t, e.store.CreateQa(context.Background(), &store.QaInfo{Question: "q", Answer: "a", Tag: "Go", IsHot: 1, CreateTime: now, UpdateTime: now}))

	resp, err := e.client.Get(e.srv.URL + "/api/qa/hot/sse")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)

	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	assert.Contains(t, string(body), "retry: 5000")
	assert.Contains(t, string(body), `"question":"q"`)
}

func TestRecoverMiddleware(t *testing.T) {
	h := RecoverMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.Equal(t, apperr.SystemError, env.Code)
}

func TestClientIP(t *testing.T) {
	proxies := []netip.Prefix{netip.MustParsePrefix("10.0.0.0/8")}

	tests := []struct {
		name    string
		remote  string
		xff     []string
		trusted []netip.Prefix
		want    string
	}{
		{"no header", "192.0.2.7:5555", nil, proxies, "192.0.2.7"},
		{"no trusted proxies", "192.0.2.7:5555", []string{"203.0.113.9"}, nil, "192.0.2.7"},
		{"untrusted peer", "192.0.2.7:5555", []string{"203.0.113.9"}, proxies, "192.0.2.7"},
		{"trusted peer", "10.0.0.1:5555", []string{"203.0.113.9"}, proxies, "203.0.113.9"},
		{"spoofed left hop", "10.0.0.1:5555", []string{"198.51.100.1, 203.0.113.9, 10.0.0.2"}, proxies, "203.0.113.9"},
		{"repeated headers", "10.0.0.1:5555", []string{"198.51.100.1", "203.0.113.9"}, proxies, "203.0.113.9"},
		{"only proxies", "10.0.0.1:5555", []string{"10.0.0.3, 10.0.0.2"}, proxies, "10.0.0.3"},
		{"garbage hop", "10.0.0.1:5555", []string{"not-an-ip"}, proxies, "10.0.0.1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remote
			for _, v := range tt.xff {
				r.Header.Add("X-Forwarded-For", v)
			}
			assert.Equal(t, tt.want, clientIP(r, tt.trusted))
		})
	}
}

func loginWithForwardedFor(t *testing.T, e *testEnv, xff string) (*http.Response, envelope) {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, e.srv.URL+"/api/qa/admin/login", strings.NewReader(`{"password":"wrong"}`))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Forwarded-For", xff)
	resp, err := e.client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var env envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	return resp, env
}

func TestAdminLoginThrottleIgnoresSpoofedForwardedFor(t *testing.T) {
	e := newTestEnv(t)

	for i := 1; i <= 5; i++ {
		resp, env := loginWithForwardedFor(t, e, fmt.Sprintf("198.51.100.%d", i))
		require.Equal(t, http.StatusOK, resp.StatusCode, "attempt %d", i)
		assert.Equal(t, "false", string(env.Data))
	}

	resp, env := loginWithForwardedFor(t, e, "198.51.100.6")
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, apperr.TooManyError, env.Code)
}

func TestAdminLoginThrottleBehindTrustedProxy(t *testing.T) {
	e := newTestEnv(t, func(s *Server) {
		s.TrustedProxies = []netip.Prefix{netip.MustParsePrefix("127.0.0.0/8"), netip.MustParsePrefix("::1/128")}
	})

	for i := 1; i <= 5; i++ {
		resp, _ := loginWithForwardedFor(t, e, "203.0.113.9")
		require.Equal(t, http.StatusOK, resp.StatusCode, "attempt %d", i)
	}
	resp, _ := loginWithForwardedFor(t, e, "203.0.113.9")
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)

	resp, _ = loginWithForwardedFor(t, e, "203.0.113.10")
	assert.Equal(t, http.StatusOK, resp.StatusCode, "other clients behind the proxy keep their own bucket")
}

func TestAdminLoginRotatesSession(t *testing.T) {
	e := newTestEnv(t)
	base, err := url.Parse(e.srv.URL + "/api/qa/admin")
	require.NoError(t, err)

	_, env := e.do(t, http.MethodPost, "/api/qa/admin/login", AdminLoginRequest{Password: "nope"})
	assert.Equal(t, "false", string(env.Data))
	assert.Empty(t, e.client.Jar.Cookies(base), "failed logins issue no session")

	planted := &http.Cookie{Name: session.CookieName, Value: "planted", Path: "/"}
	e.client.Jar.SetCookies(base, []*http.Cookie{planted})

	_, env = e.do(t, http.MethodPost, "/api/qa/admin/login", AdminLoginRequest{Password: adminPassword})
	require.Equal(t, "true", string(env.Data))
	cookies := e.client.Jar.Cookies(base)
	require.Len(t, cookies, 1)
	assert.NotEqual(t, "planted", cookies[0].Value)
	first := cookies[0].Value

	_, env = e.do(t, http.MethodPost, "/api/qa/admin/login", AdminLoginRequest{Password: adminPassword})
	require.Equal(t, "true", string(env.Data))
	assert.NotEqual(t, first, e.client.Jar.Cookies(base)[0].Value)

	// the replaced session no longer grants access
	req, err := http.NewRequest(http.MethodGet, e.srv.URL+"/api/qa/admin/session", nil)
	require.NoError(t, err)
	req.AddCookie(&http.Cookie{Name: session.CookieName, Value: first})
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	var stale envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stale))
	assert.Equal(t, "false", string(stale.Data))
}

func TestTranscribeHidesUpstreamDetail(t *testing.T) {
	up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"token hf_secret rejected"}`, http.StatusInternalServerError)
	}))
	defer up.Close()

	s := &Server{ASR: asr.NewClient(up.URL, "whisper", "tok", time.Second)}
	req := httptest.NewRequest(http.MethodPost, "/api/asr/transcribe", bytes.NewReader([]byte("RIFF....")))
	req.Header.Set("Content-Type", "audio/wav")
	rec := httptest.NewRecorder()
	s.TranscribeHandler(rec, req)

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.Equal(t, apperr.OperationError, env.Code)
	assert.Equal(t, ErrTranscribeFail, env.Message)
	assert.NotContains(t, rec.Body.String(), "hf_secret")
}
