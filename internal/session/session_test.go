package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gomodule/redigo/redis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreExpiry(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	s := New()
	s.Admin = true
	require.NoError(t, m.Save(ctx, s, time.Minute))

	got, err := m.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.True(t, got.Admin)

	// the stored copy is not shared with the caller
	got.Admin = false
	again, err := m.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.True(t, again.Admin)

	now = now.Add(time.Minute)
	_, err = m.Get(ctx, s.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Empty(t, m.entries)

	require.NoError(t, m.Save(ctx, s, time.Minute))
	require.NoError(t, m.Delete(ctx, s.ID))
	_, err = m.Get(ctx, s.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisStore(t *testing.T) {
	ctx := context.Background()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	rs := NewRedisStoreWithPool(&redis.Pool{
		Dial: func() (redis.Conn, error) {
			return redis.Dial("tcp", mr.Addr())
		},
	})
	defer rs.Close()
	require.NoError(t, rs.Ping(ctx))

	s := New()
	s.UserID = 42
	require.NoError(t, rs.Save(ctx, s, 30*time.Minute))

	assert.True(t, mr.Exists("session:"+s.ID))
	assert.Equal(t, 30*time.Minute, mr.TTL("session:"+s.ID))

	got, err := rs.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, s.ID, got.ID)
	assert.EqualValues(t, 42, got.UserID)

	mr.FastForward(31 * time.Minute)
	_, err = rs.Get(ctx, s.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, rs.Save(ctx, s, time.Minute))
	require.NoError(t, rs.Delete(ctx, s.ID))
	_, err = rs.Get(ctx, s.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCookieCodec(t *testing.T) {
	codec := NewCookieCodec("secret", time.Hour)
	now := time.Now()
	codec.now = func() time.Time { return now }

	token, err := codec.Encode("abc")
	require.NoError(t, err)

	sid, err := codec.Decode(token)
	require.NoError(t, err)
	assert.Equal(t, "abc", sid)

	t.Run("tampered", func(t *testing.T) {
		_, err := codec.Decode(token + "x")
		assert.Error(t, err)
	})

	t.Run("other secret", func(t *testing.T) {
		other := NewCookieCodec("another", time.Hour)
		_, err := other.Decode(token)
		assert.Error(t, err)
	})

	t.Run("expired", func(t *testing.T) {
		later := NewCookieCodec("secret", time.Hour)
		later.now = func() time.Time { return now.Add(2 * time.Hour) }
		_, err := later.Decode(token)
		assert.Error(t, err)
	})
}

func TestManagerRoundTrip(t *testing.T) {
	m := NewManager(NewMemoryStore(), "secret", time.Hour, false)

	first := m.Load(httptest.NewRequest(http.MethodGet, "/", nil))
	first.Admin = true

	rec := httptest.NewRecorder()
	require.NoError(t, m.Commit(context.Background(), rec, first))

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	c := cookies[0]
	assert.Equal(t, CookieName, c.Name)
	assert.True(t, c.HttpOnly)
	assert.Equal(t, "/", c.Path)
	assert.Equal(t, http.SameSiteLaxMode, c.SameSite)
	assert.False(t, c.Secure)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(c)
	loaded := m.Load(req)
	assert.Equal(t, first.ID, loaded.ID)
	assert.True(t, loaded.Admin)

	rec = httptest.NewRecorder()
	require.NoError(t, m.Destroy(context.Background(), rec, loaded))
	expired := rec.Result().Cookies()
	require.Len(t, expired, 1)
	assert.Less(t, expired[0].MaxAge, 0)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(c)
	assert.NotEqual(t, first.ID, m.Load(req).ID)
}

func TestManagerRenewRotatesID(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	m := NewManager(store, "secret", time.Hour, false)

	planted := New()
	rec := httptest.NewRecorder()
	require.NoError(t, m.Commit(ctx, rec, planted))
	oldCookie := rec.Result().Cookies()[0]

	planted.Admin = true
	planted.UserID = 42
	rec = httptest.NewRecorder()
	fresh, err := m.Renew(ctx, rec, planted)
	require.NoError(t, err)
	assert.NotEqual(t, planted.ID, fresh.ID)
	assert.True(t, fresh.Admin)
	assert.Equal(t, planted.UserID, fresh.UserID)

	_, err = store.Get(ctx, planted.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(oldCookie)
	stale := m.Load(req)
	assert.NotEqual(t, fresh.ID, stale.ID)
	assert.False(t, stale.Admin)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(rec.Result().Cookies()[0])
	loaded := m.Load(req)
	assert.Equal(t, fresh.ID, loaded.ID)
	assert.True(t, loaded.Admin)
}

func TestManagerSecureCookie(t *testing.T) {
	m := NewManager(NewMemoryStore(), "secret", time.Hour, true)
	rec := httptest.NewRecorder()
	require.NoError(t, m.Commit(context.Background(), rec, New()))

	c := rec.Result().Cookies()[0]
	assert.True(t, c.Secure)
	assert.Equal(t, http.SameSiteNoneMode, c.SameSite)
}

func TestManagerIgnoresForgedCookie(t *testing.T) {
	m := NewManager(NewMemoryStore(), "secret", time.Hour, false)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: CookieName, Value: "not-a-jwt"})

	s := m.Load(req)
	assert.NotEmpty(t, s.ID)
	assert.False(t, s.Admin)
}

func TestContextHelpers(t *testing.T) {
	s := New()
	ctx := WithSession(context.Background(), s)
	got, ok := FromContext(ctx)
	require.True(t, ok)
	assert.Same(t, s, got)

	_, ok = FromContext(context.Background())
	assert.False(t, ok)
}
