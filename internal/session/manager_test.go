package session

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mapBackend struct{ data map[string][]byte }

func newMapBackend() *mapBackend { return &mapBackend{data: make(map[string][]byte)} }

func (b *mapBackend) Get(sid string) ([]byte, bool) {
	v, ok := b.data[sid]
	return v, ok
}
func (b *mapBackend) Set(sid string, data []byte, _ time.Duration) { b.data[sid] = data }
func (b *mapBackend) Delete(sid string)                            { delete(b.data, sid) }

func TestManagerCookieRoundTrip(t *testing.T) {
	backend := newMapBackend()
	mgr := NewManager(backend, ManagerConfig{CookieName: "sid"})

	handler := mgr.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s := FromContext(r.Context())
		require.NotNil(t, s)
		if s.GetString("k") == "" {
			require.NoError(t, s.Set("k", "v"))
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	cookie := cookies[0]
	assert.Equal(t, "sid", cookie.Name)
	assert.NotEmpty(t, cookie.Value)
	assert.True(t, cookie.HttpOnly)

	// second request with the cookie sees the stored value
	var seen string
	handler = mgr.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = FromContext(r.Context()).GetString("k")
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookie)
	handler.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, "v", seen)
}

func TestManagerNoCookieWithoutWrite(t *testing.T) {
	mgr := NewManager(newMapBackend(), ManagerConfig{})

	handler := mgr.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Empty(t, rec.Result().Cookies())
}

func TestManagerStaleCookieGetsFreshSession(t *testing.T) {
	backend := newMapBackend()
	mgr := NewManager(backend, ManagerConfig{CookieName: "sid"})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "sid", Value: "gone"})
	s := mgr.Load(req)
	assert.NotEqual(t, "gone", s.ID())
}

func TestManagerDestroyClearsCookieAndBackend(t *testing.T) {
	backend := newMapBackend()
	mgr := NewManager(backend, ManagerConfig{CookieName: "sid"})

	s := New("abc")
	require.NoError(t, s.Set("k", "v"))
	rec := httptest.NewRecorder()
	require.NoError(t, mgr.Save(rec, s))
	require.Contains(t, backend.data, "abc")

	s.Destroy()
	rec = httptest.NewRecorder()
	require.NoError(t, mgr.Save(rec, s))
	assert.NotContains(t, backend.data, "abc")

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Less(t, cookies[0].MaxAge, 0)
}

func TestManagerSaveSkipsClean(t *testing.T) {
	mgr := NewManager(newMapBackend(), ManagerConfig{})
	rec := httptest.NewRecorder()
	require.NoError(t, mgr.Save(rec, New("abc")))
	assert.Empty(t, rec.Result().Cookies())
}
