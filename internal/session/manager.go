package session

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/evecore/evecore/internal/observability/logger"
)

// ManagerConfig configures the cookie binding.
type ManagerConfig struct {
	CookieName string
	Domain     string
	SameSite   string // "Lax" | "Strict" | "None"
	Secure     bool
	TTL        time.Duration
}

// Manager loads sessions from the request cookie and writes them back after
// the handler ran. A session is created lazily on first write.
type Manager struct {
	backend Backend
	cfg     ManagerConfig
}

func NewManager(backend Backend, cfg ManagerConfig) *Manager {
	if cfg.CookieName == "" {
		cfg.CookieName = "evecore"
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 12 * time.Hour
	}
	return &Manager{backend: backend, cfg: cfg}
}

// Load returns the session for the request, creating a fresh one when the
// cookie is absent or stale.
func (m *Manager) Load(r *http.Request) *Session {
	if c, err := r.Cookie(m.cfg.CookieName); err == nil && c.Value != "" {
		if data, ok := m.backend.Get(c.Value); ok {
			if s, err := decode(c.Value, data); err == nil {
				return s
			}
			logger.From(r.Context()).Warn("discarding undecodable session",
				logger.Component("session"))
		}
	}
	return New(uuid.NewString())
}

// Save persists the session and sets or clears the cookie as needed.
func (m *Manager) Save(w http.ResponseWriter, s *Session) error {
	if s == nil || !s.dirty {
		return nil
	}
	if s.destroyed() {
		m.backend.Delete(s.id)
		http.SetCookie(w, m.cookie("", -1))
		s.dirty = false
		return nil
	}
	data, err := s.encode()
	if err != nil {
		return err
	}
	m.backend.Set(s.id, data, m.cfg.TTL)
	http.SetCookie(w, m.cookie(s.id, int(m.cfg.TTL/time.Second)))
	s.dirty = false
	return nil
}

// Middleware starts the session for every request and saves it afterwards.
func (m *Manager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s := m.Load(r)
		sw := &saveWriter{ResponseWriter: w, mgr: m, sess: s}
		next.ServeHTTP(sw, r.WithContext(ToContext(r.Context(), s)))
		// Handlers that never wrote a body still need the cookie flushed.
		sw.flush()
	})
}

func (m *Manager) cookie(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     m.cfg.CookieName,
		Value:    value,
		Path:     "/",
		Domain:   m.cfg.Domain,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   m.cfg.Secure,
		SameSite: parseSameSite(m.cfg.SameSite),
	}
}

func parseSameSite(v string) http.SameSite {
	switch strings.ToLower(v) {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteLaxMode
	}
}

// saveWriter persists the session right before the first byte of the
// response goes out, so Set-Cookie still makes it into the headers.
type saveWriter struct {
	http.ResponseWriter
	mgr   *Manager
	sess  *Session
	saved bool
}

func (w *saveWriter) WriteHeader(code int) {
	w.flush()
	w.ResponseWriter.WriteHeader(code)
}

func (w *saveWriter) Write(b []byte) (int, error) {
	w.flush()
	return w.ResponseWriter.Write(b)
}

func (w *saveWriter) flush() {
	if w.saved {
		return
	}
	w.saved = true
	if err := w.mgr.Save(w.ResponseWriter, w.sess); err != nil {
		logger.L().Error("session save failed", logger.Component("session"), logger.Err(err))
	}
}
