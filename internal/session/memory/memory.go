// Package memory is the in-process session backend, used in development and
// tests.
package memory

import (
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/evecore/evecore/internal/session"
)

type Mem struct{ c *gocache.Cache }

func New(defaultTTL time.Duration) session.Backend {
	return &Mem{c: gocache.New(defaultTTL, time.Minute)}
}

func (m *Mem) Get(sid string) ([]byte, bool) {
	v, ok := m.c.Get(sid)
	if !ok {
		return nil, false
	}
	b, _ := v.([]byte)
	return b, true
}

func (m *Mem) Set(sid string, data []byte, ttl time.Duration) { m.c.Set(sid, data, ttl) }
func (m *Mem) Delete(sid string)                              { m.c.Delete(sid) }
