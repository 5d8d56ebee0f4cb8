// Package redis is the distributed session backend for production.
package redis

import (
	"context"
	"time"

	rdb "github.com/redis/go-redis/v9"
)

type Store struct {
	c      *rdb.Client
	prefix string
}

func New(addr string, db int, prefix string) *Store {
	return &Store{c: rdb.NewClient(&rdb.Options{Addr: addr, DB: db}), prefix: prefix}
}

func (s *Store) Get(sid string) ([]byte, bool) {
	b, err := s.c.Get(context.Background(), s.prefix+sid).Bytes()
	if err != nil {
		return nil, false
	}
	return b, true
}

func (s *Store) Set(sid string, data []byte, ttl time.Duration) {
	_ = s.c.Set(context.Background(), s.prefix+sid, data, ttl).Err()
}

func (s *Store) Delete(sid string) {
	_ = s.c.Del(context.Background(), s.prefix+sid).Err()
}
