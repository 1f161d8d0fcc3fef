package kv

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

type failoverStore struct {
	primary  Store
	fallback Store
	logger   *slog.Logger
}

// NewFailoverStore wraps a primary Store with an in-process fallback.
// Storage errors on the primary degrade to the fallback instead of
// aborting ingestion: losing a window to a process restart is preferred
// over stalling the event path.
func NewFailoverStore(primary, fallback Store, logger *slog.Logger) Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &failoverStore{primary: primary, fallback: fallback, logger: logger}
}

func (s *failoverStore) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := s.primary.Get(ctx, key)
	if err == nil || errors.Is(err, ErrNotFound) {
		return val, err
	}
	s.logger.WarnContext(ctx, "primary kv get failed, using fallback", "key", key, "error", err)
	return s.fallback.Get(ctx, key)
}

func (s *failoverStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := s.primary.Set(ctx, key, value, ttl); err != nil {
		s.logger.WarnContext(ctx, "primary kv set failed, using fallback", "key", key, "error", err)
		return s.fallback.Set(ctx, key, value, ttl)
	}
	return nil
}

func (s *failoverStore) Delete(ctx context.Context, key string) error {
	if err := s.primary.Delete(ctx, key); err != nil {
		s.logger.WarnContext(ctx, "primary kv delete failed, using fallback", "key", key, "error", err)
		return s.fallback.Delete(ctx, key)
	}
	// Keep the fallback consistent in case earlier writes landed there.
	_ = s.fallback.Delete(ctx, key)
	return nil
}
