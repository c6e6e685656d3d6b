package glpi

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// Session is a live GLPI session. It is shared read-only by the workers of
// one ranking run; re-authentication after token expiry is serialized.
type Session struct {
	client *Client

	mu         sync.RWMutex
	token      string
	generation uint64
	closed     bool

	reauth singleflight.Group
}

// Search runs one windowed search call.
func (s *Session) Search(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	token, gen, err := s.current()
	if err != nil {
		return nil, err
	}

	resp, err := s.client.search(ctx, token, req)
	if !errors.Is(err, errSessionExpired) {
		return resp, err
	}

	log.Debug().Str("resource", req.Resource).Msg("GLPI session expired, re-authenticating")
	if err := s.reauthenticate(ctx, gen); err != nil {
		return nil, err
	}

	token, _, err = s.current()
	if err != nil {
		return nil, err
	}
	resp, err = s.client.search(ctx, token, req)
	if errors.Is(err, errSessionExpired) {
		return nil, fmt.Errorf("%w: session rejected right after re-authentication", ErrAuth)
	}
	return resp, err
}

// Close kills the session. It never fails; problems are only logged.
func (s *Session) Close(ctx context.Context) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	token := s.token
	s.mu.Unlock()

	if err := s.client.killSession(ctx, token); err != nil {
		log.Debug().Err(err).Msg("GLPI killSession failed")
		return
	}
	log.Debug().Msg("GLPI session closed")
}

func (s *Session) current() (string, uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return "", 0, fmt.Errorf("%w: session already closed", ErrAuth)
	}
	return s.token, s.generation, nil
}

// reauthenticate replaces the token unless another worker already did so
// since generation seen was observed.
func (s *Session) reauthenticate(ctx context.Context, seen uint64) error {
	_, err, _ := s.reauth.Do("initSession", func() (any, error) {
		s.mu.RLock()
		current := s.generation
		s.mu.RUnlock()
		if current != seen {
			return nil, nil
		}

		token, err := s.client.initSession(ctx)
		if err != nil {
			return nil, err
		}

		s.mu.Lock()
		s.token = token
		s.generation++
		s.mu.Unlock()
		s.client.metrics.Reauthenticated()
		return nil, nil
	})
	return err
}
