package ranking

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"techrank/internal/fetch"
	"techrank/internal/glpi"
)

// lease shares one caller's session with the cache loads that caller
// starts. A load may outlive its caller, so Close only ends the session
// once no load holds it.
type lease struct {
	sess Session

	mu       sync.Mutex
	holders  int
	closing  bool
	closeCtx context.Context
}

func (e *Engine) openLease(ctx context.Context) (*lease, error) {
	sess, err := e.open(ctx)
	if err != nil {
		return nil, err
	}
	return &lease{sess: sess}, nil
}

func (l *lease) Search(ctx context.Context, req glpi.SearchRequest) (*glpi.SearchResponse, error) {
	return l.sess.Search(ctx, req)
}

// hold registers a load. It fails once Close has been called.
func (l *lease) hold() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closing {
		return false
	}
	l.holders++
	return true
}

func (l *lease) release() {
	l.mu.Lock()
	l.holders--
	last := l.closing && l.holders == 0
	ctx := l.closeCtx
	l.mu.Unlock()
	if last {
		l.sess.Close(ctx)
	}
}

// Close ends the session now, or when the last load holding it finishes.
func (l *lease) Close(ctx context.Context) {
	l.mu.Lock()
	if l.closing {
		l.mu.Unlock()
		return
	}
	l.closing = true
	l.closeCtx = context.WithoutCancel(ctx)
	idle := l.holders == 0
	l.mu.Unlock()
	if idle {
		l.sess.Close(ctx)
	}
}

// loadError tags a load failure with the lease it ran on, so a caller that
// joined someone else's load can tell that failure from its own session's.
type loadError struct {
	owner *lease
	err   error
}

func (e *loadError) Error() string { return e.err.Error() }
func (e *loadError) Unwrap() error { return e.err }

// failedOn reports whether err came from a load that ran on l.
func failedOn(err error, l *lease) bool {
	var le *loadError
	return errors.As(err, &le) && le.owner == l
}

// withSession runs a cache load on l's session. A load that only starts
// after l was closed opens a session of its own.
func (e *Engine) withSession(ctx context.Context, l *lease, load func(fetch.Searcher) error) error {
	if l.hold() {
		defer l.release()
		if err := load(l); err != nil {
			return &loadError{owner: l, err: err}
		}
		return nil
	}

	sess, err := e.open(ctx)
	if err != nil {
		return fmt.Errorf("failed to authenticate: %w", err)
	}
	defer sess.Close(ctx)
	return load(sess)
}
