package index

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/yungbote/kgchat-backend/internal/platform/logger"
)

// Status is the health view of the index.
type Status struct {
	Loaded bool   `json:"loaded"`
	Source string `json:"source"`
	Rows   int    `json:"rows"`
	Dim    int    `json:"dim"`
	Error  string `json:"error,omitempty"`
}

// Loader loads the index once on first use. Concurrent first callers share one load; a failed
// load is retried by the next caller.
type Loader struct {
	src   Source
	log   *logger.Logger
	group singleflight.Group

	mu      sync.RWMutex
	ix      *Index
	lastErr error
}

func NewLoader(src Source, log *logger.Logger) *Loader {
	if log == nil {
		log = logger.NewNop()
	}
	return &Loader{src: src, log: log.With("component", "EmbeddingIndex")}
}

// Preloaded wraps an already built index.
func Preloaded(ix *Index) *Loader {
	return &Loader{ix: ix, log: logger.NewNop()}
}

// Get returns the loaded index or an error wrapping ErrNotLoaded.
func (l *Loader) Get(ctx context.Context) (*Index, error) {
	l.mu.RLock()
	ix := l.ix
	l.mu.RUnlock()
	if ix != nil {
		return ix, nil
	}
	if l.src == nil {
		return nil, ErrNotLoaded
	}

	v, err, _ := l.group.Do("load", func() (any, error) {
		l.mu.RLock()
		ix := l.ix
		l.mu.RUnlock()
		if ix != nil {
			return ix, nil
		}

		start := time.Now()
		rows, err := l.src.Rows(ctx)
		if err == nil {
			ix, err = New(rows, l.src.Describe())
		}

		l.mu.Lock()
		defer l.mu.Unlock()
		if err != nil {
			l.lastErr = err
			l.log.Warn("embedding index load failed", "source", l.src.Describe(), "error", err)
			return nil, err
		}
		l.ix, l.lastErr = ix, nil
		l.log.Info("embedding index loaded",
			"source", ix.Source(),
			"rows", ix.Len(),
			"dim", ix.Dim(),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return ix, nil
	})
	if err != nil {
		if errors.Is(err, ErrNotLoaded) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrNotLoaded, err)
	}
	return v.(*Index), nil
}

func (l *Loader) Status() Status {
	l.mu.RLock()
	defer l.mu.RUnlock()
	st := Status{}
	if l.src != nil {
		st.Source = l.src.Describe()
	}
	if l.ix != nil {
		st.Loaded = true
		st.Source = l.ix.Source()
		st.Rows = l.ix.Len()
		st.Dim = l.ix.Dim()
	}
	if l.lastErr != nil {
		st.Error = l.lastErr.Error()
	}
	return st
}
