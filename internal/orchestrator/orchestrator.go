// Package orchestrator runs one extraction request end to end: idempotency
// check, page localization, window selection, backend dispatch and
// persistence.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/spherical-ai/spherical/libs/filings-extractor/internal/cache"
	"github.com/spherical-ai/spherical/libs/filings-extractor/internal/domain"
	"github.com/spherical-ai/spherical/libs/filings-extractor/internal/observability"
	"github.com/spherical-ai/spherical/libs/filings-extractor/internal/pages"
)

// Extractor is one backend variant.
type Extractor interface {
	Extract(ctx context.Context, document []byte, window domain.PageWindow) ([]domain.Table, error)
}

// Store is the persistence the orchestrator needs.
type Store interface {
	Exists(ctx context.Context, key domain.RequestKey) (bool, error)
	Persist(ctx context.Context, key domain.RequestKey, tables []domain.Table) error
}

// Localizer finds the anchor page of a document.
type Localizer interface {
	Locate(ctx context.Context, document []byte) (int, error)
}

// PageCounter counts the pages of a document.
type PageCounter interface {
	Count(document []byte) (int, error)
}

// Status is the terminal state of a successful request.
type Status string

const (
	StatusExtracted        Status = "extracted"
	StatusAlreadyExtracted Status = "already_extracted"
)

// Request is one extraction request.
type Request struct {
	Key      domain.RequestKey
	Document []byte
}

// Outcome reports a successful request.
type Outcome struct {
	Status     Status             `json:"status"`
	Key        domain.RequestKey  `json:"-"`
	CompanyID  string             `json:"company_id"`
	Year       int                `json:"year"`
	Backend    domain.Backend     `json:"backend"`
	TableCount int                `json:"table_count"`
	Anchor     int                `json:"anchor_page"`
	Window     *domain.PageWindow `json:"window,omitempty"`
	RunID      string             `json:"run_id,omitempty"`
	Duration   time.Duration      `json:"duration_ns"`
}

// Deps are the collaborators of an Orchestrator.
type Deps struct {
	Store     Store
	Localizer Localizer
	Pages     PageCounter
	Locker    cache.Locker
	Backends  map[domain.Backend]Extractor
	Logger    *observability.Logger
}

// Config tunes an Orchestrator.
type Config struct {
	// LockTTL bounds how long a crashed holder blocks a key.
	LockTTL time.Duration
}

// Orchestrator sequences extraction requests.
type Orchestrator struct {
	deps   Deps
	cfg    Config
	group  singleflight.Group
	logger *observability.Logger

	mu      sync.Mutex
	flights map[string]*flight
}

// flight is the context shared by every caller waiting on one key. It is
// cancelled once the last waiter leaves.
type flight struct {
	ctx     context.Context
	cancel  context.CancelFunc
	waiters int
}

// New creates an Orchestrator.
func New(deps Deps, cfg Config) (*Orchestrator, error) {
	if deps.Store == nil || deps.Localizer == nil || deps.Pages == nil || deps.Locker == nil {
		return nil, domain.ConfigError("orchestrator requires store, localizer, page counter and locker", nil)
	}
	if len(deps.Backends) == 0 {
		return nil, domain.ConfigError("orchestrator requires at least one backend", nil)
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 15 * time.Minute
	}
	logger := deps.Logger
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Orchestrator{
		deps:    deps,
		cfg:     cfg,
		logger:  logger.WithComponent("orchestrator"),
		flights: make(map[string]*flight),
	}, nil
}

// Run executes one request. Concurrent calls for the same key in this
// process share one execution; other processes are excluded by the key lock.
// A caller whose ctx ends stops waiting without failing the others; the
// shared execution is cancelled only when no caller is left.
// Any error leaves nothing persisted.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*Outcome, error) {
	if err := req.Key.Validate(); err != nil {
		return nil, err
	}
	if len(req.Document) == 0 {
		return nil, domain.ValidationError("document is empty", nil)
	}
	if _, ok := o.deps.Backends[req.Key.Backend]; !ok {
		return nil, domain.ConfigError(fmt.Sprintf("backend %s is not configured", req.Key.Backend), nil)
	}

	k := req.Key.String()
	f := o.join(k, ctx)
	defer o.leave(k, f)

	ch := o.group.DoChan(k, func() (interface{}, error) {
		return o.run(f.ctx, req)
	})
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("wait for extraction %s: %w", req.Key, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		out := *res.Val.(*Outcome)
		if res.Shared {
			o.logger.WithContext(ctx).Debug().Str("key", k).Msg("joined in-flight extraction")
		}
		return &out, nil
	}
}

// join registers a waiter on key. The shared run keeps the values of the
// first caller's ctx but none of its cancellation.
func (o *Orchestrator) join(key string, parent context.Context) *flight {
	o.mu.Lock()
	defer o.mu.Unlock()
	f, ok := o.flights[key]
	if !ok {
		ctx, cancel := context.WithCancel(context.WithoutCancel(parent))
		f = &flight{ctx: ctx, cancel: cancel}
		o.flights[key] = f
	}
	f.waiters++
	return f
}

func (o *Orchestrator) leave(key string, f *flight) {
	o.mu.Lock()
	defer o.mu.Unlock()
	f.waiters--
	if f.waiters > 0 {
		return
	}
	f.cancel()
	if o.flights[key] == f {
		delete(o.flights, key)
	}
}

func (o *Orchestrator) run(ctx context.Context, req Request) (*Outcome, error) {
	start := time.Now()
	key := req.Key

	runID := uuid.NewString()
	ctx = observability.ContextWithRunID(ctx, runID)
	log := o.logger.WithContext(ctx).With().
		Str("company_id", key.CompanyID).
		Int("year", key.Year).
		Str("backend", string(key.Backend)).
		Logger()

	release, err := o.deps.Locker.Acquire(ctx, cache.Key("extract", key.String()), o.cfg.LockTTL)
	if errors.Is(err, cache.ErrLockHeld) {
		return nil, domain.ConflictError(fmt.Sprintf("extraction %s is already running", key), err)
	}
	if err != nil {
		return nil, domain.IOError("acquire extraction lock", err)
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			log.Warn().Err(err).Msg("release extraction lock")
		}
	}()

	out := &Outcome{
		Key:       key,
		CompanyID: key.CompanyID,
		Year:      key.Year,
		Backend:   key.Backend,
		RunID:     runID,
		Anchor:    -1,
	}

	exists, err := o.deps.Store.Exists(ctx, key)
	if err != nil {
		return nil, err
	}
	if exists {
		out.Status = StatusAlreadyExtracted
		out.Duration = time.Since(start)
		log.Info().Msg("extraction already available")
		return out, nil
	}

	anchor, err := o.deps.Localizer.Locate(ctx, req.Document)
	if err != nil {
		return nil, err
	}
	out.Anchor = anchor

	window, err := o.window(key.Backend, anchor, req.Document)
	if err != nil {
		return nil, err
	}
	out.Window = &window

	log.Info().
		Int("anchor", anchor).
		Str("window", window.String()).
		Msg("dispatching extraction")

	tables, err := o.deps.Backends[key.Backend].Extract(ctx, req.Document, window)
	if err != nil {
		log.Error().Err(err).Msg("extraction failed")
		return nil, err
	}

	if err := o.deps.Store.Persist(ctx, key, tables); err != nil {
		log.Error().Err(err).Msg("persist failed")
		return nil, err
	}

	out.Status = StatusExtracted
	out.TableCount = len(tables)
	out.Duration = time.Since(start)
	log.Info().
		Int("tables", out.TableCount).
		Dur("elapsed", out.Duration).
		Msg("extraction completed")
	return out, nil
}

// window picks the pages submitted to a backend. The remote backend covers
// the anchor and up to two following pages; the local pipeline reads the
// anchor page only.
func (o *Orchestrator) window(backend domain.Backend, anchor int, document []byte) (domain.PageWindow, error) {
	if backend != domain.BackendRemoteJob {
		return domain.PageWindow{Start: anchor, Count: 1}, nil
	}
	total, err := o.deps.Pages.Count(document)
	if err != nil {
		return domain.PageWindow{}, err
	}
	return pages.Select(anchor, total), nil
}
