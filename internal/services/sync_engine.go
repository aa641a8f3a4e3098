package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"moneta/internal/cloud"
	"moneta/internal/core"
	"moneta/internal/log"
	"moneta/internal/storage"
)

// Mode selects the user tie-break rule. Categories are reconciled the same
// way in both modes.
type Mode string

const (
	// ModePull is ambient sync: a remote user overwrites the local one.
	ModePull Mode = "pull"
	// ModePush is the explicit push action: the local user overwrites the remote one.
	ModePush Mode = "push"
)

func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModePull, ModePush:
		return Mode(s), nil
	}
	return "", fmt.Errorf("%w: sync mode %q", core.ErrInvalidField, s)
}

// ErrNotConverged is returned when the remote snapshot did not match the
// expected state within the configured attempts or timeout.
var ErrNotConverged = errors.New("remote snapshot did not converge")

type EngineConfig struct {
	// MaxConvergeAttempts bounds how many snapshots are fetched per branch (default: 5)
	MaxConvergeAttempts int

	// BackoffMin is the first wait between snapshots; it doubles up to BackoffMax.
	BackoffMin time.Duration
	BackoffMax time.Duration

	// ConvergeTimeout bounds the whole convergence phase of one branch (default: 30s)
	ConvergeTimeout time.Duration
}

func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		MaxConvergeAttempts: 5,
		BackoffMin:          250 * time.Millisecond,
		BackoffMax:          4 * time.Second,
		ConvergeTimeout:     30 * time.Second,
	}
}

// BranchReport summarises one entity branch of a run.
type BranchReport struct {
	Created int // remote records created (push)
	Updated int // remote records updated (push)
	Pulled  int // local records created or updated from remote
	Skipped int
	Failed  int

	// Errors holds per-entity failures; the branch continued past them.
	Errors []error
	// Err is set when the branch could not run at all.
	Err error
}

func (b *BranchReport) fail(err error) {
	b.Failed++
	b.Errors = append(b.Errors, err)
}

// Writes is the number of create and update calls the branch issued.
func (b BranchReport) Writes() int {
	return b.Created + b.Updated + b.Pulled
}

type Report struct {
	Mode       Mode
	StartedAt  time.Time
	Duration   time.Duration
	Users      BranchReport
	Categories BranchReport
}

// Err joins the branch-level errors of the run.
func (r Report) Err() error {
	return errors.Join(r.Users.Err, r.Categories.Err)
}

// RemoteCache holds the last converged remote snapshot and the engine's own
// writes that no snapshot has reflected yet. Pending writes survive across
// runs so a lagging read path is not mistaken for missing records.
type RemoteCache struct {
	mu           sync.Mutex
	users        []core.RemoteUser
	usersOK      bool
	pendingUsers map[string]core.RemoteUser
	categories   []core.RemoteCategory
	catsOK       bool
	pendingCats  map[string]core.RemoteCategory
}

func (c *RemoteCache) Users() ([]core.RemoteUser, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]core.RemoteUser(nil), c.users...), c.usersOK
}

// SetUsers records a converged snapshot. It reflects every pending user
// write, so those are dropped.
func (c *RemoteCache) SetUsers(users []core.RemoteUser) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.users = append([]core.RemoteUser(nil), users...)
	c.usersOK = true
	c.pendingUsers = nil
}

// PutUser records a successful remote write of u.
func (c *RemoteCache) PutUser(u core.RemoteUser) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.users = overlayUsers(c.users, []core.RemoteUser{u})
	if c.pendingUsers == nil {
		c.pendingUsers = make(map[string]core.RemoteUser)
	}
	c.pendingUsers[u.ID] = u
}

// PendingUsers returns user writes not yet seen in a converged snapshot.
func (c *RemoteCache) PendingUsers() []core.RemoteUser {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]core.RemoteUser, 0, len(c.pendingUsers))
	for _, u := range c.pendingUsers {
		out = append(out, u)
	}
	return out
}

func (c *RemoteCache) InvalidateUsers() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.users, c.usersOK, c.pendingUsers = nil, false, nil
}

func (c *RemoteCache) Categories() ([]core.RemoteCategory, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]core.RemoteCategory(nil), c.categories...), c.catsOK
}

// SetCategories records a converged snapshot and drops the pending category
// writes it reflects.
func (c *RemoteCache) SetCategories(cats []core.RemoteCategory) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.categories = append([]core.RemoteCategory(nil), cats...)
	c.catsOK = true
	c.pendingCats = nil
}

// PutCategory records a successful remote write of cat.
func (c *RemoteCache) PutCategory(cat core.RemoteCategory) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.categories = overlayCategories(c.categories, []core.RemoteCategory{cat})
	if c.pendingCats == nil {
		c.pendingCats = make(map[string]core.RemoteCategory)
	}
	c.pendingCats[cat.ID] = cat
}

// PendingCategories returns category writes not yet seen in a converged snapshot.
func (c *RemoteCache) PendingCategories() []core.RemoteCategory {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]core.RemoteCategory, 0, len(c.pendingCats))
	for _, cat := range c.pendingCats {
		out = append(out, cat)
	}
	return out
}

func (c *RemoteCache) InvalidateCategories() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.categories, c.catsOK, c.pendingCats = nil, false, nil
}

// Engine reconciles the local user and categories with the remote mirror.
type Engine struct {
	local  LocalStore
	reader RemoteReader
	writer RemoteWriter
	config EngineConfig
	logger *log.Logger
	cache  *RemoteCache

	// run serialises Run calls.
	run   sync.Mutex
	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
}

func NewEngine(local LocalStore, reader RemoteReader, writer RemoteWriter, config EngineConfig, logger *log.Logger) *Engine {
	if config.MaxConvergeAttempts < 1 {
		config.MaxConvergeAttempts = 1
	}
	if logger == nil {
		logger = log.Default(log.ComponentSync)
	}
	return &Engine{
		local:  local,
		reader: reader,
		writer: writer,
		config: config,
		logger: logger,
		cache:  &RemoteCache{},
		sleep:  sleepWithContext,
		now:    time.Now,
	}
}

// Cache exposes the engine's view of the remote mirror.
func (e *Engine) Cache() *RemoteCache {
	return e.cache
}

// Run performs one sync. The user and category branches run concurrently
// and Run returns after both finish. Per-entity failures are recorded in the
// report and do not stop the branch; the returned error joins branch-level
// failures such as ErrNotConverged or storage.ErrCorrupt.
func (e *Engine) Run(ctx context.Context, mode Mode) (Report, error) {
	e.run.Lock()
	defer e.run.Unlock()

	rep := Report{Mode: mode, StartedAt: e.now()}
	e.logger.InfoContext(ctx, "Sync started", log.FieldMode, string(mode))

	var g errgroup.Group
	g.Go(func() error {
		rep.Users = e.syncUser(ctx, mode)
		return rep.Users.Err
	})
	g.Go(func() error {
		rep.Categories = e.syncCategories(ctx)
		return rep.Categories.Err
	})
	// Both branch errors are kept in the report; Wait only joins.
	_ = g.Wait()

	rep.Duration = e.now().Sub(rep.StartedAt)
	err := rep.Err()

	attrs := []any{
		log.FieldMode, string(mode),
		log.FieldDuration, rep.Duration.Milliseconds(),
		"users_written", rep.Users.Writes(),
		"categories_written", rep.Categories.Writes(),
		"failed", rep.Users.Failed + rep.Categories.Failed,
	}
	if err != nil {
		e.logger.WarnContext(ctx, "Sync finished with errors", append(attrs, log.FieldError, err)...)
	} else {
		e.logger.InfoContext(ctx, "Sync finished", attrs...)
	}
	return rep, err
}

// converge fetches snapshots until consistent accepts one. consistent gets
// the previous successful snapshot of this call, or nil on the first, so a
// snapshot can be checked against the one before it. Transient remote errors
// are retried with exponential backoff; others abort immediately.
func converge[T any](
	ctx context.Context,
	e *Engine,
	entity string,
	fetch func(context.Context) (T, error),
	consistent func(ctx context.Context, prev *T, fresh T) (bool, error),
) (T, error) {
	var zero T
	ctx, cancel := context.WithTimeout(ctx, e.config.ConvergeTimeout)
	defer cancel()

	backoff := e.config.BackoffMin
	var (
		lastErr error
		prev    *T
	)
	for attempt := 1; attempt <= e.config.MaxConvergeAttempts; attempt++ {
		fresh, err := fetch(ctx)
		if err == nil {
			var ok bool
			ok, err = consistent(ctx, prev, fresh)
			if err == nil && ok {
				return fresh, nil
			}
			prev = &fresh
		}
		if err != nil {
			if !cloud.Retryable(err) {
				return zero, fmt.Errorf("converge %s: %w", entity, err)
			}
			lastErr = err
		}

		e.logger.DebugContext(ctx, "Remote snapshot not converged",
			log.FieldEntity, entity,
			log.FieldAttempt, attempt,
			log.FieldError, err)

		if attempt == e.config.MaxConvergeAttempts {
			break
		}
		if err := e.sleep(ctx, backoff); err != nil {
			return zero, fmt.Errorf("converge %s: %w: %w", entity, ErrNotConverged, err)
		}
		backoff *= 2
		if backoff > e.config.BackoffMax {
			backoff = e.config.BackoffMax
		}
	}
	if lastErr != nil {
		return zero, fmt.Errorf("converge %s after %d attempts: %w: %w", entity, e.config.MaxConvergeAttempts, ErrNotConverged, lastErr)
	}
	return zero, fmt.Errorf("converge %s after %d attempts: %w", entity, e.config.MaxConvergeAttempts, ErrNotConverged)
}

// fatal reports whether err must abort the branch rather than skip an entity.
func fatal(err error) bool {
	return errors.Is(err, storage.ErrCorrupt)
}

func errorType(err error) string {
	switch {
	case errors.Is(err, core.ErrMissingRequiredField), errors.Is(err, core.ErrInvalidField):
		return log.ErrorTypeValidation
	case errors.Is(err, cloud.ErrNetwork), errors.Is(err, ErrNotConverged):
		return log.ErrorTypeNetwork
	case errors.Is(err, cloud.ErrAuth):
		return log.ErrorTypeAuth
	case errors.Is(err, cloud.ErrNotFound), errors.Is(err, storage.ErrNotFound):
		return log.ErrorTypeNotFound
	case errors.Is(err, cloud.ErrPartialRecord):
		return log.ErrorTypePartialRecord
	case errors.Is(err, storage.ErrCorrupt), errors.Is(err, storage.ErrConflict):
		return log.ErrorTypeDatabase
	}
	return log.ErrorTypeInternal
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
