package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-logr/logr"
	"k8s.io/utils/clock"

	"github.com/opscart/ng-market-monitor/pkg/datasource"
	"github.com/opscart/ng-market-monitor/pkg/models"
)

const (
	DefaultTickInterval   = 60 * time.Second
	DefaultRefreshTimeout = 60 * time.Second
)

var (
	ErrUnknownDataset    = errors.New("unknown dataset")
	ErrNotLoaded         = errors.New("dataset not loaded yet")
	ErrRefreshInFlight   = errors.New("refresh already in progress")
	ErrAlreadyRegistered = errors.New("dataset already registered")
	ErrInvalidInterval   = errors.New("refresh interval must be > 0")
	errNilDataset        = errors.New("refresh returned no dataset")
	errAlreadyRunning    = errors.New("cache already started")
)

// RefreshFunc produces a complete new snapshot of one dataset
type RefreshFunc func(ctx context.Context) (*models.Dataset, error)

// Options configures a Cache. Zero values fall back to defaults.
type Options struct {
	Clock          clock.WithTicker
	Logger         logr.Logger
	TickInterval   time.Duration
	RefreshTimeout time.Duration
	Metrics        *Metrics
	// OnRefresh is called from the refresh goroutine after every attempt
	OnRefresh func(RefreshResult)
}

// RefreshResult describes one completed refresh attempt
type RefreshResult struct {
	Dataset     string
	Snapshot    *models.Dataset // nil on failure
	RefreshedAt time.Time
	Duration    time.Duration
	Err         error
}

// Lookup is a read of the current snapshot with its freshness
type Lookup struct {
	Dataset     *models.Dataset
	RefreshedAt time.Time
	Age         time.Duration
	Stale       bool
}

// DatasetStatus summarizes one registered dataset
type DatasetStatus struct {
	Name        string        `json:"name"`
	Interval    time.Duration `json:"interval"`
	Loaded      bool          `json:"loaded"`
	RefreshedAt time.Time     `json:"refreshed_at,omitempty"`
	Age         time.Duration `json:"age,omitempty"`
	Stale       bool          `json:"stale"`
	Refreshing  bool          `json:"refreshing"`
	SeriesCount int           `json:"series_count"`
	LastAttempt time.Time     `json:"last_attempt,omitempty"`
	LastError   string        `json:"last_error,omitempty"`
}

// snapshot pairs a dataset with its refresh time so both are swapped together
type snapshot struct {
	dataset     *models.Dataset
	refreshedAt time.Time
}

type entry struct {
	name     string
	interval time.Duration
	refresh  RefreshFunc

	current    atomic.Pointer[snapshot]
	refreshing atomic.Bool

	mu          sync.Mutex
	lastAttempt time.Time
	lastError   string
}

// Cache holds the latest snapshot of every registered dataset and refreshes
// each one on its own interval. Readers never block on a fetch.
type Cache struct {
	clock          clock.WithTicker
	log            logr.Logger
	tickInterval   time.Duration
	refreshTimeout time.Duration
	metrics        *Metrics
	onRefresh      func(RefreshResult)

	mu      sync.RWMutex
	entries map[string]*entry
	order   []string

	wg sync.WaitGroup

	runMu  sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func New(opts Options) *Cache {
	if opts.Clock == nil {
		opts.Clock = clock.RealClock{}
	}
	if opts.TickInterval <= 0 {
		opts.TickInterval = DefaultTickInterval
	}
	if opts.RefreshTimeout <= 0 {
		opts.RefreshTimeout = DefaultRefreshTimeout
	}

	return &Cache{
		clock:          opts.Clock,
		log:            opts.Logger.WithName("cache"),
		tickInterval:   opts.TickInterval,
		refreshTimeout: opts.RefreshTimeout,
		metrics:        opts.Metrics,
		onRefresh:      opts.OnRefresh,
		entries:        make(map[string]*entry),
	}
}

// Register adds a dataset with its refresh interval and producer
func (c *Cache) Register(name string, interval time.Duration, refresh RefreshFunc) error {
	if interval <= 0 {
		return fmt.Errorf("dataset %s: %w", name, ErrInvalidInterval)
	}
	if refresh == nil {
		return fmt.Errorf("dataset %s: refresh function is required", name)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[name]; exists {
		return fmt.Errorf("dataset %s: %w", name, ErrAlreadyRegistered)
	}
	c.entries[name] = &entry{name: name, interval: interval, refresh: refresh}
	c.order = append(c.order, name)

	c.log.V(1).Info("registered dataset", "dataset", name, "interval", interval)
	return nil
}

// Names returns registered dataset names in registration order
func (c *Cache) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, len(c.order))
	copy(names, c.order)
	return names
}

// Start runs the refresh loop in the background until Stop or ctx is done
func (c *Cache) Start(ctx context.Context) error {
	c.runMu.Lock()
	defer c.runMu.Unlock()

	if c.cancel != nil {
		return errAlreadyRunning
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	c.cancel = cancel
	c.done = done

	go func() {
		defer close(done)
		c.Run(runCtx)
	}()
	return nil
}

// Stop ends the refresh loop and waits for in-flight refreshes to return.
// Their contexts are cancelled, so slow fetches are abandoned.
func (c *Cache) Stop() {
	c.runMu.Lock()
	cancel, done := c.cancel, c.done
	c.cancel, c.done = nil, nil
	c.runMu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	c.wg.Wait()
}

// Run refreshes every dataset immediately, then checks for due datasets on
// every tick. It returns when ctx is done.
func (c *Cache) Run(ctx context.Context) {
	c.log.Info("refresh loop started", "datasets", len(c.Names()), "tick", c.tickInterval)

	c.Tick(ctx)

	ticker := c.clock.NewTicker(c.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.log.Info("refresh loop stopped")
			return
		case <-ticker.C():
			c.Tick(ctx)
		}
	}
}

// Tick spawns a refresh for every dataset that is due and not already refreshing
func (c *Cache) Tick(ctx context.Context) {
	for _, e := range c.all() {
		if !c.due(e) {
			continue
		}
		if !e.refreshing.CompareAndSwap(false, true) {
			continue
		}

		c.wg.Add(1)
		go func(e *entry) {
			defer c.wg.Done()
			defer e.refreshing.Store(false)
			_ = c.refresh(ctx, e)
		}(e)
	}
}

// Wait blocks until every refresh spawned by Tick has finished
func (c *Cache) Wait() {
	c.wg.Wait()
}

// RefreshOne refreshes a single dataset synchronously
func (c *Cache) RefreshOne(ctx context.Context, name string) error {
	e, err := c.entry(name)
	if err != nil {
		return err
	}
	if !e.refreshing.CompareAndSwap(false, true) {
		return fmt.Errorf("dataset %s: %w", name, ErrRefreshInFlight)
	}
	defer e.refreshing.Store(false)

	return c.refresh(ctx, e)
}

// Get returns the current snapshot of a dataset. Stale snapshots are still
// returned, flagged as stale.
func (c *Cache) Get(name string) (*Lookup, error) {
	e, err := c.entry(name)
	if err != nil {
		return nil, err
	}

	snap := e.current.Load()
	if snap == nil {
		return nil, fmt.Errorf("dataset %s: %w", name, ErrNotLoaded)
	}

	age := c.clock.Since(snap.refreshedAt)
	return &Lookup{
		Dataset:     snap.dataset,
		RefreshedAt: snap.refreshedAt,
		Age:         age,
		Stale:       age > e.interval,
	}, nil
}

// Status reports every registered dataset in registration order
func (c *Cache) Status() []DatasetStatus {
	entries := c.all()
	statuses := make([]DatasetStatus, 0, len(entries))

	for _, e := range entries {
		st := DatasetStatus{
			Name:       e.name,
			Interval:   e.interval,
			Refreshing: e.refreshing.Load(),
		}
		if snap := e.current.Load(); snap != nil {
			st.Loaded = true
			st.RefreshedAt = snap.refreshedAt
			st.Age = c.clock.Since(snap.refreshedAt)
			st.Stale = st.Age > e.interval
			st.SeriesCount = len(snap.dataset.Series)
		}

		e.mu.Lock()
		st.LastAttempt = e.lastAttempt
		st.LastError = e.lastError
		e.mu.Unlock()

		statuses = append(statuses, st)
	}
	return statuses
}

func (c *Cache) refresh(ctx context.Context, e *entry) error {
	start := c.clock.Now()

	rctx, cancel := context.WithTimeout(ctx, c.refreshTimeout)
	defer cancel()

	ds, err := e.refresh(rctx)
	if err == nil {
		switch {
		case ds == nil:
			err = errNilDataset
		case len(ds.Series) == 0:
			err = datasource.ErrEmptyResult
		}
	}

	finished := c.clock.Now()
	result := RefreshResult{
		Dataset:     e.name,
		RefreshedAt: finished,
		Duration:    finished.Sub(start),
		Err:         err,
	}

	if err != nil {
		// Previous snapshot and its timestamp stay as they were
		c.log.Error(err, "refresh failed, keeping previous snapshot", "dataset", e.name, "reason", datasource.Reason(err))
	} else {
		result.Snapshot = ds
		e.current.Store(&snapshot{dataset: ds, refreshedAt: finished})
		c.log.V(1).Info("refreshed dataset", "dataset", e.name, "series", len(ds.Series), "duration", result.Duration)
	}

	e.mu.Lock()
	e.lastAttempt = finished
	if err != nil {
		e.lastError = err.Error()
	} else {
		e.lastError = ""
	}
	e.mu.Unlock()

	c.metrics.observe(result)
	if c.onRefresh != nil {
		c.onRefresh(result)
	}

	if err != nil {
		return fmt.Errorf("refresh %s: %w", e.name, err)
	}
	return nil
}

func (c *Cache) due(e *entry) bool {
	snap := e.current.Load()
	if snap == nil {
		return true
	}
	return c.clock.Since(snap.refreshedAt) >= e.interval
}

func (c *Cache) entry(name string) (*entry, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDataset, name)
	}
	return e, nil
}

func (c *Cache) all() []*entry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entries := make([]*entry, 0, len(c.order))
	for _, name := range c.order {
		entries = append(entries, c.entries[name])
	}
	return entries
}
