package core

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/JonMunkholm/simplestruct/internal/config"
	"github.com/JonMunkholm/simplestruct/internal/entity"
	"github.com/JonMunkholm/simplestruct/internal/logging"
	"github.com/JonMunkholm/simplestruct/internal/resolver"
	"github.com/google/uuid"
)

// LogChannel is the channel name resolver events are logged under.
const LogChannel = "simple_struct"

// resultRetention is how long finished runs stay queryable.
const resultRetention = 5 * time.Minute

// DefaultHistoryLimit is how many finished runs ListRuns returns.
const DefaultHistoryLimit = 50

var (
	// ErrUnknownReport is returned for table keys with no registered report.
	ErrUnknownReport = errors.New("unknown report")

	// ErrRunNotFound is returned for run ids that are unknown or expired.
	ErrRunNotFound = errors.New("run not found")
)

// Service provides report runs over an entity store and a destination sink.
type Service struct {
	store      entity.Store
	sink       Sink
	cfg        *config.Config
	channel    *logging.Channel
	messenger  *Messenger
	notifier   Notifier
	metrics    *Metrics
	runLimiter *RunLimiter

	mu   sync.RWMutex
	runs map[string]*activeRun

	historyMu sync.RWMutex
	history   []RunResult
}

// Option configures a Service.
type Option func(*Service)

// WithNotifier adds a notifier that receives every end-of-run message in
// addition to the in-memory messenger.
func WithNotifier(n Notifier) Option {
	return func(s *Service) {
		s.notifier = MultiNotifier{s.notifier, n}
	}
}

// WithMetrics records run metrics.
func WithMetrics(m *Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithLogChannel replaces the channel resolver events are written to.
func WithLogChannel(ch *logging.Channel) Option {
	return func(s *Service) { s.channel = ch }
}

type activeRun struct {
	ID       string
	TableKey string
	Cancel   context.CancelFunc
	Done     chan struct{}

	mu        sync.Mutex
	Progress  RunProgress
	Result    *RunResult
	Listeners []chan RunProgress
	closed    bool
}

// NewService creates a Service reading entities from store and writing
// report rows to sink.
func NewService(store entity.Store, sink Sink, cfg *config.Config, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("new service: nil entity store")
	}
	if sink == nil {
		return nil, errors.New("new service: nil sink")
	}
	if cfg == nil {
		return nil, errors.New("new service: nil config")
	}

	messenger := NewMessenger(DefaultMessageLimit)
	s := &Service{
		store:      store,
		sink:       sink,
		cfg:        cfg,
		channel:    logging.NewChannel(LogChannel, nil),
		messenger:  messenger,
		notifier:   MultiNotifier{messenger, LogNotifier{}},
		runLimiter: NewRunLimiter(cfg.Flatten.MaxConcurrent, cfg.Flatten.MaxWaitTime),
		runs:       make(map[string]*activeRun),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// RunTimeout returns the configured maximum run duration.
func (s *Service) RunTimeout() time.Duration {
	if s.cfg.Flatten.Timeout > 0 {
		return s.cfg.Flatten.Timeout
	}
	return 30 * time.Minute
}

// ResetTimeout returns the configured maximum truncate duration.
func (s *Service) ResetTimeout() time.Duration {
	if s.cfg.Flatten.ResetTimeout > 0 {
		return s.cfg.Flatten.ResetTimeout
	}
	return 30 * time.Second
}

// Resolver returns a resolver over the service's store that logs to the
// service's channel.
func (s *Service) Resolver() *resolver.Resolver {
	return resolver.New(s.store, s.channel)
}

// ListReports returns information about all registered reports.
func (s *Service) ListReports() []TableInfo {
	defs := All()
	infos := make([]TableInfo, len(defs))
	for i, def := range defs {
		infos[i] = def.Info
	}
	return infos
}

// EnsureSchema creates every registered report table when the sink
// supports it.
func (s *Service) EnsureSchema(ctx context.Context) error {
	ss, ok := s.sink.(SchemaSink)
	if !ok {
		return nil
	}
	for _, def := range All() {
		if err := ss.EnsureTable(ctx, def); err != nil {
			return fmt.Errorf("ensure table %s: %w", def.Info.Key, err)
		}
	}
	return nil
}

// StartRun begins an asynchronous rebuild of a report table.
// Returns the run ID immediately. Use SubscribeProgress to follow it.
//
// Returns ErrRunInProgress if no run slot frees up within the wait period.
func (s *Service) StartRun(ctx context.Context, tableKey string) (string, error) {
	def, ok := Get(tableKey)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownReport, tableKey)
	}

	if err := s.runLimiter.Acquire(ctx); err != nil {
		return "", err
	}

	runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.RunTimeout())
	run := s.newRun(def, cancel)

	go func() {
		defer s.runLimiter.Release()
		defer cancel()
		s.processRun(runCtx, run, def)
	}()

	return run.ID, nil
}

// RunSync rebuilds a report table on the calling goroutine and returns the
// final result. A failed run is reported through the result, not the error;
// the error is for runs that could not start.
func (s *Service) RunSync(ctx context.Context, tableKey string) (*RunResult, error) {
	def, ok := Get(tableKey)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownReport, tableKey)
	}

	if err := s.runLimiter.Acquire(ctx); err != nil {
		return nil, err
	}
	defer s.runLimiter.Release()

	runCtx, cancel := context.WithTimeout(ctx, s.RunTimeout())
	defer cancel()

	run := s.newRun(def, cancel)
	s.processRun(runCtx, run, def)
	return run.result(), nil
}

func (s *Service) newRun(def ReportDefinition, cancel context.CancelFunc) *activeRun {
	id := uuid.New().String()
	run := &activeRun{
		ID:       id,
		TableKey: def.Info.Key,
		Cancel:   cancel,
		Done:     make(chan struct{}),
		Progress: RunProgress{
			RunID:    id,
			TableKey: def.Info.Key,
			Phase:    PhaseStarting,
		},
	}

	s.mu.Lock()
	s.runs[id] = run
	s.mu.Unlock()
	return run
}

func (s *Service) getRun(runID string) (*activeRun, error) {
	s.mu.RLock()
	run, ok := s.runs[runID]
	s.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return run, nil
}

// SubscribeProgress returns a channel that receives progress updates.
// The channel is closed when the run finishes. Subscribing to a finished
// run yields its final progress and a closed channel.
func (s *Service) SubscribeProgress(runID string) (<-chan RunProgress, error) {
	run, err := s.getRun(runID)
	if err != nil {
		return nil, err
	}

	ch := make(chan RunProgress, 10)

	run.mu.Lock()
	defer run.mu.Unlock()
	ch <- run.Progress
	if run.closed {
		close(ch)
		return ch, nil
	}
	run.Listeners = append(run.Listeners, ch)
	return ch, nil
}

// GetRunProgress returns the current progress without blocking.
func (s *Service) GetRunProgress(runID string) (RunProgress, error) {
	run, err := s.getRun(runID)
	if err != nil {
		return RunProgress{}, err
	}

	run.mu.Lock()
	defer run.mu.Unlock()
	return run.Progress, nil
}

// GetRunResult returns the result of a run, waiting for it to finish or
// for ctx to end.
func (s *Service) GetRunResult(ctx context.Context, runID string) (*RunResult, error) {
	run, err := s.getRun(runID)
	if err != nil {
		return nil, err
	}

	select {
	case <-run.Done:
		return run.result(), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// CancelRun abandons an in-progress run. Rows already written stay; the
// run is reported as failed.
func (s *Service) CancelRun(runID string) error {
	run, err := s.getRun(runID)
	if err != nil {
		return err
	}

	run.Cancel()
	return nil
}

// Reset deletes all rows from a report table.
func (s *Service) Reset(ctx context.Context, tableKey string) error {
	def, ok := Get(tableKey)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownReport, tableKey)
	}

	if err := s.runLimiter.Acquire(ctx); err != nil {
		return err
	}
	defer s.runLimiter.Release()

	if err := s.truncate(ctx, def); err != nil {
		return err
	}

	logging.FromContext(ctx).Info("report table reset",
		"table", tableKey,
		"ip", RequesterFrom(ctx).IP,
	)
	return nil
}

// ResetAll deletes all rows from every registered report table.
func (s *Service) ResetAll(ctx context.Context) error {
	if err := s.runLimiter.Acquire(ctx); err != nil {
		return err
	}
	defer s.runLimiter.Release()

	for _, def := range All() {
		if err := s.truncate(ctx, def); err != nil {
			return err
		}
		logging.FromContext(ctx).Info("report table reset",
			"table", def.Info.Key,
			"ip", RequesterFrom(ctx).IP,
		)
	}
	return nil
}

func (s *Service) truncate(ctx context.Context, def ReportDefinition) error {
	resetCtx, cancel := context.WithTimeout(ctx, s.ResetTimeout())
	defer cancel()

	if err := s.sink.Truncate(resetCtx, def.Info.Key); err != nil {
		return fmt.Errorf("truncate %s: %w", def.Info.Key, err)
	}
	return nil
}

// ListRuns returns recently finished runs, newest first.
func (s *Service) ListRuns() []RunResult {
	s.historyMu.RLock()
	defer s.historyMu.RUnlock()

	out := make([]RunResult, len(s.history))
	copy(out, s.history)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	return out
}

func (s *Service) recordHistory(r RunResult) {
	s.historyMu.Lock()
	defer s.historyMu.Unlock()

	s.history = append(s.history, r)
	if over := len(s.history) - DefaultHistoryLimit; over > 0 {
		s.history = append(s.history[:0:0], s.history[over:]...)
	}
}

// Messages returns the stored end-of-run notifications.
func (s *Service) Messages() []Message {
	return s.messenger.All()
}

// DrainMessages returns the stored notifications and clears them.
func (s *Service) DrainMessages() []Message {
	return s.messenger.Drain()
}

// RunLimiterStatus returns a snapshot of run slot usage.
func (s *Service) RunLimiterStatus() RunLimiterStatus {
	return s.runLimiter.Status()
}

// WaitForRuns blocks until active runs finish or ctx ends.
func (s *Service) WaitForRuns(ctx context.Context) error {
	return s.runLimiter.WaitForDrain(ctx)
}

// update applies fn to the progress and broadcasts the result.
func (run *activeRun) update(fn func(*RunProgress)) {
	run.mu.Lock()
	defer run.mu.Unlock()

	fn(&run.Progress)
	for _, ch := range run.Listeners {
		select {
		case ch <- run.Progress:
		default:
			// Listener is slow, skip this update
		}
	}
}

// finish stores the result, publishes the final phase and closes listeners.
// Safe to call more than once; only the first call has effect.
func (run *activeRun) finish(result *RunResult, phase RunPhase) {
	run.mu.Lock()
	defer run.mu.Unlock()

	if run.closed {
		return
	}
	run.closed = true
	run.Result = result
	run.Progress.Phase = phase
	run.Progress.Error = result.Error
	for _, ch := range run.Listeners {
		select {
		case ch <- run.Progress:
		default:
		}
		close(ch)
	}
	run.Listeners = nil
	close(run.Done)
}

func (run *activeRun) result() *RunResult {
	run.mu.Lock()
	defer run.mu.Unlock()
	return run.Result
}

// cleanup removes the run from tracking after a delay.
func (s *Service) cleanup(runID string, delay time.Duration) {
	time.AfterFunc(delay, func() {
		s.mu.Lock()
		delete(s.runs, runID)
		s.mu.Unlock()
	})
}
