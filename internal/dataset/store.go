package dataset

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/stacklok/synthetic-users-api/internal/record"
	"github.com/stacklok/synthetic-users-api/internal/telemetry"
)

const (
	// DefaultChunkSize is the number of slots filled between progress reports
	DefaultChunkSize = 50_000

	// progressEveryChunks controls how often progress is logged
	progressEveryChunks = 4
)

var (
	// ErrClosed is returned when generation is requested from a closed store
	ErrClosed = errors.New("dataset store closed")
	// ErrInterrupted is returned to blocking callers when the run they waited on was stopped
	ErrInterrupted = errors.New("dataset generation interrupted")
)

// State is the generation state of the dataset
type State int32

const (
	// StateNotStarted means no generation run is active and the dataset is not complete
	StateNotStarted State = iota
	// StateInProgress means a generation run is filling slots
	StateInProgress
	// StateComplete means every slot is populated
	StateComplete
)

// String returns the state name
func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "NotStarted"
	case StateInProgress:
		return "InProgress"
	case StateComplete:
		return "Complete"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Policy decides whether callers of EnsureGeneration wait for completion
type Policy string

const (
	// PolicyBackground returns immediately; queries see the populated prefix
	PolicyBackground Policy = "background"
	// PolicyBlocking makes every caller wait until the dataset is complete
	PolicyBlocking Policy = "blocking"
)

// Generator builds the record for an id
type Generator interface {
	Generate(id int64) record.Record
}

// Store holds a fixed number of record slots that are filled once, in id order.
//
// Readers never take the generation lock: a slot is written before the fill counter
// is advanced, so any prefix returned by CurrentView contains only complete records.
type Store struct {
	gen       Generator
	size      int
	chunkSize int
	policy    Policy
	metrics   *telemetry.DatasetMetrics

	records []record.Record
	filled  atomic.Int64
	state   atomic.Int32
	runs    atomic.Int64

	// mu guards state transitions and the fields below
	mu        sync.Mutex
	done      chan struct{}
	runExited chan struct{}
	runCancel context.CancelFunc
	closed    bool
}

// Option configures a Store
type Option func(*Store)

// WithChunkSize sets how many slots are filled between progress reports
func WithChunkSize(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.chunkSize = n
		}
	}
}

// WithPolicy sets the generation policy
func WithPolicy(p Policy) Option {
	return func(s *Store) {
		s.policy = p
	}
}

// WithMetrics sets the dataset metrics recorder
func WithMetrics(m *telemetry.DatasetMetrics) Option {
	return func(s *Store) {
		s.metrics = m
	}
}

// New allocates a store with size empty slots. Allocation happens here so that
// an impossible size fails at startup instead of on the first request.
func New(gen Generator, size int, opts ...Option) (*Store, error) {
	if gen == nil {
		return nil, fmt.Errorf("record generator is required")
	}
	if size <= 0 {
		return nil, fmt.Errorf("invalid dataset size: %d", size)
	}

	records, err := allocate(size)
	if err != nil {
		return nil, err
	}

	s := &Store{
		gen:       gen,
		size:      size,
		chunkSize: DefaultChunkSize,
		policy:    PolicyBackground,
		records:   records,
		done:      make(chan struct{}),
	}

	for _, opt := range opts {
		opt(s)
	}

	switch s.policy {
	case PolicyBackground, PolicyBlocking:
	default:
		return nil, fmt.Errorf("unknown generation policy: %s", s.policy)
	}

	return s, nil
}

func allocate(size int) (records []record.Record, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("failed to allocate %d record slots: %v", size, r)
		}
	}()
	return make([]record.Record, size), nil
}

// EnsureGeneration starts the generation run if none has started yet.
// Exactly one run executes no matter how many callers race here.
// With PolicyBlocking the caller waits until the dataset is complete or ctx ends.
func (s *Store) EnsureGeneration(ctx context.Context) error {
	if s.IsComplete() {
		return nil
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if State(s.state.Load()) == StateNotStarted {
		runCtx, cancel := context.WithCancel(context.Background())
		exited := make(chan struct{})
		s.runCancel = cancel
		s.runExited = exited
		s.state.Store(int32(StateInProgress))
		s.runs.Add(1)
		go s.generate(runCtx, exited)
	}
	exited := s.runExited
	s.mu.Unlock()

	if s.policy != PolicyBlocking {
		return nil
	}

	select {
	case <-s.done:
		return nil
	case <-exited:
		if s.IsComplete() {
			return nil
		}
		return ErrInterrupted
	case <-ctx.Done():
		return ctx.Err()
	}
}

// generate fills the remaining slots in increasing id order
func (s *Store) generate(ctx context.Context, exited chan struct{}) {
	defer close(exited)

	start := time.Now()
	from := int(s.filled.Load())
	slog.Info("Generating dataset", "size", s.size, "resume_from", from, "chunk_size", s.chunkSize)

	chunks := 0
	for base := from; base < s.size; base += s.chunkSize {
		if err := ctx.Err(); err != nil {
			s.rollback(start, err)
			return
		}

		end := min(base+s.chunkSize, s.size)
		for i := base; i < end; i++ {
			s.records[i] = s.gen.Generate(int64(i + 1))
			s.filled.Store(int64(i + 1))
		}

		s.metrics.RecordGenerated(ctx, int64(end))
		if chunks%progressEveryChunks == 0 {
			slog.Info("Dataset generation progress", "generated", end, "size", s.size)
		}
		chunks++
	}

	s.mu.Lock()
	s.state.Store(int32(StateComplete))
	close(s.done)
	s.runCancel()
	s.mu.Unlock()

	duration := time.Since(start)
	s.metrics.RecordGenerationDuration(context.Background(), duration, true)
	slog.Info("Dataset generation complete", "size", s.size, "duration", duration)
}

// rollback returns the state to NotStarted after an interrupted run.
// Populated slots are kept and the next run resumes after them.
func (s *Store) rollback(start time.Time, cause error) {
	s.mu.Lock()
	s.state.Store(int32(StateNotStarted))
	s.mu.Unlock()

	s.metrics.RecordGenerationDuration(context.Background(), time.Since(start), false)
	slog.Warn("Dataset generation interrupted",
		"generated", s.filled.Load(),
		"size", s.size,
		"error", cause)
}

// CurrentView returns the populated prefix of the dataset. The slice must not be modified.
func (s *Store) CurrentView() []record.Record {
	n := s.filled.Load()
	return s.records[:n:n]
}

// Get returns the record with the given id if its slot is populated
func (s *Store) Get(id int64) (record.Record, bool) {
	if id < 1 || id > s.filled.Load() {
		return record.Record{}, false
	}
	return s.records[id-1], true
}

// State returns the current generation state
func (s *Store) State() State {
	return State(s.state.Load())
}

// IsComplete reports whether every slot is populated
func (s *Store) IsComplete() bool {
	return s.State() == StateComplete
}

// Generated returns the number of populated slots
func (s *Store) Generated() int {
	return int(s.filled.Load())
}

// Size returns the target number of records
func (s *Store) Size() int {
	return s.size
}

// Runs returns how many generation runs have been started
func (s *Store) Runs() int64 {
	return s.runs.Load()
}

// Policy returns the configured generation policy
func (s *Store) Policy() Policy {
	return s.policy
}

// Done returns a channel closed once the dataset is complete
func (s *Store) Done() <-chan struct{} {
	return s.done
}

// Stop interrupts an in-flight generation run and waits for it to exit.
// A later EnsureGeneration resumes after the last populated slot.
func (s *Store) Stop() {
	if exited := s.interrupt(); exited != nil {
		<-exited
	}
}

// interrupt cancels the latest run and returns the channel closed when it exits.
// It returns nil when no run was ever started.
func (s *Store) interrupt() <-chan struct{} {
	s.mu.Lock()
	cancel, exited := s.runCancel, s.runExited
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	return exited
}

// Close stops generation permanently
func (s *Store) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.Stop()
	return nil
}
