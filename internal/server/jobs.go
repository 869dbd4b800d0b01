package server

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/copyleftdev/tourney/internal/errors"
	"github.com/copyleftdev/tourney/internal/logging"
	"github.com/copyleftdev/tourney/internal/metrics"
	"github.com/copyleftdev/tourney/internal/optimization"
	"github.com/copyleftdev/tourney/internal/optimization/planner"
)

// JobStatus is the lifecycle state of a solve job.
type JobStatus string

const (
	StatusPending   JobStatus = "pending"
	StatusRunning   JobStatus = "running"
	StatusCompleted JobStatus = "completed"
	StatusFailed    JobStatus = "failed"
	StatusCancelled JobStatus = "cancelled"
)

// Terminal reports whether no further transition can happen.
func (s JobStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Job is a submitted solve. All fields are guarded by the manager lock.
type Job struct {
	ID         string
	Solver     string
	Stops      int
	Status     JobStatus
	CreatedAt  time.Time
	StartedAt  time.Time
	FinishedAt time.Time
	Progress   float64
	Message    string
	BestOrder  []int
	BestWeight float64
	Result     *optimization.Result
	Err        error

	problem   *optimization.Problem
	solver    optimization.Solver
	cancel    context.CancelFunc
	cancelled bool
	done      chan struct{}
}

// ResultView is the JSON form of a finished solve.
type ResultView struct {
	Order      []int    `json:"order"`
	Weight     *float64 `json:"weight,omitempty"`
	IsRound    bool     `json:"is_round"`
	Iterations int      `json:"iterations"`
	Stopped    bool     `json:"stopped"`
	Legs       [][2]int `json:"legs"`
}

// JobView is the JSON form of a job.
type JobView struct {
	ID         string      `json:"job_id"`
	Solver     string      `json:"solver"`
	Stops      int         `json:"stops"`
	Status     JobStatus   `json:"status"`
	Progress   float64     `json:"progress"`
	Message    string      `json:"message,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
	StartedAt  *time.Time  `json:"started_at,omitempty"`
	FinishedAt *time.Time  `json:"finished_at,omitempty"`
	BestOrder  []int       `json:"best_order,omitempty"`
	BestWeight *float64    `json:"best_weight,omitempty"`
	Result     *ResultView `json:"result,omitempty"`
	Error      string      `json:"error,omitempty"`
}

// finite returns a pointer to w, or nil when JSON cannot carry it.
func finite(w float64) *float64 {
	if math.IsInf(w, 0) || math.IsNaN(w) {
		return nil
	}
	return &w
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// view snapshots the job. Callers hold the manager lock.
func (j *Job) view() JobView {
	v := JobView{
		ID:         j.ID,
		Solver:     j.Solver,
		Stops:      j.Stops,
		Status:     j.Status,
		Progress:   j.Progress,
		Message:    j.Message,
		CreatedAt:  j.CreatedAt,
		StartedAt:  timePtr(j.StartedAt),
		FinishedAt: timePtr(j.FinishedAt),
	}
	if j.BestOrder != nil {
		v.BestOrder = append([]int(nil), j.BestOrder...)
		v.BestWeight = finite(j.BestWeight)
	}
	if j.Result != nil {
		v.Result = &ResultView{
			Order:      append([]int(nil), j.Result.Order...),
			Weight:     finite(j.Result.Weight),
			IsRound:    j.Result.IsRound,
			Iterations: j.Result.Iterations,
			Stopped:    j.Result.Stopped,
			Legs:       planner.Legs(j.Result),
		}
	}
	if j.Err != nil {
		v.Error = j.Err.Error()
	}
	return v
}

// ManagerConfig sizes the job manager.
type ManagerConfig struct {
	Workers   int
	QueueSize int
	Retention time.Duration
	MaxJobs   int
	// Seed seeds the stream every unseeded job derives its random source
	// from. Zero selects a time-based seed.
	Seed int64
}

// Manager queues solve jobs and runs them on a fixed pool of workers.
type Manager struct {
	cfg     ManagerConfig
	planner *planner.Planner
	broker  *Broker
	logger  *logging.Logger

	mu      sync.RWMutex
	jobs    map[string]*Job
	rng     optimization.Random
	streams uint64

	queue     chan *Job
	ctx       context.Context
	stop      context.CancelFunc
	wg        sync.WaitGroup
	startOnce sync.Once
}

// NewManager creates a manager. Call Start to launch the workers.
func NewManager(cfg ManagerConfig, pl *planner.Planner, broker *Broker, logger *logging.Logger) *Manager {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.QueueSize < 1 {
		cfg.QueueSize = cfg.Workers * 16
	}
	ctx, stop := context.WithCancel(context.Background())
	return &Manager{
		cfg:     cfg,
		planner: pl,
		broker:  broker,
		logger:  logger.WithField("component", "jobs"),
		jobs:    make(map[string]*Job),
		rng:     optimization.NewRandom(cfg.Seed),
		queue:   make(chan *Job, cfg.QueueSize),
		ctx:     ctx,
		stop:    stop,
	}
}

// Start launches the worker pool. Further calls do nothing.
func (m *Manager) Start() {
	m.startOnce.Do(func() {
		for i := 0; i < m.cfg.Workers; i++ {
			m.wg.Add(1)
			go m.worker()
		}
		m.logger.Info("job workers started", map[string]interface{}{"workers": m.cfg.Workers})
	})
}

// Submit validates opts, builds the solver and queues the job.
func (m *Manager) Submit(problem *optimization.Problem, opts planner.Options) (JobView, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ctx.Err() != nil {
		return JobView{}, fmt.Errorf("%w: job manager is shut down", apperrors.ErrUnavailable)
	}
	m.pruneLocked(time.Now())
	if m.cfg.MaxJobs > 0 && len(m.jobs) >= m.cfg.MaxJobs {
		return JobView{}, fmt.Errorf("%w: %d jobs retained", apperrors.ErrUnavailable, len(m.jobs))
	}

	// Seeded requests reproduce; the rest draw an independent stream
	var rng optimization.Random
	if opts.Seed == 0 {
		m.streams++
		rng = optimization.DeriveRandom(m.rng, m.streams)
	}
	solver, err := m.planner.NewSolver(opts, rng)
	if err != nil {
		return JobView{}, fmt.Errorf("%w: %v", apperrors.ErrBadRequest, err)
	}

	job := &Job{
		ID:        uuid.NewString(),
		Solver:    solver.Name(),
		Stops:     problem.Size(),
		Status:    StatusPending,
		CreatedAt: time.Now(),
		problem:   problem,
		solver:    solver,
		done:      make(chan struct{}),
	}
	select {
	case m.queue <- job:
	default:
		return JobView{}, fmt.Errorf("%w: job queue is full", apperrors.ErrUnavailable)
	}
	m.jobs[job.ID] = job

	m.logger.Info("job submitted", map[string]interface{}{
		"job_id": job.ID,
		"solver": job.Solver,
		"stops":  job.Stops,
	})
	return job.view(), nil
}

// Get returns a snapshot of the job.
func (m *Manager) Get(id string) (JobView, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	job, ok := m.jobs[id]
	if !ok {
		return JobView{}, fmt.Errorf("%w: job %s", apperrors.ErrNotFound, id)
	}
	return job.view(), nil
}

// Wait blocks until the job is terminal or ctx is done and returns the
// latest snapshot. It only fails for unknown jobs.
func (m *Manager) Wait(ctx context.Context, id string) (JobView, error) {
	m.mu.RLock()
	job, ok := m.jobs[id]
	m.mu.RUnlock()
	if !ok {
		return JobView{}, fmt.Errorf("%w: job %s", apperrors.ErrNotFound, id)
	}
	select {
	case <-job.done:
	case <-ctx.Done():
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return job.view(), nil
}

// Cancel stops a pending or running job. A running job ends with the best
// complete order found so far.
func (m *Manager) Cancel(id string) (JobView, error) {
	m.mu.Lock()
	job, ok := m.jobs[id]
	if !ok {
		m.mu.Unlock()
		return JobView{}, fmt.Errorf("%w: job %s", apperrors.ErrNotFound, id)
	}
	if job.Status.Terminal() {
		status := job.Status
		m.mu.Unlock()
		return JobView{}, fmt.Errorf("%w: job %s is already %s", apperrors.ErrConflict, id, status)
	}
	job.cancelled = true

	if job.Status == StatusPending {
		job.Status = StatusCancelled
		job.FinishedAt = time.Now()
		close(job.done)
		v := job.view()
		m.mu.Unlock()
		m.publish(EventDone, v)
		return v, nil
	}

	solver, cancel := job.solver, job.cancel
	v := job.view()
	m.mu.Unlock()

	solver.Stop()
	if cancel != nil {
		cancel()
	}
	m.logger.Info("job cancellation requested", map[string]interface{}{"job_id": id})
	return v, nil
}

// Subscribe returns the current snapshot together with a channel of later
// events for the job.
func (m *Manager) Subscribe(id string) (JobView, chan Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	job, ok := m.jobs[id]
	if !ok {
		return JobView{}, nil, fmt.Errorf("%w: job %s", apperrors.ErrNotFound, id)
	}
	// Subscribing under the lock orders the snapshot before any event
	return job.view(), m.broker.Subscribe(id), nil
}

// Unsubscribe releases a channel returned by Subscribe.
func (m *Manager) Unsubscribe(id string, ch chan Event) {
	m.broker.Unsubscribe(id, ch)
}

// Close stops the workers, stopping running solves, and cancels pending
// jobs.
func (m *Manager) Close() error {
	m.mu.Lock()
	m.stop()
	var pending []JobView
	for _, job := range m.jobs {
		switch job.Status {
		case StatusRunning:
			job.cancelled = true
			job.solver.Stop()
		case StatusPending:
			job.cancelled = true
			job.Status = StatusCancelled
			job.FinishedAt = time.Now()
			close(job.done)
			pending = append(pending, job.view())
		}
	}
	m.mu.Unlock()

	for _, v := range pending {
		m.publish(EventDone, v)
	}
	m.wg.Wait()
	return nil
}

func (m *Manager) worker() {
	defer m.wg.Done()
	for {
		select {
		case <-m.ctx.Done():
			return
		case job := <-m.queue:
			m.run(job)
		}
	}
}

type progressReporter interface {
	OnProgress(fn optimization.ProgressFunc)
}

func (m *Manager) run(job *Job) {
	m.mu.Lock()
	if job.Status != StatusPending {
		m.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(m.ctx)
	defer cancel()
	job.cancel = cancel
	job.Status = StatusRunning
	job.StartedAt = time.Now()
	v := job.view()
	m.mu.Unlock()

	metrics.JobsRunning.Inc()
	defer metrics.JobsRunning.Dec()
	m.publish(EventStatus, v)

	solver := job.solver
	solver.OnIntermediateResult(m.planner.Improvement(solver.Name(), func(order []int, weight float64) {
		m.intermediate(job, order, weight)
	}))
	if pr, ok := solver.(progressReporter); ok {
		pr.OnProgress(func(message string, current, total int) {
			m.progress(job, message, current, total)
		})
	}

	res, err := m.planner.Run(ctx, solver, job.problem)
	m.finish(job, res, err)
}

func (m *Manager) intermediate(job *Job, order []int, weight float64) {
	m.mu.Lock()
	job.BestOrder = order
	job.BestWeight = weight
	id := job.ID
	m.mu.Unlock()

	data := map[string]any{"order": order}
	if w := finite(weight); w != nil {
		data["weight"] = *w
	}
	m.broker.Publish(Event{Type: EventIntermediate, JobID: id, Data: data})
}

func (m *Manager) progress(job *Job, message string, current, total int) {
	m.mu.Lock()
	if total > 0 {
		job.Progress = math.Min(1, float64(current)/float64(total))
	}
	job.Message = message
	id, progress := job.ID, job.Progress
	m.mu.Unlock()

	m.broker.Publish(Event{Type: EventProgress, JobID: id, Data: map[string]any{
		"message":  message,
		"current":  current,
		"total":    total,
		"progress": progress,
	}})
}

func (m *Manager) finish(job *Job, res *optimization.Result, err error) {
	m.mu.Lock()
	job.FinishedAt = time.Now()
	switch {
	case err != nil:
		job.Status = StatusFailed
		job.Err = err
	case job.cancelled:
		job.Status = StatusCancelled
		job.Result = res
	default:
		job.Status = StatusCompleted
		job.Result = res
		job.Progress = 1
	}
	close(job.done)
	v := job.view()
	elapsed := job.FinishedAt.Sub(job.StartedAt)
	m.mu.Unlock()

	fields := map[string]interface{}{
		"job_id":   v.ID,
		"status":   v.Status,
		"duration": elapsed.String(),
	}
	if err != nil {
		fields["error"] = err.Error()
		m.logger.Warn("job failed", fields)
	} else {
		m.logger.Info("job finished", fields)
	}
	m.publish(EventDone, v)
}

// publish sends a snapshot event for a job.
func (m *Manager) publish(kind string, v JobView) {
	m.broker.Publish(Event{Type: kind, JobID: v.ID, Data: map[string]any{"job": v}})
}

// pruneLocked drops terminal jobs older than the retention period.
func (m *Manager) pruneLocked(now time.Time) {
	if m.cfg.Retention <= 0 {
		return
	}
	for id, job := range m.jobs {
		if job.Status.Terminal() && now.Sub(job.FinishedAt) > m.cfg.Retention {
			delete(m.jobs, id)
		}
	}
}
