/*
runner.go - Batch compensation generation

PURPOSE:
  Generates (or refreshes) the draft compensation of every staff member who
  logged time in a period. Each run is a Job whose progress is persisted so
  callers can poll it by id.

DESIGN:
  - Start records a pending job and returns it at once; the work runs on a
    background goroutine owned by the Runner
  - A fixed pool of workers consumes staff ids; one staff failure is
    recorded on the job and does not stop the others
  - Progress is saved after every staff member
  - Stop cancels running jobs and waits for them

USAGE:
  runner := jobs.NewRunner(store, store, service, 4, generic.SystemClock{})
  job, err := runner.Start(ctx, period)
  // ... later
  job, err = store.GetJob(ctx, job.ID)
  runner.Stop()

SEE ALSO:
  - compensation/service.go: Generate
  - store/sqlstore/jobs.go: SQL job store
*/
package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/warp/care-ledger/generic"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Job is one batch generation run.
type Job struct {
	ID          string     `json:"id"`
	PeriodStart time.Time  `json:"periodStart"`
	PeriodEnd   time.Time  `json:"periodEnd"`
	Status      Status     `json:"status"`
	Total       int        `json:"total"`
	Processed   int        `json:"processed"`
	Failed      int        `json:"failed"`
	Errors      []string   `json:"errors,omitempty"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
}

func (j Job) Period() generic.Period {
	return generic.Period{Start: j.PeriodStart, End: j.PeriodEnd}
}

// Done reports whether the job reached a final status.
func (j Job) Done() bool {
	return j.Status == StatusCompleted || j.Status == StatusFailed
}

// Store persists job progress. GetJob returns NotFound for unknown ids.
type Store interface {
	SaveJob(ctx context.Context, j Job) error
	GetJob(ctx context.Context, id string) (*Job, error)
}

// StaffLister finds who worked in a period.
type StaffLister interface {
	ListStaffWithTimeLogs(ctx context.Context, period generic.Period) ([]generic.StaffID, error)
}

// Generator creates or refreshes one compensation.
type Generator interface {
	Generate(ctx context.Context, staffID generic.StaffID, period generic.Period) (*generic.StaffCompensation, error)
}

// Runner executes jobs in the background.
type Runner struct {
	Store     Store
	Staff     StaffLister
	Generator Generator
	Workers   int
	Clock     generic.Clock

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex // guards stopped and wg.Add against Stop
	stopped bool
}

func NewRunner(store Store, staff StaffLister, gen Generator, workers int, clock generic.Clock) *Runner {
	if workers < 1 {
		workers = 1
	}
	if clock == nil {
		clock = generic.SystemClock{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Runner{
		Store:     store,
		Staff:     staff,
		Generator: gen,
		Workers:   workers,
		Clock:     clock,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start validates the period, saves a pending job and runs it in the
// background. The returned job is the pending snapshot.
func (r *Runner) Start(ctx context.Context, period generic.Period) (*Job, error) {
	if err := period.Validate(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return nil, fmt.Errorf("runner stopped: %w", context.Canceled)
	}

	job := Job{
		ID:          generic.NewID(),
		PeriodStart: period.Start,
		PeriodEnd:   period.End,
		Status:      StatusPending,
		CreatedAt:   r.Clock.Now(),
	}
	if err := r.Store.SaveJob(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to save job: %w", err)
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.Run(r.ctx, job)
	}()

	log.WithFields(log.Fields{"job": job.ID, "period": period.String()}).Info("Compensation job started")
	return &job, nil
}

// Run processes job synchronously and returns its final state.
func (r *Runner) Run(ctx context.Context, job Job) Job {
	started := r.Clock.Now()
	job.StartedAt = &started
	job.Status = StatusRunning

	period := job.Period()
	staff, err := r.Staff.ListStaffWithTimeLogs(ctx, period)
	if err != nil {
		return r.finish(ctx, job, StatusFailed, fmt.Sprintf("list staff: %v", err))
	}
	job.Total = len(staff)
	r.save(ctx, job)

	ids := make(chan generic.StaffID)
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < r.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range ids {
				_, err := r.Generator.Generate(ctx, id, period)

				mu.Lock()
				job.Processed++
				if err != nil {
					job.Failed++
					job.Errors = append(job.Errors, fmt.Sprintf("staff %s: %v", id, err))
					log.WithError(err).WithFields(log.Fields{"job": job.ID, "staff": id}).Warn("Compensation generation failed")
				}
				r.save(ctx, job)
				mu.Unlock()
			}
		}()
	}

feed:
	for _, id := range staff {
		select {
		case ids <- id:
		case <-ctx.Done():
			break feed
		}
	}
	close(ids)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return r.finish(context.Background(), job, StatusFailed, fmt.Sprintf("cancelled: %v", err))
	}
	return r.finish(ctx, job, StatusCompleted, "")
}

func (r *Runner) finish(ctx context.Context, job Job, status Status, msg string) Job {
	done := r.Clock.Now()
	job.Status = status
	job.CompletedAt = &done
	if msg != "" {
		job.Errors = append(job.Errors, msg)
	}
	r.save(ctx, job)

	log.WithFields(log.Fields{
		"job":       job.ID,
		"status":    job.Status,
		"processed": job.Processed,
		"failed":    job.Failed,
	}).Info("Compensation job finished")
	return job
}

func (r *Runner) save(ctx context.Context, job Job) {
	// errors slice is shared with the caller's copy
	job.Errors = append([]string(nil), job.Errors...)
	if err := r.Store.SaveJob(ctx, job); err != nil {
		log.WithError(err).WithField("job", job.ID).Error("Failed to save job progress")
	}
}

// Wait blocks until every started job has finished.
func (r *Runner) Wait() {
	r.wg.Wait()
}

// Stop cancels running jobs and waits for them to record their state.
func (r *Runner) Stop() {
	r.mu.Lock()
	r.stopped = true
	r.mu.Unlock()
	r.cancel()
	r.wg.Wait()
}

// =============================================================================
// MEMORY STORE
// =============================================================================

// MemoryStore keeps jobs in a map.
type MemoryStore struct {
	mu   sync.Mutex
	jobs map[string]Job
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: make(map[string]Job)}
}

func (m *MemoryStore) SaveJob(_ context.Context, j Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j.Errors = append([]string(nil), j.Errors...)
	m.jobs[j.ID] = j
	return nil
}

func (m *MemoryStore) GetJob(_ context.Context, id string) (*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return nil, generic.NotFound("job", id)
	}
	j.Errors = append([]string(nil), j.Errors...)
	return &j, nil
}
