package jobs_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/care-ledger/generic"
	"github.com/warp/care-ledger/jobs"
)

var (
	january = generic.NewPeriod(generic.Day(2025, time.January, 1), generic.Day(2025, time.January, 31))
	now     = time.Date(2025, time.February, 1, 9, 0, 0, 0, time.UTC)
)

type staticStaff []generic.StaffID

func (s staticStaff) ListStaffWithTimeLogs(context.Context, generic.Period) ([]generic.StaffID, error) {
	return s, nil
}

type failingStaff struct{}

func (failingStaff) ListStaffWithTimeLogs(context.Context, generic.Period) ([]generic.StaffID, error) {
	return nil, errors.New("database down")
}

// fakeGenerator records calls and fails for the ids in fail.
type fakeGenerator struct {
	mu    sync.Mutex
	calls []generic.StaffID
	fail  map[generic.StaffID]bool
	block chan struct{}
}

func (g *fakeGenerator) Generate(ctx context.Context, id generic.StaffID, p generic.Period) (*generic.StaffCompensation, error) {
	if g.block != nil {
		select {
		case <-g.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	g.mu.Lock()
	g.calls = append(g.calls, id)
	g.mu.Unlock()
	if g.fail[id] {
		return nil, errors.New("no rates")
	}
	return &generic.StaffCompensation{StaffID: id, PeriodStart: p.Start, PeriodEnd: p.End}, nil
}

func newRunner(staff jobs.StaffLister, gen jobs.Generator) (*jobs.Runner, *jobs.MemoryStore) {
	store := jobs.NewMemoryStore()
	return jobs.NewRunner(store, staff, gen, 2, &generic.FixedClock{At: now}), store
}

func TestRunner_CompletesEveryStaffMember(t *testing.T) {
	// GIVEN: Three staff members with time logs
	gen := &fakeGenerator{}
	r, store := newRunner(staticStaff{"a", "b", "c"}, gen)
	defer r.Stop()

	// WHEN: A job is started and allowed to finish
	job, err := r.Start(context.Background(), january)
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusPending, job.Status)
	r.Wait()

	// THEN: All three are processed and the job is completed
	got, err := store.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusCompleted, got.Status)
	assert.Equal(t, 3, got.Total)
	assert.Equal(t, 3, got.Processed)
	assert.Equal(t, 0, got.Failed)
	assert.Empty(t, got.Errors)
	require.NotNil(t, got.StartedAt)
	require.NotNil(t, got.CompletedAt)
	assert.True(t, got.Done())
	assert.ElementsMatch(t, []generic.StaffID{"a", "b", "c"}, gen.calls)
}

func TestRunner_StaffFailureIsRecorded(t *testing.T) {
	// GIVEN: A generator that fails for one staff member
	gen := &fakeGenerator{fail: map[generic.StaffID]bool{"b": true}}
	r, _ := newRunner(staticStaff{"a", "b", "c"}, gen)

	// WHEN: The job runs synchronously
	job := r.Run(context.Background(), jobs.Job{ID: "job-1", PeriodStart: january.Start, PeriodEnd: january.End})

	// THEN: The others are still processed and the failure is listed
	assert.Equal(t, jobs.StatusCompleted, job.Status)
	assert.Equal(t, 3, job.Processed)
	assert.Equal(t, 1, job.Failed)
	require.Len(t, job.Errors, 1)
	assert.Contains(t, job.Errors[0], "staff b")
}

func TestRunner_ListFailureFailsJob(t *testing.T) {
	r, store := newRunner(failingStaff{}, &fakeGenerator{})

	job := r.Run(context.Background(), jobs.Job{ID: "job-1", PeriodStart: january.Start, PeriodEnd: january.End})

	assert.Equal(t, jobs.StatusFailed, job.Status)
	require.Len(t, job.Errors, 1)
	assert.Contains(t, job.Errors[0], "database down")

	saved, err := store.GetJob(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusFailed, saved.Status)
}

func TestRunner_StopCancelsRunningJob(t *testing.T) {
	// GIVEN: A job whose generator never returns on its own
	gen := &fakeGenerator{block: make(chan struct{})}
	r, store := newRunner(staticStaff{"a", "b", "c"}, gen)
	job, err := r.Start(context.Background(), january)
	require.NoError(t, err)

	// WHEN: The runner is stopped
	r.Stop()

	// THEN: The job is saved as failed and no new job can start
	got, err := store.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusFailed, got.Status)
	assert.NotNil(t, got.CompletedAt)

	_, err = r.Start(context.Background(), january)
	assert.Error(t, err)
}

func TestRunner_RejectsReversedPeriod(t *testing.T) {
	r, _ := newRunner(staticStaff{}, &fakeGenerator{})
	defer r.Stop()

	_, err := r.Start(context.Background(), generic.Period{Start: january.End, End: january.Start})
	assert.True(t, generic.IsValidation(err))
}

func TestMemoryStore_UnknownJob(t *testing.T) {
	_, err := jobs.NewMemoryStore().GetJob(context.Background(), "missing")
	assert.True(t, generic.IsNotFound(err))
}

func TestRunner_ManyStaffAcrossWorkers(t *testing.T) {
	// GIVEN: More staff than workers
	ids := make(staticStaff, 40)
	for i := range ids {
		ids[i] = generic.StaffID(fmt.Sprintf("s-%02d", i))
	}
	gen := &fakeGenerator{fail: map[generic.StaffID]bool{"s-07": true, "s-31": true}}
	store := jobs.NewMemoryStore()
	r := jobs.NewRunner(store, ids, gen, 8, &generic.FixedClock{At: now})

	// WHEN: The job runs
	job := r.Run(context.Background(), jobs.Job{ID: "job-1", PeriodStart: january.Start, PeriodEnd: january.End})

	// THEN: Every staff member is counted once and both failures are listed
	assert.Equal(t, jobs.StatusCompleted, job.Status)
	assert.Equal(t, 40, job.Processed)
	assert.Equal(t, 2, job.Failed)
	assert.Len(t, job.Errors, 2)
	assert.Len(t, gen.calls, 40)
}

func TestRunner_StartRacingStop(t *testing.T) {
	// GIVEN: Several callers starting jobs while the runner is stopped
	r, store := newRunner(staticStaff{"a", "b"}, &fakeGenerator{})

	var wg sync.WaitGroup
	started := make(chan string, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if job, err := r.Start(context.Background(), january); err == nil {
				started <- job.ID
			}
		}()
	}
	r.Stop()
	wg.Wait()
	close(started)

	// THEN: Every accepted job reached a final state before Stop returned
	for id := range started {
		got, err := store.GetJob(context.Background(), id)
		require.NoError(t, err)
		assert.True(t, got.Done(), "job %s left %s", id, got.Status)
	}

	// AND: Nothing starts afterwards
	_, err := r.Start(context.Background(), january)
	assert.Error(t, err)
}
