package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"driveplane/internal/adapters"
	"driveplane/internal/store"
)

// fakeClock hands out instants advancing by step on every Now call, so
// loops that track a time budget terminate deterministically.
type fakeClock struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.now
	c.now = c.now.Add(c.step)
	return t
}

// memStore is an in-memory RecordStore that mirrors the compare-and-set
// semantics of the Postgres implementation.
type memStore struct {
	mu      sync.Mutex
	records map[string]*store.PipelineRecord
	writes  int
}

func newMemStore() *memStore {
	return &memStore{records: make(map[string]*store.PipelineRecord)}
}

func clone(rec *store.PipelineRecord) *store.PipelineRecord {
	c := *rec
	copyTime := func(t *time.Time) *time.Time {
		if t == nil {
			return nil
		}
		v := *t
		return &v
	}
	c.SourceToStage.StartTime = copyTime(rec.SourceToStage.StartTime)
	c.SourceToStage.EndTime = copyTime(rec.SourceToStage.EndTime)
	c.StageToTarget.StartTime = copyTime(rec.StageToTarget.StartTime)
	c.StageToTarget.EndTime = copyTime(rec.StageToTarget.EndTime)
	c.Audit.StartTime = copyTime(rec.Audit.StartTime)
	c.Audit.EndTime = copyTime(rec.Audit.EndTime)
	c.PipelineStartTime = copyTime(rec.PipelineStartTime)
	c.PipelineEndTime = copyTime(rec.PipelineEndTime)
	if rec.DagRunID != nil {
		v := *rec.DagRunID
		c.DagRunID = &v
	}
	if rec.AuditResult != nil {
		v := *rec.AuditResult
		c.AuditResult = &v
	}
	if rec.CompletedPhase != nil {
		v := *rec.CompletedPhase
		c.CompletedPhase = &v
	}
	copyInt := func(i *int64) *int64 {
		if i == nil {
			return nil
		}
		v := *i
		return &v
	}
	c.SourceCount = copyInt(rec.SourceCount)
	c.TargetCount = copyInt(rec.TargetCount)
	c.CountDifference = copyInt(rec.CountDifference)
	if rec.PercentageDifference != nil {
		v := *rec.PercentageDifference
		c.PercentageDifference = &v
	}
	return &c
}

func (m *memStore) phase(rec *store.PipelineRecord, p store.Phase) *store.PhaseState {
	switch p {
	case store.PhaseSourceToStage:
		return &rec.SourceToStage
	case store.PhaseStageToTarget:
		return &rec.StageToTarget
	default:
		return &rec.Audit
	}
}

func (m *memStore) UpsertNew(ctx context.Context, rec *store.PipelineRecord) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[rec.PipelineID]; ok {
		return false, nil
	}
	m.records[rec.PipelineID] = clone(rec)
	m.writes++
	return true, nil
}

func (m *memStore) Acquire(ctx context.Context, pipelineID, dagRunID string, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[pipelineID]
	if !ok {
		return false, nil
	}
	if rec.DagRunID != nil || (rec.PipelineStatus != store.StatusPending && rec.PipelineStatus != store.StatusFailed) {
		return false, nil
	}
	rec.PipelineStatus = store.StatusInProgress
	rec.PipelineStartTime = &now
	rec.DagRunID = &dagRunID
	m.writes++
	return true, nil
}

func (m *memStore) BeginPhase(ctx context.Context, pipelineID, dagRunID string, phase store.Phase, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[pipelineID]
	if !ok || rec.PipelineStatus != store.StatusInProgress || rec.DagRunID == nil || *rec.DagRunID != dagRunID {
		return false, nil
	}
	ps := m.phase(rec, phase)
	ps.Status = store.StatusInProgress
	ps.StartTime = &now
	m.writes++
	return true, nil
}

func (m *memStore) EndPhaseOK(ctx context.Context, pipelineID string, phase store.Phase, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[pipelineID]
	if !ok {
		return false, nil
	}
	ps := m.phase(rec, phase)
	if ps.Status != store.StatusInProgress {
		return false, nil
	}
	ps.Status = store.StatusCompleted
	ps.EndTime = &now
	p := phase
	rec.CompletedPhase = &p
	m.writes++
	return true, nil
}

func (m *memStore) ResetPhase(ctx context.Context, pipelineID string, phase store.Phase, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[pipelineID]
	if !ok {
		return false, nil
	}
	ps := m.phase(rec, phase)
	ps.Status = store.StatusPending
	ps.StartTime = nil
	ps.EndTime = nil
	rec.PipelineStatus = store.StatusPending
	rec.PipelineStartTime = nil
	rec.DagRunID = nil
	rec.RetryAttempt++
	m.writes++
	return true, nil
}

func (m *memStore) FinalizeOK(ctx context.Context, pipelineID string, now time.Time, counts store.AuditCounts) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[pipelineID]
	if !ok || rec.Audit.Status != store.StatusInProgress {
		return false, nil
	}
	rec.Audit.Status = store.StatusCompleted
	rec.Audit.EndTime = &now
	res := store.AuditResultSuccess
	rec.AuditResult = &res
	rec.PipelineStatus = store.StatusCompleted
	rec.PipelineEndTime = &now
	p := store.PhaseAudit
	rec.CompletedPhase = &p
	rec.SourceCount = &counts.SourceCount
	rec.TargetCount = &counts.TargetCount
	rec.CountDifference = &counts.CountDifference
	rec.PercentageDifference = &counts.PercentageDifference
	m.writes++
	return true, nil
}

func (m *memStore) FinalizeFail(ctx context.Context, pipelineID string, now time.Time, result store.AuditResult) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[pipelineID]
	if !ok {
		return false, nil
	}
	rec.Audit.Status = store.StatusFailed
	rec.Audit.EndTime = &now
	rec.AuditResult = &result
	rec.PipelineStatus = store.StatusFailed
	rec.PipelineStartTime = nil
	rec.PipelineEndTime = nil
	rec.DagRunID = nil
	rec.CompletedPhase = nil
	rec.SourceToStage = store.PhaseState{Status: store.StatusPending}
	rec.StageToTarget = store.PhaseState{Status: store.StatusPending}
	rec.SourceCount = nil
	rec.TargetCount = nil
	rec.CountDifference = nil
	rec.PercentageDifference = nil
	rec.RetryAttempt++
	m.writes++
	return true, nil
}

func (m *memStore) MaxWindowEnd(ctx context.Context, id store.Identity, targetDay time.Time) (*time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var max *time.Time
	day := targetDay.Format("2006-01-02")
	for _, rec := range m.records {
		if rec.SourceName != id.SourceName || rec.SourceCategory != id.SourceCategory ||
			rec.SourceSubCategory != id.SourceSubCategory || rec.TargetDay.Format("2006-01-02") != day {
			continue
		}
		end := rec.WindowEndTime
		if max == nil || end.After(*max) {
			max = &end
		}
	}
	return max, nil
}

func (m *memStore) CountsByWindow(ctx context.Context, id store.Identity, windowStart, windowEnd time.Time) (*store.WindowCounts, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range m.records {
		if rec.SourceName == id.SourceName && rec.WindowStartTime.Equal(windowStart) &&
			rec.WindowEndTime.Equal(windowEnd) && rec.PipelineStatus == store.StatusCompleted &&
			rec.SourceCount != nil && rec.TargetCount != nil {
			return &store.WindowCounts{SourceCount: *rec.SourceCount, TargetCount: *rec.TargetCount}, nil
		}
	}
	return nil, nil
}

func (m *memStore) SelectStale(ctx context.Context, now time.Time, threshold time.Duration) ([]store.StaleRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var stale []store.StaleRecord
	for _, rec := range m.records {
		if rec.PipelineStatus != store.StatusInProgress || rec.DagRunID == nil || rec.PipelineStartTime == nil {
			continue
		}
		if now.Sub(*rec.PipelineStartTime) <= threshold {
			continue
		}
		stale = append(stale, store.StaleRecord{
			PipelineID:          rec.PipelineID,
			DagRunID:            *rec.DagRunID,
			PipelineStartTime:   *rec.PipelineStartTime,
			SourceToStageStatus: rec.SourceToStage.Status,
			StageToTargetStatus: rec.StageToTarget.Status,
			AuditStatus:         rec.Audit.Status,
		})
	}
	return stale, nil
}

func (m *memStore) ResetStale(ctx context.Context, stale store.StaleRecord, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[stale.PipelineID]
	if !ok || rec.PipelineStatus != store.StatusInProgress || rec.DagRunID == nil || *rec.DagRunID != stale.DagRunID {
		return false, nil
	}
	rec.PipelineStatus = store.StatusPending
	rec.PipelineStartTime = nil
	rec.PipelineEndTime = nil
	rec.DagRunID = nil
	rec.RetryAttempt++
	rec.CompletedPhase = nil
	if rec.StageToTarget.Status == store.StatusCompleted {
		p := store.PhaseStageToTarget
		rec.CompletedPhase = &p
	} else if rec.SourceToStage.Status == store.StatusCompleted {
		p := store.PhaseSourceToStage
		rec.CompletedPhase = &p
	}
	if rec.SourceToStage.Status != store.StatusCompleted {
		rec.SourceToStage = store.PhaseState{Status: store.StatusPending}
	}
	if rec.StageToTarget.Status != store.StatusCompleted {
		rec.StageToTarget = store.PhaseState{Status: store.StatusPending}
	}
	if rec.Audit.Status != store.StatusCompleted {
		rec.Audit = store.PhaseState{Status: store.StatusPending}
		rec.AuditResult = nil
	}
	m.writes++
	return true, nil
}

func (m *memStore) Get(ctx context.Context, pipelineID string) (*store.PipelineRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[pipelineID]
	if !ok {
		return nil, fmt.Errorf("record %s not found", pipelineID)
	}
	return clone(rec), nil
}

func (m *memStore) OldestPending(ctx context.Context, id store.Identity, priority float64) (*store.PipelineRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var oldest *store.PipelineRecord
	for _, rec := range m.records {
		if rec.PipelineStatus != store.StatusPending || rec.SourceName != id.SourceName || rec.PipelinePriority != priority {
			continue
		}
		if oldest == nil || rec.WindowStartTime.Before(oldest.WindowStartTime) {
			oldest = rec
		}
	}
	if oldest == nil {
		return nil, nil
	}
	return clone(oldest), nil
}

func (m *memStore) ListByTargetDay(ctx context.Context, id store.Identity, targetDay time.Time) ([]*store.PipelineRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	day := targetDay.Format("2006-01-02")
	var out []*store.PipelineRecord
	for _, rec := range m.records {
		if rec.SourceName == id.SourceName && rec.TargetDay.Format("2006-01-02") == day {
			out = append(out, clone(rec))
		}
	}
	return out, nil
}

// get is a test helper for direct record inspection.
func (m *memStore) get(pipelineID string) *store.PipelineRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return clone(m.records[pipelineID])
}

// put seeds a record directly.
func (m *memStore) put(rec *store.PipelineRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[rec.PipelineID] = clone(rec)
}

// writeCount reports how many mutations the store has seen.
func (m *memStore) writeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

// Fake adapters. Counts and errors are settable per call site; every call
// is recorded for assertions.

type fakeSource struct {
	mu     sync.Mutex
	count  int64
	err    error
	counts int
}

func (f *fakeSource) Count(ctx context.Context, id store.Identity, w adapters.Window) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counts++
	return f.count, f.err
}

func (f *fakeSource) CheckExists(ctx context.Context, id store.Identity, w adapters.Window) (bool, error) {
	return f.count > 0, f.err
}

func (f *fakeSource) Delete(ctx context.Context, id store.Identity, w adapters.Window) error {
	return f.err
}

type fakeStage struct {
	mu      sync.Mutex
	count   int64
	err     error
	deletes []string
}

func (f *fakeStage) Count(ctx context.Context, stagePath string) (int64, error) {
	return f.count, f.err
}

func (f *fakeStage) CheckExists(ctx context.Context, stagePath string) (bool, error) {
	return f.count > 0, f.err
}

func (f *fakeStage) Delete(ctx context.Context, stagePath string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes = append(f.deletes, stagePath)
	return f.err
}

func (f *fakeStage) deleteCalls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.deletes...)
}

type fakeTarget struct {
	mu sync.Mutex
	// counts is consumed one value per Count call; the last value repeats.
	counts   []int64
	countErr error
	loadErr  error
	// loadFailures makes Load fail that many times before succeeding,
	// independent of loadErr.
	loadFailures int
	deleteErr    error
	loads        int
	deletes      int
}

func (f *fakeTarget) Load(ctx context.Context, rec *store.PipelineRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loads++
	if f.loadFailures > 0 {
		f.loadFailures--
		return fmt.Errorf("transient load failure")
	}
	return f.loadErr
}

func (f *fakeTarget) Count(ctx context.Context, id store.Identity, w adapters.Window) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.countErr != nil {
		return 0, f.countErr
	}
	if len(f.counts) == 0 {
		return 0, nil
	}
	v := f.counts[0]
	if len(f.counts) > 1 {
		f.counts = f.counts[1:]
	}
	return v, nil
}

func (f *fakeTarget) Delete(ctx context.Context, id store.Identity, w adapters.Window) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes++
	return f.deleteErr
}

func (f *fakeTarget) stats() (loads, deletes int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loads, f.deletes
}

type fakeTransfer struct {
	mu        sync.Mutex
	err       error
	transfers int
	lastPath  string
}

func (f *fakeTransfer) Transfer(ctx context.Context, rec *store.PipelineRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transfers++
	f.lastPath = rec.StagePath()
	return f.err
}

func (f *fakeTransfer) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.transfers
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
