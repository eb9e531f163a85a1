package usecase

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"

	"ai-stream-relay/internal/domain"
	"ai-stream-relay/internal/domain/model"
	"ai-stream-relay/internal/domain/ports/adapter"
	"ai-stream-relay/internal/domain/ports/repository"
)

// --- In-memory job repository ---

type fakeJobRepo struct {
	mu   sync.Mutex
	jobs map[string]*model.StreamingJob

	failCalls     int
	completeCalls int
	appendCalls   int
	phaseLog      []string
}

func newFakeJobRepo() *fakeJobRepo {
	return &fakeJobRepo{jobs: make(map[string]*model.StreamingJob)}
}

func (f *fakeJobRepo) get(id string) *model.StreamingJob {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.jobs[id]
}

func (f *fakeJobRepo) Create(ctx context.Context, tx repository.Tx, job *model.StreamingJob) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *job
	f.jobs[job.ID] = &cp
	return nil
}

func (f *fakeJobRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.StreamingJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.jobs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *j
	return &cp, nil
}

func (f *fakeJobRepo) FindActiveByConversation(ctx context.Context, tx repository.Tx, conversationID string) (*model.StreamingJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, j := range f.jobs {
		if j.ConversationID == conversationID && !j.Status.Terminal() {
			cp := *j
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (f *fakeJobRepo) ClaimNext(ctx context.Context, limit int) ([]*model.StreamingJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.StreamingJob
	for _, j := range f.jobs {
		if len(out) >= limit {
			break
		}
		if j.Status == model.JobStatusPending {
			j.Status = model.JobStatusProcessing
			now := time.Now()
			j.StartedAt = &now
			cp := *j
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeJobRepo) AppendProgress(ctx context.Context, tx repository.Tx, id, content string, progress model.ProgressInfo) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.appendCalls++
	f.phaseLog = append(f.phaseLog, progress.Phase)
	j, ok := f.jobs[id]
	if !ok {
		return domain.ErrNotFound
	}
	if !j.Status.Active() {
		if len(j.PartialContent) >= len(content) {
			return nil
		}
		return domain.ErrConflict
	}
	if len(content) < len(j.PartialContent) {
		return nil // stale replay
	}
	j.PartialContent = content
	j.Progress = progress
	if j.Status == model.JobStatusProcessing {
		j.Status = model.JobStatusStreaming
	}
	j.UpdatedAt = time.Now()
	return nil
}

func (f *fakeJobRepo) Complete(ctx context.Context, tx repository.Tx, id string, resp model.ResponseData) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completeCalls++
	j, ok := f.jobs[id]
	if !ok {
		return domain.ErrNotFound
	}
	if !j.Status.Active() {
		return domain.ErrConflict
	}
	j.Status = model.JobStatusCompleted
	j.Response = &resp
	now := time.Now()
	j.CompletedAt = &now
	return nil
}

func (f *fakeJobRepo) Fail(ctx context.Context, tx repository.Tx, id, errorMessage string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failCalls++
	j, ok := f.jobs[id]
	if !ok {
		return domain.ErrNotFound
	}
	if j.Status.Terminal() {
		return domain.ErrConflict
	}
	j.Status = model.JobStatusFailed
	j.ErrorMessage = errorMessage
	return nil
}

func (f *fakeJobRepo) Cancel(ctx context.Context, tx repository.Tx, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.jobs[id]
	if !ok {
		return domain.ErrNotFound
	}
	if j.Status.Terminal() {
		return domain.ErrConflict
	}
	j.Status = model.JobStatusCancelled
	return nil
}

func (f *fakeJobRepo) SweepExpired(ctx context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for id, j := range f.jobs {
		if j.Status.Terminal() && time.Now().After(j.ExpiresAt) {
			delete(f.jobs, id)
			n++
		}
	}
	return n, nil
}

func (f *fakeJobRepo) RequeueStale(ctx context.Context, cutoff time.Duration) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, j := range f.jobs {
		if j.Status.Active() && time.Since(j.UpdatedAt) > cutoff {
			j.Status = model.JobStatusPending
			j.StartedAt = nil
			n++
		}
	}
	return n, nil
}

func (f *fakeJobRepo) CountByStatus(ctx context.Context, tx repository.Tx) (map[model.JobStatus]int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[model.JobStatus]int)
	for _, j := range f.jobs {
		out[j.Status]++
	}
	return out, nil
}

// --- Rate limiter and locker fakes ---

type fakeLimiter struct {
	allow bool
	err   error
	calls int
}

func (f *fakeLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	f.calls++
	return f.allow, f.err
}

type fakeLocker struct {
	busy    bool
	locks   int
	unlocks int
}

func (f *fakeLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if f.busy {
		return "", domain.ErrJobBusy
	}
	f.locks++
	return "token", nil
}

func (f *fakeLocker) Unlock(ctx context.Context, key, token string) error {
	f.unlocks++
	return nil
}

// --- Scripted provider adapter ---

// scriptedStream replays a fixed event list, then reports final.
type scriptedStream struct {
	events  []string
	idx     int
	recvErr error // returned after the scripted events instead of io.EOF
	final   adapter.FinalResult
	closed  bool
}

func (s *scriptedStream) Recv(ctx context.Context) (json.RawMessage, error) {
	if s.idx < len(s.events) {
		ev := s.events[s.idx]
		s.idx++
		return json.RawMessage(ev), nil
	}
	if s.recvErr != nil {
		return nil, s.recvErr
	}
	return nil, io.EOF
}

func (s *scriptedStream) Final() (adapter.FinalResult, error) { return s.final, nil }
func (s *scriptedStream) Close() error                        { s.closed = true; return nil }

type fakeAdapter struct {
	name     string
	events   []string
	final    adapter.FinalResult
	startErr error
	recvErr  error
	streams  int
	last     *scriptedStream
}

func (f *fakeAdapter) Provider() string { return f.name }
func (f *fakeAdapter) ListModels(ctx context.Context) ([]string, error) {
	return []string{f.name + "-model"}, nil
}
func (f *fakeAdapter) Capabilities(modelID string) (adapter.Capabilities, error) {
	return adapter.Capabilities{StreamTimeout: time.Minute, LatencyClass: "fast"}, nil
}
func (f *fakeAdapter) CountTokens(ctx context.Context, modelID string, messages []model.RequestMessage) (int, error) {
	return 1, nil
}
func (f *fakeAdapter) StreamChat(ctx context.Context, req adapter.StreamRequest) (adapter.EventStream, error) {
	f.streams++
	if f.startErr != nil {
		return nil, f.startErr
	}
	f.last = &scriptedStream{events: f.events, final: f.final, recvErr: f.recvErr}
	return f.last, nil
}

// --- Provider registry fake ---

type fakeRegistry struct {
	byProvider map[string]adapter.ModelAdapter
	def        string
}

func (f *fakeRegistry) ResolveProvider(modelID string) string { return f.def }
func (f *fakeRegistry) ForProvider(name string) (adapter.ModelAdapter, bool) {
	a, ok := f.byProvider[name]
	return a, ok && a != nil
}
