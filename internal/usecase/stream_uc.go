// File: internal/usecase/stream_uc.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"ai-stream-relay/internal/breaker"
	"ai-stream-relay/internal/domain"
	"ai-stream-relay/internal/domain/model"
	"ai-stream-relay/internal/domain/ports/adapter"
	"ai-stream-relay/internal/domain/ports/repository"
	"ai-stream-relay/internal/infra/metrics"
	"ai-stream-relay/internal/protocol"
)

// ProviderRegistry resolves models to providers and hands out their adapters.
// Satisfied by ai.MultiAdapter.
type ProviderRegistry interface {
	ResolveProvider(modelID string) string
	ForProvider(name string) (adapter.ModelAdapter, bool)
}

// Compile-time check
var _ StreamUseCase = (*streamUC)(nil)

type StreamUseCase interface {
	// Process drives one claimed job through its provider stream to a
	// terminal status. It never leaves a claimed job dangling: every exit
	// path completes, fails, or observes an external cancellation.
	Process(ctx context.Context, job *model.StreamingJob) error
}

type StreamConfig struct {
	// FlushInterval throttles progress writes; deltas are batched in memory
	// between flushes.
	FlushInterval time.Duration
	// Fallback providers tried, in order, when the preferred provider is
	// rejected by its breaker or fails to open a stream.
	Fallback []string
}

func (c StreamConfig) withDefaults() StreamConfig {
	if c.FlushInterval <= 0 {
		c.FlushInterval = 500 * time.Millisecond
	}
	return c
}

type streamUC struct {
	jobs      repository.StreamingJobRepository
	providers ProviderRegistry
	breakers  *breaker.Registry
	cfg       StreamConfig
	log       *zerolog.Logger
}

func NewStreamUseCase(jobs repository.StreamingJobRepository, providers ProviderRegistry, breakers *breaker.Registry, cfg StreamConfig, log *zerolog.Logger) *streamUC {
	l := log.With().Str("component", "stream_uc").Logger()
	return &streamUC{jobs: jobs, providers: providers, breakers: breakers, cfg: cfg.withDefaults(), log: &l}
}

func (u *streamUC) Process(ctx context.Context, job *model.StreamingJob) error {
	started := time.Now()
	var lastErr error

	for _, provider := range u.candidates(job) {
		br := u.breakers.For(provider)
		metrics.SetBreakerState(provider, int(br.State()))
		if !br.Allow() {
			metrics.IncBreakerRejection(provider)
			lastErr = fmt.Errorf("%w: %s", domain.ErrCircuitOpen, provider)
			u.log.Warn().Str("job_id", job.ID).Str("provider", provider).Msg("breaker rejected provider")
			continue
		}

		ad, ok := u.providers.ForProvider(provider)
		if !ok {
			lastErr = fmt.Errorf("%w: %s", domain.ErrNoProvider, provider)
			continue
		}

		err := u.streamOne(ctx, job, provider, ad, br)
		if err == nil {
			metrics.IncJob("completed")
			metrics.ObserveJobDuration("completed", time.Since(started).Seconds())
			return nil
		}
		if errors.Is(err, errJobGone) {
			// Cancelled or completed from outside while we streamed.
			return nil
		}
		lastErr = err
		if !retriable(err) {
			break
		}
		u.log.Warn().Err(err).Str("job_id", job.ID).Str("provider", provider).Msg("provider failed, trying next")
	}

	if lastErr == nil {
		lastErr = domain.ErrNoProvider
	}
	if err := u.jobs.Fail(ctx, nil, job.ID, lastErr.Error()); err != nil && !errors.Is(err, domain.ErrConflict) {
		u.log.Error().Err(err).Str("job_id", job.ID).Msg("could not mark job failed")
	}
	metrics.IncJob("failed")
	metrics.ObserveJobDuration("failed", time.Since(started).Seconds())
	return lastErr
}

// errJobGone signals that the job reached a terminal state underneath the
// worker (external cancel, duplicate completion). Not a processing failure.
var errJobGone = errors.New("job no longer active")

// candidates is the provider order for one job: explicit request provider,
// then model resolution, then the configured fallback chain, deduplicated.
func (u *streamUC) candidates(job *model.StreamingJob) []string {
	var out []string
	seen := map[string]struct{}{}
	add := func(p string) {
		p = strings.ToLower(strings.TrimSpace(p))
		if p == "" {
			return
		}
		if _, dup := seen[p]; dup {
			return
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	add(job.Request.Provider)
	add(u.providers.ResolveProvider(job.ModelID))
	for _, p := range u.cfg.Fallback {
		add(p)
	}
	return out
}

// retriable reports whether the next fallback provider should be tried.
// Context cancellation and external job transitions are final.
func retriable(err error) bool {
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

func (u *streamUC) streamOne(ctx context.Context, job *model.StreamingJob, provider string, ad adapter.ModelAdapter, br *breaker.Breaker) error {
	caps, err := ad.Capabilities(job.ModelID)
	if err != nil {
		br.RecordFailure()
		return err
	}
	if caps.StreamTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, caps.StreamTimeout)
		defer cancel()
	}

	strm, err := ad.StreamChat(ctx, adapter.StreamRequest{
		Model:    job.ModelID,
		Messages: job.Request.Messages,
		Options:  job.Request.Options,
	})
	if err != nil {
		br.RecordFailure()
		return err
	}
	defer strm.Close()

	mon := protocol.NewMonitor(job.SessionID, protocol.MonitorConfig{})
	// A requeued job resumes from the persisted partial content.
	var content strings.Builder
	content.WriteString(job.PartialContent)

	var (
		deltas    int
		phase     = "responding"
		lastFlush = time.Now()
		dirty     = false
	)

	flush := func() error {
		if !dirty {
			return nil
		}
		err := u.jobs.AppendProgress(ctx, nil, job.ID, content.String(), model.ProgressInfo{
			TokensStreamed: deltas,
			Phase:          phase,
		})
		if err != nil {
			if errors.Is(err, domain.ErrConflict) || errors.Is(err, domain.ErrNotFound) {
				return errJobGone
			}
			return err
		}
		dirty = false
		lastFlush = time.Now()
		return nil
	}

	for {
		raw, recvErr := strm.Recv(ctx)
		if recvErr == io.EOF {
			break
		}
		if recvErr != nil {
			br.RecordFailure()
			u.logSession(mon.Complete(), job, provider)
			return recvErr
		}

		ev, parseErr := protocol.Parse(raw)
		if parseErr != nil {
			mon.RecordParseError(parseErr, raw)
			metrics.IncParseError()
			continue
		}
		mon.RecordEvent(ev.Type)
		metrics.IncStreamEvent(string(ev.Type))

		if ev.Known() {
			if res := protocol.Validate(ev); !res.Valid() {
				for _, v := range res.Violations {
					mon.RecordFieldMismatch(v.Field, ev.FieldNames(), ev.Type)
				}
			}
		}

		switch {
		case ev.Type == protocol.EventError:
			text, _ := ev.ErrorText()
			br.RecordFailure()
			u.logSession(mon.Complete(), job, provider)
			return fmt.Errorf("provider error event: %s", text)

		case ev.Type == protocol.EventAbort:
			// An abort is a stream that started and died mid-way, same as
			// an error event for breaker accounting.
			br.RecordFailure()
			u.logSession(mon.Complete(), job, provider)
			return errors.New("provider aborted the stream")

		case ev.Type == protocol.EventReasoningStart:
			phase = "reasoning"

		case ev.Type == protocol.EventReasoningEnd, ev.Type == protocol.EventTextStart:
			phase = "responding"
		}

		if delta, ok := ev.Delta(); ok && ev.Type == protocol.EventTextDelta {
			content.WriteString(delta)
			deltas++
			dirty = true
		} else if ev.Type == protocol.EventReasoningDelta || ev.Type == protocol.EventToolInputDelta {
			// Nothing to persist, but flushing the unchanged snapshot bumps
			// the heartbeat so a long reasoning phase is not mistaken for a
			// dead worker and requeued.
			deltas++
			dirty = true
		} else if !ev.Known() {
			mon.RecordUnknownType(string(ev.Type), raw)
			metrics.IncUnknownType()
			if res, ok := protocol.ExtractText(ev); ok {
				if res.Guessed() {
					metrics.IncGuessedExtraction()
					u.log.Warn().
						Str("job_id", job.ID).
						Str("event_type", string(ev.Type)).
						Msg("possible new stream format, recovered text via field scan")
				}
				content.WriteString(res.Text)
				deltas++
				dirty = true
			}
		}

		if dirty && time.Since(lastFlush) >= u.cfg.FlushInterval {
			if err := flush(); err != nil {
				if errors.Is(err, errJobGone) {
					u.logSession(mon.Complete(), job, provider)
					return errJobGone
				}
				br.RecordFailure()
				u.logSession(mon.Complete(), job, provider)
				return err
			}
		}
	}

	final, finalErr := strm.Final()
	if finalErr != nil {
		br.RecordFailure()
		u.logSession(mon.Complete(), job, provider)
		return finalErr
	}

	// Push the last deltas before the terminal write so the length guard
	// cannot reject the completion snapshot.
	if err := flush(); err != nil {
		if errors.Is(err, errJobGone) {
			u.logSession(mon.Complete(), job, provider)
			return errJobGone
		}
		br.RecordFailure()
		u.logSession(mon.Complete(), job, provider)
		return err
	}

	text := final.Text
	if text == "" {
		text = content.String()
	}
	err = u.jobs.Complete(ctx, nil, job.ID, model.ResponseData{
		Text:         text,
		Usage:        final.Usage,
		FinishReason: final.FinishReason,
	})
	if err != nil {
		if errors.Is(err, domain.ErrConflict) || errors.Is(err, domain.ErrNotFound) {
			u.logSession(mon.Complete(), job, provider)
			return errJobGone
		}
		br.RecordFailure()
		u.logSession(mon.Complete(), job, provider)
		return err
	}

	br.RecordSuccess()
	metrics.SetBreakerState(provider, int(br.State()))
	metrics.ObserveStreamUsage(provider, job.ModelID, final.Usage.PromptTokens, final.Usage.CompletionTokens)
	u.logSession(mon.Complete(), job, provider)
	return nil
}

func (u *streamUC) logSession(m protocol.StreamMetrics, job *model.StreamingJob, provider string) {
	ev := u.log.Info().
		Str("job_id", job.ID).
		Str("provider", provider).
		Str("session_id", m.SessionID).
		Int("total_events", m.TotalEvents).
		Float64("events_per_second", m.EventsPerSecond)
	if len(m.ParseErrors) > 0 {
		ev = ev.Int("parse_errors", len(m.ParseErrors))
	}
	if len(m.UnknownTypes) > 0 {
		types := make([]string, 0, len(m.UnknownTypes))
		for _, r := range m.UnknownTypes {
			types = append(types, fmt.Sprintf("%s:%d", r.Type, r.Count))
		}
		ev = ev.Strs("unknown_types", types)
	}
	if len(m.FieldMismatches) > 0 {
		ev = ev.Int("field_mismatches", len(m.FieldMismatches))
	}
	ev.Msg("stream session finished")
}
