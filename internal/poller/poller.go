// File: internal/poller/poller.go

// Package poller is the client side of the job API: it polls a job until it
// reaches a terminal state and delivers the text as incremental updates, as
// if the caller were consuming a live stream.
package poller

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"ai-stream-relay/internal/domain/model"
)

// Update is one observed change of the polled job. Delta carries only the
// text appended since the previous update.
type Update struct {
	JobID    string
	Status   model.JobStatus
	Delta    string
	Content  string
	Progress model.ProgressInfo
	Response *model.ResponseData
	Err      string
	// PollFailed marks an update produced by the poll loop exhausting its
	// error budget. Status is then merely the last state seen, not a
	// verdict on the job.
	PollFailed bool
}

type Config struct {
	BaseURL    string
	HTTPClient *http.Client

	// Poll cadence bounds. The server's hint is clamped into this range.
	MinInterval time.Duration
	MaxInterval time.Duration

	// Transient HTTP failures back off exponentially up to MaxErrorBackoff;
	// after MaxConsecutiveErrors the poll loop gives up.
	MaxErrorBackoff      time.Duration
	MaxConsecutiveErrors int
}

func (c Config) withDefaults() Config {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	if c.MinInterval <= 0 {
		c.MinInterval = 200 * time.Millisecond
	}
	if c.MaxInterval <= 0 {
		c.MaxInterval = 2 * time.Second
	}
	if c.MaxErrorBackoff <= 0 {
		c.MaxErrorBackoff = 10 * time.Second
	}
	if c.MaxConsecutiveErrors <= 0 {
		c.MaxConsecutiveErrors = 8
	}
	return c
}

type Poller struct {
	cfg Config
	log *zerolog.Logger
}

func New(cfg Config, logger *zerolog.Logger) *Poller {
	l := logger.With().Str("component", "poller").Logger()
	return &Poller{cfg: cfg.withDefaults(), log: &l}
}

// jobState mirrors the server's job projection.
type jobState struct {
	ID                    string              `json:"id"`
	Status                model.JobStatus     `json:"status"`
	PartialContent        string              `json:"partialContent"`
	Progress              model.ProgressInfo  `json:"progress"`
	Response              *model.ResponseData `json:"response,omitempty"`
	Error                 string              `json:"error,omitempty"`
	PollIntervalMs        int                 `json:"pollIntervalMs"`
	ShouldContinuePolling bool                `json:"shouldContinuePolling"`
}

// Stream polls the job and sends updates until the job is terminal, the poll
// loop exhausts its error budget, or ctx is cancelled. The returned channel
// is closed when polling stops. Cancelling ctx also asks the server to cancel
// the job, best effort.
func (p *Poller) Stream(ctx context.Context, jobID string) <-chan Update {
	out := make(chan Update, 16)
	go p.run(ctx, jobID, out)
	return out
}

func (p *Poller) run(ctx context.Context, jobID string, out chan<- Update) {
	defer close(out)

	var (
		content    string
		lastStatus model.JobStatus
		interval   = p.cfg.MinInterval
		errStreak  = 0
	)

	for {
		state, err := p.fetch(ctx, jobID)
		if err != nil {
			if ctx.Err() != nil {
				p.cancelRemote(jobID)
				return
			}
			errStreak++
			if errStreak >= p.cfg.MaxConsecutiveErrors {
				p.log.Error().Err(err).Str("job_id", jobID).Msg("giving up after repeated poll failures")
				out <- Update{JobID: jobID, Status: lastStatus, Err: err.Error(), PollFailed: true}
				return
			}
			interval = backoff(interval, p.cfg.MaxErrorBackoff)
			p.log.Warn().Err(err).Str("job_id", jobID).Dur("retry_in", interval).Msg("poll failed")
			if !sleep(ctx, interval) {
				p.cancelRemote(jobID)
				return
			}
			continue
		}
		errStreak = 0

		delta, extends := suffixDelta(content, state.PartialContent)
		if !extends {
			// A snapshot behind already-delivered content: a stale cache
			// read racing a progress write. Ignore it wholly and poll
			// again; content must never regress.
			p.log.Warn().
				Str("job_id", jobID).
				Int("delivered_len", len(content)).
				Int("snapshot_len", len(state.PartialContent)).
				Msg("stale job snapshot skipped")
			if !sleep(ctx, p.cfg.MinInterval) {
				p.cancelRemote(jobID)
				return
			}
			continue
		}
		if delta != "" || state.Status != lastStatus {
			content = state.PartialContent
			lastStatus = state.Status
			upd := Update{
				JobID:    jobID,
				Status:   state.Status,
				Delta:    delta,
				Content:  content,
				Progress: state.Progress,
				Response: state.Response,
				Err:      state.Error,
			}
			select {
			case out <- upd:
			case <-ctx.Done():
				p.cancelRemote(jobID)
				return
			}
		}

		if !state.ShouldContinuePolling || state.Status.Terminal() {
			return
		}

		interval = clamp(time.Duration(state.PollIntervalMs)*time.Millisecond, p.cfg.MinInterval, p.cfg.MaxInterval)
		if !sleep(ctx, interval) {
			p.cancelRemote(jobID)
			return
		}
	}
}

func (p *Poller) fetch(ctx context.Context, jobID string) (*jobState, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.jobURL(jobID), nil)
	if err != nil {
		return nil, err
	}
	resp, err := p.cfg.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("poll: unexpected status %d", resp.StatusCode)
	}
	var state jobState
	if err := json.NewDecoder(resp.Body).Decode(&state); err != nil {
		return nil, fmt.Errorf("poll: decode: %w", err)
	}
	return &state, nil
}

// cancelRemote tells the server the client walked away. Runs detached from
// the caller's context, which is already cancelled by the time we get here.
func (p *Poller) cancelRemote(jobID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, p.jobURL(jobID), nil)
	if err != nil {
		return
	}
	resp, err := p.cfg.HTTPClient.Do(req)
	if err != nil {
		p.log.Debug().Err(err).Str("job_id", jobID).Msg("remote cancel failed")
		return
	}
	resp.Body.Close()
}

func (p *Poller) jobURL(jobID string) string {
	return strings.TrimSuffix(p.cfg.BaseURL, "/") + "/api/v1/jobs/" + jobID
}

// suffixDelta returns the text newly appended to prev. Partial content is
// append-only server-side, so next either equals prev or extends it; for a
// shorter or divergent snapshot it reports extends=false and the caller must
// keep prev untouched.
func suffixDelta(prev, next string) (delta string, extends bool) {
	if next == prev {
		return "", true
	}
	if strings.HasPrefix(next, prev) {
		return next[len(prev):], true
	}
	return "", false
}

func backoff(current, max time.Duration) time.Duration {
	next := current * 2
	if next > max {
		return max
	}
	return next
}

func clamp(d, lo, hi time.Duration) time.Duration {
	if d < lo {
		return lo
	}
	if d > hi {
		return hi
	}
	return d
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
