package model

import (
	"testing"
	"time"
)

func TestJobStatusTransitions(t *testing.T) {
	cases := []struct {
		from JobStatus
		to   JobStatus
		ok   bool
	}{
		{JobStatusPending, JobStatusProcessing, true},
		{JobStatusPending, JobStatusStreaming, false},
		{JobStatusPending, JobStatusCompleted, false},
		{JobStatusPending, JobStatusCancelled, true},
		{JobStatusPending, JobStatusFailed, true},
		{JobStatusProcessing, JobStatusStreaming, true},
		{JobStatusProcessing, JobStatusCompleted, true},
		{JobStatusProcessing, JobStatusPending, false},
		{JobStatusStreaming, JobStatusCompleted, true},
		{JobStatusStreaming, JobStatusProcessing, false},
		{JobStatusStreaming, JobStatusFailed, true},
		{JobStatusStreaming, JobStatusCancelled, true},
		{JobStatusCompleted, JobStatusCancelled, false},
		{JobStatusCompleted, JobStatusFailed, false},
		{JobStatusFailed, JobStatusPending, false},
		{JobStatusCancelled, JobStatusCompleted, false},
	}
	for _, tc := range cases {
		if got := tc.from.CanTransitionTo(tc.to); got != tc.ok {
			t.Errorf("%s -> %s = %v, want %v", tc.from, tc.to, got, tc.ok)
		}
	}
}

func TestJobStatusPredicates(t *testing.T) {
	for _, s := range []JobStatus{JobStatusCompleted, JobStatusFailed, JobStatusCancelled} {
		if !s.Terminal() {
			t.Errorf("%s must be terminal", s)
		}
		if s.Active() {
			t.Errorf("%s must not be active", s)
		}
	}
	if JobStatusPending.Terminal() || JobStatusPending.Active() {
		t.Error("pending is neither terminal nor active")
	}
	if !JobStatusProcessing.Active() || !JobStatusStreaming.Active() {
		t.Error("processing and streaming are active")
	}
}

func TestRequestDataValidate(t *testing.T) {
	valid := RequestData{
		Model:    "gpt-4o-mini",
		Messages: []RequestMessage{{Role: "user", Content: "hi"}},
	}
	if problems := valid.Validate(); len(problems) != 0 {
		t.Errorf("valid request rejected: %v", problems)
	}

	cases := []struct {
		name string
		req  RequestData
	}{
		{"missing model", RequestData{Messages: []RequestMessage{{Role: "user", Content: "x"}}}},
		{"no messages", RequestData{Model: "m"}},
		{"unknown role", RequestData{Model: "m", Messages: []RequestMessage{{Role: "robot", Content: "x"}}}},
		{"empty content", RequestData{Model: "m", Messages: []RequestMessage{{Role: "user"}}}},
	}
	for _, tc := range cases {
		if problems := tc.req.Validate(); len(problems) == 0 {
			t.Errorf("%s: expected a validation problem", tc.name)
		}
	}
}

func TestNewStreamingJob(t *testing.T) {
	req := RequestData{Model: "gemini-2.0-flash", Messages: []RequestMessage{{Role: "user", Content: "hi"}}}
	job := NewStreamingJob("id-1", "conv-1", "user-1", req, time.Hour)

	if job.Status != JobStatusPending {
		t.Errorf("status = %s, want pending", job.Status)
	}
	if job.ModelID != "gemini-2.0-flash" {
		t.Errorf("model = %s", job.ModelID)
	}
	if got := job.ExpiresAt.Sub(job.CreatedAt); got != time.Hour {
		t.Errorf("ttl = %v, want 1h", got)
	}
	if job.PartialContent != "" || job.Response != nil {
		t.Error("new job must have no content")
	}
}
