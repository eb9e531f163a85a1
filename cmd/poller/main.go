// File: cmd/poller/main.go

// Command poller is a small client for the job API. It either follows an
// existing job or creates a new one from the flags, then prints the text as
// it arrives.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"ai-stream-relay/internal/domain/model"
	"ai-stream-relay/internal/poller"
)

func main() {
	var (
		addr         = flag.String("addr", "http://localhost:8080", "relay base URL")
		jobID        = flag.String("job", "", "existing job id to follow")
		modelID      = flag.String("model", "gpt-4o-mini", "model for a new job")
		provider     = flag.String("provider", "", "explicit provider for a new job")
		prompt       = flag.String("prompt", "", "user message for a new job")
		conversation = flag.String("conversation", "", "conversation id (random if empty)")
		user         = flag.String("user", "cli", "user id")
		verbose      = flag.Bool("v", false, "log polling internals")
	)
	flag.Parse()

	level := zerolog.WarnLevel
	if *verbose {
		level = zerolog.DebugLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level).With().Timestamp().Logger()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigc
		cancel()
	}()

	id := *jobID
	if id == "" {
		if *prompt == "" {
			fmt.Fprintln(os.Stderr, "either -job or -prompt is required")
			os.Exit(2)
		}
		var err error
		id, err = createJob(ctx, *addr, *conversation, *user, *provider, *modelID, *prompt)
		if err != nil {
			fmt.Fprintf(os.Stderr, "create job: %v\n", err)
			os.Exit(1)
		}
		fmt.Fprintf(os.Stderr, "job %s created\n", id)
	}

	p := poller.New(poller.Config{BaseURL: *addr}, &logger)
	exit := 0
	for upd := range p.Stream(ctx, id) {
		if upd.Delta != "" {
			fmt.Print(upd.Delta)
		}
		switch upd.Status {
		case model.JobStatusCompleted:
			fmt.Println()
			if upd.Response != nil {
				fmt.Fprintf(os.Stderr, "finished: %s, %d tokens\n", upd.Response.FinishReason, upd.Response.Usage.TotalTokens)
			}
		case model.JobStatusFailed:
			fmt.Fprintf(os.Stderr, "\njob failed: %s\n", upd.Err)
			exit = 1
		case model.JobStatusCancelled:
			fmt.Fprintln(os.Stderr, "\njob cancelled")
		default:
			if upd.PollFailed {
				fmt.Fprintf(os.Stderr, "\npolling stopped, job state unknown: %s\n", upd.Err)
				exit = 1
			}
		}
	}
	os.Exit(exit)
}

func createJob(ctx context.Context, addr, conversation, user, provider, modelID, prompt string) (string, error) {
	if conversation == "" {
		conversation = uuid.NewString()
	}
	body, err := json.Marshal(map[string]any{
		"conversationId": conversation,
		"userId":         user,
		"source":         "cli",
		"provider":       provider,
		"model":          modelID,
		"messages":       []map[string]string{{"role": "user", "content": prompt}},
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, addr+"/api/v1/jobs", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	var created struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return "", err
	}
	return created.ID, nil
}
