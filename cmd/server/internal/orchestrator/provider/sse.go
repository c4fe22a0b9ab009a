package provider

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/houzhh15/factlens/cmd/server/internal/orchestrator/errs"
	"github.com/houzhh15/factlens/pkg/retry"
)

// Event is one server-sent event.
type Event struct {
	Name string
	Data string
}

// ReadEvents parses a text/event-stream body and calls fn for every event.
// A "[DONE]" data payload ends the stream.
func ReadEvents(r io.Reader, fn func(Event) error) error {
	br := bufio.NewReaderSize(r, 64*1024)
	var name string
	var data []string

	dispatch := func() (bool, error) {
		if len(data) == 0 {
			name = ""
			return false, nil
		}
		ev := Event{Name: name, Data: strings.Join(data, "\n")}
		name, data = "", nil
		if ev.Data == "[DONE]" {
			return true, nil
		}
		return false, fn(ev)
	}

	for {
		line, err := br.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return err
		}
		trimmed := strings.TrimRight(line, "\r\n")

		switch {
		case trimmed == "" && line != "":
			done, ferr := dispatch()
			if ferr != nil || done {
				return ferr
			}
		case strings.HasPrefix(trimmed, ":"):
		case strings.HasPrefix(trimmed, "event:"):
			name = strings.TrimSpace(strings.TrimPrefix(trimmed, "event:"))
		case strings.HasPrefix(trimmed, "data:"):
			data = append(data, strings.TrimPrefix(strings.TrimPrefix(trimmed, "data:"), " "))
		}

		if errors.Is(err, io.EOF) {
			_, ferr := dispatch()
			return ferr
		}
	}
}

// Stream opens a streaming request and feeds its events to fn. Failures
// before the first event are retried like Do; once an event was delivered the
// stream is not replayed and the error is returned as non-retryable.
func (c *Client) Stream(ctx context.Context, operation string, build RequestFunc, fn func(Event) error) error {
	_, err := retry.Do(ctx, c.policy, func(ctx context.Context) (struct{}, error) {
		delivered := false
		err := c.streamAttempt(ctx, build, func(ev Event) error {
			delivered = true
			return fn(ev)
		})
		if err != nil && delivered && errs.IsRetryable(err) {
			err = errs.NewProviderError(c.name+" stream interrupted", false, err)
		}
		c.record(operation, err)
		return struct{}{}, err
	})
	return err
}

func (c *Client) streamAttempt(ctx context.Context, build RequestFunc, fn func(Event) error) error {
	resp, cancel, err := c.open(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := build(ctx)
		if err == nil {
			req.Header.Set("Accept", "text/event-stream")
		}
		return req, err
	})
	if err != nil {
		return err
	}
	defer cancel()
	defer resp.Body.Close()

	var handlerErr error
	err = ReadEvents(resp.Body, func(ev Event) error {
		if herr := fn(ev); herr != nil {
			handlerErr = herr
			return herr
		}
		return nil
	})
	if handlerErr != nil {
		return handlerErr
	}
	if err != nil {
		return ClassifyTransportError(c.name, err)
	}
	return nil
}
