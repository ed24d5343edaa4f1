// Package poller waits on batches of asynchronous provider jobs. All waiting
// happens inside the calling goroutine with at most one status query in
// flight. Every loop carries its own timeout, so a wait terminates even if
// the provider never reaches a terminal status.
package poller

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/layertune/api/internal/model"
	"github.com/layertune/api/internal/stems"
)

// StatusFunc queries the provider for the current state of a batch of job ids.
type StatusFunc func(ctx context.Context, ids []string) ([]model.Clip, error)

// Options configures one polling loop.
type Options struct {
	// AcceptStreaming widens the terminal-success set from {complete} to
	// {complete, streaming}. Streaming clips are playable but may not carry a
	// final audio URL yet.
	AcceptStreaming bool
	Interval        time.Duration
	Timeout         time.Duration
}

func (o Options) accepted(s model.ClipStatus) bool {
	if s == model.ClipStatusComplete {
		return true
	}
	return o.AcceptStreaming && s == model.ClipStatusStreaming
}

// wait suspends for one poll interval, honoring context cancellation.
func wait(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// WaitForClips polls until every id in the batch reaches an accepted terminal
// status and returns the full batch. Any item reporting an error status fails
// the whole wait immediately; one failure is a batch failure.
func WaitForClips(ctx context.Context, fetch StatusFunc, ids []string, opts Options) ([]model.Clip, error) {
	start := time.Now()
	attempt := 0

	for {
		if time.Since(start) > opts.Timeout {
			return nil, fmt.Errorf("polling timed out after %s for clips: %s", opts.Timeout, strings.Join(ids, ", "))
		}
		if err := wait(ctx, opts.Interval); err != nil {
			return nil, err
		}

		attempt++
		clips, err := fetch(ctx, ids)
		if err != nil {
			return nil, err
		}
		if len(clips) == 0 {
			continue
		}

		done := true
		for _, c := range clips {
			if c.Status == model.ClipStatusError {
				return nil, fmt.Errorf("clip %s failed with error status", c.ID)
			}
			if !opts.accepted(c.Status) {
				done = false
			}
		}

		log.Printf("[Poller] poll #%d (%d clips) — done=%v", attempt, len(clips), done)
		if done {
			return clips, nil
		}
	}
}

// WaitProgressively polls a batch and invokes onReady exactly once per item as
// it completes with a usable audio reference, instead of waiting for the whole
// batch. An individual item error is logged and counted as settled; it does
// not block other items from delivering. The wait fails only on timeout or
// when every item settled with zero deliveries.
func WaitProgressively(ctx context.Context, fetch StatusFunc, ids []string, onReady func(model.Clip), opts Options) ([]model.Clip, error) {
	start := time.Now()
	delivered := make(map[string]model.Clip)
	failed := make(map[string]bool)

	for len(delivered)+len(failed) < len(ids) {
		if time.Since(start) > opts.Timeout {
			return nil, fmt.Errorf("stem polling timed out after %s (%d of %d delivered)", opts.Timeout, len(delivered), len(ids))
		}
		if err := wait(ctx, opts.Interval); err != nil {
			return nil, err
		}

		clips, err := fetch(ctx, ids)
		if err != nil {
			return nil, err
		}

		for _, c := range clips {
			if _, done := delivered[c.ID]; done || failed[c.ID] {
				continue
			}
			switch {
			case c.Status == model.ClipStatusError:
				log.Printf("[Poller] stem %s failed, continuing with remaining stems", c.ID)
				failed[c.ID] = true
			case c.Status == model.ClipStatusComplete && c.AudioURL != "":
				delivered[c.ID] = c
				onReady(c)
			}
		}
	}

	if len(delivered) == 0 {
		return nil, fmt.Errorf("all %d stem jobs failed", len(ids))
	}

	out := make([]model.Clip, 0, len(delivered))
	for _, id := range ids {
		if c, ok := delivered[id]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

// WaitForStemType polls a batch and returns the first completed item whose
// title resolves to the desired stem type, without waiting for the rest. An
// unrelated item's error does not abort the wait; only a failure of the item
// matching the target does. Once every item is terminal with no match, the
// wait fails immediately with the types that did arrive, rather than running
// out the clock on a result that can never come.
func WaitForStemType(ctx context.Context, fetch StatusFunc, ids []string, target model.StemType, opts Options) (model.Clip, error) {
	start := time.Now()

	for {
		if time.Since(start) > opts.Timeout {
			return model.Clip{}, fmt.Errorf("polling timed out after %s waiting for %s stem", opts.Timeout, target)
		}
		if err := wait(ctx, opts.Interval); err != nil {
			return model.Clip{}, err
		}

		clips, err := fetch(ctx, ids)
		if err != nil {
			return model.Clip{}, err
		}
		if len(clips) == 0 {
			continue
		}

		allTerminal := true
		var available []string
		for _, c := range clips {
			resolved, ok := stems.TitleToType(c.Title)
			if c.Status == model.ClipStatusError {
				if ok && resolved == target {
					return model.Clip{}, fmt.Errorf("%s stem job %s failed with error status", target, c.ID)
				}
				continue
			}
			if !c.Status.Terminal() {
				allTerminal = false
				continue
			}
			// complete
			if ok && resolved == target && c.AudioURL != "" {
				return c, nil
			}
			if ok {
				available = append(available, string(resolved))
			} else {
				available = append(available, c.Title)
			}
		}

		if allTerminal {
			sort.Strings(available)
			return model.Clip{}, fmt.Errorf("no %s stem found in separated track; available types were %s", target, strings.Join(available, ", "))
		}
	}
}
