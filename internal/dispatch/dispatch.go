// Package dispatch pulls records off the input NDJSON stream and drives the
// cascade strategy across a fixed-size worker pool.
package dispatch

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/openlexica/lexcascade/internal/analysis"
	"github.com/openlexica/lexcascade/internal/backend"
	"github.com/openlexica/lexcascade/internal/cache"
	"github.com/openlexica/lexcascade/internal/cascade"
	"github.com/openlexica/lexcascade/internal/record"
	"github.com/openlexica/lexcascade/internal/registry"
)

// maxLineBytes bounds a single NDJSON line; some statute sections run long.
const maxLineBytes = 4 << 20

// Options configures one dispatch run.
type Options struct {
	In        string // "-" reads stdin
	Out       string // "-" writes stdout
	Limit     int    // stop dispatch after N records; 0 means all
	Workers   int    // pool size, minimum 1
	MaxTokens int

	Task     analysis.Task
	Strategy cascade.Strategy
	Cache    *cache.FileCache // nil disables caching
}

// Summary is the outcome of a run. Per-record exhaustion failures are
// counted here, not returned as errors: the run completes with exit 0.
type Summary struct {
	Read      int
	Succeeded int64
	Failed    int64
	CacheHits int64
}

// Run processes the input stream. The returned error is fatal (unreadable
// input, unwritable output); everything per-record is logged and counted.
func Run(ctx context.Context, opts Options) (*Summary, error) {
	in, err := openInput(opts.In)
	if err != nil {
		return nil, fmt.Errorf("opening input: %w", err)
	}
	defer in.Close()

	out, err := openOutput(opts.Out)
	if err != nil {
		return nil, fmt.Errorf("opening output: %w", err)
	}
	defer out.Close()

	workers := opts.Workers
	if workers < 1 {
		workers = 1
	}

	summary := &Summary{}
	records := make(chan *record.Record)
	results := make(chan *record.Result)

	// Reader: dispatch stops after --limit records; in-flight calls always
	// run to completion.
	readErr := make(chan error, 1)
	go func() {
		defer close(records)
		scanner := bufio.NewScanner(in)
		scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
		for scanner.Scan() {
			line := scanner.Bytes()
			if len(line) == 0 {
				continue
			}
			var rec record.Record
			if err := json.Unmarshal(line, &rec); err != nil {
				slog.Warn("skipping malformed input line", "error", err)
				continue
			}
			summary.Read++
			records <- &rec
			if opts.Limit > 0 && summary.Read >= opts.Limit {
				break
			}
		}
		readErr <- scanner.Err()
	}()

	g := new(errgroup.Group)
	for i := 0; i < workers; i++ {
		g.Go(func() error {
			for rec := range records {
				res := processRecord(ctx, opts, rec, summary)
				if res != nil {
					results <- res
				}
			}
			return nil
		})
	}

	// Single writer preserves input order under workers=1 and keeps the
	// output file consistent under workers>1. After a write error the
	// writer keeps draining results so workers never block on the channel;
	// the first error is reported once the workers finish.
	writeErr := make(chan error, 1)
	go func() {
		w := bufio.NewWriter(out)
		var werr error
		for res := range results {
			if werr != nil {
				continue
			}
			data, err := json.Marshal(res)
			if err != nil {
				werr = err
				continue
			}
			if _, err := w.Write(append(data, '\n')); err != nil {
				werr = err
				continue
			}
		}
		if werr == nil {
			werr = w.Flush()
		}
		writeErr <- werr
	}()

	_ = g.Wait()
	close(results)

	if err := <-writeErr; err != nil {
		return summary, fmt.Errorf("writing output: %w", err)
	}
	if err := <-readErr; err != nil {
		return summary, fmt.Errorf("reading input: %w", err)
	}

	return summary, nil
}

// processRecord runs one record through the cache and the cascade. A nil
// return means the record failed non-fatally.
func processRecord(ctx context.Context, opts Options, rec *record.Record, summary *Summary) *record.Result {
	var key string
	if opts.Cache != nil {
		key = cache.Key(opts.Task.Name(), rec.ID, rec.Text)
		if entry, ok := opts.Cache.Get(key); ok {
			atomic.AddInt64(&summary.CacheHits, 1)
			atomic.AddInt64(&summary.Succeeded, 1)
			return &record.Result{ID: rec.ID, Task: opts.Task.Name(), ModelUsed: entry.Model, Payload: entry.Payload}
		}
	}

	system, user := opts.Task.Prompt(rec)
	call := func(ctx context.Context, m *registry.Model, b backend.Backend) (json.RawMessage, error) {
		resp, err := b.Invoke(ctx, backend.Request{System: system, User: user, MaxTokens: opts.MaxTokens})
		if err != nil {
			return nil, err
		}
		payload, err := opts.Task.Parse(resp.Content)
		if err != nil {
			return nil, &backend.CallError{Kind: backend.KindMalformed, Provider: m.Provider, Model: m.ID, Err: err}
		}
		return payload, nil
	}

	res, err := opts.Strategy.Invoke(ctx, rec.ID, call)
	if err != nil {
		// Record-level exhaustion is non-fatal: log and continue.
		atomic.AddInt64(&summary.Failed, 1)
		slog.Error("record exhausted all backends", "record", rec.ID, "error", err)
		return nil
	}

	if opts.Cache != nil {
		if err := opts.Cache.Set(key, &cache.Entry{Payload: res.Payload, Model: res.Model.Key()}); err != nil {
			slog.Warn("caching result failed", "record", rec.ID, "error", err)
		}
	}

	atomic.AddInt64(&summary.Succeeded, 1)
	return &record.Result{ID: rec.ID, Task: opts.Task.Name(), ModelUsed: res.Model.Key(), Payload: res.Payload}
}

func openInput(path string) (io.ReadCloser, error) {
	if path == "-" {
		return io.NopCloser(os.Stdin), nil
	}
	return os.Open(path)
}

func openOutput(path string) (io.WriteCloser, error) {
	if path == "-" {
		return nopWriteCloser{os.Stdout}, nil
	}
	return os.Create(path)
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }
