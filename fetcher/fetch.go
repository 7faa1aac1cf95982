// Package fetcher runs bounded-concurrency HTTP downloads for the fetch and
// recovery workflows (spec.md §4.5, §4.6), grounded on the teacher's
// ProcessParallel worker pool (orchestrate/workflows/parallel.go) but
// rebuilt on golang.org/x/sync/errgroup — the idiomatic ecosystem primitive
// for "N goroutines, shared limit, first error wins" that the teacher's own
// retrieval pack already reaches for elsewhere (the distri batch builder).
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pop-os/upgrade-daemon/cancel"
	"github.com/pop-os/upgrade-daemon/upgradeerrors"
)

// URI is a single fetch unit: one or more mirror URLs for the same content,
// tried in order, written to Dest.
type URI struct {
	Name    string
	Sources []string
	Dest    string
	Size    int64
}

// Result is the per-URI outcome of a FetchAll call.
type Result struct {
	URI URI
	Err error
}

// Progress is invoked after every chunk read from the body of uri. written
// is the cumulative byte count for this URI so far; it is not throttled —
// callers that must emit at most once per second (the recovery workflow)
// track their own last-emission time, per spec.md §9.
type Progress func(uri URI, written int64)

// Client is the subset of *http.Client that FetchAll needs, so tests can
// substitute a fake transport without a real network.
type Client interface {
	Do(req *http.Request) (*http.Response, error)
}

// FetchAll downloads every uri concurrently, bounded by profile.Concurrency,
// and reports one Result per uri in the order uris was given. It does not
// retry; the fetch workflow re-invokes FetchAll with only the failed subset,
// per spec.md §4.5 step 4's "retry the following up to three times" — the
// retry loop belongs to the workflow, not the fetcher.
func FetchAll(
	ctx context.Context,
	token *cancel.Token,
	client Client,
	profile Profile,
	uris []URI,
	onStart func(URI),
	onProgress Progress,
) ([]Result, error) {
	if len(uris) == 0 {
		return nil, nil
	}

	results := make([]Result, len(uris))
	g, gctx := errgroup.WithContext(ctx)
	if profile.Concurrency > 0 {
		g.SetLimit(profile.Concurrency)
	}

	for i, u := range uris {
		i, u := i, u
		g.Go(func() error {
			if token != nil && token.IsTriggered() {
				results[i] = Result{URI: u, Err: upgradeerrors.ErrCancelled}
				return nil
			}
			if onStart != nil {
				onStart(u)
			}
			err := fetchOne(gctx, client, profile, u, onProgress)
			results[i] = Result{URI: u, Err: err}
			return nil
		})
	}

	// g.Wait's error is always nil: each goroutine above reports its failure
	// into results rather than returning it, since one URI's failure must
	// not cancel sibling downloads (the workflow decides retry policy, not
	// the fetcher).
	_ = g.Wait()

	var failed int
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}
	if failed == len(results) {
		return results, fmt.Errorf("fetch: all %d uris failed: %w", failed, results[0].Err)
	}
	return results, nil
}

func fetchOne(ctx context.Context, client Client, profile Profile, u URI, onProgress Progress) error {
	if len(u.Sources) == 0 {
		return fmt.Errorf("fetch %s: %w", u.Name, errors.New("no source URLs"))
	}

	if err := os.MkdirAll(filepath.Dir(u.Dest), 0o755); err != nil {
		return fmt.Errorf("fetch %s: %w", u.Name, err)
	}

	var lastErr error
	for _, src := range u.Sources {
		lastErr = fetchFrom(ctx, client, profile, src, u, onProgress)
		if lastErr == nil {
			return nil
		}
	}
	return fmt.Errorf("fetch %s: %w: %w", u.Name, upgradeerrors.ErrConnection, lastErr)
}

func fetchFrom(ctx context.Context, client Client, profile Profile, src string, u URI, onProgress Progress) error {
	reqCtx, cancelReq := context.WithCancel(ctx)
	defer cancelReq()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, src, nil)
	if err != nil {
		return err
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: %s returned %d", upgradeerrors.ErrHTTPStatus, src, resp.StatusCode)
	}

	part := u.Dest + ".partial"
	f, err := os.Create(part)
	if err != nil {
		return err
	}
	defer f.Close()

	timeout := profile.IdleTimeout
	if timeout <= 0 {
		timeout = defaultIdleTimeout
	}
	ir := newIdleReader(resp.Body, timeout, cancelReq)
	defer ir.Stop()

	var written int64
	var mu sync.Mutex
	buf := make([]byte, 32*1024)
	for {
		n, rerr := ir.Read(buf)
		if n > 0 {
			if _, werr := f.Write(buf[:n]); werr != nil {
				return werr
			}
			mu.Lock()
			written += int64(n)
			mu.Unlock()
			if onProgress != nil {
				onProgress(u, written)
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return rerr
		}
	}

	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(part, u.Dest)
}

const defaultIdleTimeout = 30 * time.Second
