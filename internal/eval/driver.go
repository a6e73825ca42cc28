package eval

import (
	"context"
	"log/slog"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"mason/internal/cache"
	"mason/internal/piece"
)

// Item is one independent piece construction job.
type Item struct {
	// Name is the display name carried by progress events, normally the
	// canonical piece name.
	Name string
	// Identity keys the piece cache. The zero identity disables caching
	// for this item.
	Identity piece.Identity
	// Build produces the finalized piece. It runs on a worker goroutine;
	// ec arrives with no builder bound, Build binds its own builders via
	// WithBuilder and must not share them with other goroutines.
	Build func(ctx context.Context, ec *Context) (piece.Piece, error)
}

// Options configures Run.
type Options struct {
	// Permits bounds concurrent evaluations, counting admission rather
	// than locking. 0 means GOMAXPROCS.
	Permits int
	// Cache, when set, memoizes finalized pieces by identity: an item
	// whose identity is already present is served the cached piece and
	// its Build never runs.
	Cache *cache.PieceCache
	// Sink receives progress events from worker goroutines.
	Sink ProgressSink
	// Logger enables debug logging. Nil disables.
	Logger *slog.Logger
}

// Result is the outcome of one Run. Slices are index-aligned with the
// items passed in.
type Result struct {
	// Pieces holds the finalized pieces; nil where Build failed.
	Pieces []piece.Piece
	// Errs holds per-item Build errors; nil where the item succeeded.
	Errs []error
	// Elapsed holds per-item wall time.
	Elapsed []time.Duration
	// Cached marks items served from the cache.
	Cached []bool
	// CacheHits counts items served from the cache.
	CacheHits int
}

// Err returns the first per-item error in item order, or nil.
func (r *Result) Err() error {
	for _, err := range r.Errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// Run evaluates the items concurrently, at most opts.Permits at a time.
// Item failures do not abort the run; they land in Result.Errs and are
// emitted as error events. Run itself fails only when ctx is canceled.
// Finalized pieces are immutable, so sharing them across the cache and
// the result needs no synchronization.
func Run(ctx context.Context, items []Item, opts Options) (*Result, error) {
	jobs := opts.Permits
	if jobs <= 0 {
		jobs = runtime.GOMAXPROCS(0)
	}

	res := &Result{
		Pieces:  make([]piece.Piece, len(items)),
		Errs:    make([]error, len(items)),
		Elapsed: make([]time.Duration, len(items)),
		Cached:  make([]bool, len(items)),
	}
	if len(items) == 0 {
		return res, nil
	}

	emit := func(evt Event) {
		if opts.Sink != nil {
			opts.Sink.OnEvent(evt)
		}
	}

	for _, item := range items {
		emit(Event{Piece: item.Name, Stage: StageLoad, Status: StatusQueued})
	}

	// one admission semaphore for the whole run; builders receive it
	// through the per-item context
	sem := semaphore.NewWeighted(int64(jobs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(min(jobs, len(items)))

	for i, item := range items {
		g.Go(func(i int, item Item) func() error {
			return func() error {
				select {
				case <-gctx.Done():
					return gctx.Err()
				default:
				}

				start := time.Now()

				if opts.Cache != nil && item.Identity != (piece.Identity{}) {
					if p, ok := opts.Cache.Get(item.Identity); ok {
						res.Pieces[i] = p
						res.Elapsed[i] = time.Since(start)
						res.Cached[i] = true
						if logEnabled(opts.Logger, slog.LevelDebug) {
							opts.Logger.LogAttrs(gctx, slog.LevelDebug, "piece served from cache",
								slog.String("piece", item.Name))
						}
						emit(Event{Piece: item.Name, Stage: StageCache, Status: StatusCached, Elapsed: res.Elapsed[i]})
						return nil
					}
				}

				emit(Event{Piece: item.Name, Stage: StageEvaluate, Status: StatusWorking})

				ec := NewContext(WithPermits(sem), WithProgress(opts.Sink), WithLogger(opts.Logger))
				p, err := item.Build(gctx, ec)
				res.Elapsed[i] = time.Since(start)
				if err != nil {
					res.Errs[i] = err
					emit(Event{Piece: item.Name, Stage: StageEvaluate, Status: StatusError, Err: err, Elapsed: res.Elapsed[i]})
					return nil
				}

				res.Pieces[i] = p
				if opts.Cache != nil && p != nil {
					opts.Cache.Put(p)
				}
				if logEnabled(opts.Logger, slog.LevelDebug) {
					opts.Logger.LogAttrs(gctx, slog.LevelDebug, "piece finalized",
						slog.String("piece", item.Name),
						slog.Duration("elapsed", res.Elapsed[i]))
				}
				emit(Event{Piece: item.Name, Stage: StageFinalize, Status: StatusDone, Elapsed: res.Elapsed[i]})
				return nil
			}
		}(i, item))
	}

	if err := g.Wait(); err != nil {
		return res, err
	}

	for _, h := range res.Cached {
		if h {
			res.CacheHits++
		}
	}
	return res, nil
}
