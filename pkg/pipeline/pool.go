package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/grailbio/base/log"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/BostonUniversityCBMS/glycresoft-sqlalchemy-sub000/pkg/core"
	"github.com/BostonUniversityCBMS/glycresoft-sqlalchemy-sub000/pkg/store"
)

// ItemError is the first fatal error of a phase, tagged with the item that
// caused it.
type ItemError struct {
	Phase string
	Item  string
	Err   error
}

func (e *ItemError) Error() string {
	return fmt.Sprintf("%s phase failed on %s: %v", e.Phase, e.Item, e.Err)
}

func (e *ItemError) Unwrap() error { return e.Err }

func itemError(phase, item string, err error) error {
	return &ItemError{Phase: phase, Item: item, Err: errors.WithStack(err)}
}

// chunkIDs splits ids into consecutive chunks of at most size ids.
func chunkIDs(ids []int64, size int) [][]int64 {
	var out [][]int64
	for len(ids) > size {
		out = append(out, ids[:size:size])
		ids = ids[size:]
	}
	if len(ids) > 0 {
		out = append(out, ids)
	}
	return out
}

// retry calls fn until it succeeds, fails with a non-transient error or
// MaxRetries retries have been spent.
func (o *Orchestrator) retry(ctx context.Context, op string, fn func() error) error {
	for attempt := 1; ; attempt++ {
		err := fn()
		if err == nil || !core.IsTransient(err) || attempt > o.cfg.MaxRetries {
			return err
		}
		log.Printf("%s: transient error, retry %d/%d: %v", op, attempt, o.cfg.MaxRetries, err)
		select {
		case <-time.After(time.Duration(attempt) * o.cfg.RetryBackoff):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// runPool runs work over chunks on a fixed pool of workers, each with its
// own session, and hands results to commit in batches of CommitInterval
// from a single coordinator. The first fatal error cancels the pool. It
// returns the number of committed results.
func runPool[R any](
	ctx context.Context,
	o *Orchestrator,
	phase string,
	chunks [][]int64,
	work func(context.Context, store.Session, []int64) ([]R, error),
	commit func(context.Context, store.Session, []R) error,
) (int, error) {
	g, gctx := errgroup.WithContext(ctx)
	jobs := make(chan int)
	results := make(chan []R, o.cfg.Workers)

	g.Go(func() error {
		defer close(jobs)
		for i := range chunks {
			select {
			case jobs <- i:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	var workers sync.WaitGroup
	for w := 0; w < o.cfg.Workers; w++ {
		workers.Add(1)
		g.Go(func() error {
			defer workers.Done()
			sess, err := o.factory(gctx)
			if err != nil {
				return errors.Wrapf(err, "%s: open worker session", phase)
			}
			defer sess.Close()

			for i := range jobs {
				var out []R
				err := o.retry(gctx, phase, func() error {
					var err error
					out, err = work(gctx, sess, chunks[i])
					return err
				})
				if err != nil {
					return errors.Wrapf(err, "%s chunk %d", phase, i)
				}
				log.Debug.Printf("%s: chunk %d of %d produced %d results", phase, i+1, len(chunks), len(out))
				select {
				case results <- out:
				case <-gctx.Done():
					return gctx.Err()
				}
			}
			return nil
		})
	}
	go func() {
		workers.Wait()
		close(results)
	}()

	var committed int
	g.Go(func() error {
		sess, err := o.factory(gctx)
		if err != nil {
			return errors.Wrapf(err, "%s: open coordinator session", phase)
		}
		defer sess.Close()

		var pending []R
		flush := func() error {
			if len(pending) == 0 {
				return nil
			}
			if err := o.retry(gctx, phase+" commit", func() error { return commit(gctx, sess, pending) }); err != nil {
				return errors.Wrapf(err, "%s: commit of %d results", phase, len(pending))
			}
			before := committed
			committed += len(pending)
			pending = pending[:0]
			if committed/o.cfg.ProgressInterval > before/o.cfg.ProgressInterval {
				log.Printf("%s: %d results committed", phase, committed)
			}
			return nil
		}
		for out := range results {
			pending = append(pending, out...)
			if len(pending) >= o.cfg.CommitInterval {
				if err := flush(); err != nil {
					return err
				}
			}
		}
		if err := gctx.Err(); err != nil {
			return err
		}
		return flush()
	})

	err := g.Wait()
	return committed, err
}
