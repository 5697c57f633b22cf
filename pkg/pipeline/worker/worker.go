package worker

import (
	"context"
	"hash/fnv"
	"io"

	"golang.org/x/sync/errgroup"
)

type Options struct {
	// Workers is the number of consumer shards. Values <= 0 mean 1.
	Workers int
	// QueueSize bounds the number of items buffered per shard.
	QueueSize int
}

func (o Options) withDefaults() Options {
	if o.Workers <= 0 {
		o.Workers = 1
	}
	if o.QueueSize <= 0 {
		o.QueueSize = 1024
	}
	return o
}

// NextFunc produces the next keyed item, or io.EOF when there are no more.
type NextFunc[T any] func(ctx context.Context) (key string, item T, err error)

// HandleFunc consumes one item on the shard that owns its key.
type HandleFunc[T any] func(ctx context.Context, shard int, key string, item T) error

// Shard returns the shard in [0, n) that owns key.
func Shard(key string, n int) int {
	if n <= 1 {
		return 0
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % uint32(n))
}

type keyed[T any] struct {
	key  string
	item T
}

// RunSharded reads items from next on one goroutine and hands each one to handle on
// the shard that owns its key.
//
// Every key is owned by exactly one shard for the whole run and each shard consumes
// its queue in order, so items with the same key are handled in the order next
// produced them. The first error from next or handle cancels the run; items already
// queued behind it are dropped. RunSharded returns after every goroutine has exited.
func RunSharded[T any](ctx context.Context, next NextFunc[T], handle HandleFunc[T], opts Options) error {
	opts = opts.withDefaults()

	g, gctx := errgroup.WithContext(ctx)

	queues := make([]chan keyed[T], opts.Workers)
	for i := range queues {
		queues[i] = make(chan keyed[T], opts.QueueSize)
	}

	g.Go(func() error {
		defer func() {
			for _, q := range queues {
				close(q)
			}
		}()
		for {
			key, item, err := next(gctx)
			if err == io.EOF {
				return nil
			}
			if err != nil {
				return err
			}
			select {
			case queues[Shard(key, opts.Workers)] <- keyed[T]{key: key, item: item}:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
	})

	for shard, q := range queues {
		shard, q := shard, q
		g.Go(func() error {
			for it := range q {
				if err := gctx.Err(); err != nil {
					return err
				}
				if err := handle(gctx, shard, it.key, it.item); err != nil {
					return err
				}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}
