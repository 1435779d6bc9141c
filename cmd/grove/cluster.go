package main

import (
	"context"
	"fmt"

	"github.com/pbanos/grove"
	"github.com/pbanos/grove/blob"
	"github.com/pbanos/grove/cluster"
	"github.com/pbanos/grove/config"
	"github.com/pbanos/grove/confusion"
	"github.com/pbanos/grove/dataset"
	"github.com/pbanos/grove/queue"
)

// environment holds what commands work on: the blob store, the
// datasets loaded from it and the runtime to run tasks on
type environment struct {
	store    blob.Store
	datasets *dataset.Cache
	handlers cluster.Handlers
	queue    queue.Queue
	runtime  cluster.Runtime
}

/*
environment opens the configured blob store and builds a runtime on
it. With a memory queue tasks run on this process, otherwise they are
pushed to the queue for workers to run.
*/
func (rcc *rootCmdConfig) environment(ctx context.Context) (*environment, error) {
	if rcc.Queue.Backend != "memory" && rcc.Blob.Backend == "memory" {
		return nil, fmt.Errorf("a %s queue needs a blob store shared with its workers, not a memory one", rcc.Queue.Backend)
	}
	store, err := config.OpenBlobStore(ctx, rcc.Blob)
	if err != nil {
		return nil, fmt.Errorf("opening blob store: %w", err)
	}
	env := &environment{store: store, datasets: dataset.NewCache(store)}
	env.handlers = grove.Handlers(env.datasets, rcc.Workers, rcc.ForkThreshold, rcc.logger).
		Merge(confusion.Handlers(store, env.datasets, rcc.logger))
	if rcc.Queue.Backend == "memory" {
		env.runtime = cluster.NewLocal(rcc.Workers, env.handlers, rcc.logger)
		return env, nil
	}
	env.queue, err = config.OpenQueue(rcc.Queue)
	if err != nil {
		store.Close(ctx)
		return nil, fmt.Errorf("opening queue: %w", err)
	}
	env.runtime = cluster.NewQueued(env.queue, store, rcc.Queue.Nodes, rcc.Queue.Poll, rcc.logger)
	return env, nil
}

func (env *environment) Close(ctx context.Context) error {
	var err error
	if env.queue != nil {
		err = env.queue.Stop(ctx)
	}
	if cerr := env.store.Close(ctx); err == nil {
		err = cerr
	}
	return err
}
