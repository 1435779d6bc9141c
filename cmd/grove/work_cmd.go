package main

import (
	"fmt"
	"time"

	"github.com/pbanos/grove/cluster"
	"github.com/spf13/cobra"
)

type workCmdConfig struct {
	*rootCmdConfig
	persistent      bool
	emptyQueueSleep time.Duration
}

func workCmd(rootConfig *rootCmdConfig) *cobra.Command {
	config := &workCmdConfig{rootCmdConfig: rootConfig}
	cmd := &cobra.Command{
		Use:   "work",
		Short: "Run tasks pulled from the queue",
		Long:  `Pull tree growing and scoring tasks from the configured queue and run them, putting their results on the blob store.`,
		Run: func(cmd *cobra.Command, args []string) {
			if config.Queue.Backend == "memory" {
				exit(1, fmt.Errorf("workers need a shared queue, configure queue.backend"))
			}
			ctx, cancel := config.Context()
			defer cancel()
			env, err := config.environment(ctx)
			if err != nil {
				exit(2, err)
			}
			defer env.Close(ctx)
			w := &cluster.Worker{
				Queue:           env.queue,
				Store:           env.store,
				Handlers:        env.handlers,
				EmptyQueueSleep: config.emptyQueueSleep,
				Persistent:      config.persistent,
				Logger:          config.logger,
			}
			if err := w.Work(ctx); err != nil {
				exit(3, err)
			}
		},
	}
	cmd.Flags().BoolVarP(&(config.persistent), "persistent", "p", false, "keep waiting for tasks when the queue is empty")
	cmd.Flags().DurationVar(&(config.emptyQueueSleep), "empty-queue-sleep", time.Second, "time to wait before pulling again from an empty queue")
	return cmd
}
