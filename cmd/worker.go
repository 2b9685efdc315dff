package main

import (
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"clouddrive/internal/logs"
	"clouddrive/internal/notify"
)

func workerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Deliver notification emails from the AMQP queue",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := exitOnSignal(cmd.Context())
			defer stop()

			cfg, closeLog, err := bootstrap()
			if err != nil {
				return err
			}
			defer closeLog()

			if cfg.Queue.Driver != "amqp" {
				return errors.Errorf("worker requires QUEUE_DRIVER=amqp, got %q", cfg.Queue.Driver)
			}

			dispatcher, err := newDispatcher(cfg.Mail)
			if err != nil {
				return err
			}

			logs.WithComponent("worker").WithField("queue", cfg.Queue.Name).Info("consuming notifications")
			return notify.NewAMQPConsumer(cfg.Queue.URL, cfg.Queue.Name).Run(ctx, dispatcher)
		},
	}
}
