package main

import (
	"context"
	"fmt"
	"time"

	"badgewatch/internal/aggregator"
	"badgewatch/internal/consumer"
	"badgewatch/internal/streams"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const publishTimeout = 5 * time.Second

func newRefreshCmd(a *app) *cobra.Command {
	var month string
	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Ask a running service to rebuild one month, or every month",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if month != "" {
				if _, err := aggregator.ParseMonthKey(month); err != nil {
					return err
				}
			}
			if !a.cfg.Redis.Enabled {
				return fmt.Errorf("refresh requires REDIS_ENABLED=true")
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), publishTimeout)
			defer cancel()

			client := streams.NewRedisClient(&a.cfg.Redis)
			defer streams.Close(client)

			req := consumer.RefreshRequest{MonthKey: month, RequestID: uuid.NewString()}
			id, err := streams.NewBroker(client).PublishJSON(ctx, a.cfg.Aggregator.RefreshStream, req)
			if err != nil {
				return err
			}

			a.log.Info("Published refresh request",
				zap.String("stream", a.cfg.Aggregator.RefreshStream),
				zap.String("message_id", id),
				zap.String("request_id", req.RequestID),
				zap.String("month_key", month),
			)
			fmt.Fprintln(a.stdout, req.RequestID)
			return nil
		},
	}
	cmd.Flags().StringVar(&month, "month", "", "month key YYYY-MM (default: every month)")
	return cmd
}
