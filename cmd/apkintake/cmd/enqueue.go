package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/apk-analysis/apk-intake-go/internal/queue"
)

func init() {
	enqueueCmd.Flags().String("session-id", "", "session id recorded with the analysis")
	enqueueCmd.Flags().Bool("split-choose-all", false, "select every split instead of the device-optimal set")
}

var enqueueCmd = &cobra.Command{
	Use:           "enqueue <PATH>...",
	Short:         "Publish an analysis request to RabbitMQ",
	Long:          "Publish an analysis request to RabbitMQ. Paths must be readable by the server consuming the queue.",
	Args:          cobra.MinimumNArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}

		paths := make([]string, 0, len(args))
		for _, arg := range args {
			abs, err := filepath.Abs(arg)
			if err != nil {
				return err
			}
			paths = append(paths, abs)
		}

		msg := &queue.AnalysisMessage{
			Paths:     paths,
			SessionID: mustString(cmd, "session-id"),
		}
		if cmd.Flags().Changed("split-choose-all") {
			chooseAll, _ := cmd.Flags().GetBool("split-choose-all")
			msg.SplitChooseAll = &chooseAll
		}

		mq, err := queue.NewRabbitMQ(cfg.RabbitMQ, 1, logger)
		if err != nil {
			return fmt.Errorf("connect rabbitmq: %w", err)
		}
		defer mq.Close()

		ctx, cancel := signalContext()
		defer cancel()
		if err := queue.NewProducer(mq, logger).PublishAnalysis(ctx, msg); err != nil {
			return err
		}
		fmt.Println(msg.ID)
		return nil
	},
}
