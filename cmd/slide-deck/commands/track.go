package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/spherical/slide-deck/cmd/slide-deck/ui"
)

var (
	trackServer string
	trackOutput string
	trackFormat string
)

var trackCmd = &cobra.Command{
	Use:   "track <job-id>",
	Short: "Attach to a running job and follow its progress",
	Args:  cobra.ExactArgs(1),
	RunE:  runTrack,
}

func init() {
	trackCmd.Flags().StringVarP(&trackServer, "server", "s", "", "processing server URL (default notify.base_url)")
	trackCmd.Flags().StringVarP(&trackOutput, "output", "o", "", "write the final deck to this file")
	trackCmd.Flags().StringVarP(&trackFormat, "format", "f", "", "output format: json or html (default from extension)")
	rootCmd.AddCommand(trackCmd)
}

func runTrack(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	jobID := args[0]
	ui.KeyValue("Job", jobID)

	status, err := trackJob(ctx, serverURL(trackServer), jobID)
	if err == nil {
		err = reportStatus(status)
	}
	if err != nil {
		keepPartialDeck(status, trackOutput, trackFormat, jobID)
		return err
	}

	if trackOutput == "" {
		return nil
	}
	if err := writeDeck(trackOutput, trackFormat, jobID, status.Slides); err != nil {
		return err
	}
	ui.Success("Wrote %d slides to %s", len(status.Slides), trackOutput)
	return nil
}
