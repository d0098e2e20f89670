package commands

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/spherical/slide-deck/cmd/slide-deck/ui"
	"github.com/spherical/slide-deck/internal/domain"
	"github.com/spherical/slide-deck/internal/jobs"
)

var (
	submitServer string
	submitOutput string
	submitFormat string
	submitImages []string
)

var submitCmd = &cobra.Command{
	Use:   "submit <file>",
	Short: "Upload a document and follow its processing",
	Args:  cobra.ExactArgs(1),
	RunE:  runSubmit,
}

func init() {
	submitCmd.Flags().StringVarP(&submitServer, "server", "s", "", "processing server URL (default notify.base_url)")
	submitCmd.Flags().StringVarP(&submitOutput, "output", "o", "", "write the final deck to this file")
	submitCmd.Flags().StringVarP(&submitFormat, "format", "f", "", "output format: json or html (default from extension)")
	submitCmd.Flags().StringArrayVar(&submitImages, "image", nil, "manual image as page=src, appended after completion")
	rootCmd.AddCommand(submitCmd)
}

func runSubmit(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	path := args[0]
	payload, err := os.ReadFile(path)
	if err != nil {
		return domain.IOError("failed to read "+path, err)
	}

	base := serverURL(submitServer)
	client := jobs.NewClient(base, logger)

	ui.Section("Slide Deck")
	ui.KeyValue("File", path)
	ui.KeyValue("Server", base)

	uploaded := ui.Busy("Uploading document...")
	jobID, err := client.Submit(ctx, filepath.Base(path), payload)
	uploaded()
	if err != nil {
		return err
	}
	ui.KeyValue("Job", jobID)

	status, err := trackJob(ctx, base, jobID)
	if err == nil {
		err = reportStatus(status)
	}
	if err != nil {
		keepPartialDeck(status, submitOutput, submitFormat, filepath.Base(path))
		return err
	}

	slides := status.Slides
	if len(submitImages) > 0 {
		for _, arg := range submitImages {
			page, src, err := parseImageFlag(arg)
			if err != nil {
				return err
			}
			if _, err := client.AppendImage(ctx, jobID, page, src, nil); err != nil {
				return err
			}
		}
		if slides, err = client.FetchDeck(ctx, jobID); err != nil {
			return err
		}
	}

	if submitOutput == "" {
		return nil
	}
	if err := writeDeck(submitOutput, submitFormat, filepath.Base(path), slides); err != nil {
		return err
	}
	ui.Success("Wrote %d slides to %s", len(slides), submitOutput)
	return nil
}

// parseImageFlag splits "page=src".
func parseImageFlag(arg string) (int, string, error) {
	pageStr, src, ok := strings.Cut(arg, "=")
	page, err := strconv.Atoi(pageStr)
	if !ok || err != nil || page < 1 || src == "" {
		return 0, "", domain.ValidationError("image must be page=src with page >= 1: "+arg, err)
	}
	return page, src, nil
}
