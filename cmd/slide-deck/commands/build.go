package commands

import (
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/spherical/slide-deck/cmd/slide-deck/ui"
	"github.com/spherical/slide-deck/internal/document"
	"github.com/spherical/slide-deck/internal/domain"
	"github.com/spherical/slide-deck/pkg/deck"
)

var (
	buildOutput string
	buildFormat string
	buildImages []string
)

var buildCmd = &cobra.Command{
	Use:   "build <document.json>",
	Short: "Synthesize a deck from a processed document",
	Long: `Build reads a processed document (structured pages or legacy sections),
synthesizes the slide deck and writes it as JSON or standalone HTML.`,
	Args: cobra.ExactArgs(1),
	RunE: runBuild,
}

func init() {
	buildCmd.Flags().StringVarP(&buildOutput, "output", "o", "", "output file (default stdout)")
	buildCmd.Flags().StringVarP(&buildFormat, "format", "f", "", "output format: json or html (default from extension)")
	buildCmd.Flags().StringArrayVar(&buildImages, "image", nil, "manual image as page=src, repeatable")
	rootCmd.AddCommand(buildCmd)
}

func runBuild(cmd *cobra.Command, args []string) error {
	loader, err := document.NewLoader(logger)
	if err != nil {
		return err
	}
	doc, err := loader.LoadFile(args[0])
	if err != nil {
		return err
	}

	manual := deck.NewManualStore()
	for _, arg := range buildImages {
		page, src, err := parseImageFlag(arg)
		if err != nil {
			return err
		}
		manual.Append(page, src, nil)
	}

	slides := deck.Build(*doc, deckConfig(), manual)

	title := doc.Source
	if title == "" {
		title = strings.TrimSuffix(filepath.Base(args[0]), filepath.Ext(args[0]))
	}
	if err := writeDeck(buildOutput, buildFormat, title, slides); err != nil {
		return err
	}

	if buildOutput != "" {
		ui.Success("Wrote %d slides to %s", len(slides), buildOutput)
	}
	return nil
}

func deckConfig() deck.Config {
	return deck.Config{
		CoverTitle:    cfg.Deck.CoverTitle,
		CoverSubtitle: cfg.Deck.CoverSubtitle,
		SummaryTitle:  cfg.Deck.SummaryTitle,
		Placeholder: domain.Rect{
			Top:    cfg.Deck.PlaceholderTop,
			Left:   cfg.Deck.PlaceholderLeft,
			Width:  cfg.Deck.PlaceholderWidth,
			Height: cfg.Deck.PlaceholderHeight,
		},
	}
}
