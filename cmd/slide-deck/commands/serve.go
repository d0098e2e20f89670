package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/spherical/slide-deck/internal/cache"
	"github.com/spherical/slide-deck/internal/document"
	"github.com/spherical/slide-deck/internal/server"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the reference processing server",
	Long: `Serve accepts document uploads on POST /process, walks each job through
the processing stages and streams progress on /ws/{job-id}.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "listen port (default server.port)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	if servePort > 0 {
		cfg.Server.Port = servePort
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		client    cache.Client
		publisher server.Publisher
	)
	needsRedis := cfg.Cache.Driver == "redis" || cfg.Notify.Transport == "redis" || cfg.Jobs.PublishRedis
	if needsRedis {
		rc, err := openRedis()
		if err != nil {
			return err
		}
		defer rc.Close()
		publisher = rc
		if cfg.Cache.Driver == "redis" {
			client = rc
		}
	}
	if client == nil {
		mem := cache.NewMemoryClient(cfg.Cache.MaxEntries)
		defer mem.Close()
		client = mem
	}

	loader, err := document.NewLoader(logger)
	if err != nil {
		return err
	}

	srv, err := server.New(cfg, server.Deps{
		Logger:    logger,
		Documents: cache.NewDocumentCache(client, cfg.Cache.TTL, logger),
		Decoder:   loader,
		Publisher: publisher,
	})
	if err != nil {
		return err
	}

	logger.Info().
		Str("addr", cfg.Addr()).
		Str("cache", cfg.Cache.Driver).
		Str("transport", cfg.Notify.Transport).
		Msg("starting slide-deck server")

	return srv.ListenAndServe(ctx)
}
