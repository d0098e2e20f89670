package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spherical/slide-deck/cmd/slide-deck/ui"
	"github.com/spherical/slide-deck/internal/cache"
	"github.com/spherical/slide-deck/internal/channel"
	"github.com/spherical/slide-deck/internal/domain"
	"github.com/spherical/slide-deck/internal/progress"
	"github.com/spherical/slide-deck/pkg/deck"
)

// openRedis connects using the cache section of the config.
func openRedis() (*cache.RedisClient, error) {
	r := cfg.Cache.Redis
	return cache.NewRedisClient(cache.RedisConfig{
		URL:      r.URL,
		Addr:     r.Addr,
		Password: r.Password,
		DB:       r.DB,
		PoolSize: r.PoolSize,
		Prefix:   r.Prefix,
	})
}

// newDialer returns the configured notification transport and a cleanup func.
func newDialer(baseURL string) (channel.Dialer, func(), error) {
	if cfg.Notify.Transport == "redis" {
		rc, err := openRedis()
		if err != nil {
			return nil, nil, err
		}
		return channel.NewRedisDialer(rc), func() { _ = rc.Close() }, nil
	}
	return channel.NewWebSocketDialer(baseURL), func() {}, nil
}

func serverURL(flag string) string {
	if flag != "" {
		return flag
	}
	return cfg.Notify.BaseURL
}

// trackJob follows a job with a progress bar and returns its final status.
func trackJob(ctx context.Context, baseURL, jobID string) (progress.JobStatus, error) {
	dialer, cleanup, err := newDialer(baseURL)
	if err != nil {
		return progress.JobStatus{}, err
	}
	defer cleanup()

	view := ui.NewJobView("Connecting...")

	status, err := deck.Track(ctx, jobID, deck.TrackOptions{
		Dialer: dialer,
		Channel: channel.Config{
			MaxAttempts: cfg.Notify.MaxAttempts,
			BaseDelay:   cfg.Notify.BaseDelay,
		},
		Tracker: progress.Config{SettlingDelay: cfg.Tracker.SettlingDelay},
		Logger:  logger.WithJob(jobID),
		OnUpdate: func(st progress.JobStatus) {
			view.Observe(st)
			ui.Debug("%s (%d%%)", st.CurrentStage, st.ProgressPercent)
		},
	})
	view.Close(status)
	return status, err
}

// reportStatus prints the outcome of a job and turns a failure into an error.
func reportStatus(st progress.JobStatus) error {
	if st.Succeeded() {
		ui.Success("Job %s complete (%d slides)", st.JobID, len(st.Slides))
		if st.PresentationURL != "" {
			ui.KeyValue("Presentation", st.PresentationURL)
		}
		return nil
	}

	ui.Error("Job %s failed: %s", st.JobID, st.LastError)
	if st.Retryable {
		ui.Info("The connection was lost; run `slide-deck track %s` to reattach", st.JobID)
	}
	return domain.NewError(st.ErrorKind, st.LastError, nil)
}

// keepPartialDeck writes the slides a job produced before it failed, so a
// failure after partial success leaves them on disk.
func keepPartialDeck(st progress.JobStatus, path, format, title string) {
	if path == "" || len(st.Slides) == 0 {
		return
	}
	if err := writeDeck(path, format, title, st.Slides); err != nil {
		ui.Warning("Could not save partial deck: %v", err)
		return
	}
	ui.Warning("Wrote partial deck (%d slides) to %s", len(st.Slides), path)
}

// writeDeck writes slides to path, or stdout when path is empty. The format
// is json or html and defaults to the file extension.
func writeDeck(path, format, title string, slides []domain.SlideRecord) error {
	if format == "" {
		format = "json"
		if ext := strings.ToLower(filepath.Ext(path)); ext == ".html" || ext == ".htm" {
			format = "html"
		}
	}

	var w io.Writer = os.Stdout
	if path != "" {
		f, err := os.Create(path)
		if err != nil {
			return domain.IOError("failed to create output", err)
		}
		defer f.Close()
		w = f
	}

	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(slides); err != nil {
			return domain.IOError("failed to write deck", err)
		}
	case "html":
		if err := deck.WriteHTML(w, title, slides); err != nil {
			return domain.IOError("failed to write deck", err)
		}
	default:
		return domain.ValidationError(fmt.Sprintf("unknown output format %q", format), nil)
	}
	return nil
}
