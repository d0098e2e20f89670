// Package ui provides terminal output for the slide-deck CLI.
package ui

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/briandowns/spinner"
	"github.com/schollz/progressbar/v3"

	"github.com/spherical/slide-deck/internal/progress"
)

const spinnerInterval = 120 * time.Millisecond

// JobView draws a tracked job on stderr: a percent bar while stages
// advance and a spinner once the job is settling. It is safe for concurrent
// use; updates after Close are dropped.
type JobView struct {
	mu     sync.Mutex
	bar    *progressbar.ProgressBar
	settle *spinner.Spinner
	closed bool
}

// NewJobView creates a view whose bar starts empty with the given label.
func NewJobView(label string) *JobView {
	return &JobView{
		bar: progressbar.NewOptions(100,
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionSetDescription(label),
			progressbar.OptionSetWidth(32),
			progressbar.OptionShowCount(),
			progressbar.OptionSetPredictTime(false),
			progressbar.OptionSetRenderBlankState(true),
			progressbar.OptionSetTheme(progressbar.Theme{
				Saucer:        "=",
				SaucerHead:    ">",
				SaucerPadding: " ",
				BarStart:      "[",
				BarEnd:        "]",
			}),
		),
	}
}

// Observe applies a status snapshot.
func (v *JobView) Observe(st progress.JobStatus) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return
	}
	v.bar.Describe(fmt.Sprintf("%-28.28s", st.StatusMessage))
	_ = v.bar.Set(st.ProgressPercent)

	if st.Settling && v.settle == nil {
		v.settle = newSpinner("waiting for the presentation to publish")
		v.settle.Start()
	}
}

// Close removes the spinner and leaves the bar full on success or at its
// last position otherwise.
func (v *JobView) Close(st progress.JobStatus) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return
	}
	v.closed = true
	if v.settle != nil {
		v.settle.Stop()
		v.settle = nil
	}
	if st.Succeeded() {
		_ = v.bar.Finish()
	}
	fmt.Fprintln(os.Stderr)
}

// Busy shows a spinner with message until the returned func is called.
func Busy(message string) (done func()) {
	s := newSpinner(message)
	s.Start()
	return s.Stop
}

func newSpinner(message string) *spinner.Spinner {
	s := spinner.New(spinner.CharSets[11], spinnerInterval, spinner.WithWriter(os.Stderr))
	s.Suffix = " " + message
	return s
}
