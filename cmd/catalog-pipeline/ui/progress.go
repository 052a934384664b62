package ui

import (
	"fmt"
	"os"
	"time"

	"github.com/briandowns/spinner"
	"github.com/schollz/progressbar/v3"
	"github.com/vbauerster/mpb/v8"

	"github.com/shelfline/catalog-pipeline/internal/pipeline"
)

// Bar wraps a progressbar instance for deterministic single-task progress.
type Bar struct {
	bar *progressbar.ProgressBar
}

// NewBar creates a new progress bar with the given total and description.
func NewBar(total int64, description string) *Bar {
	bar := progressbar.NewOptions64(
		total,
		progressbar.OptionSetWidth(50),
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "│",
			BarEnd:        "│",
		}),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprint(os.Stderr, "\n")
		}),
		progressbar.OptionSetRenderBlankState(true),
	)

	return &Bar{bar: bar}
}

// Add advances the bar by n.
func (b *Bar) Add(n int) {
	_ = b.bar.Add(n)
}

// Finish completes the bar.
func (b *Bar) Finish() {
	_ = b.bar.Finish()
}

// Spinner wraps a spinner instance for indeterminate progress display.
type Spinner struct {
	spinner *spinner.Spinner
}

// NewSpinner creates a new spinner with the given message.
func NewSpinner(message string) *Spinner {
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	s.Suffix = " " + message
	s.Writer = os.Stderr
	return &Spinner{spinner: s}
}

// Start starts the spinner animation.
func (s *Spinner) Start() {
	s.spinner.Start()
}

// Stop stops the spinner animation and clears the line.
func (s *Spinner) Stop() {
	s.spinner.Stop()
}

// UpdateMessage updates the spinner's message.
func (s *Spinner) UpdateMessage(message string) {
	s.spinner.Suffix = " " + message
}

// PipelineView renders live run progress from the coordinator's event
// stream: one bar for folders, one for images. The image total grows as
// folders report their eligible image counts.
type PipelineView struct {
	ui      *UI
	folders *mpb.Bar
	images  *mpb.Bar
	done    chan struct{}
}

// NewPipelineView creates a view drawing into the UI's multi-bar group.
func NewPipelineView(u *UI) *PipelineView {
	return &PipelineView{
		ui:   u,
		done: make(chan struct{}),
	}
}

// Watch consumes events until the stream closes. Run it in a goroutine and
// use Wait to block until rendering is finished.
func (v *PipelineView) Watch(events <-chan pipeline.Event) {
	defer close(v.done)

	var imageTotal int64
	for evt := range events {
		switch evt.Type {
		case pipeline.EventRunStart:
			v.folders = v.ui.ProgressBar("folders", int64(evt.Total))
		case pipeline.EventFolderStart:
			imageTotal += int64(evt.Total)
			if v.images == nil {
				v.images = v.ui.ProgressBar("images", imageTotal)
			} else {
				v.images.SetTotal(imageTotal, false)
			}
		case pipeline.EventImageUploaded, pipeline.EventImageFailed:
			if v.images != nil {
				v.images.Increment()
			}
		case pipeline.EventFolderComplete, pipeline.EventFolderSkipped:
			if v.folders != nil {
				v.folders.Increment()
			}
		}
	}

	// Skipped folders leave the totals unreached; settle the bars at
	// their current values so the group can shut down.
	if v.images != nil {
		v.images.SetTotal(-1, true)
	}
	if v.folders != nil {
		v.folders.SetTotal(-1, true)
	}
}

// Wait blocks until the event stream has been fully consumed.
func (v *PipelineView) Wait() {
	<-v.done
}
