package progress

import (
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// Options configures the progress reporter.
type Options struct {
	// TotalSize is the total size in bytes to download.
	// Zero or negative means unknown.
	TotalSize int64

	// Output is where to write progress output.
	// Default: os.Stderr
	Output io.Writer

	// UpdateInterval is how often to update the progress display.
	// Default: 5s
	UpdateInterval time.Duration

	// Name is the file being downloaded (for display).
	Name string
}

// Reporter outputs human-readable progress for a single download.
// Bytes are counted through Write, so a Reporter can sit behind an
// io.TeeReader or io.MultiWriter.
type Reporter struct {
	opts Options

	mu        sync.Mutex
	completed atomic.Int64
	startTime time.Time
	lastTime  time.Time
	lastBytes int64
	stopCh    chan struct{}
	doneCh    chan struct{}
	started   bool
	stopped   bool
}

// NewReporter creates a new progress reporter.
func NewReporter(opts Options) *Reporter {
	if opts.Output == nil {
		opts.Output = os.Stderr
	}
	if opts.UpdateInterval == 0 {
		opts.UpdateInterval = 5 * time.Second
	}

	return &Reporter{
		opts:   opts,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// Write counts len(p) bytes as downloaded. It never fails.
func (r *Reporter) Write(p []byte) (int, error) {
	r.completed.Add(int64(len(p)))
	return len(p), nil
}

// Completed returns the number of bytes counted so far.
func (r *Reporter) Completed() int64 {
	return r.completed.Load()
}

// Start begins outputting progress information.
func (r *Reporter) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return
	}
	r.started = true
	r.startTime = time.Now()
	r.lastTime = r.startTime

	if r.opts.TotalSize > 0 {
		fmt.Fprintf(r.opts.Output, "Downloading %s (%s)\n", r.opts.Name, formatBytes(r.opts.TotalSize))
	} else {
		fmt.Fprintf(r.opts.Output, "Downloading %s (size unknown)\n", r.opts.Name)
	}

	go r.updateLoop()
}

// Stop stops the progress reporter and prints a final summary.
// It is safe to call Stop more than once.
func (r *Reporter) Stop() {
	r.mu.Lock()
	if !r.started || r.stopped {
		r.mu.Unlock()
		return
	}
	r.stopped = true
	r.mu.Unlock()

	close(r.stopCh)
	<-r.doneCh
}

// updateLoop periodically updates the progress display.
func (r *Reporter) updateLoop() {
	defer close(r.doneCh)

	ticker := time.NewTicker(r.opts.UpdateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			r.printFinalStatus()
			return
		case <-ticker.C:
			r.printProgress(time.Now())
		}
	}
}

// printProgress outputs the current progress.
func (r *Reporter) printProgress(now time.Time) {
	completed := r.completed.Load()

	elapsed := now.Sub(r.lastTime).Seconds()
	if elapsed < 0.1 {
		elapsed = 0.1
	}
	speed := float64(completed-r.lastBytes) / elapsed

	r.lastTime = now
	r.lastBytes = completed

	if r.opts.TotalSize <= 0 {
		fmt.Fprintf(r.opts.Output, "Progress: %s | Speed: %s/s\n",
			formatBytes(completed),
			formatBytes(int64(speed)),
		)
		return
	}

	percent := float64(completed) / float64(r.opts.TotalSize) * 100
	eta := "calculating..."
	if speed > 0 {
		remaining := float64(r.opts.TotalSize - completed)
		eta = formatDuration(time.Duration(remaining / speed * float64(time.Second)))
	}

	fmt.Fprintf(r.opts.Output, "Progress: %.1f%% | %s / %s | Speed: %s/s | ETA: %s\n",
		percent,
		formatBytes(completed),
		formatBytes(r.opts.TotalSize),
		formatBytes(int64(speed)),
		eta,
	)
}

// printFinalStatus outputs the final status.
func (r *Reporter) printFinalStatus() {
	completed := r.completed.Load()
	duration := time.Since(r.startTime)
	avgSpeed := float64(completed) / max(duration.Seconds(), 0.001)

	fmt.Fprintf(r.opts.Output, "Transferred %s in %s | Average speed: %s/s\n",
		formatBytes(completed),
		formatDuration(duration),
		formatBytes(int64(avgSpeed)),
	)
}

// formatBytes formats bytes as a human-readable string.
func formatBytes(b int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
		TB = GB * 1024
	)

	switch {
	case b >= TB:
		return fmt.Sprintf("%.2f TB", float64(b)/float64(TB))
	case b >= GB:
		return fmt.Sprintf("%.2f GB", float64(b)/float64(GB))
	case b >= MB:
		return fmt.Sprintf("%.2f MB", float64(b)/float64(MB))
	case b >= KB:
		return fmt.Sprintf("%.2f KB", float64(b)/float64(KB))
	default:
		return fmt.Sprintf("%d B", b)
	}
}

// formatDuration formats a duration as a human-readable string.
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.0fs", d.Seconds())
	}
	if d < time.Hour {
		m := int(d.Minutes())
		s := int(d.Seconds()) % 60
		return fmt.Sprintf("%dm %ds", m, s)
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%dh %dm %ds", h, m, s)
}

// FormatBytes is exported for use by other packages.
func FormatBytes(b int64) string {
	return formatBytes(b)
}

// FormatDuration is exported for use by other packages.
func FormatDuration(d time.Duration) string {
	return formatDuration(d)
}
