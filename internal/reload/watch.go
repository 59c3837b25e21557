// Package reload applies configuration file changes to a running
// application.
package reload

import (
	"context"
	"os"
	"time"
)

// DefaultPollInterval is used when Watch is given a non-positive interval.
const DefaultPollInterval = 5 * time.Second

// Watch polls path and signals on the returned channel when its size or
// modification time changes. Signals that the receiver has not consumed
// yet coalesce into one. The channel is closed once ctx is done.
//
// A missing file is not a change: an editor that replaces the file through
// a rename is picked up when the new file appears.
func Watch(ctx context.Context, path string, interval time.Duration) <-chan struct{} {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	changes := make(chan struct{}, 1)
	last, _ := stat(path)

	go func() {
		defer close(changes)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			cur, ok := stat(path)
			if !ok || cur.same(last) {
				continue
			}
			last = cur
			select {
			case changes <- struct{}{}:
			default:
			}
		}
	}()
	return changes
}

type fileStamp struct {
	modTime time.Time
	size    int64
}

func (s fileStamp) same(o fileStamp) bool {
	return s.size == o.size && s.modTime.Equal(o.modTime)
}

func stat(path string) (fileStamp, bool) {
	info, err := os.Stat(path)
	if err != nil {
		return fileStamp{}, false
	}
	return fileStamp{modTime: info.ModTime(), size: info.Size()}, true
}
