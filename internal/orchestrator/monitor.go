package orchestrator

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"
)

// MinProgressInterval is the shortest heartbeat period.
const MinProgressInterval = 5 * time.Second

// monitor prints a heartbeat while one target is being scanned. It only
// reads its start time and the stop signal, so it never races with the scan.
type monitor struct {
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// startMonitor launches the heartbeat loop. interval is used as given.
func startMonitor(ctx context.Context, out io.Writer, prefix, name string, interval time.Duration, now func() time.Time) *monitor {
	m := &monitor{
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	start := now()

	go func() {
		defer close(m.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-m.stop:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				elapsed := int(now().Sub(start).Seconds())
				fmt.Fprintf(out, "%s still scanning %s ... %ds elapsed\n", prefix, name, elapsed)
			}
		}
	}()
	return m
}

// Stop signals the loop and waits up to timeout for it to exit. It reports
// whether the loop finished in time. Safe to call more than once.
func (m *monitor) Stop(timeout time.Duration) bool {
	m.stopOnce.Do(func() { close(m.stop) })
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-m.done:
		return true
	case <-t.C:
		return false
	}
}

// lockedWriter serialises writes from the scan loop and the heartbeat.
// Writers that share mu never interleave.
type lockedWriter struct {
	mu *sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}
