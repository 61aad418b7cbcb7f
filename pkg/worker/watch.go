package worker

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/radovskyb/watcher"
	"github.com/robinjoseph08/golib/logger"
	"github.com/shishobooks/shelfscan/pkg/models"
)

// RootWatcher polls the configured roots and enqueues a scan of the roots
// where something changed. Changes within one polling cycle collapse into a
// single job per root set.
type RootWatcher struct {
	worker  *Worker
	watcher *watcher.Watcher
	roots   []string
	wg      sync.WaitGroup
}

func NewRootWatcher(w *Worker) (*RootWatcher, error) {
	wt := watcher.New()
	wt.IgnoreHiddenFiles(true)
	wt.FilterOps(watcher.Create, watcher.Remove, watcher.Rename, watcher.Move, watcher.Write)

	for _, root := range w.config.ScanRoots {
		if err := wt.AddRecursive(root); err != nil {
			// An unplugged drive is picked up by the device monitor instead.
			w.log.Err(err).Warn("can't watch root", logger.Data{"root": root})
			continue
		}
	}
	if len(wt.WatchedFiles()) == 0 {
		return nil, errors.New("none of the scan roots can be watched")
	}

	return &RootWatcher{worker: w, watcher: wt, roots: w.config.ScanRoots}, nil
}

// Start begins polling at the configured interval until ctx ends or Stop is
// called. It returns once polling has begun.
func (rw *RootWatcher) Start(ctx context.Context) {
	rw.wg.Add(2)
	go func() {
		defer rw.wg.Done()
		rw.loop(ctx)
	}()
	go func() {
		defer rw.wg.Done()
		if err := rw.watcher.Start(rw.worker.config.WatchInterval); err != nil {
			logger.FromContext(ctx).Err(err).Error("root watcher stopped")
		}
	}()
	rw.watcher.Wait()
}

func (rw *RootWatcher) Stop() {
	rw.watcher.Close()
	rw.wg.Wait()
}

func (rw *RootWatcher) loop(ctx context.Context) {
	log := logger.FromContext(ctx)
	changed := map[string]struct{}{}
	flush := time.NewTicker(rw.worker.config.WatchInterval)
	defer flush.Stop()
	done := ctx.Done()

	// The watcher blocks until Closed is received, so this loop only exits
	// there.
	for {
		select {
		case <-done:
			done = nil
			go rw.watcher.Close()
		case <-rw.watcher.Closed:
			return
		case event := <-rw.watcher.Event:
			if root := ownerOf(rw.roots, event.Path); root != "" {
				changed[root] = struct{}{}
			}
		case err := <-rw.watcher.Error:
			log.Err(err).Warn("root watcher error")
		case <-flush.C:
			if len(changed) == 0 {
				continue
			}
			roots := make([]string, 0, len(changed))
			for root := range changed {
				roots = append(roots, root)
			}
			changed = map[string]struct{}{}
			rw.worker.enqueue(ctx, models.JobTypeScan, roots, "roots changed")
		}
	}
}

// ownerOf returns the longest root containing p.
func ownerOf(roots []string, p string) string {
	best := ""
	for _, r := range roots {
		if p != r && !strings.HasPrefix(p, strings.TrimSuffix(r, "/")+"/") &&
			!strings.HasPrefix(p, strings.TrimSuffix(r, `\`)+`\`) {
			continue
		}
		if len(r) > len(best) {
			best = r
		}
	}
	return best
}
