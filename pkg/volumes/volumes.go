// Package volumes maps filesystem paths to stable storage volume ids, so
// catalog rows survive a removable drive being mounted somewhere else.
package volumes

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/shishobooks/shelfscan/pkg/errcodes"
)

// Volume is one visible storage device. Designator is what paths on the
// device resolve to (a drive letter or a major:minor device number) and
// Serial is the id that stays the same across mounts.
type Volume struct {
	Designator string `json:"designator"`
	Serial     string `json:"serial"`
}

// Enumerator lists the storage devices currently visible to the system.
type Enumerator interface {
	ListLogicalVolumes(ctx context.Context) ([]Volume, error)
}

// missRetry is how long a designator that was still unknown after a refresh
// is answered from the cache before a miss refreshes again.
const missRetry = 30 * time.Second

// DesignatorFunc returns the device designator a path lives on.
type DesignatorFunc func(path string) (string, error)

// Identifier resolves paths to volume ids through a cache of the device
// table. The cache is only ever replaced as a whole, and a failed refresh
// leaves the previous table in place.
type Identifier struct {
	enumerator Enumerator
	designator DesignatorFunc

	refreshMu sync.Mutex
	mu        sync.RWMutex
	cache     map[string]string
	missed    map[string]time.Time
}

func NewIdentifier(enumerator Enumerator, designator DesignatorFunc) *Identifier {
	return &Identifier{
		enumerator: enumerator,
		designator: designator,
		cache:      map[string]string{},
		missed:     map[string]time.Time{},
	}
}

// NewSystemIdentifier uses the platform's device enumeration and designators.
func NewSystemIdentifier() *Identifier {
	return NewIdentifier(SystemEnumerator(), SystemDesignator)
}

// Resolve returns the volume id for path. On a cache miss the device table
// is refreshed once; a designator that stayed unknown is not refreshed for
// again until missRetry has passed or the table is refreshed. An errcodes.VolumeUnresolvable error means the device
// cannot currently be verified, not that it is gone.
func (id *Identifier) Resolve(ctx context.Context, path string) (string, error) {
	designator, err := id.designator(path)
	if err != nil {
		logger.FromContext(ctx).Debug("no device designator", logger.Data{"path": path, "error": err.Error()})
		return "", errcodes.VolumeUnresolvable(path)
	}

	if serial, ok := id.lookup(designator); ok {
		return serial, nil
	}
	if id.recentlyMissed(designator) {
		return "", errcodes.VolumeUnresolvable(path)
	}

	if err := id.Refresh(ctx); err != nil {
		logger.FromContext(ctx).Err(err).Warn("volume refresh failed; keeping previous device table")
	}

	if serial, ok := id.lookup(designator); ok {
		return serial, nil
	}
	id.mu.Lock()
	id.missed[designator] = time.Now()
	id.mu.Unlock()
	return "", errcodes.VolumeUnresolvable(path)
}

func (id *Identifier) recentlyMissed(designator string) bool {
	id.mu.RLock()
	defer id.mu.RUnlock()
	at, ok := id.missed[designator]
	return ok && time.Since(at) < missRetry
}

// Refresh enumerates all devices and replaces the cache.
func (id *Identifier) Refresh(ctx context.Context) error {
	id.refreshMu.Lock()
	defer id.refreshMu.Unlock()

	vols, err := id.enumerator.ListLogicalVolumes(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to enumerate volumes")
	}

	cache := make(map[string]string, len(vols))
	for _, v := range vols {
		if v.Designator == "" || v.Serial == "" {
			continue
		}
		cache[v.Designator] = v.Serial
	}

	id.mu.Lock()
	id.cache = cache
	id.missed = map[string]time.Time{}
	id.mu.Unlock()

	logger.FromContext(ctx).Debug("volume table refreshed", logger.Data{"volumes": len(cache)})
	return nil
}

// DesignatorFor returns where the volume with the given id is currently
// attached, refreshing once when it is not in the cache.
func (id *Identifier) DesignatorFor(ctx context.Context, volumeID string) (string, error) {
	if d, ok := id.reverse(volumeID); ok {
		return d, nil
	}
	if err := id.Refresh(ctx); err != nil {
		return "", err
	}
	if d, ok := id.reverse(volumeID); ok {
		return d, nil
	}
	return "", errcodes.NotFound("Volume")
}

// Volumes returns the cached device table sorted by designator.
func (id *Identifier) Volumes() []Volume {
	id.mu.RLock()
	defer id.mu.RUnlock()

	vols := make([]Volume, 0, len(id.cache))
	for d, s := range id.cache {
		vols = append(vols, Volume{Designator: d, Serial: s})
	}
	sort.Slice(vols, func(i, j int) bool {
		return vols[i].Designator < vols[j].Designator
	})
	return vols
}

func (id *Identifier) lookup(designator string) (string, bool) {
	id.mu.RLock()
	defer id.mu.RUnlock()
	serial, ok := id.cache[designator]
	return serial, ok
}

func (id *Identifier) reverse(volumeID string) (string, bool) {
	id.mu.RLock()
	defer id.mu.RUnlock()
	for d, s := range id.cache {
		if s == volumeID {
			return d, true
		}
	}
	return "", false
}
