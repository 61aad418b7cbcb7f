package scanner

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/shishobooks/shelfscan/pkg/config"
	"github.com/shishobooks/shelfscan/pkg/errcodes"
	"github.com/shishobooks/shelfscan/pkg/models"
	"github.com/shishobooks/shelfscan/pkg/registry"
)

// isGone reports whether p is confirmed absent. Any error other than "does
// not exist" leaves the question open.
func isGone(p string) (bool, error) {
	_, err := os.Lstat(p)
	if err == nil {
		return false, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return true, nil
	}
	return false, errors.WithStack(err)
}

// volumeAttached reports whether loc's volume is mounted where loc points.
// The nearest existing ancestor of the vanished file is resolved; when a
// drive mounted below the root is unplugged that ancestor lies on another
// volume (or on none) and the location cannot be judged.
func (s *Scanner) volumeAttached(ctx context.Context, loc *models.Location) bool {
	dir := filepath.Dir(loc.FullPath())
	for {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			break
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return false
		}
		dir = parent
	}
	volumeID, err := s.volumes.Resolve(ctx, dir)
	return err == nil && volumeID == loc.VolumeID
}

// cleanupRoot handles the locations recorded under root whose files are
// gone, either deleting them or marking them missing. A location is only
// touched when its own volume is verified to be attached.
func (s *Scanner) cleanupRoot(ctx context.Context, root, policy string) (int, error) {
	log := logger.FromContext(ctx).Data(logger.Data{"root": root})

	locs, err := s.registry.ListLocations(ctx, registry.ListLocationsOptions{BasePath: &root})
	if err != nil {
		return 0, errors.Wrap(errcodes.RegistryFailure("list locations"), err.Error())
	}

	removed := 0
	for _, loc := range locs {
		if err := ctx.Err(); err != nil {
			return removed, err
		}

		gone, err := isGone(loc.FullPath())
		if err != nil {
			log.Warn("can't verify location; keeping it", logger.Data{"path": loc.FullPath(), "error": err.Error()})
			continue
		}
		if !gone {
			continue
		}
		if !s.volumeAttached(ctx, loc) {
			log.Debug("volume not attached; keeping location", logger.Data{"path": loc.FullPath(), "volume_id": loc.VolumeID})
			continue
		}

		switch policy {
		case config.MissingPolicyMarkMissing:
			if !loc.IsActive() {
				continue
			}
			err = s.registry.SetLocationStatus(ctx, loc.ID, models.LocationStatusMissing)
		default:
			err = s.registry.DeleteLocation(ctx, loc.ID)
		}
		if err != nil {
			return removed, errors.Wrap(errcodes.RegistryFailure("remove location"), err.Error())
		}
		removed++
		log.Info("location removed", logger.Data{"path": loc.FullPath(), "book_id": loc.BookID, "policy": policy})
	}
	return removed, nil
}

// RemoveDeadLocations deletes the locations under roots whose files are
// gone, outside of a scan. Roots that are unreachable or on an unresolvable
// volume are skipped.
func (s *Scanner) RemoveDeadLocations(ctx context.Context, roots []string) (*Result, error) {
	release, err := s.lock.acquire()
	if err != nil {
		return nil, err
	}
	defer release()

	result := &Result{}
	for _, r := range normalizeRoots(roots) {
		if info, err := os.Stat(r); err != nil || !info.IsDir() {
			s.fail(ctx, result, r, errcodes.VolumeUnresolvable(r))
			continue
		}
		if _, err := s.volumes.Resolve(ctx, r); err != nil {
			s.fail(ctx, result, r, err)
			continue
		}
		n, err := s.cleanupRoot(ctx, r, config.MissingPolicyDelete)
		result.Removed += n
		if err != nil {
			return result, err
		}
	}
	return result, nil
}

// DeleteOrphanBooks removes books that no longer have any location.
func (s *Scanner) DeleteOrphanBooks(ctx context.Context) (int, error) {
	release, err := s.lock.acquire()
	if err != nil {
		return 0, err
	}
	defer release()

	n, err := s.registry.DeleteOrphanBooks(ctx)
	if err != nil {
		return 0, errors.Wrap(errcodes.RegistryFailure("delete orphan books"), err.Error())
	}
	logger.FromContext(ctx).Info("orphan books deleted", logger.Data{"count": n})
	return n, nil
}
