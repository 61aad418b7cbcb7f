// Package scanner reconciles the catalog with the books found under a set of
// root directories.
package scanner

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/shishobooks/shelfscan/pkg/config"
	"github.com/shishobooks/shelfscan/pkg/contentid"
	"github.com/shishobooks/shelfscan/pkg/errcodes"
	"github.com/shishobooks/shelfscan/pkg/models"
	"github.com/shishobooks/shelfscan/pkg/registry"
)

// VolumeResolver maps a path to the id of the volume it is stored on.
type VolumeResolver interface {
	Resolve(ctx context.Context, path string) (string, error)
}

// IdentityCalculator derives the content identity of a book.
type IdentityCalculator interface {
	Compute(ctx context.Context, path string) (*contentid.Identity, error)
}

// Failure is a candidate (or a whole root) that was skipped.
type Failure struct {
	Path  string `json:"path"`
	Code  string `json:"code"`
	Error string `json:"error"`
}

// Result summarizes one scan. Added, Updated and Removed follow the catalog
// contract; the other fields are informational.
type Result struct {
	Added          int       `json:"added"`
	Updated        int       `json:"updated"`
	Removed        int       `json:"removed"`
	Reactivated    int       `json:"reactivated"`
	Skipped        int       `json:"skipped"`
	OrphansDeleted int       `json:"orphans_deleted"`
	Failures       []Failure `json:"failures,omitempty"`
}

type outcome int

const (
	outcomeAdded outcome = iota
	outcomeMoved
	outcomeCopied
)

type Scanner struct {
	config   *config.Config
	registry registry.Registry
	volumes  VolumeResolver
	identity IdentityCalculator
	lock     scanLock
}

func New(cfg *config.Config, reg registry.Registry, volumes VolumeResolver, identity IdentityCalculator) *Scanner {
	return &Scanner{
		config:   cfg,
		registry: reg,
		volumes:  volumes,
		identity: identity,
		lock:     scanLock{path: cfg.LockFilePath},
	}
}

// root is one configured root as seen at the start of a scan.
type root struct {
	path       string
	reachable  bool
	resolved   bool
	candidates []Candidate
}

// Scan walks roots, brings the catalog in line with what it finds and then
// removes locations whose files are gone. Candidates are handled one at a
// time. Progress updates are sent to progress (which may be nil) without
// ever blocking. On cancellation or a registry failure the partial result is
// returned with the error; work already committed is kept.
func (s *Scanner) Scan(ctx context.Context, roots []string, progress chan<- Progress) (*Result, error) {
	release, err := s.lock.acquire()
	if err != nil {
		return nil, err
	}
	defer release()

	log := logger.FromContext(ctx)
	result := &Result{}

	report(progress, Progress{Message: "listing candidates"})
	states := s.prepareRoots(ctx, normalizeRoots(roots), result)
	if err := ctx.Err(); err != nil {
		return result, err
	}

	total := 0
	for _, st := range states {
		total += len(st.candidates)
	}
	log.Info("candidates found", logger.Data{"roots": len(states), "candidates": total})
	report(progress, Progress{Total: total, Message: "found candidates"})

	current := 0
	for _, st := range states {
		for _, c := range st.candidates {
			if err := ctx.Err(); err != nil {
				log.Info("scan cancelled", logger.Data{"processed": current, "total": total})
				return result, err
			}
			current++
			report(progress, Progress{Current: current, Total: total, Message: filepath.Base(c.Path)})

			// Each candidate is resolved on its own: a drive can be mounted
			// anywhere below a root.
			volumeID, err := s.volumes.Resolve(ctx, c.Path)
			if err != nil {
				log.Warn("volume unresolvable; skipping candidate", logger.Data{"path": c.Path})
				result.Skipped++
				continue
			}
			if err := s.processCandidate(ctx, st, c, volumeID, result); err != nil {
				return result, err
			}
		}
	}

	report(progress, Progress{Current: total, Total: total, Message: "checking for removed books"})
	for _, st := range states {
		if !st.reachable || !st.resolved {
			log.Info("skipping cleanup of unverified root", logger.Data{"root": st.path})
			continue
		}
		n, err := s.cleanupRoot(ctx, st.path, s.config.MissingPolicy)
		result.Removed += n
		if err != nil {
			return result, err
		}
	}

	if s.config.DeleteOrphansAfterScan {
		n, err := s.registry.DeleteOrphanBooks(ctx)
		if err != nil {
			return result, errors.Wrap(errcodes.RegistryFailure("delete orphan books"), err.Error())
		}
		result.OrphansDeleted = n
	}

	if n, err := s.registry.CountFingerprintCollisions(ctx); err != nil {
		log.Err(err).Warn("can't count fingerprint collisions")
	} else if n > 0 {
		log.Warn("several books share a fingerprint and page count", logger.Data{"groups": n})
	}

	report(progress, Progress{Current: total, Total: total, Message: "done"})
	log.Info("scan finished", logger.Data{
		"added":       result.Added,
		"updated":     result.Updated,
		"removed":     result.Removed,
		"reactivated": result.Reactivated,
		"skipped":     result.Skipped,
		"failures":    len(result.Failures),
	})
	return result, nil
}

// prepareRoots checks, resolves and walks every root. A candidate that lies
// inside a more specific root belongs to that root only, whether or not that
// root is part of this scan.
func (s *Scanner) prepareRoots(ctx context.Context, roots []string, result *Result) []*root {
	log := logger.FromContext(ctx)
	states := make([]*root, 0, len(roots))

	for _, p := range roots {
		if ctx.Err() != nil {
			break
		}
		st := &root{path: p}
		states = append(states, st)

		info, err := os.Stat(p)
		if err != nil || !info.IsDir() {
			log.Warn("root is not reachable; leaving its locations untouched", logger.Data{"root": p})
			s.fail(ctx, result, p, errcodes.VolumeUnresolvable(p))
			continue
		}
		st.reachable = true

		_, err = s.volumes.Resolve(ctx, p)
		if err != nil {
			s.fail(ctx, result, p, err)
		} else {
			st.resolved = true
		}

		st.candidates, err = Walk(ctx, p)
		if err != nil {
			s.fail(ctx, result, p, err)
			// An unwalkable root cannot be verified either.
			st.reachable = false
			continue
		}
	}

	owners := normalizeRoots(append(append([]string{}, s.config.ScanRoots...), roots...))
	for _, st := range states {
		kept := st.candidates[:0]
		for _, c := range st.candidates {
			if owner := owningRoot(owners, c.Path); owner == st.path {
				kept = append(kept, c)
			}
		}
		st.candidates = kept
	}
	return states
}

func (s *Scanner) processCandidate(ctx context.Context, st *root, c Candidate, volumeID string, result *Result) error {
	log := logger.FromContext(ctx).Data(logger.Data{"path": c.Path, "volume_id": volumeID})

	rel, err := filepath.Rel(st.path, c.Path)
	if err != nil {
		s.fail(ctx, result, c.Path, err)
		return nil
	}
	rel = filepath.ToSlash(rel)

	_, err = s.registry.FindActiveLocation(ctx, volumeID, st.path, rel)
	if err == nil {
		return nil
	}
	if !errors.Is(err, errcodes.NotFound("Location")) {
		return errors.Wrap(errcodes.RegistryFailure("find active location"), err.Error())
	}

	loc, err := s.registry.FindMissingLocation(ctx, volumeID, st.path, rel)
	switch {
	case err == nil:
		if err := s.registry.SetLocationStatus(ctx, loc.ID, models.LocationStatusActive); err != nil {
			return errors.Wrap(errcodes.RegistryFailure("reactivate location"), err.Error())
		}
		log.Info("location is back", logger.Data{"location_id": loc.ID})
		result.Reactivated++
		return nil
	case !errors.Is(err, errcodes.NotFound("Location")):
		return errors.Wrap(errcodes.RegistryFailure("find missing location"), err.Error())
	}

	ident, err := s.identity.Compute(ctx, c.Path)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		s.fail(ctx, result, c.Path, err)
		return nil
	}

	var out outcome
	err = s.registry.RunInTx(ctx, func(ctx context.Context, reg registry.Registry) error {
		var err error
		out, err = s.reconcile(ctx, reg, st, c, volumeID, rel, ident)
		return err
	})
	if err != nil {
		if errcodes.Code(err) == errcodes.CodeAmbiguousLegacyMatch {
			s.fail(ctx, result, c.Path, err)
			return nil
		}
		return errors.Wrap(errcodes.RegistryFailure("reconcile "+c.Path), err.Error())
	}

	switch out {
	case outcomeAdded:
		result.Added++
		log.Info("new book added")
	case outcomeMoved:
		result.Updated++
		log.Info("move detected; location updated")
	case outcomeCopied:
		result.Updated++
		log.Info("new location added to existing book")
	}
	return nil
}

// reconcile runs inside one transaction: find the book by identity (or by
// the legacy heuristic) and record where this copy lives.
func (s *Scanner) reconcile(ctx context.Context, reg registry.Registry, st *root, c Candidate, volumeID, rel string, ident *contentid.Identity) (outcome, error) {
	book, err := reg.FindBookByFingerprint(ctx, ident.Fingerprint, ident.PageCount)
	if err != nil && !errors.Is(err, errcodes.NotFound("Book")) {
		return 0, err
	}
	if book == nil {
		book, err = matchLegacyBook(ctx, reg, c, ident)
		if err != nil {
			return 0, err
		}
	}

	if book == nil {
		book = &models.Book{
			Title:       titleFromPath(c),
			Fingerprint: &ident.Fingerprint,
			PageCount:   ident.PageCount,
			Thumbnail:   ident.Thumbnail,
		}
		if err := reg.CreateBook(ctx, book); err != nil {
			return 0, err
		}
		if _, err := reg.AddLocation(ctx, book.ID, volumeID, st.path, rel); err != nil {
			return 0, err
		}
		return outcomeAdded, nil
	}

	// A copy on the same volume whose file is gone was moved here. When
	// every copy on this volume is still present this is another duplicate.
	locs, err := reg.ListLocations(ctx, registry.ListLocationsOptions{BookID: &book.ID, VolumeID: &volumeID})
	if err != nil {
		return 0, err
	}
	for _, loc := range locs {
		gone, err := isGone(loc.FullPath())
		if err != nil || !gone {
			continue
		}
		if err := reg.UpdateLocationPath(ctx, loc.ID, st.path, rel); err != nil {
			return 0, err
		}
		return outcomeMoved, nil
	}

	if _, err := reg.AddLocation(ctx, book.ID, volumeID, st.path, rel); err != nil {
		return 0, err
	}
	return outcomeCopied, nil
}

func (s *Scanner) fail(ctx context.Context, result *Result, path string, err error) {
	code := errcodes.Code(err)
	if code == "" {
		code = "unreadable"
	}
	logger.FromContext(ctx).Warn("skipping", logger.Data{"path": path, "code": code, "error": err.Error()})
	result.Failures = append(result.Failures, Failure{Path: path, Code: code, Error: err.Error()})
}

// normalizeRoots cleans, absolutizes and de-duplicates roots.
func normalizeRoots(roots []string) []string {
	seen := make(map[string]struct{}, len(roots))
	out := make([]string, 0, len(roots))
	for _, r := range roots {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		if abs, err := filepath.Abs(r); err == nil {
			r = abs
		}
		r = filepath.Clean(r)
		if _, ok := seen[r]; ok {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	return out
}

// owningRoot returns the longest root that contains p.
func owningRoot(roots []string, p string) string {
	best := ""
	for _, r := range roots {
		if p != r && !strings.HasPrefix(p, strings.TrimSuffix(r, string(filepath.Separator))+string(filepath.Separator)) {
			continue
		}
		if len(r) > len(best) {
			best = r
		}
	}
	return best
}
