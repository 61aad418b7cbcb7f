package scanner

import (
	"sync"

	"github.com/gofrs/flock"
	"github.com/pkg/errors"
	"github.com/shishobooks/shelfscan/pkg/errcodes"
)

// scanLock admits one scan at a time within the process and, when a path is
// configured, across processes sharing the catalog.
type scanLock struct {
	mu   sync.Mutex
	path string
}

func (l *scanLock) acquire() (func(), error) {
	if !l.mu.TryLock() {
		return nil, errcodes.ScanInProgress()
	}
	if l.path == "" {
		return l.mu.Unlock, nil
	}

	fl := flock.New(l.path)
	ok, err := fl.TryLock()
	if err != nil {
		l.mu.Unlock()
		return nil, errors.Wrapf(err, "failed to lock %s", l.path)
	}
	if !ok {
		l.mu.Unlock()
		return nil, errcodes.ScanInProgress()
	}
	return func() {
		_ = fl.Unlock()
		l.mu.Unlock()
	}, nil
}
