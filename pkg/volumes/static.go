package volumes

import (
	"context"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

// StaticEnumerator serves a fixed device table. It stands in for hardware
// enumeration in tests and in environments without one.
type StaticEnumerator struct {
	mu      sync.Mutex
	volumes []Volume
	err     error
	calls   int
}

func NewStaticEnumerator(vols ...Volume) *StaticEnumerator {
	return &StaticEnumerator{volumes: vols}
}

func (e *StaticEnumerator) ListLogicalVolumes(context.Context) ([]Volume, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	return append([]Volume(nil), e.volumes...), nil
}

// Set replaces the device table.
func (e *StaticEnumerator) Set(vols ...Volume) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.volumes = vols
	e.err = nil
}

// Fail makes every following enumeration return err.
func (e *StaticEnumerator) Fail(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.err = err
}

// Calls returns how many enumerations have run.
func (e *StaticEnumerator) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

// PrefixDesignator maps paths to designators by their longest matching
// directory prefix.
func PrefixDesignator(prefixes map[string]string) DesignatorFunc {
	return func(path string) (string, error) {
		path = filepath.Clean(path)
		best, designator := -1, ""
		for prefix, d := range prefixes {
			prefix = filepath.Clean(prefix)
			if path != prefix && !strings.HasPrefix(path, prefix+string(filepath.Separator)) {
				continue
			}
			if len(prefix) > best {
				best, designator = len(prefix), d
			}
		}
		if best < 0 {
			return "", errors.Errorf("no device for %s", path)
		}
		return designator, nil
	}
}
