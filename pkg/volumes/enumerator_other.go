//go:build !linux && !windows

package volumes

import (
	"context"
	"runtime"

	"github.com/pkg/errors"
)

type unsupportedEnumerator struct{}

// SystemEnumerator has no device table on this platform; configure volumes
// explicitly instead.
func SystemEnumerator() Enumerator {
	return unsupportedEnumerator{}
}

func (unsupportedEnumerator) ListLogicalVolumes(context.Context) ([]Volume, error) {
	return nil, errors.Errorf("volume enumeration is not supported on %s", runtime.GOOS)
}
