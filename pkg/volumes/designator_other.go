//go:build !unix && !windows

package volumes

import (
	"runtime"

	"github.com/pkg/errors"
)

func SystemDesignator(string) (string, error) {
	return "", errors.Errorf("device designators are not supported on %s", runtime.GOOS)
}
