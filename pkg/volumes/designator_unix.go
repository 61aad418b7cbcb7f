//go:build unix

package volumes

import (
	"fmt"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// SystemDesignator returns the major:minor number of the device holding
// path, matching the MAJ:MIN column of lsblk.
func SystemDesignator(path string) (string, error) {
	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		return "", errors.Wrapf(err, "failed to stat %s", path)
	}
	dev := uint64(st.Dev) //nolint:unconvert // Dev is narrower on some platforms
	return fmt.Sprintf("%d:%d", unix.Major(dev), unix.Minor(dev)), nil
}
