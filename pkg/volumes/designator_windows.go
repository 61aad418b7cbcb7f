package volumes

import (
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// SystemDesignator returns the drive letter of path, such as "D:".
func SystemDesignator(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", errors.WithStack(err)
	}
	vol := filepath.VolumeName(abs)
	if len(vol) != 2 || vol[1] != ':' {
		return "", errors.Errorf("%s is not on a lettered drive", path)
	}
	return strings.ToUpper(vol), nil
}
