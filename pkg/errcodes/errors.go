package errcodes

import (
	"fmt"

	"github.com/pkg/errors"
)

const (
	CodeNotFound             = "not_found"
	CodeVolumeUnresolvable   = "volume_unresolvable"
	CodeEmptyContent         = "empty_content"
	CodeDecodeFailure        = "decode_failure"
	CodeRegistryFailure      = "registry_failure"
	CodeAmbiguousLegacyMatch = "ambiguous_legacy_match"
	CodeScanInProgress       = "scan_in_progress"
)

type Error struct {
	Message string
	Code    string
}

func (err *Error) Error() string {
	return err.Message
}

func (err *Error) As(target interface{}) bool {
	te, ok := target.(*Error)
	if !ok {
		return false
	}
	te.Message = err.Message
	te.Code = err.Code
	return true
}

func (err *Error) Is(target error) bool {
	te, ok := target.(*Error)
	if !ok {
		return false
	}
	return te.Message == err.Message &&
		te.Code == err.Code
}

// Code returns the code of the first *Error in err's chain, or "" when there
// is none.
func Code(err error) string {
	var e *Error
	if !errors.As(err, &e) {
		return ""
	}
	return e.Code
}

// NotFound returns an error with a message indicating the given resource.
func NotFound(resource string) error {
	return &Error{
		resource + " not found.",
		CodeNotFound,
	}
}

// VolumeUnresolvable means the storage device holding path is not visible
// right now. It is never evidence that the files are gone.
func VolumeUnresolvable(path string) error {
	return &Error{
		fmt.Sprintf("Volume for %q cannot be resolved.", path),
		CodeVolumeUnresolvable,
	}
}

func EmptyContent(path string) error {
	return &Error{
		fmt.Sprintf("No pages found in %q.", path),
		CodeEmptyContent,
	}
}

func DecodeFailure(path string) error {
	return &Error{
		fmt.Sprintf("First page of %q could not be decoded.", path),
		CodeDecodeFailure,
	}
}

func RegistryFailure(op string) error {
	return &Error{
		fmt.Sprintf("Registry operation %s failed.", op),
		CodeRegistryFailure,
	}
}

func AmbiguousLegacyMatch(title string, pageCount int) error {
	return &Error{
		fmt.Sprintf("More than one legacy book matches title %q with %d pages.", title, pageCount),
		CodeAmbiguousLegacyMatch,
	}
}

func ScanInProgress() error {
	return &Error{
		"A scan is already in progress.",
		CodeScanInProgress,
	}
}
