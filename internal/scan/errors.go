package scan

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
)

// ErrorKind classifies scan failures.
type ErrorKind int

const (
	KindIO ErrorKind = iota
	KindNotFound
	KindPermissionDenied
	KindCancelled
)

func (k ErrorKind) String() string {
	switch k {
	case KindNotFound:
		return "not found"
	case KindPermissionDenied:
		return "permission denied"
	case KindCancelled:
		return "cancelled"
	default:
		return "i/o error"
	}
}

// ScanError is the typed failure surfaced for a whole scan. Per-entry
// permission problems below the root never produce one; they are skipped and
// counted on the Tree instead.
type ScanError struct {
	Kind ErrorKind
	Path string
	Err  error
}

func (e *ScanError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("scan %s: %s: %v", e.Path, e.Kind, e.Err)
	}
	return fmt.Sprintf("scan %s: %s", e.Path, e.Kind)
}

func (e *ScanError) Unwrap() error { return e.Err }

// classify maps an OS error on the root path to a ScanError.
func classify(path string, err error) *ScanError {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return &ScanError{Kind: KindNotFound, Path: path, Err: err}
	case errors.Is(err, fs.ErrPermission):
		return &ScanError{Kind: KindPermissionDenied, Path: path, Err: err}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return &ScanError{Kind: KindCancelled, Path: path, Err: err}
	default:
		return &ScanError{Kind: KindIO, Path: path, Err: err}
	}
}
