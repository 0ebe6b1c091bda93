package errs

import "errors"

var (
	// ErrLoadRoot means the document root is missing or unreadable.
	// It aborts a reindex; per-file problems only produce warnings.
	ErrLoadRoot = errors.New("document root not readable")

	// ErrBuildInProgress rejects a reindex while another one is running.
	ErrBuildInProgress = errors.New("index build in progress")

	// ErrIndexNotBuilt is returned for queries before any snapshot
	// has been published or restored.
	ErrIndexNotBuilt = errors.New("index not built")

	ErrInvalid = errors.New("invalid request")
)

func IsBuildInProgress(err error) bool {
	return errors.Is(err, ErrBuildInProgress)
}

func IsIndexNotBuilt(err error) bool {
	return errors.Is(err, ErrIndexNotBuilt)
}
