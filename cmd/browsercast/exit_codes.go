package main

import (
	bcerrors "github.com/odvcencio/browsercast/pkg/errors"
)

// Process exit statuses.
const (
	exitFailure = 1
	exitConfig  = 2
	exitBrowser = 3
)

// exitCodeForError derives the process status from the error's code.
func exitCodeForError(err error) int {
	if err == nil {
		return 0
	}
	switch bcerrors.GetCode(err) {
	case bcerrors.ErrCodeConfigLoad, bcerrors.ErrCodeConfigParse, bcerrors.ErrCodeConfigInvalid:
		return exitConfig
	case bcerrors.ErrCodeBrowserLaunch, bcerrors.ErrCodeHandleStale:
		return exitBrowser
	default:
		return exitFailure
	}
}

func configError(err error, msg string) error {
	if err == nil {
		return nil
	}
	return bcerrors.Wrap(err, bcerrors.ErrCodeConfigInvalid, msg)
}
