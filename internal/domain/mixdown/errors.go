package mixdown

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors.
var (
	ErrBadName      = errors.New("mixdown: unrecognised artifact name")
	ErrNothingToMix = errors.New("mixdown: nothing to mix")
)

// ArtifactFailure is one artifact that could not be fetched or decoded.
type ArtifactFailure struct {
	ArtifactID string
	Err        error
}

// MixdownError aborts a render when any vocal artifact fails. It names
// every failed artifact.
type MixdownError struct {
	Failures []ArtifactFailure
}

func (e *MixdownError) Error() string {
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, fmt.Sprintf("%s: %v", f.ArtifactID, f.Err))
	}
	return fmt.Sprintf("mixdown: %d artifact(s) failed: %s", len(e.Failures), strings.Join(parts, "; "))
}

// Unwrap exposes the underlying causes to errors.Is and errors.As.
func (e *MixdownError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures))
	for _, f := range e.Failures {
		errs = append(errs, f.Err)
	}
	return errs
}

// Artifacts lists the failed artifact IDs.
func (e *MixdownError) Artifacts() []string {
	ids := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		ids = append(ids, f.ArtifactID)
	}
	return ids
}
