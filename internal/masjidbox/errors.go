package masjidbox

import (
	"errors"
	"fmt"
)

// ErrUpdateFailed matches every fetch failure via errors.Is.
var ErrUpdateFailed = errors.New("update failed")

// ErrorKind classifies a failed fetch.
type ErrorKind string

const (
	KindNetwork    ErrorKind = "network"
	KindTimeout    ErrorKind = "timeout"
	KindStatus     ErrorKind = "status"
	KindMalformed  ErrorKind = "malformed"
	KindUnexpected ErrorKind = "unexpected"
)

// FetchError is returned by Client.Fetch for every failed request.
type FetchError struct {
	Kind       ErrorKind
	StatusCode int
	Body       string
	Err        error
}

func (e *FetchError) Error() string {
	switch e.Kind {
	case KindStatus:
		return fmt.Sprintf("error fetching MasjidBox data: HTTP %d - %s", e.StatusCode, e.Body)
	case KindMalformed:
		if e.Err != nil {
			return fmt.Sprintf("invalid data from MasjidBox API (expected JSON object): %v", e.Err)
		}
		return "invalid data from MasjidBox API (expected JSON object)"
	case KindNetwork, KindTimeout:
		return fmt.Sprintf("error communicating with MasjidBox API (%s): %v", e.Kind, e.Err)
	default:
		return fmt.Sprintf("unexpected error from MasjidBox API: %v", e.Err)
	}
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrUpdateFailed.
func (e *FetchError) Is(target error) bool {
	return target == ErrUpdateFailed
}
