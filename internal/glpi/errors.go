package glpi

import (
	"errors"
	"fmt"
)

var (
	// ErrAuth means no usable session could be obtained: bad credentials,
	// a rejected token, or an unreachable host during initSession.
	ErrAuth = errors.New("glpi authentication failed")

	// ErrUpstream covers non-2xx responses, transport failures and
	// undecodable bodies on search calls. Callers treat it as transient.
	ErrUpstream = errors.New("glpi upstream error")

	// ErrTimeout means a single call exceeded the per-call deadline.
	ErrTimeout = errors.New("glpi call timed out")

	// errSessionExpired is returned internally when GLPI rejects the
	// session token, prompting one re-authentication.
	errSessionExpired = errors.New("glpi session token invalid")
)

// StatusError carries the HTTP status and a body excerpt of a failed call.
type StatusError struct {
	Resource string
	Code     int
	Body     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GLPI returned status %d for %s: %s", e.Code, e.Resource, e.Body)
}

func (e *StatusError) Unwrap() error { return ErrUpstream }

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	return errors.Is(err, ErrUpstream) || errors.Is(err, ErrTimeout)
}
