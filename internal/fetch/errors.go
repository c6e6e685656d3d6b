package fetch

import (
	"errors"
	"fmt"
)

// ErrShortRead is returned when the upstream sends an empty page while its
// totalcount still reports rows beyond it.
var ErrShortRead = errors.New("upstream returned no rows before totalcount was reached")

// PartialFetchError reports a fetch abandoned part-way. It is scoped to one
// query; callers use it to tell "zero rows" from "fetch failed".
type PartialFetchError struct {
	Label   string
	Page    int // 1-based page that failed
	Fetched int // rows retrieved before the failure, all discarded
	Err     error
}

func (e *PartialFetchError) Error() string {
	return fmt.Sprintf("partial fetch of %s: page %d failed after %d rows: %v", e.Label, e.Page, e.Fetched, e.Err)
}

func (e *PartialFetchError) Unwrap() error { return e.Err }

// IsPartial reports whether err is (or wraps) a PartialFetchError.
func IsPartial(err error) bool {
	var pfe *PartialFetchError
	return errors.As(err, &pfe)
}
