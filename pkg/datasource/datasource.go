package datasource

import (
	"context"
	"errors"
	"fmt"

	"github.com/opscart/ng-market-monitor/pkg/models"
)

// Fetcher retrieves one upstream series. Implementations return
// ErrNotConfigured, ErrEmptyResult or a *FetchError on failure.
type Fetcher interface {
	Fetch(ctx context.Context, seriesID string) (models.TimeSeries, error)
	Name() string
}

var (
	// ErrNotConfigured means a credential or endpoint is missing; no request was made
	ErrNotConfigured = errors.New("upstream not configured")

	// ErrEmptyResult means the upstream answered but returned no usable rows
	ErrEmptyResult = errors.New("upstream returned no usable rows")
)

// FetchError is a transient network or HTTP failure
type FetchError struct {
	Series     string
	StatusCode int // 0 when no response was received
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: status %d: %v", e.Series, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch %s: %v", e.Series, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Reason returns a short label for an upstream error, used for metrics and logs
func Reason(err error) string {
	var fetchErr *FetchError
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNotConfigured):
		return "not_configured"
	case errors.Is(err, ErrEmptyResult):
		return "empty_result"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.As(err, &fetchErr):
		return "fetch_error"
	default:
		return "error"
	}
}
