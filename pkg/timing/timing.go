package timing

import (
	"fmt"
	"time"
)

// Result contains the results of a timed operation
type Result struct {
	Name       string
	Duration   time.Duration
	DurationMs int64
	Error      error
}

// Track runs fn and measures its execution time with millisecond precision
func Track(name string, fn func() error) *Result {
	result := &Result{Name: name}

	start := time.Now()
	err := fn()
	result.Duration = time.Since(start)
	result.DurationMs = result.Duration.Milliseconds()
	result.Error = err

	return result
}

// Success returns true if the operation returned no error
func (r *Result) Success() bool {
	return r.Error == nil
}

// Seconds returns the duration in fractional seconds
func (r *Result) Seconds() float64 {
	return r.Duration.Seconds()
}

// String returns a human-readable summary of the result
func (r *Result) String() string {
	status := "success"
	if !r.Success() {
		status = fmt.Sprintf("failed (%v)", r.Error)
	}

	return fmt.Sprintf("%s: %s (%.3fs)", r.Name, status, r.Seconds())
}
