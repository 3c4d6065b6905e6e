// Package errors defines the structured error taxonomy used across the
// build pipeline (missing partials, I/O failures, build and config errors)
// and a collector that aggregates per-file failures for batch reports.
package errors

import (
	"errors"
	"sync"
	"time"
)

// Failure is one recorded error with the file it relates to.
type Failure struct {
	File      string
	Err       error
	Timestamp time.Time
}

// ErrorCollector collects errors produced while a batch keeps going.
type ErrorCollector struct {
	failures []Failure
	mutex    sync.RWMutex
}

// NewErrorCollector creates a new error collector
func NewErrorCollector() *ErrorCollector {
	return &ErrorCollector{
		failures: make([]Failure, 0),
	}
}

// Add records err against file. Nil errors are ignored.
func (ec *ErrorCollector) Add(file string, err error) {
	if err == nil {
		return
	}
	ec.mutex.Lock()
	defer ec.mutex.Unlock()
	ec.failures = append(ec.failures, Failure{File: file, Err: err, Timestamp: time.Now()})
}

// Failures returns a copy of the recorded failures.
func (ec *ErrorCollector) Failures() []Failure {
	ec.mutex.RLock()
	defer ec.mutex.RUnlock()
	result := make([]Failure, len(ec.failures))
	copy(result, ec.failures)
	return result
}

// HasErrors returns true if there are any errors
func (ec *ErrorCollector) HasErrors() bool {
	ec.mutex.RLock()
	defer ec.mutex.RUnlock()
	return len(ec.failures) > 0
}

// Len returns the number of recorded failures.
func (ec *ErrorCollector) Len() int {
	ec.mutex.RLock()
	defer ec.mutex.RUnlock()
	return len(ec.failures)
}

// ByFile returns the failures recorded for one file.
func (ec *ErrorCollector) ByFile(file string) []Failure {
	ec.mutex.RLock()
	defer ec.mutex.RUnlock()
	var out []Failure
	for _, f := range ec.failures {
		if f.File == file {
			out = append(out, f)
		}
	}
	return out
}

// Err joins every recorded error, or returns nil.
func (ec *ErrorCollector) Err() error {
	ec.mutex.RLock()
	defer ec.mutex.RUnlock()
	if len(ec.failures) == 0 {
		return nil
	}
	errs := make([]error, 0, len(ec.failures))
	for _, f := range ec.failures {
		errs = append(errs, f.Err)
	}
	return errors.Join(errs...)
}

// Clear clears all errors
func (ec *ErrorCollector) Clear() {
	ec.mutex.Lock()
	defer ec.mutex.Unlock()
	ec.failures = ec.failures[:0]
}
