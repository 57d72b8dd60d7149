// Package testing provides test utilities for cluster-art: goroutine-safe
// failure reporting and on-disk cache fixtures.
//
// Importers alias it, typically as testutil.
package testing

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

// =============================================================================
// Concurrent Callers
// =============================================================================

// GoroutineTest runs test goroutines that report failure by returning an
// error. t.Fatal from a goroutine other than the test's only exits that
// goroutine, so failures are collected and reported by Wait instead.
//
//	gt := testutil.NewGoroutineTest(t)
//	gt.Go(func() error {
//	    _, err := p.RunOnce(ctx)
//	    return err
//	})
//	gt.Wait()
type GoroutineTest struct {
	t    *testing.T
	wg   sync.WaitGroup
	mu   sync.Mutex
	errs []error
}

// NewGoroutineTest creates a GoroutineTest bound to t.
func NewGoroutineTest(t *testing.T) *GoroutineTest {
	return &GoroutineTest{t: t}
}

// Go runs fn in a new goroutine and records its error.
func (gt *GoroutineTest) Go(fn func() error) {
	gt.wg.Add(1)
	go func() {
		defer gt.wg.Done()
		if err := fn(); err != nil {
			gt.mu.Lock()
			gt.errs = append(gt.errs, err)
			gt.mu.Unlock()
		}
	}()
}

// Wait blocks until every goroutine returns, then fails the test once per
// recorded error. It must be called from the test goroutine.
func (gt *GoroutineTest) Wait() {
	gt.t.Helper()
	gt.wg.Wait()

	gt.mu.Lock()
	errs := gt.errs
	gt.errs = nil
	gt.mu.Unlock()

	for _, err := range errs {
		gt.t.Error(err)
	}
	if len(errs) > 0 {
		gt.t.FailNow()
	}
}

// =============================================================================
// Polling Helper
// =============================================================================

// Eventually polls condition every interval until it holds or timeout
// passes.
func Eventually(timeout, interval time.Duration, condition func() bool) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return nil
		}
		time.Sleep(interval)
	}
	return fmt.Errorf("condition not met within %v", timeout)
}
