package engine

import (
	"fmt"
	"sync"
	"time"
)

// CompileTimeout is the default hard limit for a single compile.
const CompileTimeout = 5 * time.Second

// compileResult is the internal type used to pass compile results through
// channels.
type compileResult struct {
	def    *Definition
	errors []*CompileError
	err    error
}

// waitWithTimeout waits for a result from ch, but returns a timeout error
// if the compile exceeds limit. It uses a generation counter to discard
// stale results from previous compiles.
//
// On timeout, the goroutine may still be running; the generation check
// ensures its result is discarded when it eventually completes.
func waitWithTimeout(
	ch <-chan compileResult,
	gen uint64,
	mu *sync.Mutex,
	currentGen *uint64,
	limit time.Duration,
) (*Definition, []*CompileError, error) {
	timer := time.NewTimer(limit)
	defer timer.Stop()

	select {
	case res := <-ch:
		mu.Lock()
		current := *currentGen
		mu.Unlock()

		if gen != current {
			return nil, nil, ErrSuperseded
		}
		return res.def, res.errors, res.err

	case <-timer.C:
		return nil, nil, fmt.Errorf("compile timed out after %s", limit)
	}
}
