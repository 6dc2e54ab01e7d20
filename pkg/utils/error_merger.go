// Package utils provides small helpers shared by the relay's servers.
package utils //nolint:revive // var-naming: utils is an acceptable package name for shared utilities

import "sync"

// MergeErrorChans merges multiple error channels into a single output channel.
// The output channel is closed when all input channels are closed. Nil
// channels are skipped.
//
//	merged := MergeErrorChans(httpErrs, metricsErrs)
//	for err := range merged {
//		log.Error("Listener failed", logger.ErrorField(err))
//	}
func MergeErrorChans(channels ...<-chan error) <-chan error {
	out := make(chan error)
	var wg sync.WaitGroup

	for _, ch := range channels {
		if ch == nil {
			continue
		}
		wg.Add(1)
		go func(c <-chan error) {
			defer wg.Done()
			for err := range c {
				out <- err
			}
		}(ch)
	}

	go func() {
		wg.Wait()
		close(out)
	}()

	return out
}
