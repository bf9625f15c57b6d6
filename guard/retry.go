// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package guard

// RetryOnce runs fn and, when it fails with an error for which shouldRetry
// reports true, runs it exactly once more. The result of the second run is
// returned as-is, making the retry bound explicit rather than buried in
// nested error handling.
func RetryOnce(fn func() error, shouldRetry func(error) bool) error {
	err := fn()
	if err != nil && shouldRetry(err) {
		return fn()
	}
	return err
}
