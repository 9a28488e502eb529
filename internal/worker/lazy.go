package worker

import "sync"

// OnceFactory memoizes the result of build. The returned function constructs
// the value on first call and hands back the same value (and error) on every
// subsequent call. Heavy dependencies such as the transport client are
// acquired this way: not at startup, but on the first job that needs them,
// then shared across all later executions in the process.
func OnceFactory[T any](build func() (T, error)) func() (T, error) {
	var (
		once sync.Once
		v    T
		err  error
	)
	return func() (T, error) {
		once.Do(func() {
			v, err = build()
		})
		return v, err
	}
}
