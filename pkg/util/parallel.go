package util

import (
	"context"
	"sync"
)

// ForEach runs fn for every input on at most workerLimit goroutines and waits for
// all of them. Unlike an errgroup, a failing item never cancels the others: every
// error is handed to onErr (if set) together with its input. Stops feeding new
// items once ctx is done.
func ForEach[T any](ctx context.Context, inputs []T, workerLimit int, fn func(context.Context, T) error, onErr func(T, error)) {
	if len(inputs) == 0 {
		return
	}
	if workerLimit <= 0 {
		workerLimit = 1
	}
	if workerLimit > len(inputs) {
		workerLimit = len(inputs)
	}

	tasks := make(chan T)
	var errMu sync.Mutex

	wg := sync.WaitGroup{}
	for i := 0; i < workerLimit; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for item := range tasks {
				if err := fn(ctx, item); err != nil && onErr != nil {
					errMu.Lock()
					onErr(item, err)
					errMu.Unlock()
				}
			}
		}()
	}

	func() {
		defer close(tasks)
		for _, item := range inputs {
			select {
			case <-ctx.Done():
				return
			case tasks <- item:
			}
		}
	}()

	wg.Wait()
}
