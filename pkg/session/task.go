package session

// Task is the handle of an operation running on its own goroutine
type Task[T any] struct {
	done   chan struct{}
	result T
	err    error
}

func start[T any](fn func() (T, error)) *Task[T] {
	t := &Task[T]{done: make(chan struct{})}
	go func() {
		defer close(t.done)
		t.result, t.err = fn()
	}()
	return t
}

// Done is closed when the operation has finished
func (t *Task[T]) Done() <-chan struct{} {
	return t.done
}

// Wait blocks until the operation finishes and returns its outcome
func (t *Task[T]) Wait() (T, error) {
	<-t.done
	return t.result, t.err
}
