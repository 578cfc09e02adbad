package auth

import (
	"context"
)

// InitTask is the detached startup sequence: prime the CSRF cookie then
// load the current user. Startup never waits for it, the first guarded
// navigation does.
type InitTask struct {
	done chan struct{}
	user *User
}

// Bootstrap starts the background initialization of store and returns
// immediately. Cancelling ctx cuts the pending requests short and leaves
// the store unauthenticated.
func Bootstrap(ctx context.Context, store *SessionStore) *InitTask {
	t := &InitTask{done: make(chan struct{})}

	go func() {
		defer close(t.done)
		store.PrimeCSRF(ctx)
		t.user = store.FetchUser(ctx)
	}()

	return t
}

// Done is closed once the task finished
func (t *InitTask) Done() <-chan struct{} {
	if t == nil {
		return closedChan
	}
	return t.done
}

// Wait blocks until the task finished or ctx is done. It returns the
// user loaded by the task, nil when none was loaded or ctx ended first.
func (t *InitTask) Wait(ctx context.Context) (*User, error) {
	if t == nil {
		return nil, nil
	}
	select {
	case <-t.done:
		return t.user.Clone(), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

var closedChan = func() chan struct{} {
	c := make(chan struct{})
	close(c)
	return c
}()
