package capture

import (
	"errors"
	"fmt"
)

type resource struct {
	name string
	fn   func() error
}

// releaser records native resources as they are acquired and frees them in
// reverse order. The zero value is ready to use.
type releaser struct {
	stack []resource
}

func (r *releaser) push(name string, fn func() error) {
	r.stack = append(r.stack, resource{name: name, fn: fn})
}

// release runs every recorded function, newest first, and empties the stack.
func (r *releaser) release() error {
	var errs []error
	for i := len(r.stack) - 1; i >= 0; i-- {
		res := r.stack[i]
		if err := res.fn(); err != nil {
			errs = append(errs, fmt.Errorf("release %s: %w", res.name, err))
		}
	}
	r.stack = nil
	return errors.Join(errs...)
}

func (r *releaser) len() int {
	return len(r.stack)
}
