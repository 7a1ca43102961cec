//go:build !linux

package capture

import (
	"fmt"

	"github.com/bryanchriswhite/tilecap/internal/window"
)

// nativeFactory has nothing to offer outside Linux; Init always fails with
// ErrBackendUnavailable.
type nativeFactory struct{}

func (nativeFactory) Kinds() []Kind { return nil }

func (nativeFactory) New(kind Kind, _ window.WindowInfo, _ Options) (Backend, error) {
	return nil, fmt.Errorf("%w: %s not supported on this platform", ErrBackendUnavailable, kind)
}
