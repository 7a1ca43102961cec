package capture

import (
	"slices"

	"github.com/bryanchriswhite/tilecap/internal/window"
)

// resolveKind turns the requested kind into one of the available (compiled)
// kinds. A forced kind that is not available, or an environment where no
// kind fits, resolves to KindAuto.
func resolveKind(requested Kind, info window.WindowInfo, lookupEnv func(string) (string, bool), available []Kind) Kind {
	has := func(k Kind) bool { return slices.Contains(available, k) }

	if requested != KindAuto {
		if has(requested) {
			return requested
		}
		return KindAuto
	}

	var prefs []Kind
	if info.ID != 0 {
		prefs = append(prefs, KindX11Shm)
	}
	if info.Server == window.DisplayServerSway {
		prefs = append(prefs, KindWaylandScreencopy)
	}
	if envSet(lookupEnv, window.EnvDisplay) {
		prefs = append(prefs, KindX11Shm)
	} else if envSet(lookupEnv, window.EnvWaylandDisplay) {
		prefs = append(prefs, KindWaylandScreencopy)
	}
	prefs = append(prefs, KindX11Shm, KindWaylandScreencopy)

	for _, k := range prefs {
		if has(k) {
			return k
		}
	}
	return KindAuto
}

// fallbackKind returns the other available kind when it can serve the
// window, or KindAuto.
func fallbackKind(failed Kind, info window.WindowInfo, available []Kind) Kind {
	for _, k := range available {
		if k == failed || k == KindAuto {
			continue
		}
		if k == KindX11Shm && info.ID == 0 {
			continue
		}
		return k
	}
	return KindAuto
}

func envSet(lookupEnv func(string) (string, bool), key string) bool {
	if lookupEnv == nil {
		return false
	}
	v, ok := lookupEnv(key)
	return ok && v != ""
}
