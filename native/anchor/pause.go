package anchor

import "errors"

// ErrModulePaused is returned when operations are attempted against a paused
// protocol instance.
var ErrModulePaused = errors.New("module paused")

// PauseView exposes the operator pause switches consulted before every
// transition.
type PauseView interface {
	IsPaused(module string) bool
}

func pauseGuard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return ErrModulePaused
	}
	return nil
}
