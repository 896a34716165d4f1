package common

import "errors"

// ErrModulePaused is returned by Guard when the named module is halted.
var ErrModulePaused = errors.New("module paused")

// PauseView reports whether a module's flows are currently halted.
type PauseView interface {
	IsPaused(module string) bool
}

// Guard rejects the call when the module is paused. A nil view means pauses
// are not configured and everything is allowed.
func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return ErrModulePaused
	}
	return nil
}
