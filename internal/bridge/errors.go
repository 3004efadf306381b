package bridge

import "errors"

// ErrStartup marks failures that must stop the process before polling begins.
var ErrStartup = errors.New("bridge startup failed")
