package metal

import "errors"

// ErrInvalidGrid is returned when a task's grid/threadgroup sizes violate
// the device's threads-per-group limit or ask for a grid smaller than
// its own threadgroup.
var ErrInvalidGrid = errors.New("metal: invalid grid")

// ErrAlreadyInvoked is returned when a Task is submitted a second time.
var ErrAlreadyInvoked = errors.New("metal: task already invoked")

// ErrKernelNotFound is returned when Library.Load cannot resolve a
// kernel name against the compiled library.
var ErrKernelNotFound = errors.New("metal: kernel not found")

// ErrNoDevice is returned when no Metal-capable device is available.
var ErrNoDevice = errors.New("metal: no device available")
