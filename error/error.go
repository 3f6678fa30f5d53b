package error

import "errors"

var (
	ErrFrameCorrupted             = errors.New("message frame is corrupted")
	ErrConnectionLost             = errors.New("connection lost")
	ErrBreakpointNotFound         = errors.New("found no breakpoint numbered")
	ErrLineNotFound               = errors.New("line does not exist")
	ErrProgramIsRunningOptionFail = errors.New("The program is running")
	ErrNotStopped                 = errors.New("no thread is stopped at a break")
	ErrStaleHandle                = errors.New("unknown or stale reference")
	ErrProtocolViolation          = errors.New("a resume directive is already pending")
	ErrUnknownDirective           = errors.New("unknown resume directive")
	ErrSessionClosed              = errors.New("debug session is closed")
	ErrScriptAlreadyRunning       = errors.New("script is already running")
	ErrMissingArgument            = errors.New("missing required argument")
)
