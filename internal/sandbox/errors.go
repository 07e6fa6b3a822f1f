package sandbox

import "errors"

// Sentinel errors. Setup and file-transfer failures are infrastructure
// errors and propagate to the caller; a non-zero exit from the executed
// code itself is reported as data by RunCode, never as an error.
var (
	ErrContainerCreate = errors.New("container create failed")
	ErrContainerStart  = errors.New("container start failed")
	ErrImageBuild      = errors.New("image build failed")
	ErrFileWrite       = errors.New("file write failed")
	ErrFileRead        = errors.New("file read failed")
)
