package cli

import "errors"

var (
	ErrConfigFileNotFound = errors.New("config file not found")
	ErrConfigFileRead     = errors.New("cannot read config file")
	ErrConfigInvalid      = errors.New("invalid config file")
	ErrUnknownFormat      = errors.New("unknown format (want bytes, human or json)")
	ErrInvalidCreateMode  = errors.New("invalid create_mode (want octal permission bits like \"0644\")")
	ErrNoPaths            = errors.New("at least one path is required")
	ErrSizeFailed         = errors.New("could not size every path")
)
