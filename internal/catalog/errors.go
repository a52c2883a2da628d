package catalog

import "errors"

// Registry errors.
var (
	ErrServiceNotFound = errors.New("service not found")
	ErrDuplicateName   = errors.New("service with this name already exists")
	ErrInvalidEndpoint = errors.New("endpoint must be an absolute http or https url")
	ErrInvalidConfig   = errors.New("invalid monitoring config")
	ErrInvalidStatus   = errors.New("invalid service status")
	ErrInitialEntry    = errors.New("service registered without initial entry")
)
