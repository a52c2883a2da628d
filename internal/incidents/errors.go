package incidents

import "errors"

// Incident errors.
var (
	ErrIncidentNotFound = errors.New("incident not found")
	ErrServiceNotFound  = errors.New("referenced service not found")
	ErrInvalidStatus    = errors.New("invalid incident status")
	ErrInvalidSeverity  = errors.New("invalid incident severity")
	ErrInvalidTitle     = errors.New("title is required")
)
