package endpoint

import "errors"

// Errors for the endpoint package. Check with errors.Is.
var (
	// ErrEndpointNotFound is returned when an endpoint ID does not exist.
	ErrEndpointNotFound = errors.New("endpoint: not found")

	// ErrEndpointExists is returned when creating an endpoint whose ID or path is taken.
	ErrEndpointExists = errors.New("endpoint: already exists")

	// ErrInvalidEndpoint is returned when endpoint validation fails.
	ErrInvalidEndpoint = errors.New("endpoint: invalid")
)
