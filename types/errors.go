package types

import "fmt"

// InvalidPortError is returned when a caller asks for a port other than the locked one.
type InvalidPortError struct {
	Port    int
	Allowed int
}

func (e *InvalidPortError) Error() string {
	return fmt.Sprintf("port %d not allowed, must be %d", e.Port, e.Allowed)
}

// AccessDeniedError is returned when a path resolves outside the allowed base directory.
type AccessDeniedError struct {
	Path string
	Base string
}

func (e *AccessDeniedError) Error() string {
	return fmt.Sprintf("access to %s denied, must be inside %s", e.Path, e.Base)
}

// ResourceUnavailableError is returned when a lock or backup directory cannot be used.
type ResourceUnavailableError struct {
	Resource string
	Err      error
}

func (e *ResourceUnavailableError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("resource %s unavailable", e.Resource)
	}
	return fmt.Sprintf("resource %s unavailable: %v", e.Resource, e.Err)
}

func (e *ResourceUnavailableError) Unwrap() error {
	return e.Err
}
