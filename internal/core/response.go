package core

// ValidationError is a user-correctable problem with one input property.
type ValidationError struct {
	Property string `json:"Property"`
	Message  string `json:"Message"`
}

// CommandResponse is the envelope returned by every command and query.
// Validation problems travel here rather than as Go errors; a Go error
// from a command means a systemic failure such as a store outage.
type CommandResponse[T any] struct {
	IsValid          bool              `json:"IsValid"`
	Result           T                 `json:"Result"`
	ValidationErrors []ValidationError `json:"ValidationErrors"`
}

// Success wraps a valid result.
func Success[T any](result T) CommandResponse[T] {
	return CommandResponse[T]{
		IsValid:          true,
		Result:           result,
		ValidationErrors: []ValidationError{},
	}
}

// Invalid returns a response carrying errs and the zero result.
func Invalid[T any](errs ...ValidationError) CommandResponse[T] {
	return CommandResponse[T]{ValidationErrors: errs}
}

// InvalidProperty is shorthand for a single error on property.
func InvalidProperty[T any](property, message string) CommandResponse[T] {
	return Invalid[T](ValidationError{Property: property, Message: message})
}
