package pdf

import "fmt"

// ErrorType classifies conversion failures.
type ErrorType string

const (
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeConversion ErrorType = "conversion"
	ErrorTypeIO         ErrorType = "io"
)

// Error is a conversion error with classification context.
type Error struct {
	Type    ErrorType
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(errType ErrorType, message string, err error) *Error {
	return &Error{
		Type:    errType,
		Message: message,
		Err:     err,
	}
}

func validationError(message string, err error) *Error {
	return newError(ErrorTypeValidation, message, err)
}

func conversionError(message string, err error) *Error {
	return newError(ErrorTypeConversion, message, err)
}

func ioError(message string, err error) *Error {
	return newError(ErrorTypeIO, message, err)
}
