package spreadsheet

// AppErrorCode represents gRPC-style error codes for application-level errors.
// note that we are skipping error codes that don't make sense for our use-case,
// like unauthenticated, or permission denied.
type AppErrorCode int

const (
	// InvalidArgument indicates client specified an invalid argument, such
	// as a malformed label or a coordinate outside the sheet.
	InvalidArgument AppErrorCode = 3

	// OutOfRange means a read addressed a cell outside the sheet.
	OutOfRange AppErrorCode = 11
)

func (c AppErrorCode) String() string {
	switch c {
	case InvalidArgument:
		return "invalid_argument"
	case OutOfRange:
		return "out_of_range"
	default:
		return "unknown"
	}
}

// AppError represents misuse of the engine API (not formula errors, which
// are stored in cells and never returned)
type AppError struct {
	Code    AppErrorCode
	Message string
	Err     error
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NewApplicationError creates a new application error
func NewApplicationError(code AppErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// wrapApplicationError creates an application error around a cause
func wrapApplicationError(code AppErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message + ": " + err.Error(),
		Err:     err,
	}
}
