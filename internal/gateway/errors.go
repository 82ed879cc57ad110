package gateway

import "fmt"

// InvalidArgumentError reports a request the gateway refused before running
// any statement: a malformed database name, or an identifier that is not in
// the database catalog.
type InvalidArgumentError struct {
	Message string
}

func (e *InvalidArgumentError) Error() string {
	return e.Message
}

func invalidArgumentf(format string, args ...any) error {
	return &InvalidArgumentError{Message: fmt.Sprintf(format, args...)}
}

// StorageError wraps a failure raised by the SQL engine. Error returns the
// engine message unchanged.
type StorageError struct {
	Op       string
	Database string
	Engine   string
	Err      error
}

func (e *StorageError) Error() string {
	return e.Err.Error()
}

func (e *StorageError) Unwrap() error {
	return e.Err
}
