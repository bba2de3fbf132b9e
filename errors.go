package gosimulado

import "errors"

var (
	// ErrDocumentNotFound is returned when a document ID or path does not exist.
	ErrDocumentNotFound = errors.New("gosimulado: document not found")

	// ErrQuestionNotFound is returned when a question ID does not exist.
	ErrQuestionNotFound = errors.New("gosimulado: question not found")

	// ErrUnsupportedBackend is returned for an unknown loader name or file type.
	ErrUnsupportedBackend = errors.New("gosimulado: unsupported document backend")

	// ErrLoadFailed is returned when the document backend cannot read a file.
	ErrLoadFailed = errors.New("gosimulado: loading document failed")

	// ErrNoQuestions is returned by Ingest when a document yields no rows.
	ErrNoQuestions = errors.New("gosimulado: no questions found")

	// ErrInvalidConfig is returned for invalid configuration values.
	ErrInvalidConfig = errors.New("gosimulado: invalid configuration")

	// ErrStoreDisabled is returned by database operations when the engine
	// was configured without a database.
	ErrStoreDisabled = errors.New("gosimulado: database disabled")
)
