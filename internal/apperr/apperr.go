package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure by how the ingestion flow must react to it.
type Kind int

const (
	KindUnknown Kind = iota
	// KindInvalid is a caller error (bad input), never retried.
	KindInvalid
	// KindTransientIO is a single store or probe call failure that may be retried.
	KindTransientIO
	// KindFatalUpload means a multipart transaction cannot be completed and must be aborted.
	KindFatalUpload
	// KindFatalEncode means the encoder failed or produced no usable manifest.
	KindFatalEncode
	// KindDegradedEnrichment covers thumbnail/duration failures that do not fail a publish.
	KindDegradedEnrichment
	// KindPersistence is a catalog failure after artifacts are already remote.
	KindPersistence
)

func (k Kind) String() string {
	switch k {
	case KindInvalid:
		return "invalid_request"
	case KindTransientIO:
		return "transient_io"
	case KindFatalUpload:
		return "upload_failed"
	case KindFatalEncode:
		return "encode_failed"
	case KindDegradedEnrichment:
		return "degraded_enrichment"
	case KindPersistence:
		return "persistence_failed"
	default:
		return "internal_error"
	}
}

// Error attaches a Kind and the failing operation to an underlying cause.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Op
	}
	if e.Op == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New wraps err with kind and op. A nil err yields nil.
func New(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

func Invalid(op string, format string, args ...any) error {
	return &Error{Kind: KindInvalid, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the outermost Kind found in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
