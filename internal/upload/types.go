package upload

import (
	"errors"
	"time"
)

// MaxParts is the largest part number the object store accepts.
const MaxParts = 10000

var (
	// ErrEmptySource is returned when the source yields no bytes at all.
	ErrEmptySource = errors.New("source is empty")
	// ErrMissingPart is returned when the completion tokens do not cover
	// parts 1..N exactly once.
	ErrMissingPart = errors.New("completion tokens do not cover every part exactly once")
	// ErrTooManyParts is returned when a source would need more than MaxParts parts.
	ErrTooManyParts = errors.New("source needs more than 10000 parts")
)

type State int

const (
	StateCreated State = iota
	StatePartsInFlight
	StateCompleted
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StatePartsInFlight:
		return "parts_in_flight"
	case StateCompleted:
		return "completed"
	case StateAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Session is one remote multipart transaction. Only the Coordinator mutates it.
type Session struct {
	Key      string
	UploadID string
	State    State
	Parts    []Part
}

// Part describes an accepted part. The payload itself is held only by the
// goroutine uploading it.
type Part struct {
	Number int32
	Size   int64
	ETag   string
}

// CompletedPart is the completion token for one part, in the object store's
// own JSON shape so browser clients can echo S3 responses back verbatim.
type CompletedPart struct {
	PartNumber int32  `json:"PartNumber" validate:"required,min=1,max=10000"`
	ETag       string `json:"ETag" validate:"required"`
}

// Result is returned by a successful Coordinator.Upload.
type Result struct {
	Key      string
	UploadID string
	Location string
	Parts    []Part
}

func (r *Result) Size() int64 {
	var n int64
	for _, p := range r.Parts {
		n += p.Size
	}
	return n
}

// Plan is the presigned-URL variant: the browser uploads parts itself.
type Plan struct {
	Key       string
	UploadID  string
	URLs      []PartURL
	ExpiresAt time.Time
}

type PartURL struct {
	PartNumber int32  `json:"partNumber"`
	URL        string `json:"url"`
}

// CreateUploadRequest is the body of POST /create-upload
type CreateUploadRequest struct {
	Filename string `json:"filename" validate:"required"`
	Parts    int    `json:"parts" validate:"required,min=1,max=10000"`
}

// CreateUploadResponse is returned by POST /create-upload
type CreateUploadResponse struct {
	UploadID  string    `json:"uploadId"`
	Key       string    `json:"key"`
	URLs      []PartURL `json:"urls"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// CompleteUploadRequest is the body of POST /complete-upload. Key is preferred;
// Filename is accepted from clients that predate unique keys.
type CompleteUploadRequest struct {
	Key      string          `json:"key" validate:"required_without=Filename"`
	Filename string          `json:"filename" validate:"required_without=Key"`
	UploadID string          `json:"uploadId" validate:"required"`
	Parts    []CompletedPart `json:"parts" validate:"required,min=1,dive"`
}

// CompleteUploadResponse is returned by POST /complete-upload
type CompleteUploadResponse struct {
	Message  string `json:"message"`
	Key      string `json:"key"`
	Location string `json:"location"`
}
