package upload

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"

	utils "vodflow/internal"
	"vodflow/internal/apperr"
	"vodflow/internal/metrics"
	"vodflow/internal/s3"
)

const (
	DefaultPartSize    = 8 * 1024 * 1024
	DefaultConcurrency = 5
	DefaultMaxRetries  = 3
	DefaultPresignTTL  = time.Hour

	abortTimeout = 30 * time.Second
)

// Coordinator drives multipart transactions against the object store: it
// splits a source into parts, uploads them on a bounded set of workers and
// either finalizes or aborts the transaction.
type Coordinator struct {
	client      S3Client
	partSize    int64
	concurrency int
	maxRetries  int
	presignTTL  time.Duration
	newBackOff  func() backoff.BackOff
	logger      *slog.Logger
}

type Option func(*Coordinator)

func WithPartSize(n int64) Option {
	return func(c *Coordinator) {
		if n > 0 {
			c.partSize = n
		}
	}
}

func WithConcurrency(n int) Option {
	return func(c *Coordinator) {
		if n > 0 {
			c.concurrency = n
		}
	}
}

func WithMaxRetries(n int) Option {
	return func(c *Coordinator) {
		if n >= 0 {
			c.maxRetries = n
		}
	}
}

func WithPresignTTL(ttl time.Duration) Option {
	return func(c *Coordinator) {
		if ttl > 0 {
			c.presignTTL = ttl
		}
	}
}

// WithBackOff replaces the retry policy applied between part attempts.
func WithBackOff(fn func() backoff.BackOff) Option {
	return func(c *Coordinator) {
		c.newBackOff = fn
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) {
		c.logger = logger
	}
}

func NewCoordinator(client S3Client, opts ...Option) *Coordinator {
	c := &Coordinator{
		client:      client,
		partSize:    DefaultPartSize,
		concurrency: DefaultConcurrency,
		maxRetries:  DefaultMaxRetries,
		presignTTL:  DefaultPresignTTL,
		newBackOff: func() backoff.BackOff {
			return backoff.NewExponentialBackOff()
		},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "upload")
	return c
}

// Begin opens a remote multipart transaction for key.
func (c *Coordinator) Begin(ctx context.Context, key string) (*Session, error) {
	headers := map[string]string{"Content-Type": utils.ContentType(key)}

	uploadID, err := c.client.CreateMultipartUpload(ctx, key, headers)
	if err != nil {
		return nil, apperr.New(apperr.KindFatalUpload, "create multipart upload", err)
	}

	c.logger.Debug("multipart upload created", "key", key, "upload_id", uploadID)
	return &Session{Key: key, UploadID: uploadID, State: StateCreated}, nil
}

// UploadParts streams src into the session. At most concurrency parts are in
// flight; the next part is read from src only once a worker slot is free. The
// first failed part stops new parts from starting, and the call returns only
// after every started part has settled.
func (c *Coordinator) UploadParts(ctx context.Context, sess *Session, src io.Reader) ([]CompletedPart, error) {
	if sess.State != StateCreated {
		return nil, fmt.Errorf("session %s is %s, expected %s", sess.UploadID, sess.State, StateCreated)
	}
	sess.State = StatePartsInFlight

	var (
		g       errgroup.Group
		failed  atomic.Bool
		mu      sync.Mutex
		tokens  []CompletedPart
		parts   []Part
		readErr error
	)
	g.SetLimit(c.concurrency)

	sp := newSplitter(src, c.partSize)
	for !failed.Load() && ctx.Err() == nil {
		number, data, err := sp.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			readErr = err
			failed.Store(true)
			break
		}

		g.Go(func() error {
			if failed.Load() {
				return nil
			}
			etag, err := c.uploadPart(ctx, sess, number, data)
			if err != nil {
				failed.Store(true)
				return err
			}

			mu.Lock()
			tokens = append(tokens, CompletedPart{PartNumber: number, ETag: etag})
			parts = append(parts, Part{Number: number, Size: int64(len(data)), ETag: etag})
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if readErr != nil {
		return nil, apperr.New(apperr.KindFatalUpload, "read source", readErr)
	}
	if err := ctx.Err(); err != nil {
		return nil, apperr.New(apperr.KindFatalUpload, "upload parts", err)
	}
	if sp.Count() == 0 {
		return nil, apperr.New(apperr.KindFatalUpload, "upload parts", ErrEmptySource)
	}

	sort.Slice(tokens, func(i, j int) bool { return tokens[i].PartNumber < tokens[j].PartNumber })
	sort.Slice(parts, func(i, j int) bool { return parts[i].Number < parts[j].Number })
	sess.Parts = parts
	return tokens, nil
}

func (c *Coordinator) uploadPart(ctx context.Context, sess *Session, number int32, data []byte) (string, error) {
	var (
		etag    string
		attempt int
	)

	op := func() error {
		attempt++
		var err error
		etag, err = c.client.UploadPart(ctx, sess.Key, sess.UploadID, number, data)
		if err != nil {
			metrics.PartRetries.Inc()
			c.logger.Warn("part upload attempt failed",
				"key", sess.Key, "part", number, "attempt", attempt, "error", err)
			return apperr.New(apperr.KindTransientIO, fmt.Sprintf("upload part %d", number), err)
		}
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(c.newBackOff(), uint64(c.maxRetries)), ctx)
	if err := backoff.Retry(op, policy); err != nil {
		return "", apperr.New(apperr.KindFatalUpload, fmt.Sprintf("upload part %d after %d attempts", number, attempt), err)
	}

	metrics.PartsUploaded.Inc()
	metrics.PartBytes.Add(float64(len(data)))
	return etag, nil
}

// Finalize completes the session. tokens may arrive in any order but must
// cover parts 1..N exactly once, N being the number of parts uploaded.
func (c *Coordinator) Finalize(ctx context.Context, sess *Session, tokens []CompletedPart) (string, error) {
	if sess.State != StatePartsInFlight {
		return "", fmt.Errorf("session %s is %s, expected %s", sess.UploadID, sess.State, StatePartsInFlight)
	}
	sorted, err := sortTokens(tokens)
	if err != nil {
		return "", apperr.New(apperr.KindFatalUpload, "finalize", err)
	}
	if len(sorted) != len(sess.Parts) || int(sorted[len(sorted)-1].PartNumber) != len(sorted) {
		return "", apperr.New(apperr.KindFatalUpload, "finalize", ErrMissingPart)
	}

	location, err := c.client.CompleteMultipartUpload(ctx, sess.Key, sess.UploadID, toPartInfo(sorted))
	if err != nil {
		return "", apperr.New(apperr.KindFatalUpload, "complete multipart upload", err)
	}

	sess.State = StateCompleted
	metrics.UploadsCompleted.Inc()
	return location, nil
}

// Abort discards the remote transaction. A second call on the same session is
// a no-op.
func (c *Coordinator) Abort(ctx context.Context, sess *Session) error {
	switch sess.State {
	case StateAborted:
		return nil
	case StateCompleted:
		return fmt.Errorf("session %s is already completed", sess.UploadID)
	}

	if err := c.client.AbortMultipartUpload(ctx, sess.Key, sess.UploadID); err != nil {
		return apperr.New(apperr.KindTransientIO, "abort multipart upload", err)
	}

	sess.State = StateAborted
	metrics.UploadsAborted.Inc()
	c.logger.Info("multipart upload aborted", "key", sess.Key, "upload_id", sess.UploadID)
	return nil
}

// Upload runs a whole transaction: begin, parts, finalize. Any failure after
// the transaction was opened aborts it once before the error is returned.
func (c *Coordinator) Upload(ctx context.Context, key string, src io.Reader) (*Result, error) {
	started := time.Now()

	sess, err := c.Begin(ctx, key)
	if err != nil {
		return nil, err
	}

	tokens, err := c.UploadParts(ctx, sess, src)
	if err != nil {
		c.abortAfterFailure(ctx, sess, err)
		return nil, err
	}

	location, err := c.Finalize(ctx, sess, tokens)
	if err != nil {
		c.abortAfterFailure(ctx, sess, err)
		return nil, err
	}

	result := &Result{Key: key, UploadID: sess.UploadID, Location: location, Parts: sess.Parts}
	c.logger.Info("multipart upload completed",
		"key", key,
		"parts", len(result.Parts),
		"size", humanize.IBytes(uint64(result.Size())),
		"elapsed", time.Since(started).Round(time.Millisecond))
	return result, nil
}

// abortAfterFailure uses a context detached from the caller's cancellation so
// a cancelled request still releases the stored parts.
func (c *Coordinator) abortAfterFailure(ctx context.Context, sess *Session, cause error) {
	c.logger.Error("multipart upload failed", "key", sess.Key, "upload_id", sess.UploadID, "error", cause)

	abortCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), abortTimeout)
	defer cancel()
	if err := c.Abort(abortCtx, sess); err != nil {
		c.logger.Error("failed to abort multipart upload", "key", sess.Key, "upload_id", sess.UploadID, "error", err)
	}
}

// sortTokens orders tokens by part number and rejects empty lists, duplicate
// or out-of-range part numbers.
func sortTokens(tokens []CompletedPart) ([]CompletedPart, error) {
	if len(tokens) == 0 {
		return nil, ErrMissingPart
	}

	sorted := make([]CompletedPart, len(tokens))
	copy(sorted, tokens)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].PartNumber < sorted[j].PartNumber })

	for i, t := range sorted {
		if t.PartNumber < 1 || t.PartNumber > MaxParts {
			return nil, fmt.Errorf("%w: part number %d out of range", ErrMissingPart, t.PartNumber)
		}
		if i > 0 && sorted[i-1].PartNumber == t.PartNumber {
			return nil, fmt.Errorf("%w: duplicate part %d", ErrMissingPart, t.PartNumber)
		}
	}
	return sorted, nil
}

func toPartInfo(tokens []CompletedPart) []s3.PartInfo {
	parts := make([]s3.PartInfo, len(tokens))
	for i, t := range tokens {
		parts[i] = s3.PartInfo{ETag: t.ETag, PartNumber: int(t.PartNumber)}
	}
	return parts
}
