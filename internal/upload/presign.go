package upload

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"vodflow/internal/apperr"
	"vodflow/internal/metrics"
)

// SourceKey is where an uploaded source file is stored. The random prefix
// keeps two uploads of the same filename from sharing a transaction key.
func SourceKey(filename string) string {
	return fmt.Sprintf("uploads/%s_%s", uuid.NewString(), filename)
}

// CleanFilename strips any directory component a client sent along with the
// filename.
func CleanFilename(filename string) (string, error) {
	name := path.Base(strings.ReplaceAll(strings.TrimSpace(filename), "\\", "/"))
	if name == "" || name == "." || name == "/" || name == ".." {
		return "", fmt.Errorf("invalid filename %q", filename)
	}
	return name, nil
}

// Plan opens a transaction and presigns one URL per part so a browser can
// upload the parts directly. The browser reports the ETags back through
// CompleteFromClientReport.
func (c *Coordinator) Plan(ctx context.Context, filename string, partCount int) (*Plan, error) {
	name, err := CleanFilename(filename)
	if err != nil {
		return nil, apperr.New(apperr.KindInvalid, "plan upload", err)
	}
	if partCount < 1 || partCount > MaxParts {
		return nil, apperr.Invalid("plan upload", "parts must be between 1 and %d, got %d", MaxParts, partCount)
	}

	sess, err := c.Begin(ctx, SourceKey(name))
	if err != nil {
		return nil, err
	}

	urls := make([]PartURL, 0, partCount)
	for i := 1; i <= partCount; i++ {
		url, err := c.client.PresignUploadPart(ctx, sess.Key, sess.UploadID, int32(i), c.presignTTL)
		if err != nil {
			// the caller never learns the upload id, so nobody else could abort it
			err = apperr.New(apperr.KindFatalUpload, fmt.Sprintf("presign part %d", i), err)
			c.abortAfterFailure(ctx, sess, err)
			return nil, err
		}
		urls = append(urls, PartURL{PartNumber: int32(i), URL: url})
	}

	c.logger.Info("multipart upload planned", "key", sess.Key, "upload_id", sess.UploadID, "parts", partCount)
	return &Plan{
		Key:       sess.Key,
		UploadID:  sess.UploadID,
		URLs:      urls,
		ExpiresAt: time.Now().Add(c.presignTTL),
	}, nil
}

// CompleteFromClientReport finalizes a browser-driven transaction from the
// tokens the browser collected. It never aborts; a rejected report can be
// corrected and resubmitted.
func (c *Coordinator) CompleteFromClientReport(ctx context.Context, key, uploadID string, reported []CompletedPart) (string, error) {
	if key == "" || uploadID == "" {
		return "", apperr.Invalid("complete upload", "key and uploadId are required")
	}

	sorted, err := sortTokens(reported)
	if err != nil {
		return "", apperr.New(apperr.KindInvalid, "complete upload", err)
	}

	location, err := c.client.CompleteMultipartUpload(ctx, key, uploadID, toPartInfo(sorted))
	if err != nil {
		return "", apperr.New(apperr.KindFatalUpload, "complete multipart upload", err)
	}

	metrics.UploadsCompleted.Inc()
	c.logger.Info("multipart upload completed from client report", "key", key, "upload_id", uploadID, "parts", len(sorted))
	return location, nil
}
