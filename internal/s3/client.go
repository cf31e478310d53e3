package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3Types "github.com/aws/aws-sdk-go-v2/service/s3/types"
)

type Options struct {
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
	// Endpoint switches the client to path-style addressing against a custom
	// S3-compatible server (MinIO, localstack).
	Endpoint      string
	PublicBaseURL string
}

type Client struct {
	s3Client      *s3.Client
	bucket        string
	presigner     *s3.PresignClient
	publicBaseURL string
}

func NewClient(ctx context.Context, opts Options) (*Client, error) {
	if opts.Bucket == "" {
		return nil, errors.New("bucket is required")
	}

	loadOpts := []func(*config.LoadOptions) error{
		config.WithRegion(opts.Region),
	}
	if opts.AccessKey != "" && opts.SecretKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, ""),
		))
	}

	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	s3Client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &Client{
		s3Client:      s3Client,
		bucket:        opts.Bucket,
		presigner:     s3.NewPresignClient(s3Client),
		publicBaseURL: strings.TrimRight(opts.PublicBaseURL, "/"),
	}, nil
}

func (c *Client) Bucket() string {
	return c.bucket
}

// ObjectURL returns the public URL an object is reachable at.
func (c *Client) ObjectURL(key string) string {
	if c.publicBaseURL != "" {
		return c.publicBaseURL + "/" + key
	}
	return fmt.Sprintf("https://%s.s3.amazonaws.com/%s", c.bucket, key)
}

// KeyFromURL maps a URL produced by ObjectURL (or a path-style bucket URL)
// back to the object key.
func (c *Client) KeyFromURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", errors.New("empty object url")
	}
	if c.publicBaseURL != "" && strings.HasPrefix(raw, c.publicBaseURL+"/") {
		return strings.TrimPrefix(raw, c.publicBaseURL+"/"), nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid object url %q: %w", raw, err)
	}

	key := strings.TrimPrefix(u.Path, "/")
	if !strings.HasPrefix(u.Host, c.bucket+".") {
		key = strings.TrimPrefix(key, c.bucket+"/")
	}
	if key == "" {
		return "", fmt.Errorf("object url %q has no key", raw)
	}
	return key, nil
}

// PutFile uploads a local file under key.
func (c *Client) PutFile(ctx context.Context, localPath, key, contentType string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}

	input := &s3.PutObjectInput{
		Bucket:        aws.String(c.bucket),
		Key:           aws.String(key),
		Body:          f,
		ContentLength: aws.Int64(info.Size()),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}

	_, err = c.s3Client.PutObject(ctx, input)
	return err
}

// DownloadFile writes the object at key to localPath. A partially written
// file is removed on failure.
func (c *Client) DownloadFile(ctx context.Context, key, localPath string) (int64, error) {
	result, err := c.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return 0, err
	}
	defer result.Body.Close()

	f, err := os.Create(localPath)
	if err != nil {
		return 0, err
	}

	n, err := io.Copy(f, result.Body)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(localPath)
		return 0, err
	}
	return n, nil
}

// CreateMultipartUpload creates a multipart upload and returns the upload ID
func (c *Client) CreateMultipartUpload(ctx context.Context, key string, headers map[string]string) (string, error) {
	input := &s3.CreateMultipartUploadInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	}

	if contentType, ok := headers["Content-Type"]; ok {
		input.ContentType = aws.String(contentType)
	}

	result, err := c.s3Client.CreateMultipartUpload(ctx, input)
	if err != nil {
		return "", err
	}

	return aws.ToString(result.UploadId), nil
}

// UploadPart uploads one part and returns the ETag the store assigned to it
func (c *Client) UploadPart(ctx context.Context, key, uploadID string, partNumber int32, body []byte) (string, error) {
	result, err := c.s3Client.UploadPart(ctx, &s3.UploadPartInput{
		Bucket:        aws.String(c.bucket),
		Key:           aws.String(key),
		UploadId:      aws.String(uploadID),
		PartNumber:    aws.Int32(partNumber),
		Body:          bytes.NewReader(body),
		ContentLength: aws.Int64(int64(len(body))),
	})
	if err != nil {
		return "", err
	}

	return aws.ToString(result.ETag), nil
}

// PresignUploadPart generates a presigned URL for uploading a part
func (c *Client) PresignUploadPart(ctx context.Context, key, uploadID string, partNumber int32, expires time.Duration) (string, error) {
	input := &s3.UploadPartInput{
		Bucket:     aws.String(c.bucket),
		Key:        aws.String(key),
		UploadId:   aws.String(uploadID),
		PartNumber: aws.Int32(partNumber),
	}

	request, err := c.presigner.PresignUploadPart(ctx, input, func(opts *s3.PresignOptions) {
		opts.Expires = expires
	})
	if err != nil {
		return "", err
	}

	return request.URL, nil
}

// CompleteMultipartUpload completes a multipart upload and returns the object location
func (c *Client) CompleteMultipartUpload(ctx context.Context, key, uploadID string, parts []PartInfo) (string, error) {
	completedParts := make([]s3Types.CompletedPart, len(parts))
	for i, part := range parts {
		completedParts[i] = s3Types.CompletedPart{
			ETag:       aws.String(part.ETag),
			PartNumber: aws.Int32(int32(part.PartNumber)),
		}
	}

	input := &s3.CompleteMultipartUploadInput{
		Bucket:   aws.String(c.bucket),
		Key:      aws.String(key),
		UploadId: aws.String(uploadID),
		MultipartUpload: &s3Types.CompletedMultipartUpload{
			Parts: completedParts,
		},
	}

	result, err := c.s3Client.CompleteMultipartUpload(ctx, input)
	if err != nil {
		return "", err
	}

	if location := aws.ToString(result.Location); location != "" {
		return location, nil
	}
	return c.ObjectURL(key), nil
}

// AbortMultipartUpload aborts a multipart upload
func (c *Client) AbortMultipartUpload(ctx context.Context, key, uploadID string) error {
	input := &s3.AbortMultipartUploadInput{
		Bucket:   aws.String(c.bucket),
		Key:      aws.String(key),
		UploadId: aws.String(uploadID),
	}

	_, err := c.s3Client.AbortMultipartUpload(ctx, input)
	return err
}

// PartInfo represents a completed part for multipart upload
type PartInfo struct {
	ETag       string
	PartNumber int
}
