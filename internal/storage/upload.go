package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/oszuidwest/zwfm-voicegate/internal/util"
)

// Upload retry defaults.
const (
	DefaultUploadAttempts = 3
	uploadInitialDelay    = 2 * time.Second
	uploadMaxDelay        = 30 * time.Second
	uploadJitter          = 0.2
)

// ErrUploadNotConfigured is returned when S3 settings are incomplete.
var ErrUploadNotConfigured = errors.New("S3 is not configured")

// S3Config holds S3-compatible storage configuration. An empty Endpoint
// targets AWS; Prefix is prepended to every uploaded key.
type S3Config struct {
	Endpoint        string `json:"endpoint,omitempty" yaml:"endpoint,omitempty" validate:"omitempty,url"`
	Bucket          string `json:"bucket,omitempty" yaml:"bucket,omitempty"`
	AccessKeyID     string `json:"access_key_id,omitempty" yaml:"access_key_id,omitempty"`
	SecretAccessKey string `json:"secret_access_key,omitempty" yaml:"secret_access_key,omitempty"`
	Prefix          string `json:"prefix,omitempty" yaml:"prefix,omitempty"`
}

// IsConfigured reports whether bucket and credentials are set.
func (c *S3Config) IsConfigured() bool {
	return util.IsConfigured(c.Bucket, c.AccessKeyID, c.SecretAccessKey)
}

// Uploader copies finalized recordings to an S3-compatible bucket.
type Uploader struct {
	client       *s3.Client
	cfg          S3Config
	attempts     int
	initialDelay time.Duration
	maxDelay     time.Duration
}

// NewUploader creates an uploader for cfg.
func NewUploader(cfg S3Config) (*Uploader, error) {
	if !cfg.IsConfigured() {
		return nil, ErrUploadNotConfigured
	}
	return &Uploader{
		client:       newS3Client(&cfg),
		cfg:          cfg,
		attempts:     DefaultUploadAttempts,
		initialDelay: uploadInitialDelay,
		maxDelay:     uploadMaxDelay,
	}, nil
}

func newS3Client(cfg *S3Config) *s3.Client {
	creds := credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")

	options := []func(*s3.Options){
		func(o *s3.Options) {
			o.Credentials = creds
			o.Region = "auto"
			// Retries are done per file by Upload.
			o.RetryMaxAttempts = 1
			o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
		},
	}

	if cfg.Endpoint != "" {
		options = append(options, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		})
	}

	return s3.New(s3.Options{}, options...)
}

// Key returns the object key a local file is uploaded under.
func (u *Uploader) Key(localPath string) string {
	return path.Join(u.cfg.Prefix, filepath.Base(localPath))
}

// Upload copies the file at localPath to the bucket and returns its key.
// Failed attempts are retried with jittered exponential backoff until ctx ends.
func (u *Uploader) Upload(ctx context.Context, localPath string) (string, error) {
	key := u.Key(localPath)
	backoff := util.NewBackoff(u.initialDelay, u.maxDelay).WithJitter(uploadJitter)

	var lastErr error
	for attempt := 1; attempt <= u.attempts; attempt++ {
		lastErr = u.put(ctx, localPath, key)
		if lastErr == nil {
			slog.Info("recording uploaded", "bucket", u.cfg.Bucket, "key", key, "attempt", attempt)
			return key, nil
		}
		if attempt == u.attempts {
			break
		}

		delay := backoff.Next()
		slog.Warn("upload failed, retrying", "key", key, "attempt", attempt, "retry_in", delay, "error", lastErr)
		select {
		case <-ctx.Done():
			return "", util.WrapError("upload recording", context.Cause(ctx))
		case <-time.After(delay):
		}
	}
	return "", util.WrapError(fmt.Sprintf("upload recording after %d attempts", u.attempts), lastErr)
}

func (u *Uploader) put(ctx context.Context, localPath, key string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return err
	}
	defer f.Close() //nolint:errcheck // read-only handle

	info, err := f.Stat()
	if err != nil {
		return err
	}

	_, err = u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(u.cfg.Bucket),
		Key:           aws.String(key),
		Body:          f,
		ContentLength: aws.Int64(info.Size()),
		ContentType:   aws.String("audio/wav"),
	})
	return err
}

// TestConnection uploads and deletes a small object to verify access to the bucket.
func (u *Uploader) TestConnection(ctx context.Context) error {
	testKey := path.Join(u.cfg.Prefix, fmt.Sprintf("test-connection-%d.txt", time.Now().UnixNano()))
	testContent := []byte("voicegate connection test")

	_, err := u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(u.cfg.Bucket),
		Key:           aws.String(testKey),
		Body:          bytes.NewReader(testContent),
		ContentLength: aws.Int64(int64(len(testContent))),
	})
	if err != nil {
		return util.WrapError("upload test file", err)
	}

	_, err = u.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(u.cfg.Bucket),
		Key:    aws.String(testKey),
	})
	if err != nil {
		slog.Warn("failed to delete test file", "key", testKey, "error", err)
	}
	return nil
}

// Prune deletes objects under the prefix whose name dates them before cutoff.
// dateOf extracts the recording date from an object's base name.
func (u *Uploader) Prune(ctx context.Context, cutoff time.Time, dateOf func(name string) (time.Time, bool)) (int, error) {
	prefix := u.cfg.Prefix
	if prefix != "" {
		prefix += "/"
	}

	var deleted int
	var continuationToken *string
	for {
		output, err := u.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(u.cfg.Bucket),
			Prefix:            aws.String(prefix),
			ContinuationToken: continuationToken,
		})
		if err != nil {
			return deleted, util.WrapError("list objects", err)
		}

		for _, obj := range output.Contents {
			key := aws.ToString(obj.Key)
			date, ok := dateOf(path.Base(key))
			if !ok || !date.Before(cutoff) {
				continue
			}
			if _, err := u.client.DeleteObject(ctx, &s3.DeleteObjectInput{
				Bucket: aws.String(u.cfg.Bucket),
				Key:    obj.Key,
			}); err != nil {
				slog.Warn("cleanup: failed to delete S3 object", "key", key, "error", err)
				continue
			}
			deleted++
			slog.Debug("cleanup: deleted S3 object", "key", key)
		}

		if !aws.ToBool(output.IsTruncated) {
			return deleted, nil
		}
		continuationToken = output.NextContinuationToken
	}
}
