// Package publish copies finished videos to remote storage.
package publish

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	"github.com/stevecastle/vr180/appconfig"
	"github.com/stevecastle/vr180/engine"
)

// Publisher uploads a finished file and returns where it now lives.
type Publisher interface {
	Publish(ctx context.Context, jobID, localPath string) (string, error)
}

type objectPutter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3 uploads to a single bucket under an optional key prefix.
type S3 struct {
	client objectPutter
	bucket string
	prefix string
}

// NewS3 builds an S3 publisher from cfg. Static keys are used when both are
// set; otherwise the default AWS credential chain applies.
func NewS3(ctx context.Context, cfg appconfig.S3) (*S3, error) {
	if !cfg.Enabled() {
		return nil, errors.New("s3: no bucket configured")
	}

	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("s3: load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})
	return &S3{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

// ObjectKey places a job's file at <prefix>/<jobID>/<file name>.
func ObjectKey(prefix, jobID, localPath string) string {
	return path.Join(strings.Trim(prefix, "/"), jobID, filepath.Base(localPath))
}

var videoTypes = map[string]string{
	".mp4":  "video/mp4",
	".mov":  "video/quicktime",
	".mkv":  "video/x-matroska",
	".webm": "video/webm",
}

func contentType(p string) string {
	ext := strings.ToLower(filepath.Ext(p))
	if t, ok := videoTypes[ext]; ok {
		return t
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}
	return "application/octet-stream"
}

// Publish uploads localPath and returns its s3:// URL.
func (s *S3) Publish(ctx context.Context, jobID, localPath string) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("s3: open %s: %w", localPath, err)
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("s3: stat %s: %w", localPath, err)
	}

	meta := engine.VR180Metadata()
	key := ObjectKey(s.prefix, jobID, localPath)
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          f,
		ContentLength: aws.Int64(fi.Size()),
		ContentType:   aws.String(contentType(localPath)),
		Metadata: map[string]string{
			"job-id":      jobID,
			"stereo-mode": meta.StereoMode,
			"projection":  meta.Projection,
		},
	})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) {
			return "", fmt.Errorf("s3: put %s: %s: %s", key, apiErr.ErrorCode(), apiErr.ErrorMessage())
		}
		return "", fmt.Errorf("s3: put %s: %w", key, err)
	}
	return "s3://" + s.bucket + "/" + key, nil
}
