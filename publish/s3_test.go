package publish

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	"github.com/stevecastle/vr180/appconfig"
)

type fakePutter struct {
	in   *s3.PutObjectInput
	body []byte
	err  error
}

func (f *fakePutter) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.in = in
	if in.Body != nil {
		f.body, _ = io.ReadAll(in.Body)
	}
	if f.err != nil {
		return nil, f.err
	}
	return &s3.PutObjectOutput{}, nil
}

func writeVideo(t *testing.T) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "job-1-vr180.mp4")
	if err := os.WriteFile(p, []byte("video-bytes"), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestObjectKey(t *testing.T) {
	tests := []struct {
		prefix, want string
	}{
		{"", "job-1/out.mp4"},
		{"vr180", "vr180/job-1/out.mp4"},
		{"/vr180/", "vr180/job-1/out.mp4"},
		{"a/b", "a/b/job-1/out.mp4"},
	}
	for _, tt := range tests {
		if got := ObjectKey(tt.prefix, "job-1", "/tmp/x/out.mp4"); got != tt.want {
			t.Errorf("ObjectKey(%q) = %q; want %q", tt.prefix, got, tt.want)
		}
	}
}

func TestPublish(t *testing.T) {
	fp := &fakePutter{}
	s := &S3{client: fp, bucket: "videos", prefix: "out"}
	p := writeVideo(t)

	loc, err := s.Publish(context.Background(), "job-1", p)
	if err != nil {
		t.Fatal(err)
	}
	if loc != "s3://videos/out/job-1/job-1-vr180.mp4" {
		t.Errorf("location = %q", loc)
	}
	if aws.ToString(fp.in.Bucket) != "videos" {
		t.Errorf("bucket = %q", aws.ToString(fp.in.Bucket))
	}
	if string(fp.body) != "video-bytes" {
		t.Errorf("body = %q", fp.body)
	}
	if aws.ToInt64(fp.in.ContentLength) != int64(len("video-bytes")) {
		t.Errorf("content length = %d", aws.ToInt64(fp.in.ContentLength))
	}
	if aws.ToString(fp.in.ContentType) != "video/mp4" {
		t.Errorf("content type = %q", aws.ToString(fp.in.ContentType))
	}
	if fp.in.Metadata["stereo-mode"] != "left_right" || fp.in.Metadata["job-id"] != "job-1" {
		t.Errorf("metadata = %v", fp.in.Metadata)
	}
}

func TestPublishAPIError(t *testing.T) {
	fp := &fakePutter{err: &smithy.GenericAPIError{Code: "NoSuchBucket", Message: "The specified bucket does not exist"}}
	s := &S3{client: fp, bucket: "missing"}
	_, err := s.Publish(context.Background(), "job-1", writeVideo(t))
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "NoSuchBucket") {
		t.Errorf("err = %v; want API code in message", err)
	}
}

func TestPublishOtherError(t *testing.T) {
	cause := errors.New("connection reset")
	s := &S3{client: &fakePutter{err: cause}, bucket: "b"}
	_, err := s.Publish(context.Background(), "job-1", writeVideo(t))
	if !errors.Is(err, cause) {
		t.Errorf("err = %v; want wrapped cause", err)
	}
}

func TestPublishMissingFile(t *testing.T) {
	s := &S3{client: &fakePutter{}, bucket: "b"}
	if _, err := s.Publish(context.Background(), "job-1", filepath.Join(t.TempDir(), "nope.mp4")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestNewS3(t *testing.T) {
	if _, err := NewS3(context.Background(), appconfig.S3{}); err == nil {
		t.Error("NewS3 accepted an empty bucket")
	}
	s, err := NewS3(context.Background(), appconfig.S3{
		Bucket:          "videos",
		Region:          "us-east-1",
		Endpoint:        "http://127.0.0.1:9000",
		AccessKeyID:     "key",
		SecretAccessKey: "secret",
		UsePathStyle:    true,
	})
	if err != nil {
		t.Fatal(err)
	}
	if s.bucket != "videos" {
		t.Errorf("bucket = %q", s.bucket)
	}
}
