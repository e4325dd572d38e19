package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

func TestLocalPutDownloadDelete(t *testing.T) {
	l, err := NewLocal(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	url, err := l.Put(ctx, "videos/u1/1.webm", "video/webm", strings.NewReader("data"), 4)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(url, "file://") {
		t.Fatalf("url = %s", url)
	}
	p, err := l.DownloadURL(ctx, "videos/u1/1.webm")
	if err != nil {
		t.Fatal(err)
	}
	got, err := os.ReadFile(p)
	if err != nil || string(got) != "data" {
		t.Fatalf("read %s: %q %v", p, got, err)
	}
	if err := l.Delete(ctx, "videos/u1/1.webm"); err != nil {
		t.Fatal(err)
	}
	if err := l.Delete(ctx, "videos/u1/1.webm"); err != nil {
		t.Fatalf("second delete: %v", err)
	}
	if _, err := l.DownloadURL(ctx, "videos/u1/1.webm"); err == nil {
		t.Fatal("expected error for missing object")
	}
}

func TestLocalRejectsEscapingKey(t *testing.T) {
	l, err := NewLocal(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := l.Put(context.Background(), "../evil", "", strings.NewReader("x"), 1); err == nil {
		t.Fatal("expected error")
	}
}

func TestLocalPutHonoursCancel(t *testing.T) {
	l, err := NewLocal(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := l.Put(ctx, "videos/a", "", strings.NewReader("x"), 1); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v", err)
	}
	entries, _ := os.ReadDir(l.Root() + "/videos")
	if len(entries) != 0 {
		t.Fatalf("temp files left behind: %v", entries)
	}
}

type fakeS3 struct {
	deleted []string
	err     error
}

func (f *fakeS3) DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.deleted = append(f.deleted, aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, f.err
}

type fakeUploader struct {
	body []byte
	in   *s3.PutObjectInput
}

func (f *fakeUploader) Upload(ctx context.Context, in *s3.PutObjectInput, _ ...func(*manager.Uploader)) (*manager.UploadOutput, error) {
	f.in = in
	b, err := io.ReadAll(in.Body)
	f.body = b
	return &manager.UploadOutput{}, err
}

func TestS3PutDeletePresign(t *testing.T) {
	api := &fakeS3{}
	up := &fakeUploader{}
	var gotExpiry time.Duration
	s := &S3{
		client:   api,
		uploader: up,
		presign: func(ctx context.Context, bucket, key string, expires time.Duration) (string, error) {
			gotExpiry = expires
			return "https://signed/" + bucket + "/" + key, nil
		},
		cfg: S3Config{Region: "eu-west-1", Bucket: "vids", PresignExpireMinutes: 5},
	}
	ctx := context.Background()

	url, err := s.Put(ctx, "videos/u/1.webm", "video/webm", bytes.NewReader([]byte("abc")), 3)
	if err != nil {
		t.Fatal(err)
	}
	if url != "https://vids.s3.eu-west-1.amazonaws.com/videos/u/1.webm" {
		t.Fatalf("url = %s", url)
	}
	if string(up.body) != "abc" || aws.ToString(up.in.ContentType) != "video/webm" || aws.ToInt64(up.in.ContentLength) != 3 {
		t.Fatalf("upload input = %+v body %q", up.in, up.body)
	}

	dl, err := s.DownloadURL(ctx, "videos/u/1.webm")
	if err != nil || dl != "https://signed/vids/videos/u/1.webm" || gotExpiry != 5*time.Minute {
		t.Fatalf("download url = %s, expiry %s, err %v", dl, gotExpiry, err)
	}

	if err := s.Delete(ctx, "videos/u/1.webm"); err != nil {
		t.Fatal(err)
	}
	api.err = errors.New("boom")
	if err := s.Delete(ctx, "x"); err == nil {
		t.Fatal("expected delete error")
	}
	if len(api.deleted) != 2 {
		t.Fatalf("deleted = %v", api.deleted)
	}
}

func TestPresignExpireDefault(t *testing.T) {
	if got := presignExpire(0); got != DefaultPresignExpire {
		t.Fatalf("got %s", got)
	}
}
