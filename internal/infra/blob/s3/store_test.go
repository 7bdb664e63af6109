package s3

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"testing"
	"time"

	aws "github.com/aws/aws-sdk-go-v2/aws"

	"bottlecore/internal/blob/core"
)

func TestStore_MockedBasicFlow(t *testing.T) {
	store := NewMockForTests()
	ctx := context.Background()
	info, err := store.Put(ctx, "exports/e1/history.json", bytes.NewReader([]byte(`{"entries":[]}`)), core.PutOptions{ContentType: "application/json"})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.Key != "exports/e1/history.json" || info.ContentType != "application/json" || info.Size < 1 {
		t.Fatalf("unexpected info %#v", info)
	}
	if _, err := store.Put(ctx, "exports/e1/history.json", bytes.NewReader([]byte("ignored")), core.PutOptions{}); err == nil {
		t.Fatalf("expected duplicate put error")
	}
	if _, err := store.Head(ctx, "exports/e1/history.json"); err != nil {
		t.Fatalf("head: %v", err)
	}
	_, rc, err := store.Get(ctx, "exports/e1/history.json")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	data, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(data) != `{"entries":[]}` {
		t.Fatalf("get mismatch: %q", string(data))
	}
	list, err := store.List(ctx, "exports/")
	if err != nil || len(list) != 1 {
		t.Fatalf("list: %v %+v", err, list)
	}
	url, err := store.PresignURL(ctx, "exports/e1/history.json", core.SignedURLOptions{})
	if err != nil || url == "" {
		t.Fatalf("presign: %v %s", err, url)
	}
	if ok, err := store.Delete(ctx, "exports/e1/history.json"); err != nil || !ok {
		t.Fatalf("delete: %v %v", ok, err)
	}
}

func TestStore_New(t *testing.T) {
	_ = os.Setenv("AWS_ACCESS_KEY_ID", "AKIA")
	_ = os.Setenv("AWS_SECRET_ACCESS_KEY", "SECRET")
	defer func() {
		_ = os.Unsetenv("AWS_ACCESS_KEY_ID")
		_ = os.Unsetenv("AWS_SECRET_ACCESS_KEY")
	}()
	s, err := New(context.Background(), Config{Bucket: "bkt", Region: "us-east-1", Endpoint: "https://mock.s3.local", PathStyle: true})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if s.Driver() != core.DriverS3 {
		t.Fatalf("expected DriverS3")
	}
	if _, err := New(context.Background(), Config{Bucket: "bkt", AccessKeyID: "AKIA", SecretAccessKey: "SECRET"}); err != nil {
		t.Fatalf("New with static credentials: %v", err)
	}
	if _, err := New(context.Background(), Config{}); err == nil {
		t.Fatalf("expected error for missing bucket")
	}
}

func TestStore_OpenFromEnvMinimal(t *testing.T) {
	oldB := os.Getenv("BOTTLECORE_BLOB_S3_BUCKET")
	oldR := os.Getenv("BOTTLECORE_BLOB_S3_REGION")
	_ = os.Setenv("BOTTLECORE_BLOB_S3_BUCKET", "env-bucket")
	_ = os.Setenv("BOTTLECORE_BLOB_S3_REGION", "us-east-1")
	defer func() {
		_ = os.Setenv("BOTTLECORE_BLOB_S3_BUCKET", oldB)
		_ = os.Setenv("BOTTLECORE_BLOB_S3_REGION", oldR)
	}()
	if _, err := OpenFromEnv(context.Background()); err != nil {
		t.Fatalf("OpenFromEnv: %v", err)
	}
	_ = os.Unsetenv("BOTTLECORE_BLOB_S3_BUCKET")
	if _, err := OpenFromEnv(context.Background()); err == nil {
		t.Fatalf("expected error without bucket")
	}
}

func TestStore_ErrorPaths(t *testing.T) {
	store := NewMockForTests()
	ctx := context.Background()
	if _, err := store.Head(ctx, "nope"); err == nil {
		t.Fatalf("expected head error for missing key")
	}
	if _, _, err := store.Get(ctx, "nope"); err == nil {
		t.Fatalf("expected get error for missing key")
	}
	if _, err := store.PresignURL(ctx, "k", core.SignedURLOptions{Method: "PUT"}); !errors.Is(err, core.ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}
}

func TestStore_PresignCustomExpiryAndListPrefix(t *testing.T) {
	store := NewMockForTests()
	ctx := context.Background()
	if _, err := store.Put(ctx, "exports/a.csv", bytes.NewReader([]byte("a,b\n")), core.PutOptions{}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, err := store.Put(ctx, "exports/b.csv", bytes.NewReader([]byte("c,d\n")), core.PutOptions{}); err != nil {
		t.Fatalf("put2: %v", err)
	}
	if _, err := store.Put(ctx, "other/c.csv", bytes.NewReader([]byte("e,f\n")), core.PutOptions{}); err != nil {
		t.Fatalf("put3: %v", err)
	}
	if url, err := store.PresignURL(ctx, "exports/a.csv", core.SignedURLOptions{Expiry: 30 * time.Second}); err != nil || url == "" {
		t.Fatalf("presign custom: %v %s", err, url)
	}
	if list, err := store.List(ctx, "no-such-prefix/"); err != nil || len(list) != 0 {
		t.Fatalf("expected empty list: %v %+v", err, list)
	}
	list, err := store.List(ctx, "exports/")
	if err != nil || len(list) != 2 {
		t.Fatalf("expected two export objects: %v %+v", err, list)
	}
	if list[0].Key != "exports/a.csv" || list[1].Key != "exports/b.csv" {
		t.Fatalf("expected sorted keys, got %+v", list)
	}
}

func TestStore_InfoFromNilBranches(t *testing.T) {
	store := NewMockForTests()
	info := store.infoFrom("k", 10, nil, aws.String("\"etagval\""), map[string]string{"x": "y"}, nil)
	if info.ETag != "etagval" || info.ContentType != "" || info.Key != "k" || info.Size != 10 {
		t.Fatalf("unexpected info: %+v", info)
	}
	if info.Metadata["x"] != "y" {
		t.Fatalf("expected metadata passthrough, got %+v", info.Metadata)
	}
}

func TestDecodeAWSChunked(t *testing.T) {
	if _, ok := decodeAWSChunked([]byte("not-chunked")); ok {
		t.Fatalf("expected plain payload to fail decode")
	}
	if _, ok := decodeAWSChunked([]byte("5\r\nabc\r\n0\r\n")); ok {
		t.Fatalf("size mismatch should fail")
	}
	if b, ok := decodeAWSChunked([]byte("5\r\nhello\r\n0\r\n")); !ok || string(b) != "hello" {
		t.Fatalf("expected decode hello")
	}
}

func TestMockRoundTripperUnsupportedMethod(t *testing.T) {
	rt := &mockRoundTripper{state: make(map[string]mockObject)}
	req, _ := http.NewRequest(http.MethodPatch, "https://mock.s3.local/bucket/key", nil)
	resp, _ := rt.RoundTrip(req)
	if resp.StatusCode != http.StatusNotImplemented {
		t.Fatalf("expected 501, got %d", resp.StatusCode)
	}
}
