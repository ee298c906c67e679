package storage

import (
	"context"
	"encoding/pem"
	"errors"
	"io"
	"io/fs"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

// Both backends serve the scout snapshot archive
var (
	_ Archive = (*Storage)(nil)
	_ Archive = (*S3Storage)(nil)
)

var fixedNow = func() time.Time { return time.Date(2025, 2, 14, 9, 30, 0, 0, time.UTC) }

func newLocal(t *testing.T) *Storage {
	t.Helper()
	s, err := New(Config{BasePath: t.TempDir()})
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}
	s.now = fixedNow
	return s
}

func TestSaveSnapshotLocal(t *testing.T) {
	s := newLocal(t)
	ctx := context.Background()

	key, err := s.SaveSnapshot(ctx, "<html>espresso</html>", "espresso-machines-1739525400")
	if err != nil {
		t.Fatalf("SaveSnapshot failed: %v", err)
	}
	if key != "snapshots/2025/02/espresso-machines-1739525400.html" {
		t.Errorf("Unexpected key %q", key)
	}

	data, err := os.ReadFile(s.GetFullPath(key))
	if err != nil {
		t.Fatalf("Snapshot not on disk: %v", err)
	}
	if string(data) != "<html>espresso</html>" {
		t.Errorf("Expected stored content, got %q", data)
	}

	content, err := s.ReadSnapshot(ctx, key)
	if err != nil {
		t.Fatalf("ReadSnapshot failed: %v", err)
	}
	if content != "<html>espresso</html>" {
		t.Errorf("ReadSnapshot returned %q", content)
	}
}

func TestSaveSnapshotNeverOverwrites(t *testing.T) {
	s := newLocal(t)
	ctx := context.Background()

	var keys []string
	for _, body := range []string{"one", "two", "three"} {
		key, err := s.SaveSnapshot(ctx, body, "yoga-mats")
		if err != nil {
			t.Fatalf("SaveSnapshot failed: %v", err)
		}
		keys = append(keys, key)
	}

	want := []string{
		"snapshots/2025/02/yoga-mats.html",
		"snapshots/2025/02/yoga-mats-1.html",
		"snapshots/2025/02/yoga-mats-2.html",
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Errorf("Key %d = %q, want %q", i, keys[i], want[i])
		}
	}

	first, _ := s.ReadSnapshot(ctx, keys[0])
	if first != "one" {
		t.Errorf("First snapshot was overwritten: %q", first)
	}
}

func TestDeleteSnapshotLocal(t *testing.T) {
	s := newLocal(t)
	ctx := context.Background()

	key, err := s.SaveSnapshot(ctx, "gone soon", "desks")
	if err != nil {
		t.Fatalf("SaveSnapshot failed: %v", err)
	}
	if err := s.DeleteSnapshot(ctx, key); err != nil {
		t.Fatalf("DeleteSnapshot failed: %v", err)
	}
	if _, err := os.Stat(s.GetFullPath(key)); !os.IsNotExist(err) {
		t.Error("Expected snapshot file to be removed")
	}
	if _, err := s.ReadSnapshot(ctx, key); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("Expected fs.ErrNotExist after delete, got %v", err)
	}

	// Deleting twice is fine
	if err := s.DeleteSnapshot(ctx, key); err != nil {
		t.Errorf("Second delete failed: %v", err)
	}
}

func TestLocalRejectsEscapingPaths(t *testing.T) {
	s := newLocal(t)
	ctx := context.Background()

	for _, p := range []string{"../outside.html", "snapshots/../../etc/passwd", "/etc/passwd"} {
		if _, err := s.ReadSnapshot(ctx, p); err == nil || !strings.Contains(err.Error(), "invalid snapshot path") {
			t.Errorf("ReadSnapshot(%q) error = %v, want invalid path", p, err)
		}
		if err := s.DeleteSnapshot(ctx, p); err == nil {
			t.Errorf("DeleteSnapshot(%q) should fail", p)
		}
	}
}

func TestSaveSnapshotCancelled(t *testing.T) {
	s := newLocal(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := s.SaveSnapshot(ctx, "x", "cancelled"); err == nil {
		t.Error("Expected error for cancelled context")
	}
	if _, err := os.Stat(filepath.Join(s.config.BasePath, "snapshots")); !os.IsNotExist(err) {
		t.Error("Cancelled save should not touch the filesystem")
	}
}

func TestNewRequiresBasePath(t *testing.T) {
	if _, err := New(Config{BasePath: " "}); err == nil {
		t.Error("Expected error for empty base path")
	}
}

// fakeS3 records requests made against a path-style bucket
type fakeS3 struct {
	mu       sync.Mutex
	requests []string
	types    []string
	objects  map[string]string
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, r.Method+" "+r.URL.Path)

	switch r.Method {
	case http.MethodPut:
		io.Copy(io.Discard, r.Body)
		f.types = append(f.types, r.Header.Get("Content-Type"))
		w.Header().Set("ETag", `"etag"`)
		w.WriteHeader(http.StatusOK)
	case http.MethodGet:
		body, ok := f.objects[r.URL.Path]
		if !ok {
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusNotFound)
			io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>missing</Message></Error>`)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, body)
	case http.MethodDelete:
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func newTestS3(t *testing.T, fake *fakeS3) *S3Storage {
	t.Helper()
	server := httptest.NewServer(fake)
	t.Cleanup(server.Close)

	s, err := NewS3Storage(context.Background(), S3Config{
		Endpoint:        server.URL,
		Region:          "us-east-1",
		Bucket:          "scout-snapshots",
		AccessKeyID:     "test-key",
		SecretAccessKey: "test-secret",
		UsePathStyle:    true,
	})
	if err != nil {
		t.Fatalf("Failed to create S3 storage: %v", err)
	}
	s.now = fixedNow
	return s
}

func TestS3SaveSnapshot(t *testing.T) {
	fake := &fakeS3{}
	s := newTestS3(t, fake)

	key, err := s.SaveSnapshot(context.Background(), "<html></html>", "ai-tools-1739525400")
	if err != nil {
		t.Fatalf("SaveSnapshot failed: %v", err)
	}
	if key != "snapshots/2025/02/ai-tools-1739525400.html" {
		t.Errorf("Unexpected key %q", key)
	}

	fake.mu.Lock()
	defer fake.mu.Unlock()
	if len(fake.requests) != 1 || fake.requests[0] != "PUT /scout-snapshots/"+key {
		t.Errorf("Unexpected requests %v", fake.requests)
	}
	if fake.types[0] != "text/html; charset=utf-8" {
		t.Errorf("Unexpected content type %q", fake.types[0])
	}
}

func TestS3ReadAndDeleteSnapshot(t *testing.T) {
	key := "snapshots/2025/02/desks.html"
	fake := &fakeS3{objects: map[string]string{"/scout-snapshots/" + key: "<html>desks</html>"}}
	s := newTestS3(t, fake)
	ctx := context.Background()

	content, err := s.ReadSnapshot(ctx, key)
	if err != nil {
		t.Fatalf("ReadSnapshot failed: %v", err)
	}
	if content != "<html>desks</html>" {
		t.Errorf("ReadSnapshot returned %q", content)
	}

	if _, err := s.ReadSnapshot(ctx, "snapshots/2025/02/missing.html"); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("Expected fs.ErrNotExist for missing object, got %v", err)
	}

	if err := s.DeleteSnapshot(ctx, key); err != nil {
		t.Fatalf("DeleteSnapshot failed: %v", err)
	}
}

func TestNewS3StorageValidation(t *testing.T) {
	valid := S3Config{
		Endpoint:        "http://localhost:9000",
		Region:          "us-east-1",
		Bucket:          "test-bucket",
		AccessKeyID:     "test-key",
		SecretAccessKey: "test-secret",
		UsePathStyle:    true,
	}

	tests := []struct {
		name   string
		mutate func(*S3Config)
	}{
		{"missing bucket", func(c *S3Config) { c.Bucket = "" }},
		{"missing region", func(c *S3Config) { c.Region = "" }},
		{"missing credentials", func(c *S3Config) { c.AccessKeyID, c.SecretAccessKey = "", "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := valid
			tt.mutate(&config)
			if _, err := NewS3Storage(context.Background(), config); err == nil {
				t.Fatal("Expected error, got nil")
			}
		})
	}

	if _, err := NewS3Storage(context.Background(), valid); err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}
}

// TestS3TrustsCABundle serves the bucket over TLS and trusts it only through
// AWS_CA_BUNDLE, the way private endpoints are usually configured
func TestS3TrustsCABundle(t *testing.T) {
	fake := &fakeS3{objects: map[string]string{"/scout-snapshots/snapshots/2025/02/mats.html": "<html>mats</html>"}}
	server := httptest.NewTLSServer(fake)
	t.Cleanup(server.Close)

	bundle := filepath.Join(t.TempDir(), "ca.pem")
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: server.Certificate().Raw})
	if err := os.WriteFile(bundle, certPEM, 0644); err != nil {
		t.Fatalf("Failed to write CA bundle: %v", err)
	}
	t.Setenv("AWS_CA_BUNDLE", bundle)

	s, err := NewS3Storage(context.Background(), S3Config{
		Endpoint:        server.URL,
		Region:          "us-east-1",
		Bucket:          "scout-snapshots",
		AccessKeyID:     "test-key",
		SecretAccessKey: "test-secret",
		UsePathStyle:    true,
	})
	if err != nil {
		t.Fatalf("NewS3Storage with AWS_CA_BUNDLE failed: %v", err)
	}

	content, err := s.ReadSnapshot(context.Background(), "snapshots/2025/02/mats.html")
	if err != nil {
		t.Fatalf("ReadSnapshot over TLS failed: %v", err)
	}
	if content != "<html>mats</html>" {
		t.Errorf("Expected snapshot content, got %q", content)
	}
}
