package local

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/diligence-portal/portal/internal/config"
	"github.com/diligence-portal/portal/internal/storage"
)

// newTestStorage creates a LocalStorage backed by a temporary directory.
func newTestStorage(t *testing.T) *LocalStorage {
	t.Helper()
	s, err := New(&config.LocalStorageConfig{BasePath: t.TempDir()}, "request-documents")
	if err != nil {
		t.Fatal("New:", err)
	}
	return s
}

func TestNew_CreatesContainerDirectory(t *testing.T) {
	base := filepath.Join(t.TempDir(), "nested", "store")
	s, err := New(&config.LocalStorageConfig{BasePath: base}, "docs")
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if info, err := os.Stat(s.root); err != nil || !info.IsDir() {
		t.Errorf("container directory not created: %v", err)
	}
	if s.root != filepath.Join(base, "docs") {
		t.Errorf("root = %q", s.root)
	}
}

func TestNew_RequiresBasePath(t *testing.T) {
	if _, err := New(&config.LocalStorageConfig{}, "docs"); err == nil {
		t.Error("expected error for empty base path")
	}
}

func TestUploadDownloadRoundTrip(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	data := []byte("balance sheet contents")
	res, err := s.Upload(ctx, "deal/req/doc-a.pdf", bytes.NewReader(data), int64(len(data)), "application/pdf")
	if err != nil {
		t.Fatalf("Upload() error: %v", err)
	}
	if res.Size != int64(len(data)) || len(res.Checksum) != 64 {
		t.Errorf("result = %+v", res)
	}

	again, _ := s.Upload(ctx, "deal/req/doc-b.pdf", bytes.NewReader(data), int64(len(data)), "application/pdf")
	if again.Checksum != res.Checksum {
		t.Error("same content produced different checksums")
	}

	rc, err := s.Download(ctx, "deal/req/doc-a.pdf")
	if err != nil {
		t.Fatalf("Download() error: %v", err)
	}
	defer rc.Close()
	got, _ := io.ReadAll(rc)
	if !bytes.Equal(got, data) {
		t.Errorf("Download() = %q, want %q", got, data)
	}
}

func TestDownload_NotFound(t *testing.T) {
	s := newTestStorage(t)
	_, err := s.Download(context.Background(), "missing/file.pdf")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Download() error = %v, want ErrNotFound", err)
	}
}

func TestDelete(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	if _, err := s.Upload(ctx, "d/r/x.txt", strings.NewReader("x"), 1, "text/plain"); err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if err := s.Delete(ctx, "d/r/x.txt"); err != nil {
		t.Fatalf("Delete() error: %v", err)
	}
	if ok, _ := s.Exists(ctx, "d/r/x.txt"); ok {
		t.Error("file still exists after Delete")
	}
	if _, err := os.Stat(filepath.Join(s.root, "d")); !os.IsNotExist(err) {
		t.Error("empty parent directories were not removed")
	}
	if _, err := os.Stat(s.root); err != nil {
		t.Error("container root must survive cleanup")
	}

	if err := s.Delete(ctx, "d/r/x.txt"); err != nil {
		t.Errorf("Delete() of missing file = %v, want nil", err)
	}
}

func TestExists(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	if ok, err := s.Exists(ctx, "nope.txt"); err != nil || ok {
		t.Errorf("Exists(missing) = %v, %v", ok, err)
	}
	s.Upload(ctx, "yes.txt", strings.NewReader("y"), 1, "text/plain")
	if ok, err := s.Exists(ctx, "yes.txt"); err != nil || !ok {
		t.Errorf("Exists(present) = %v, %v", ok, err)
	}
}

func TestPathEscapeRejected(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	for _, p := range []string{"../outside.txt", "a/../../outside.txt", ""} {
		if _, err := s.Upload(ctx, p, strings.NewReader("x"), 1, "text/plain"); err == nil {
			t.Errorf("Upload(%q) should be rejected", p)
		}
		if err := s.Delete(ctx, p); err == nil {
			t.Errorf("Delete(%q) should be rejected", p)
		}
	}
}

func TestGetURL_Unsupported(t *testing.T) {
	s := newTestStorage(t)
	if _, err := s.GetURL(context.Background(), "a.txt", time.Minute); !errors.Is(err, storage.ErrSignedURLUnsupported) {
		t.Errorf("GetURL() error = %v", err)
	}
}
