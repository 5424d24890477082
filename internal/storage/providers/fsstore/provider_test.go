package fsstore

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/memohai/lexdesk/internal/media"
)

func TestProvider_HostPath(t *testing.T) {
	t.Parallel()
	p := &Provider{root: "/srv/objects"}

	tests := []struct {
		loc     media.StorageLocation
		want    string
		wantErr bool
	}{
		{loc: media.StorageLocation{Bucket: "chat", ObjectKey: "2026/10/voice.ogg"}, want: "/srv/objects/chat/2026/10/voice.ogg"},
		{loc: media.StorageLocation{Bucket: "chat", ObjectKey: "/etc/passwd"}, wantErr: true},
		{loc: media.StorageLocation{Bucket: "chat", ObjectKey: "../other/secret"}, wantErr: true},
		{loc: media.StorageLocation{Bucket: "../chat", ObjectKey: "k"}, wantErr: true},
		{loc: media.StorageLocation{Bucket: "..", ObjectKey: "k"}, wantErr: true},
		{loc: media.StorageLocation{Bucket: "", ObjectKey: "k"}, wantErr: true},
		{loc: media.StorageLocation{Bucket: "chat", ObjectKey: ""}, wantErr: true},
	}
	for _, tt := range tests {
		got, err := p.hostPath(tt.loc)
		if tt.wantErr {
			if err == nil {
				t.Errorf("hostPath(%v) expected error", tt.loc)
			}
			continue
		}
		if err != nil {
			t.Errorf("hostPath(%v) unexpected error: %v", tt.loc, err)
			continue
		}
		if got != tt.want {
			t.Errorf("hostPath(%v) = %q, want %q", tt.loc, got, tt.want)
		}
	}
}

func TestProvider_PutOpenStat(t *testing.T) {
	t.Parallel()
	tmpDir := t.TempDir()
	p, err := New(tmpDir)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	loc := media.StorageLocation{Bucket: "chat", ObjectKey: "img/k1.png"}
	data := []byte("png bytes")
	ctx := context.Background()

	if err := p.Put(ctx, loc, bytes.NewReader(data)); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(tmpDir, "chat", "img", "k1.png")); err != nil {
		t.Fatalf("expected file on disk: %v", err)
	}

	info, err := p.Stat(ctx, loc)
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if info.Size != int64(len(data)) {
		t.Fatalf("Stat size = %d, want %d", info.Size, len(data))
	}

	rc, err := p.Open(ctx, loc)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer rc.Close()
	got, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatalf("content mismatch: got %q", got)
	}
}

func TestProvider_MissingObject(t *testing.T) {
	t.Parallel()
	p, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	loc := media.StorageLocation{Bucket: "chat", ObjectKey: "missing.png"}
	if _, err := p.Open(context.Background(), loc); !errors.Is(err, media.ErrObjectNotFound) {
		t.Fatalf("Open missing: want ErrObjectNotFound, got %v", err)
	}
	if _, err := p.Stat(context.Background(), loc); !errors.Is(err, media.ErrObjectNotFound) {
		t.Fatalf("Stat missing: want ErrObjectNotFound, got %v", err)
	}
}
