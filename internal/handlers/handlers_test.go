package handlers

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/viperadnan-git/usbackup/internal/cleanupqueue"
	"github.com/viperadnan-git/usbackup/internal/cmdrunner"
	"github.com/viperadnan-git/usbackup/internal/fsadapter"
	"github.com/viperadnan-git/usbackup/internal/model"
)

func testDeps(options map[string]any) Deps {
	return Deps{
		Source:  model.HostEndpoint{Host: "localhost", Local: true},
		Options: options,
		Fs:      fsadapter.New(cmdrunner.New()),
		Cmd:     cmdrunner.New(),
		Cleanup: cleanupqueue.New(zerolog.Nop()),
		Log:     zerolog.Nop(),
	}
}

func localPath(p string) model.PathRef {
	return model.PathRef{Path: p, Host: model.HostEndpoint{Host: "localhost", Local: true}}
}

func TestNew_UnknownKind(t *testing.T) {
	if _, err := New("does-not-exist", testDeps(nil)); !errors.Is(err, model.ErrConfigInvalid) {
		t.Fatalf("want ErrConfigInvalid, got %v", err)
	}
}

func TestNew_StubKinds_FailWithHandlerFailed(t *testing.T) {
	for _, kind := range []string{"openwrt", "truenas", "homeassistant", "proxmox_vms", "zfs_datasets", "unifi"} {
		h, err := New(kind, testDeps(nil))
		if err != nil {
			t.Fatalf("New(%q): unexpected construction error %v", kind, err)
		}
		err = h.Backup(context.Background(), model.PathRef{}, model.PathRef{})
		if !errors.Is(err, model.ErrHandlerFailed) {
			t.Fatalf("Backup(%q) = %v, want ErrHandlerFailed", kind, err)
		}
	}
}

func TestFilesHandler_RequiresPaths(t *testing.T) {
	if _, err := newFilesHandler(testDeps(nil)); !errors.Is(err, model.ErrConfigInvalid) {
		t.Fatalf("want ErrConfigInvalid for missing paths, got %v", err)
	}
}

func TestFilesHandler_RejectsRelativePath(t *testing.T) {
	opts := map[string]any{"paths": []string{"relative/path"}}
	if _, err := newFilesHandler(testDeps(opts)); !errors.Is(err, model.ErrConfigInvalid) {
		t.Fatalf("want ErrConfigInvalid for relative path, got %v", err)
	}
}

func TestFilesHandler_Backup_CopiesIntoDest(t *testing.T) {
	srcDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(srcDir, "marker.txt"), []byte("hello"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	destDir := t.TempDir()

	opts := map[string]any{"paths": []string{srcDir}}
	h, err := newFilesHandler(testDeps(opts))
	if err != nil {
		t.Fatalf("newFilesHandler: %v", err)
	}

	if err := h.Backup(context.Background(), localPath(destDir), model.PathRef{}); err != nil {
		t.Fatalf("Backup: %v", err)
	}

	copied := filepath.Join(destDir, srcDir, "marker.txt")
	if _, err := os.Stat(copied); err != nil {
		t.Fatalf("expected copied file at %q: %v", copied, err)
	}
}
