package supervisor

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/viperadnan-git/usbackup/internal/model"
)

func TestWritePIDFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "usbackup.pid")
	if err := writePIDFile(path); err != nil {
		t.Fatalf("writePIDFile: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != strconv.Itoa(os.Getpid()) {
		t.Errorf("pid file content = %q, want %q", data, strconv.Itoa(os.Getpid()))
	}
}

func TestWritePIDFile_AlreadyExistsFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "usbackup.pid")
	if err := writePIDFile(path); err != nil {
		t.Fatalf("first writePIDFile: %v", err)
	}
	if err := writePIDFile(path); err == nil {
		t.Fatal("want error writing PID file over an existing one")
	}
}

func TestStats_FormatText_NoBackups(t *testing.T) {
	s := Stats{Running: true, Backups: map[string]model.RunResult{}}
	text := s.FormatText()
	if text == "" {
		t.Fatal("expected non-empty text")
	}
}

func TestStats_FormatJSON(t *testing.T) {
	s := Stats{
		Running: true,
		Backups: map[string]model.RunResult{
			"a": {SourceName: "a", Elapsed: 2 * time.Second},
		},
	}
	out, err := s.FormatJSON()
	if err != nil {
		t.Fatalf("FormatJSON: %v", err)
	}
	if out == "" {
		t.Fatal("expected non-empty JSON")
	}
}

func TestStats_FormatText_ReportsFailure(t *testing.T) {
	s := Stats{
		Backups: map[string]model.RunResult{
			"a": model.NewFailedResult("a", time.Now(), time.Second, context.DeadlineExceeded),
		},
	}
	text := s.FormatText()
	if text == "" {
		t.Fatal("expected non-empty text")
	}
}
