package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/viperadnan-git/usbackup/internal/model"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

const minimalConfig = `
sources:
  - name: web1
    host: localhost
    handlers:
      - handler: files
        paths: ["/srv/web1"]

storages:
  - name: local
    path: /backups

jobs:
  - name: nightly
    dest: local
    schedule: "0 2 * * *"
    retention:
      daily: 7
`

func TestLoad_MinimalConfig(t *testing.T) {
	path := writeConfig(t, minimalConfig)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if len(cfg.Sources) != 1 || cfg.Sources[0].Name != "web1" {
		t.Fatalf("sources = %+v", cfg.Sources)
	}
	if len(cfg.Sources[0].Handlers) != 1 || cfg.Sources[0].Handlers[0].Kind != "files" {
		t.Fatalf("handlers = %+v", cfg.Sources[0].Handlers)
	}
	if len(cfg.Storages) != 1 || cfg.Storages[0].Name != "local" || cfg.Storages[0].Path.Path != "/backups" {
		t.Fatalf("storages = %+v", cfg.Storages)
	}
	if len(cfg.Jobs) != 1 {
		t.Fatalf("jobs = %+v", cfg.Jobs)
	}
	job := cfg.Jobs[0]
	if job.Type != model.JobBackup {
		t.Errorf("job type defaults to backup, got %q", job.Type)
	}
	if job.EffectiveConcurrency() != 1 {
		t.Errorf("concurrency defaults to 1, got %d", job.EffectiveConcurrency())
	}
	if job.Retention[model.BucketDaily] != 7 {
		t.Errorf("retention.daily = %d, want 7", job.Retention[model.BucketDaily])
	}
}

func TestLoad_HandlerOptionsCapturedInline(t *testing.T) {
	path := writeConfig(t, minimalConfig)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	paths, ok := cfg.Sources[0].Handlers[0].Options["paths"]
	if !ok {
		t.Fatal("expected 'paths' option to be captured inline")
	}
	list, ok := paths.([]interface{})
	if !ok || len(list) != 1 || list[0] != "/srv/web1" {
		t.Fatalf("paths option = %#v", paths)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); !errors.Is(err, model.ErrConfigInvalid) {
		t.Fatalf("want ErrConfigInvalid, got %v", err)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "sources: [this is not: valid: yaml")
	if _, err := Load(path); !errors.Is(err, model.ErrConfigInvalid) {
		t.Fatalf("want ErrConfigInvalid, got %v", err)
	}
}

func TestLoad_DuplicateSourceName(t *testing.T) {
	path := writeConfig(t, `
sources:
  - name: web1
    host: localhost
  - name: web1
    host: localhost

storages:
  - name: local
    path: /backups

jobs:
  - name: nightly
    dest: local
`)
	if _, err := Load(path); !errors.Is(err, model.ErrConfigInvalid) {
		t.Fatalf("want ErrConfigInvalid for duplicate source name, got %v", err)
	}
}

func TestLoad_DuplicateStorageName(t *testing.T) {
	path := writeConfig(t, `
storages:
  - name: local
    path: /backups
  - name: local
    path: /other

jobs:
  - name: nightly
    dest: local
`)
	if _, err := Load(path); !errors.Is(err, model.ErrConfigInvalid) {
		t.Fatalf("want ErrConfigInvalid for duplicate storage name, got %v", err)
	}
}

func TestLoad_DuplicateJobName(t *testing.T) {
	path := writeConfig(t, `
storages:
  - name: local
    path: /backups

jobs:
  - name: nightly
    dest: local
  - name: nightly
    dest: local
`)
	if _, err := Load(path); !errors.Is(err, model.ErrConfigInvalid) {
		t.Fatalf("want ErrConfigInvalid for duplicate job name, got %v", err)
	}
}

func TestLoad_JobReferencesUnknownDestStorage(t *testing.T) {
	path := writeConfig(t, `
jobs:
  - name: nightly
    dest: missing
`)
	if _, err := Load(path); !errors.Is(err, model.ErrConfigInvalid) {
		t.Fatalf("want ErrConfigInvalid for unknown dest storage, got %v", err)
	}
}

func TestLoad_ReplicationJobRequiresReplicateStorage(t *testing.T) {
	path := writeConfig(t, `
storages:
  - name: local
    path: /backups
  - name: remote
    path: otherhost/backups

jobs:
  - name: offsite
    type: replication
    dest: local
    replicate: missing
`)
	if _, err := Load(path); !errors.Is(err, model.ErrConfigInvalid) {
		t.Fatalf("want ErrConfigInvalid for unknown replicate storage, got %v", err)
	}
}

func TestLoad_ReplicationJobValid(t *testing.T) {
	path := writeConfig(t, `
storages:
  - name: local
    path: /backups
  - name: remote
    path: otherhost/backups

jobs:
  - name: offsite
    type: replication
    dest: local
    replicate: remote
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Jobs[0].Type != model.JobReplication {
		t.Fatalf("job type = %q, want replication", cfg.Jobs[0].Type)
	}
}

func TestLoad_JobLimitReferencesUnknownSource(t *testing.T) {
	path := writeConfig(t, `
storages:
  - name: local
    path: /backups

jobs:
  - name: nightly
    dest: local
    limit: ["ghost"]
`)
	if _, err := Load(path); !errors.Is(err, model.ErrConfigInvalid) {
		t.Fatalf("want ErrConfigInvalid for unknown limit source, got %v", err)
	}
}

func TestLoad_JobExcludeReferencesUnknownSource(t *testing.T) {
	path := writeConfig(t, `
sources:
  - name: web1
    host: localhost

storages:
  - name: local
    path: /backups

jobs:
  - name: nightly
    dest: local
    exclude: ["ghost"]
`)
	if _, err := Load(path); !errors.Is(err, model.ErrConfigInvalid) {
		t.Fatalf("want ErrConfigInvalid for unknown exclude source, got %v", err)
	}
}

func TestLoad_InvalidScheduleSyntax(t *testing.T) {
	path := writeConfig(t, `
storages:
  - name: local
    path: /backups

jobs:
  - name: nightly
    dest: local
    schedule: "not a cron expression"
`)
	if _, err := Load(path); !errors.Is(err, model.ErrConfigInvalid) {
		t.Fatalf("want ErrConfigInvalid for invalid schedule, got %v", err)
	}
}

func TestLoad_InvalidJobType(t *testing.T) {
	path := writeConfig(t, `
storages:
  - name: local
    path: /backups

jobs:
  - name: nightly
    type: teleport
    dest: local
`)
	if _, err := Load(path); !errors.Is(err, model.ErrConfigInvalid) {
		t.Fatalf("want ErrConfigInvalid for invalid job type, got %v", err)
	}
}

func TestLoad_InvalidRetentionBucket(t *testing.T) {
	path := writeConfig(t, `
storages:
  - name: local
    path: /backups

jobs:
  - name: nightly
    dest: local
    retention:
      fortnightly: 2
`)
	if _, err := Load(path); !errors.Is(err, model.ErrConfigInvalid) {
		t.Fatalf("want ErrConfigInvalid for unknown retention bucket, got %v", err)
	}
}

func TestLoad_NotifierParsed(t *testing.T) {
	// notifier structural validation (name/kind) happens at config load;
	// kind-specific option validation (e.g. webhook_url) happens when the
	// transport is constructed, not here.
	path := writeConfig(t, `
storages:
  - name: local
    path: /backups

jobs:
  - name: nightly
    dest: local

notifiers:
  - name: ops-slack
    handler: slack
    webhook_url: "https://hooks.example.com/services/xyz"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.Notifiers) != 1 || cfg.Notifiers[0].Kind != "slack" {
		t.Fatalf("notifiers = %+v", cfg.Notifiers)
	}
}

func TestLoad_DuplicateNotifierName(t *testing.T) {
	path := writeConfig(t, `
storages:
  - name: local
    path: /backups

jobs:
  - name: nightly
    dest: local

notifiers:
  - name: ops
    handler: slack
    webhook_url: "https://hooks.example.com/a"
  - name: ops
    handler: discord
    webhook_url: "https://discord.example.com/b"
`)
	if _, err := Load(path); !errors.Is(err, model.ErrConfigInvalid) {
		t.Fatalf("want ErrConfigInvalid for duplicate notifier name, got %v", err)
	}
}

func TestLoad_NotifierMissingKind(t *testing.T) {
	path := writeConfig(t, `
storages:
  - name: local
    path: /backups

jobs:
  - name: nightly
    dest: local

notifiers:
  - name: ops
`)
	if _, err := Load(path); !errors.Is(err, model.ErrConfigInvalid) {
		t.Fatalf("want ErrConfigInvalid for notifier with no kind, got %v", err)
	}
}

func TestLoad_RemoteStoragePath(t *testing.T) {
	path := writeConfig(t, `
storages:
  - name: remote
    path: backup-host/srv/backups

jobs:
  - name: nightly
    dest: remote
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	st := cfg.Storages[0]
	if st.Path.Host.Local {
		t.Fatal("backup-host/srv/backups should not resolve to local")
	}
	if st.Path.Host.Host != "backup-host" {
		t.Errorf("host = %q, want backup-host", st.Path.Host.Host)
	}
}

func TestStoragesByName(t *testing.T) {
	path := writeConfig(t, minimalConfig)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	byName := cfg.StoragesByName()
	if _, ok := byName["local"]; !ok {
		t.Fatal("expected 'local' storage in index")
	}
}
