// Package config loads and validates usbackup's YAML configuration file:
// sources, storages, jobs, notifiers. Grounded on
// original_source/usbackup/config.py for the four-section shape and on
// gopkg.in/yaml.v3 as used by nandlabs-golly and polarfoxDev-marina for
// exactly this purpose; the structural validation pass follows the same
// shape the base codebase's own env-driven Config.Prepare used.
package config

import (
	"fmt"
	"os"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/viperadnan-git/usbackup/internal/handlers"
	"github.com/viperadnan-git/usbackup/internal/model"
)

// Config is the fully parsed and validated configuration.
type Config struct {
	Sources   []model.Source
	Storages  []model.Storage
	Jobs      []model.Job
	Notifiers []model.Notifier
}

// rawHandler discriminates a source/notifier handler by its "handler" key;
// every other key in the same YAML mapping is captured into Options via
// yaml.v3's inline-map support: each handler kind declares its own schema
// for what Options may contain.
type rawHandler struct {
	Kind    string                 `yaml:"handler"`
	Options map[string]interface{} `yaml:",inline"`
}

type rawSource struct {
	Name     string       `yaml:"name"`
	Host     string       `yaml:"host"`
	Handlers []rawHandler `yaml:"handlers"`
}

type rawStorage struct {
	Name string `yaml:"name"`
	Path string `yaml:"path"`
}

type rawJob struct {
	Name               string         `yaml:"name"`
	Type               string         `yaml:"type"`
	Dest               string         `yaml:"dest"`
	Replicate          string         `yaml:"replicate"`
	Limit              []string       `yaml:"limit"`
	Exclude            []string       `yaml:"exclude"`
	Schedule           string         `yaml:"schedule"`
	Retention          map[string]int `yaml:"retention"`
	NotificationPolicy string         `yaml:"notification_policy"`
	Concurrency        int            `yaml:"concurrency"`
	PreRunCmd          []string       `yaml:"pre_run_cmd"`
	PostRunCmd         []string       `yaml:"post_run_cmd"`
}

type rawNotifier struct {
	Name       string `yaml:"name"`
	rawHandler `yaml:",inline"`
}

type rawConfig struct {
	Sources   []rawSource   `yaml:"sources"`
	Storages  []rawStorage  `yaml:"storages"`
	Jobs      []rawJob      `yaml:"jobs"`
	Notifiers []rawNotifier `yaml:"notifiers"`
}

// Load reads, parses and validates the YAML file at path. Validation failures
// surface the same way whether called from daemon startup or a configtest
// check.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: reading config file %q: %v", model.ErrConfigInvalid, path, err)
	}

	var raw rawConfig
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: parsing %q: %v", model.ErrConfigInvalid, path, err)
	}

	cfg, err := fromRaw(raw)
	if err != nil {
		return nil, err
	}
	if err := cfg.prepare(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func fromRaw(raw rawConfig) (*Config, error) {
	cfg := &Config{}

	for _, rs := range raw.Sources {
		host, err := model.ParseHostEndpoint(rs.Host)
		if err != nil {
			return nil, fmt.Errorf("source %q: %w", rs.Name, err)
		}
		var handlers []model.HandlerSpec
		for _, rh := range rs.Handlers {
			handlers = append(handlers, model.HandlerSpec{Kind: rh.Kind, Options: rh.Options})
		}
		cfg.Sources = append(cfg.Sources, model.Source{Name: rs.Name, Host: host, Handlers: handlers})
	}

	for _, rst := range raw.Storages {
		pathRef, err := model.ParsePathRef(rst.Path)
		if err != nil {
			return nil, fmt.Errorf("storage %q: %w", rst.Name, err)
		}
		cfg.Storages = append(cfg.Storages, model.Storage{Name: rst.Name, Path: pathRef})
	}

	for _, rj := range raw.Jobs {
		retention := make(model.RetentionPolicy, len(rj.Retention))
		for bucket, n := range rj.Retention {
			retention[model.Bucket(bucket)] = n
		}
		jobType := model.JobType(rj.Type)
		if jobType == "" {
			jobType = model.JobBackup
		}
		concurrency := rj.Concurrency
		if concurrency == 0 {
			concurrency = 1
		}
		cfg.Jobs = append(cfg.Jobs, model.Job{
			Name:               rj.Name,
			Type:               jobType,
			Dest:               rj.Dest,
			Replicate:          rj.Replicate,
			Limit:              rj.Limit,
			Exclude:            rj.Exclude,
			Schedule:           rj.Schedule,
			Retention:          retention,
			NotificationPolicy: model.NotificationPolicy(rj.NotificationPolicy),
			Concurrency:        concurrency,
			PreRunCmd:          rj.PreRunCmd,
			PostRunCmd:         rj.PostRunCmd,
		})
	}

	for _, rn := range raw.Notifiers {
		cfg.Notifiers = append(cfg.Notifiers, model.Notifier{Name: rn.Name, Kind: rn.Kind, Options: rn.Options})
	}

	return cfg, nil
}

// prepare runs the structural validation pass: uniqueness
// of names within each section, each source handler's kind and options
// (by constructing it through handlers.New), per-job structural invariants
// (model.Job.Validate), cross-references between jobs and sources/storages,
// and config-time cron syntax sanity-checking (robfig/cron, NOT the
// internal/cronmatcher matcher used at run time — see DESIGN.md for why the
// actual due-or-not decision is hand-rolled).
func (c *Config) prepare() error {
	sourceNames := make(map[string]bool, len(c.Sources))
	for _, s := range c.Sources {
		if s.Name == "" {
			return fmt.Errorf("%w: source has no name", model.ErrConfigInvalid)
		}
		if sourceNames[s.Name] {
			return fmt.Errorf("%w: duplicate source name %q", model.ErrConfigInvalid, s.Name)
		}
		sourceNames[s.Name] = true
		for _, h := range s.Handlers {
			if _, err := handlers.New(h.Kind, handlers.Deps{Source: s.Host, Options: h.Options}); err != nil {
				return fmt.Errorf("source %q: %w", s.Name, err)
			}
		}
	}

	storageNames := make(map[string]bool, len(c.Storages))
	for _, s := range c.Storages {
		if s.Name == "" {
			return fmt.Errorf("%w: storage has no name", model.ErrConfigInvalid)
		}
		if storageNames[s.Name] {
			return fmt.Errorf("%w: duplicate storage name %q", model.ErrConfigInvalid, s.Name)
		}
		storageNames[s.Name] = true
	}

	jobNames := make(map[string]bool, len(c.Jobs))
	for i := range c.Jobs {
		j := &c.Jobs[i]
		if jobNames[j.Name] {
			return fmt.Errorf("%w: duplicate job name %q", model.ErrConfigInvalid, j.Name)
		}
		jobNames[j.Name] = true

		if err := j.Validate(); err != nil {
			return err
		}
		if _, err := cron.ParseStandard(j.EffectiveSchedule()); err != nil {
			return fmt.Errorf("%w: job %q has invalid schedule %q: %v", model.ErrConfigInvalid, j.Name, j.Schedule, err)
		}
		if !storageNames[j.Dest] {
			return fmt.Errorf("%w: job %q references unknown dest storage %q", model.ErrConfigInvalid, j.Name, j.Dest)
		}
		if j.Type == model.JobReplication && !storageNames[j.Replicate] {
			return fmt.Errorf("%w: job %q references unknown replicate storage %q", model.ErrConfigInvalid, j.Name, j.Replicate)
		}
		for _, name := range j.Limit {
			if !sourceNames[name] {
				return fmt.Errorf("%w: job %q limit references unknown source %q", model.ErrConfigInvalid, j.Name, name)
			}
		}
		for _, name := range j.Exclude {
			if !sourceNames[name] {
				return fmt.Errorf("%w: job %q exclude references unknown source %q", model.ErrConfigInvalid, j.Name, name)
			}
		}
	}

	notifierNames := make(map[string]bool, len(c.Notifiers))
	for _, n := range c.Notifiers {
		if err := n.Validate(); err != nil {
			return err
		}
		if notifierNames[n.Name] {
			return fmt.Errorf("%w: duplicate notifier name %q", model.ErrConfigInvalid, n.Name)
		}
		notifierNames[n.Name] = true
	}

	return nil
}

// StoragesByName indexes Storages for fast lookup by the coordinators.
func (c *Config) StoragesByName() map[string]model.Storage {
	m := make(map[string]model.Storage, len(c.Storages))
	for _, s := range c.Storages {
		m[s.Name] = s
	}
	return m
}
