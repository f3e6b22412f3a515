package scheduler

import (
	"os"
	"sort"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/agentmemory/memd/internal/merrors"
)

// jobTOML is one job's on-disk configuration row. Pausable/Enabled are
// pointers so a table that only overrides interval_ms doesn't silently
// flip the other fields to their zero value.
type jobTOML struct {
	IntervalMs int   `toml:"interval_ms"`
	TimeoutMs  int   `toml:"timeout_ms"`
	Pausable   *bool `toml:"pausable"`
	Enabled    *bool `toml:"enabled"`
}

// jobsTOML is the shape of jobs.toml: a table of job name to config.
type jobsTOML struct {
	Jobs map[string]jobTOML `toml:"jobs"`
}

// DefaultJobSpecs describes the six maintenance jobs named in this
// project's scheduler surface. Lexical and vector pruning are disabled
// by default, matching an append-only-unless-asked posture; the rest
// run continuously.
func DefaultJobSpecs() []JobSpec {
	return []JobSpec{
		{Name: "lexical-prune", Interval: 24 * time.Hour, Timeout: time.Hour, Pausable: true, Enabled: false},
		{Name: "vector-prune", Interval: 24 * time.Hour, Timeout: time.Hour, Pausable: true, Enabled: false},
		{Name: "topic-lifecycle", Interval: time.Hour, Timeout: 5 * time.Minute, Pausable: true, Enabled: true},
		{Name: "outbox-gc", Interval: 5 * time.Minute, Timeout: time.Minute, Pausable: true, Enabled: true},
		{Name: "usage-flush", Interval: 60 * time.Second, Timeout: 10 * time.Second, Pausable: false, Enabled: true},
		{Name: "importance-refresh", Interval: time.Hour, Timeout: 5 * time.Minute, Pausable: true, Enabled: true},
	}
}

// LoadJobSpecs starts from DefaultJobSpecs and overlays path (if it
// exists) field by field, so a jobs.toml only needs to mention the
// fields it changes. A missing file is not an error: the defaults
// stand alone.
func LoadJobSpecs(path string) ([]JobSpec, error) {
	specs := DefaultJobSpecs()
	if path == "" {
		return specs, nil
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return specs, nil
		}
		return nil, merrors.Wrap(merrors.Storage, "scheduler.LoadJobSpecs", err)
	}

	var parsed jobsTOML
	if _, err := toml.DecodeFile(path, &parsed); err != nil {
		return nil, merrors.Wrap(merrors.InvalidArgument, "scheduler.LoadJobSpecs", err)
	}

	byName := make(map[string]JobSpec, len(specs))
	for _, spec := range specs {
		byName[spec.Name] = spec
	}
	for name, row := range parsed.Jobs {
		spec, ok := byName[name]
		if !ok {
			spec = JobSpec{Name: name, Pausable: true}
		}
		if row.IntervalMs > 0 {
			spec.Interval = time.Duration(row.IntervalMs) * time.Millisecond
		}
		if row.TimeoutMs > 0 {
			spec.Timeout = time.Duration(row.TimeoutMs) * time.Millisecond
		}
		if row.Pausable != nil {
			spec.Pausable = *row.Pausable
		}
		if row.Enabled != nil {
			spec.Enabled = *row.Enabled
		}
		byName[name] = spec
	}

	names := make([]string, 0, len(byName))
	for name := range byName {
		names = append(names, name)
	}
	sort.Strings(names)
	merged := make([]JobSpec, 0, len(names))
	for _, name := range names {
		merged = append(merged, byName[name])
	}
	return merged, nil
}
