package types

import (
	"fmt"
	"strings"
	"time"
)

// BuildConfig holds the options of one docker-build run.
type BuildConfig struct {
	File          string            `json:"file"`
	Engine        string            `json:"engine"`
	Registries    map[string]string `json:"registries,omitempty"`
	RegistryFiles []string          `json:"registry_files,omitempty"`
	ForceRecreate bool              `json:"force_recreate"`
	ListOnly      bool              `json:"list_only"`
	CheckOnly     bool              `json:"check_only"`
	ListRegistry  string            `json:"list_registry,omitempty"`
	Verbosity     int               `json:"verbosity"`
	LogFormat     string            `json:"log_format"`
}

// Validate checks the options that have a fixed set of values.
func (c *BuildConfig) Validate() error {
	if c.File == "" {
		return fmt.Errorf("build description file must not be empty")
	}
	switch c.Engine {
	case "", "docker", "podman":
	default:
		return fmt.Errorf("unsupported engine %q (supported: docker, podman)", c.Engine)
	}
	switch c.LogFormat {
	case "", "text", "json":
	default:
		return fmt.Errorf("unsupported log format %q (supported: text, json)", c.LogFormat)
	}
	return nil
}

type BuildStatus string

const (
	BuildStatusNothingToDo BuildStatus = "nothing_to_do"
	BuildStatusUpToDate    BuildStatus = "up_to_date"
	BuildStatusBuilt       BuildStatus = "built"
	BuildStatusFailed      BuildStatus = "failed"
)

// BuildResult summarizes a run of the build orchestrator.
type BuildResult struct {
	Status        BuildStatus   `json:"status"`
	Built         []string      `json:"built,omitempty"`
	Failed        []string      `json:"failed,omitempty"`
	Error         string        `json:"error,omitempty"`
	CleanupErrors []string      `json:"cleanup_errors,omitempty"`
	Duration      time.Duration `json:"duration"`
}

// Success reports whether the run should exit with status 0.
func (r *BuildResult) Success() bool {
	return r.Status != BuildStatusFailed
}

func (r *BuildResult) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "status=%s", r.Status)
	if len(r.Built) > 0 {
		fmt.Fprintf(&b, " built=%s", strings.Join(r.Built, ","))
	}
	if len(r.Failed) > 0 {
		fmt.Fprintf(&b, " failed=%s", strings.Join(r.Failed, ","))
	}
	if len(r.CleanupErrors) > 0 {
		fmt.Fprintf(&b, " cleanup_errors=%d", len(r.CleanupErrors))
	}
	fmt.Fprintf(&b, " duration=%s", r.Duration.Round(time.Millisecond))
	return b.String()
}
