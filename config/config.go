// Package config implements configuration loading and validation for the
// upload daemon as specified in section 6 of the design specification. It
// handles the JSON monitor config file and the parameters used by the
// upload subcommand.
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"runtime"

	json "github.com/goccy/go-json"
)

// MonitorEntry pairs a set of source directories with a destination
// bucket/prefix and an optional sample-name filter, as defined in section 6
// of the spec ("Monitor entry").
type MonitorEntry struct {
	MonitoredDirectories []string `json:"monitored_directories"`
	Bucket               string   `json:"bucket"`
	RemotePath           string   `json:"remote_path"`
	SampleRegex          string   `json:"sample_regex,omitempty"`

	// compiledRegex is populated by Validate; callers use
	// CompiledSampleRegex instead of recompiling per run.
	compiledRegex *regexp.Regexp
}

// CompiledSampleRegex returns the compiled sample-name regex, or nil if none
// was configured. Only valid after Validate has succeeded.
func (m *MonitorEntry) CompiledSampleRegex() *regexp.Regexp {
	return m.compiledRegex
}

// Config holds all configuration for the upload daemon as defined in
// section 6 of the design specification.
type Config struct {
	MaxCores          int            `json:"max_cores,omitempty"`
	MaxThreads        int            `json:"max_threads,omitempty"`
	LogDir            string         `json:"log_dir"`
	SlackLogWebhook   string         `json:"slack_log_webhook,omitempty"`
	SlackAlertWebhook string         `json:"slack_alert_webhook,omitempty"`
	Monitor           []MonitorEntry `json:"monitor"`
}

// Load reads and parses the JSON config file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return &cfg, nil
}

// Validate implements the validation requirements from section 6 of the
// spec. Validation errors are aggregated and reported together (count +
// numbered list), rather than failing fast on the first bad field.
func (c *Config) Validate() error {
	var errs []error

	if c.LogDir == "" {
		errs = append(errs, fmt.Errorf("log_dir is required"))
	}

	if c.MaxCores == 0 {
		// A definite value is required at startup; section 9's open
		// question leaves the default to the implementer. This follows
		// the original source's cpu_count() default.
		c.MaxCores = runtime.NumCPU()
	}
	if c.MaxCores < 1 {
		errs = append(errs, fmt.Errorf("max_cores must be at least 1"))
	}

	if c.MaxThreads == 0 {
		c.MaxThreads = 4
	}
	if c.MaxThreads < 1 {
		errs = append(errs, fmt.Errorf("max_threads must be at least 1"))
	}

	if len(c.Monitor) == 0 {
		errs = append(errs, fmt.Errorf("monitor must contain at least one entry"))
	}

	seenDirs := make(map[string]int) // absolute dir -> monitor entry index
	for i := range c.Monitor {
		entry := &c.Monitor[i]

		if len(entry.MonitoredDirectories) == 0 {
			errs = append(errs, fmt.Errorf("monitor[%d].monitored_directories must be non-empty", i))
		}
		if entry.Bucket == "" {
			errs = append(errs, fmt.Errorf("monitor[%d].bucket is required", i))
		}
		if entry.RemotePath == "" {
			errs = append(errs, fmt.Errorf("monitor[%d].remote_path is required", i))
		}

		if entry.SampleRegex != "" {
			re, err := regexp.Compile(entry.SampleRegex)
			if err != nil {
				errs = append(errs, fmt.Errorf("monitor[%d].sample_regex is invalid: %w", i, err))
			} else {
				entry.compiledRegex = re
			}
		}

		for _, dir := range entry.MonitoredDirectories {
			if prev, ok := seenDirs[dir]; ok {
				// Two entries sharing a directory is only ambiguous if
				// neither disambiguates via sample_regex: with a regex on
				// both sides, each entry claims a disjoint subset of
				// samples and routes it to its own destination.
				if entry.SampleRegex == "" || c.Monitor[prev].SampleRegex == "" {
					errs = append(errs, fmt.Errorf(
						"monitor[%d] and monitor[%d] both watch directory %q without a sample_regex to disambiguate: conflicting destinations are unsupported",
						prev, i, dir))
				}
				continue
			}
			seenDirs[dir] = i
		}
	}

	if len(errs) == 0 {
		return nil
	}

	numbered := make([]error, len(errs))
	for i, e := range errs {
		numbered[i] = fmt.Errorf("%d. %w", i+1, e)
	}

	return fmt.Errorf("%d configuration error(s):\n%w", len(errs), errors.Join(numbered...))
}
