// Package config loads a SessionConfig from the project's build-metadata
// file, then layers environment variable and CLI-flag overrides on top,
// per spec.md §6: CLI > environment > config file > defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/stomper-go/stomper/internal/models"
)

// Logger receives warnings for recoverable configuration problems
// (invalid environment values), which spec.md §6 requires to be
// non-fatal.
type Logger interface {
	Warnf(format string, args ...interface{})
}

// FileConfig is the `[tool.stomper]` table shape read from stomper.toml
// or an existing pyproject.toml.
type FileConfig struct {
	Tools                 []string `toml:"tools"`
	Selection             string   `toml:"selection"`
	Targets               []string `toml:"targets"`
	BaseBranch            string   `toml:"base_branch"`
	Include               []string `toml:"include"`
	Exclude               []string `toml:"exclude"`
	MaxFiles              int      `toml:"max_files"`
	ErrorType             string   `toml:"error_type"`
	Ignore                []string `toml:"ignore"`
	MaxErrorsPerIteration int      `toml:"max_errors_per_iteration"`
	DryRun                bool     `toml:"dry_run"`
	UseSandbox            bool     `toml:"use_sandbox"`
	RunTests              bool     `toml:"run_tests"`
	MaxParallelFiles      int      `toml:"max_parallel_files"`
	TestValidation        string   `toml:"test_validation"`
	ContinueOnError       bool     `toml:"continue_on_error"`
	MaxRetries            int      `toml:"max_retries"`
	ProcessingStrategy    string   `toml:"processing_strategy"`
	AgentName             string   `toml:"agent_name"`
	Timeout               string   `toml:"timeout"`
}

// Defaults returns the code-level defaults for every overridable
// SessionConfig field.
func Defaults() models.SessionConfig {
	return models.SessionConfig{
		Tools:                 []string{"ruff"},
		Selection:             models.SelectionDirectory,
		Targets:               []string{"."},
		MaxErrorsPerIteration: 100,
		RunTests:              true,
		MaxParallelFiles:      4,
		TestValidation:        models.TestValidationFull,
		ContinueOnError:       true,
		MaxRetries:            3,
		ProcessingStrategy:    models.StrategyBatchErrors,
		AgentName:             "claude",
		Timeout:               5 * time.Minute,
	}
}

// configFileNames are tried in order under projectRoot; the first one
// that exists wins.
var configFileNames = []string{"stomper.toml", "pyproject.toml"}

func locate(projectRoot string) string {
	for _, name := range configFileNames {
		path := filepath.Join(projectRoot, name)
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// Load builds a SessionConfig for projectRoot: defaults, then the
// `[tool.stomper]` table from the project's config file (if any), then
// STOMPER_* environment overrides. CLI flags are layered afterward by
// the caller via MergeFlags, since flag parsing happens above this
// package. logger may be nil.
func Load(projectRoot string, logger Logger) (models.SessionConfig, error) {
	cfg := Defaults()
	cfg.ProjectRoot = projectRoot

	if path := locate(projectRoot); path != "" {
		if err := mergeFile(&cfg, path); err != nil {
			return cfg, err
		}
	}

	applyEnvOverrides(&cfg, logger)

	return cfg, nil
}

// mergeFile parses path's `[tool.stomper]` table and overrides cfg with
// whatever keys are present. A missing table, or a file without one, is
// not an error — stomper.toml and pyproject.toml are both optional.
func mergeFile(cfg *models.SessionConfig, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	var root map[string]interface{}
	if err := toml.Unmarshal(data, &root); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	tool, _ := root["tool"].(map[string]interface{})
	raw, ok := tool["stomper"].(map[string]interface{})
	if !ok {
		return nil
	}

	// Re-encode the subsection so it can be decoded into the typed
	// FileConfig for validated field types, while raw is kept around
	// for per-key presence checks (a key can't be distinguished from
	// its TOML zero value without it).
	sub, err := toml.Marshal(raw)
	if err != nil {
		return fmt.Errorf("re-encode [tool.stomper] table in %s: %w", path, err)
	}

	var fc FileConfig
	if err := toml.Unmarshal(sub, &fc); err != nil {
		return fmt.Errorf("parse [tool.stomper] table in %s: %w", path, err)
	}

	return applyFileConfig(cfg, fc, raw)
}

func applyFileConfig(cfg *models.SessionConfig, fc FileConfig, raw map[string]interface{}) error {
	has := func(key string) bool {
		_, ok := raw[key]
		return ok
	}

	if has("tools") {
		cfg.Tools = fc.Tools
	}
	if has("selection") {
		cfg.Selection = models.Selection(fc.Selection)
	}
	if has("targets") {
		cfg.Targets = fc.Targets
	}
	if has("base_branch") {
		cfg.BaseBranch = fc.BaseBranch
	}
	if has("include") {
		cfg.Include = fc.Include
	}
	if has("exclude") {
		cfg.Exclude = fc.Exclude
	}
	if has("max_files") {
		cfg.MaxFiles = fc.MaxFiles
	}
	if has("error_type") {
		cfg.ErrorType = fc.ErrorType
	}
	if has("ignore") {
		cfg.Ignore = fc.Ignore
	}
	if has("max_errors_per_iteration") {
		cfg.MaxErrorsPerIteration = fc.MaxErrorsPerIteration
	}
	if has("dry_run") {
		cfg.DryRun = fc.DryRun
	}
	if has("use_sandbox") {
		cfg.UseSandbox = fc.UseSandbox
	}
	if has("run_tests") {
		cfg.RunTests = fc.RunTests
	}
	if has("max_parallel_files") {
		cfg.MaxParallelFiles = fc.MaxParallelFiles
	}
	if has("test_validation") {
		cfg.TestValidation = models.TestValidation(fc.TestValidation)
	}
	if has("continue_on_error") {
		cfg.ContinueOnError = fc.ContinueOnError
	}
	if has("max_retries") {
		cfg.MaxRetries = fc.MaxRetries
	}
	if has("processing_strategy") {
		cfg.ProcessingStrategy = models.ProcessingStrategy(fc.ProcessingStrategy)
	}
	if has("agent_name") {
		cfg.AgentName = fc.AgentName
	}
	if has("timeout") {
		d, err := time.ParseDuration(fc.Timeout)
		if err != nil {
			return fmt.Errorf("invalid timeout %q: %w", fc.Timeout, err)
		}
		cfg.Timeout = d
	}

	return nil
}

// applyEnvOverrides applies STOMPER_* environment variables over cfg.
// Per spec.md §6, a present-but-unparseable value is a warning, not a
// fatal error: the prior value (default or config-file-derived) is kept.
func applyEnvOverrides(cfg *models.SessionConfig, logger Logger) {
	warnf := func(format string, args ...interface{}) {
		if logger != nil {
			logger.Warnf(format, args...)
		}
	}

	if v := os.Getenv("STOMPER_TOOLS"); v != "" {
		cfg.Tools = splitCSV(v)
	}
	if v := os.Getenv("STOMPER_SELECTION"); v != "" {
		cfg.Selection = models.Selection(v)
	}
	if v := os.Getenv("STOMPER_TARGETS"); v != "" {
		cfg.Targets = splitCSV(v)
	}
	if v := os.Getenv("STOMPER_BASE_BRANCH"); v != "" {
		cfg.BaseBranch = v
	}
	if v := os.Getenv("STOMPER_INCLUDE"); v != "" {
		cfg.Include = splitCSV(v)
	}
	if v := os.Getenv("STOMPER_EXCLUDE"); v != "" {
		cfg.Exclude = splitCSV(v)
	}
	if v := os.Getenv("STOMPER_MAX_FILES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxFiles = n
		} else {
			warnf("STOMPER_MAX_FILES: invalid integer %q, ignoring", v)
		}
	}
	if v := os.Getenv("STOMPER_ERROR_TYPE"); v != "" {
		cfg.ErrorType = v
	}
	if v := os.Getenv("STOMPER_IGNORE"); v != "" {
		cfg.Ignore = splitCSV(v)
	}
	if v := os.Getenv("STOMPER_MAX_ERRORS_PER_ITERATION"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxErrorsPerIteration = n
		} else {
			warnf("STOMPER_MAX_ERRORS_PER_ITERATION: invalid integer %q, ignoring", v)
		}
	}
	if v := os.Getenv("STOMPER_DRY_RUN"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.DryRun = b
		} else {
			warnf("STOMPER_DRY_RUN: invalid boolean %q, ignoring", v)
		}
	}
	if v := os.Getenv("STOMPER_USE_SANDBOX"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.UseSandbox = b
		} else {
			warnf("STOMPER_USE_SANDBOX: invalid boolean %q, ignoring", v)
		}
	}
	if v := os.Getenv("STOMPER_RUN_TESTS"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.RunTests = b
		} else {
			warnf("STOMPER_RUN_TESTS: invalid boolean %q, ignoring", v)
		}
	}
	if v := os.Getenv("STOMPER_MAX_PARALLEL_FILES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxParallelFiles = n
		} else {
			warnf("STOMPER_MAX_PARALLEL_FILES: invalid integer %q, ignoring", v)
		}
	}
	if v := os.Getenv("STOMPER_TEST_VALIDATION"); v != "" {
		cfg.TestValidation = models.TestValidation(v)
	}
	if v := os.Getenv("STOMPER_CONTINUE_ON_ERROR"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.ContinueOnError = b
		} else {
			warnf("STOMPER_CONTINUE_ON_ERROR: invalid boolean %q, ignoring", v)
		}
	}
	if v := os.Getenv("STOMPER_MAX_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxRetries = n
		} else {
			warnf("STOMPER_MAX_RETRIES: invalid integer %q, ignoring", v)
		}
	}
	if v := os.Getenv("STOMPER_PROCESSING_STRATEGY"); v != "" {
		cfg.ProcessingStrategy = models.ProcessingStrategy(v)
	}
	if v := os.Getenv("STOMPER_AGENT_NAME"); v != "" {
		cfg.AgentName = v
	}
	if v := os.Getenv("STOMPER_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Timeout = d
		} else {
			warnf("STOMPER_TIMEOUT: invalid duration %q, ignoring", v)
		}
	}
}

func splitCSV(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Flags carries CLI-flag values to merge over cfg. A nil field means the
// flag was not set on the command line and cfg keeps its current value;
// this is the highest-precedence layer, applied last by the caller.
type Flags struct {
	Tools                 *[]string
	Selection             *string
	Targets               *[]string
	BaseBranch            *string
	Include               *[]string
	Exclude               *[]string
	MaxFiles              *int
	ErrorType             *string
	Ignore                *[]string
	MaxErrorsPerIteration *int
	DryRun                *bool
	UseSandbox            *bool
	RunTests              *bool
	MaxParallelFiles      *int
	TestValidation        *string
	ContinueOnError       *bool
	MaxRetries            *int
	ProcessingStrategy    *string
	AgentName             *string
	Timeout               *time.Duration
}

// MergeFlags overrides cfg with every non-nil field of f.
func MergeFlags(cfg *models.SessionConfig, f Flags) {
	if f.Tools != nil {
		cfg.Tools = *f.Tools
	}
	if f.Selection != nil {
		cfg.Selection = models.Selection(*f.Selection)
	}
	if f.Targets != nil {
		cfg.Targets = *f.Targets
	}
	if f.BaseBranch != nil {
		cfg.BaseBranch = *f.BaseBranch
	}
	if f.Include != nil {
		cfg.Include = *f.Include
	}
	if f.Exclude != nil {
		cfg.Exclude = *f.Exclude
	}
	if f.MaxFiles != nil {
		cfg.MaxFiles = *f.MaxFiles
	}
	if f.ErrorType != nil {
		cfg.ErrorType = *f.ErrorType
	}
	if f.Ignore != nil {
		cfg.Ignore = *f.Ignore
	}
	if f.MaxErrorsPerIteration != nil {
		cfg.MaxErrorsPerIteration = *f.MaxErrorsPerIteration
	}
	if f.DryRun != nil {
		cfg.DryRun = *f.DryRun
	}
	if f.UseSandbox != nil {
		cfg.UseSandbox = *f.UseSandbox
	}
	if f.RunTests != nil {
		cfg.RunTests = *f.RunTests
	}
	if f.MaxParallelFiles != nil {
		cfg.MaxParallelFiles = *f.MaxParallelFiles
	}
	if f.TestValidation != nil {
		cfg.TestValidation = models.TestValidation(*f.TestValidation)
	}
	if f.ContinueOnError != nil {
		cfg.ContinueOnError = *f.ContinueOnError
	}
	if f.MaxRetries != nil {
		cfg.MaxRetries = *f.MaxRetries
	}
	if f.ProcessingStrategy != nil {
		cfg.ProcessingStrategy = models.ProcessingStrategy(*f.ProcessingStrategy)
	}
	if f.AgentName != nil {
		cfg.AgentName = *f.AgentName
	}
	if f.Timeout != nil {
		cfg.Timeout = *f.Timeout
	}
}
