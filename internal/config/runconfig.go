package config

// RunConfig is the immutable run-time configuration passed to
// PipelineRunner.Run/RunAsync (spec §3.1, §4.1). Callers never mutate a
// RunConfig in place; changes go through RunConfigBuilder or Merge/MergeDict,
// each of which returns a new value.
type RunConfig struct {
	Inputs    map[string]any `yaml:"inputs,omitempty" json:"inputs,omitempty"`
	FinalVars []string       `yaml:"final_vars,omitempty" json:"final_vars,omitempty"`

	Executor           ExecutorConfig    `yaml:"executor,omitempty" json:"executor,omitempty"`
	WithAdapter        WithAdapterConfig `yaml:"with_adapter,omitempty" json:"with_adapter,omitempty"`
	PipelineAdapterCfg AdapterConfig     `yaml:"pipeline_adapter_cfg,omitempty" json:"pipeline_adapter_cfg,omitempty"`
	ProjectAdapterCfg  AdapterConfig     `yaml:"project_adapter_cfg,omitempty" json:"project_adapter_cfg,omitempty"`

	Retry    RetryPolicy `yaml:"retry,omitempty" json:"retry,omitempty"`
	LogLevel LogLevel    `yaml:"log_level,omitempty" json:"log_level,omitempty"`

	OnSuccess *CallbackSpec `yaml:"on_success,omitempty" json:"on_success,omitempty"`
	OnFailure *CallbackSpec `yaml:"on_failure,omitempty" json:"on_failure,omitempty"`

	AdditionalModules []string `yaml:"additional_modules,omitempty" json:"additional_modules,omitempty"`
	Reload            bool     `yaml:"reload,omitempty" json:"reload,omitempty"`

	// AsyncDriver is a pointer so an explicit `false` (reject RunAsync, spec
	// §4.5 async path) is distinguishable from "unset" (use the default
	// async driver for run_async).
	AsyncDriver *bool `yaml:"async_driver,omitempty" json:"async_driver,omitempty"`
}

// NewRunConfig returns the documented zero-value defaults: synchronous
// executor, no retries, INFO logging.
func NewRunConfig() RunConfig {
	return RunConfig{
		Executor: DefaultExecutorConfig(),
		Retry:    DefaultRetryPolicy(),
		LogLevel: LogInfo,
	}
}

// Validate enforces every invariant named in spec §3.1 that is checkable at
// the RunConfig level alone (cross-entity invariants live in internal/runner
// and internal/jobqueue).
func (c RunConfig) Validate() error {
	if err := c.Executor.Validate(); err != nil {
		return err
	}
	if err := c.Retry.Validate(); err != nil {
		return err
	}
	if err := c.LogLevel.Validate(); err != nil {
		return err
	}
	return nil
}

// WantsAsyncDriver reports whether RunAsync is permitted: true unless
// AsyncDriver was explicitly set to false.
func (c RunConfig) WantsAsyncDriver() bool {
	return c.AsyncDriver == nil || *c.AsyncDriver
}

// Merge returns a new RunConfig where fields set (non-zero) in other
// override self's fields; zero-valued fields in other are ignored (spec
// §4.1 merge semantics — replacement, not deep merge, except inputs which
// the caller is expected to pre-merge shallowly before calling Merge when
// runner-level input-override semantics apply).
func (c RunConfig) Merge(other RunConfig) RunConfig {
	out := c

	if other.Inputs != nil {
		out.Inputs = other.Inputs
	}
	if other.FinalVars != nil {
		out.FinalVars = other.FinalVars
	}
	if other.Executor.Type != "" {
		out.Executor = other.Executor
	}
	if other.WithAdapter.AnyEnabled() {
		out.WithAdapter = other.WithAdapter
	}
	if other.PipelineAdapterCfg != nil {
		out.PipelineAdapterCfg = other.PipelineAdapterCfg
	}
	if other.ProjectAdapterCfg != nil {
		out.ProjectAdapterCfg = other.ProjectAdapterCfg
	}
	// An other.Retry that explicitly zeroes every field ("no retries, no
	// delay") is indistinguishable from "retry not set" here — see
	// RetryPolicy.IsZero's doc comment — so such an override is dropped
	// and self's retry policy wins instead.
	if !other.Retry.IsZero() {
		out.Retry = other.Retry
	}
	if other.LogLevel != "" {
		out.LogLevel = other.LogLevel
	}
	if other.OnSuccess != nil {
		out.OnSuccess = other.OnSuccess
	}
	if other.OnFailure != nil {
		out.OnFailure = other.OnFailure
	}
	if other.AdditionalModules != nil {
		out.AdditionalModules = other.AdditionalModules
	}
	if other.Reload {
		out.Reload = other.Reload
	}
	if other.AsyncDriver != nil {
		out.AsyncDriver = other.AsyncDriver
	}
	return out
}

// MergeInputsShallow merges override into base, key-by-key, returning a new
// map. This is the one documented exception to Merge's replacement
// semantics (spec §4.1): the runner's inputs override merges shallowly with
// pipeline defaults rather than replacing the whole map.
func MergeInputsShallow(base, override map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(override))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range override {
		out[k] = v
	}
	return out
}
