package config

// CallbackSpec names a registered callable plus the args/kwargs it should be
// invoked with, used for RunConfig's on_success/on_failure (spec §3.1) and
// mirrored for job-level callbacks in internal/domain.Job. Resolution against
// the live function happens in internal/hooks; this struct is the
// serializable half.
type CallbackSpec struct {
	Name   string         `yaml:"name" json:"name"`
	Args   []any          `yaml:"args,omitempty" json:"args,omitempty"`
	Kwargs map[string]any `yaml:"kwargs,omitempty" json:"kwargs,omitempty"`
}
