package registry

import (
	"fmt"
	"path/filepath"
)

// AddHook appends a hook template to hooks/<name>/hook.py, or to the file
// named by to if given (spec §4.6).
func (r *Registry) AddHook(name, hookType, functionName, to string) error {
	if functionName == "" {
		functionName = "on_" + hookType
	}
	path := to
	if path == "" {
		path = filepath.Join(r.HooksDir, name, "hook.py")
	}

	var existing []byte
	if r.FS.Exists(path) {
		raw, err := r.FS.ReadFile(path)
		if err != nil {
			return fmt.Errorf("op=registry.AddHook: %w", err)
		}
		existing = raw
	}

	existing = append(existing, []byte(hookTemplate(hookType, functionName))...)
	if err := r.FS.WriteFile(path, existing, 0o644); err != nil {
		return fmt.Errorf("op=registry.AddHook: %w", err)
	}
	return nil
}

func hookTemplate(hookType, functionName string) string {
	return fmt.Sprintf(`

def %s(result=None, error=None, *args, **kwargs):
    """%s hook: register under the name %q with internal/hooks.Registry."""
    pass
`, functionName, hookType, functionName)
}
