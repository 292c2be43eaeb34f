// pkg/registry/registry.go
package registry

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
)

//go:embed activities.json
var builtin []byte

// LoadRegistry reads an activity registry document from path.
func LoadRegistry(path string) (*ActivityRegistry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return parse(data)
}

// Default returns the registry of the scoring activities this service implements.
func Default() *ActivityRegistry {
	reg, err := parse(builtin)
	if err != nil {
		panic(fmt.Sprintf("embedded activity registry: %v", err))
	}
	return reg
}

func parse(data []byte) (*ActivityRegistry, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var reg ActivityRegistry
	if err := dec.Decode(&reg); err != nil {
		return nil, fmt.Errorf("decode activity registry: %w", err)
	}
	if err := reg.Validate(); err != nil {
		return nil, err
	}
	return &reg, nil
}

// Find returns the activity bound to taskType.
func (r *ActivityRegistry) Find(taskType string) (*Activity, bool) {
	for i := range r.Activities {
		if r.Activities[i].TaskType == taskType {
			return &r.Activities[i], true
		}
	}
	return nil, false
}

// Validate rejects activities without an id or task type, duplicates and unparsable timeouts.
func (r *ActivityRegistry) Validate() error {
	ids := make(map[string]struct{}, len(r.Activities))
	tasks := make(map[string]struct{}, len(r.Activities))
	for i, a := range r.Activities {
		if a.ID == "" || a.TaskType == "" {
			return fmt.Errorf("activity %d: id and taskType are required", i)
		}
		if _, dup := ids[a.ID]; dup {
			return fmt.Errorf("activity %q declared twice", a.ID)
		}
		if _, err := a.JobTimeout(); err != nil {
			return fmt.Errorf("activity %q: timeout: %w", a.ID, err)
		}
		if _, dup := tasks[a.TaskType]; dup {
			return fmt.Errorf("task type %q bound twice", a.TaskType)
		}
		ids[a.ID] = struct{}{}
		tasks[a.TaskType] = struct{}{}
	}
	return nil
}
