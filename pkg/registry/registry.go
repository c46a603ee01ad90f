// pkg/registry/registry.go
package registry

import (
	"encoding/json"
	"fmt"
	"os"

	"grantmatch-workers/internal/common/validation"
)

func LoadRegistry(path string) (*ActivityRegistry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var reg ActivityRegistry
	err = json.Unmarshal(data, &reg)
	return &reg, err
}

// FindByTaskType returns the activity registered for a Zeebe task type.
func (r *ActivityRegistry) FindByTaskType(taskType string) (*Activity, error) {
	for i := range r.Activities {
		if r.Activities[i].TaskType == taskType {
			return &r.Activities[i], nil
		}
	}
	return nil, fmt.Errorf("no activity registered for task type %q", taskType)
}

// ValidateInput checks a job payload against the activity's input schema.
func (a *Activity) ValidateInput(payload map[string]interface{}) (*validation.ValidationResult, error) {
	if a.InputSchema == nil {
		return &validation.ValidationResult{Valid: true}, nil
	}
	return validation.ValidateAgainstSchema(payload, a.InputSchema)
}
