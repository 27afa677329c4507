package runner

import (
	"fmt"
	"strings"
)

// ValidateModel checks if the given model is known to a tool.
// Returns nil if valid, or an error listing the known models.
// Callers treat the error as a warning since backends ship models
// before this list learns about them.
func ValidateModel(tool Tool, model string) error {
	validModels := tool.ValidModels()
	for _, valid := range validModels {
		if model == valid {
			return nil
		}
	}
	return fmt.Errorf("unknown model '%s' for %s. Known models: %s", model, tool.Name(), strings.Join(validModels, ", "))
}
