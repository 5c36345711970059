package scanner

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/leppikallio/pai-opencode/internal/models"
)

// LoadReport reads a saved report. Summary counters are re-derived from
// the results.
func LoadReport(path string) (*models.Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read report: %w", err)
	}
	var report models.Report
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("failed to parse report %s: %w", path, err)
	}
	return &report, nil
}
