package export

import (
	"encoding/csv"
	"fmt"
	"io"

	"carbon-scribe/restoration-portal/internal/projects"
)

// WriteProjectsCSV writes a header row followed by one row per project.
func WriteProjectsCSV(w io.Writer, list []projects.Project) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(ProjectColumns); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for _, p := range list {
		if err := writer.Write(projectRow(p)); err != nil {
			return fmt.Errorf("failed to write project %s: %w", p.ID, err)
		}
	}
	writer.Flush()
	return writer.Error()
}
