package app

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/saikumarpv2643/smart-accelerometer/internal/export"
	"github.com/saikumarpv2643/smart-accelerometer/internal/stream"
)

// exportCSV writes samples to a new file at path, creating parent directories.
func exportCSV(path string, samples []stream.Sample) (err error) {
	if err = os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating export directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating export file: %w", err)
	}
	defer func() {
		if cErr := f.Close(); cErr != nil && err == nil {
			err = fmt.Errorf("closing export file: %w", cErr)
		}
	}()

	if err = export.WriteSamples(f, samples); err != nil {
		return fmt.Errorf("exporting samples: %w", err)
	}

	return nil
}
