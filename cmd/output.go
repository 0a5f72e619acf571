package cmd

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/khanhnv2901/cybersafe/internal/report"
	consts "github.com/khanhnv2901/cybersafe/internal/shared/constants"
	"github.com/khanhnv2901/cybersafe/internal/shared/security"
)

// writeReport renders rpt to out, or to outputPath when it is set. It
// returns the path written, if any.
func writeReport(out io.Writer, format report.Format, rpt report.Report, outputPath string) (string, error) {
	if outputPath == "" {
		if format.Binary() {
			return "", &OutputRequiredError{Format: string(format)}
		}
		return "", report.Render(out, format, rpt)
	}

	path, err := security.CleanOutputPath(outputPath)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := report.Render(&buf, format, rpt); err != nil {
		return "", err
	}
	if err := writeFileAtomic(path, buf.Bytes()); err != nil {
		return "", err
	}
	return path, nil
}

// writeFileAtomic writes data next to path and renames it into place.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, consts.DefaultDirPerm); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".report-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write report: %w", err)
	}
	if err := tmp.Chmod(consts.DefaultFilePerm); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("chmod report: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close report: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename report: %w", err)
	}
	return nil
}
