// Package export writes the derived CSV tables.
package export

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
)

// writeCSV writes header and the rows produced by fn to a temporary file next to path and
// renames it over path. On any error the temporary file is removed and path is untouched.
func writeCSV(path string, header []string, fn func(w *csv.Writer) error) (err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	b := bufio.NewWriter(tmp)
	w := csv.NewWriter(b)
	if err = w.Write(header); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err = fn(w); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	w.Flush()
	if err = w.Error(); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err = b.Flush(); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	// CreateTemp creates files with mode 0600.
	if err = os.Chmod(tmp.Name(), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
