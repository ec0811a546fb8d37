// Package linefile reads and writes line-oriented text files, one unit of
// translation per line. The path "-" means standard input or output.
package linefile

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Stdio is the path that selects standard input or output.
const Stdio = "-"

// Read returns the lines of the file at path. Line endings ("\n" or
// "\r\n") are removed and a final newline does not produce an empty line.
func Read(path string) ([]string, error) {
	var (
		data []byte
		err  error
	)
	if path == Stdio {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return Split(string(data)), nil
}

// Split splits text into lines the way Read does.
func Split(text string) []string {
	if text == "" {
		return []string{}
	}
	text = strings.TrimSuffix(text, "\n")
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	return lines
}

// Write writes lines to path, each followed by "\n". Files are replaced
// atomically through a temporary file in the same directory.
func Write(path string, lines []string) error {
	var b strings.Builder
	for _, l := range lines {
		b.WriteString(l)
		b.WriteByte('\n')
	}

	if path == Stdio {
		_, err := io.WriteString(os.Stdout, b.String())
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.WriteString(b.String()); err != nil {
		tmp.Close()
		return fmt.Errorf("writing %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", tmpName, err)
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		return fmt.Errorf("chmod %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("renaming to %s: %w", path, err)
	}
	return nil
}
