package importer

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/text/encoding/charmap"
)

// ParseOptions controls how the input file is read
type ParseOptions struct {
	Delimiter string `json:"delimiter"` // "," or ";", default ","
	Encoding  string `json:"encoding"`  // "utf-8" (default) or "windows-1251"
}

// Table is the parsed input: one header row plus data rows in source order.
// Empty data rows are dropped during parsing.
type Table struct {
	Headers []string `json:"headers"`
	Rows    []RawRow `json:"rows"`
}

// ParseTable reads delimited text from r. The first row is the header; fully
// empty rows are skipped. Short rows are tolerated (missing cells read as "").
func ParseTable(r io.Reader, opts ParseOptions) (*Table, error) {
	if opts.Encoding == "windows-1251" {
		r = charmap.Windows1251.NewDecoder().Reader(r)
	} else if opts.Encoding != "" && opts.Encoding != "utf-8" {
		return nil, fmt.Errorf("unsupported encoding: %s", opts.Encoding)
	}

	delim := opts.Delimiter
	if delim == "" {
		delim = ","
	}
	if delim != "," && delim != ";" {
		return nil, fmt.Errorf("unsupported delimiter: %q", delim)
	}

	reader := csv.NewReader(r)
	reader.Comma = rune(delim[0])
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("input is empty, expected a header row")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	t := &Table{Headers: make([]string, len(header))}
	for i, name := range header {
		t.Headers[i] = strings.TrimSpace(name)
	}

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("csv read error: %w", err)
		}

		empty := true
		for _, cell := range record {
			if strings.TrimSpace(cell) != "" {
				empty = false
				break
			}
		}
		if empty {
			continue
		}

		row := make(RawRow, len(t.Headers))
		for i, name := range t.Headers {
			if i < len(record) {
				row[name] = record[i]
			} else {
				row[name] = ""
			}
		}
		t.Rows = append(t.Rows, row)
	}

	return t, nil
}

// ParseFile opens and parses an input file, confining it to baseDir.
// Symlinks are resolved before the containment check.
func ParseFile(path, baseDir string, opts ParseOptions) (*Table, error) {
	resolved, err := ResolveInputPath(path, baseDir)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(resolved)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	return ParseTable(f, opts)
}

// ResolveInputPath resolves path (following symlinks) and rejects anything
// that escapes baseDir or is not a regular file.
func ResolveInputPath(path, baseDir string) (string, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("invalid input path: %w", err)
	}
	absBase, err := filepath.Abs(baseDir)
	if err != nil {
		return "", fmt.Errorf("invalid base directory: %w", err)
	}

	resolved, err := filepath.EvalSymlinks(absPath)
	if err != nil {
		return "", fmt.Errorf("cannot resolve input path: %w", err)
	}
	resolvedBase, err := filepath.EvalSymlinks(absBase)
	if err != nil {
		return "", fmt.Errorf("cannot resolve base directory: %w", err)
	}

	rel, err := filepath.Rel(resolvedBase, resolved)
	if err != nil {
		return "", fmt.Errorf("cannot compute relative path: %w", err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("input path escapes base directory: %s", rel)
	}

	info, err := os.Stat(resolved)
	if err != nil {
		return "", fmt.Errorf("file does not exist: %w", err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("path is a directory, not a file: %s", resolved)
	}

	return resolved, nil
}
