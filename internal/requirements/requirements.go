// Package requirements reads requirement declaration files and pairs each
// declaration with the trust annotation sitting directly above it.
package requirements

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// annotationPrefix must match the raw previous line exactly, leading
// whitespace included. The grammar is deliberately rigid: an annotation
// applies only from exactly one line above, in the same file.
const annotationPrefix = "# sha256: "

// Record is one requirement declaration plus, when present, the trust
// annotation from the line directly above it. Records are immutable once
// produced and ordered: file order first, then declaration order.
type Record struct {
	Name         string // distribution name as written
	Specifier    string // the declaration line, trimmed of whitespace and comments
	File         string // source file
	Line         int    // 1-based declaration line number
	ExpectedHash string // empty when no annotation applies
}

// Pinned reports whether the record carries a trust annotation.
func (r Record) Pinned() bool { return r.ExpectedHash != "" }

// MalformedRequirementError marks a declaration line that cannot yield a
// usable record.
type MalformedRequirementError struct {
	File   string
	Line   int
	Reason string
}

func (e *MalformedRequirementError) Error() string {
	return fmt.Sprintf("%s:%d: malformed requirement: %s", e.File, e.Line, e.Reason)
}

// ReadFiles parses the given requirement files into an ordered sequence of
// records. Nested "-r" includes are followed relative to the including
// file; repeated includes are read once.
func ReadFiles(paths []string, logger *slog.Logger) ([]Record, error) {
	var records []Record
	visited := make(map[string]bool)
	for _, path := range paths {
		if err := readFile(path, visited, &records, logger); err != nil {
			return nil, err
		}
	}
	return records, nil
}

func readFile(path string, visited map[string]bool, records *[]Record, logger *slog.Logger) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolving requirements file %q: %w", path, err)
	}
	if visited[abs] {
		logger.Warn("requirements file included more than once, skipping", slog.String("file", path))
		return nil
	}
	visited[abs] = true

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening requirements file %q: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	var prevRaw string
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		raw := scanner.Text()
		line := strings.TrimSpace(raw)

		switch {
		case line == "" || strings.HasPrefix(line, "#"):
			// Annotations are recognized below, from the raw previous line.

		case isInclude(line):
			included := includePath(line)
			if included == "" {
				return &MalformedRequirementError{File: path, Line: lineNo, Reason: "-r with no file path"}
			}
			if !filepath.IsAbs(included) {
				included = filepath.Join(filepath.Dir(path), included)
			}
			if err := readFile(included, visited, records, logger); err != nil {
				return err
			}

		case strings.HasPrefix(line, "-e ") || strings.HasPrefix(line, "--editable"):
			logger.Warn("skipping editable requirement, it cannot be hash-pinned",
				slog.String("file", path), slog.Int("line", lineNo))

		case strings.HasPrefix(line, "-"):
			logger.Debug("skipping option line in requirements file",
				slog.String("file", path), slog.Int("line", lineNo))

		case strings.Contains(line, "://"):
			logger.Warn("skipping URL requirement, it cannot be hash-pinned",
				slog.String("file", path), slog.Int("line", lineNo))

		default:
			rec, err := parseDeclaration(line, path, lineNo, prevRaw)
			if err != nil {
				return err
			}
			*records = append(*records, rec)
		}

		prevRaw = raw
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading requirements file %q: %w", path, err)
	}
	return nil
}

func parseDeclaration(line, path string, lineNo int, prevRaw string) (Record, error) {
	// Inline comments end the declaration.
	if idx := strings.Index(line, " #"); idx >= 0 {
		line = strings.TrimSpace(line[:idx])
	}

	name := parseName(line)
	if name == "" {
		return Record{}, &MalformedRequirementError{File: path, Line: lineNo, Reason: fmt.Sprintf("no package name in %q", line)}
	}

	rec := Record{Name: name, Specifier: line, File: path, Line: lineNo}
	if lineNo > 1 && strings.HasPrefix(prevRaw, annotationPrefix) {
		rec.ExpectedHash = strings.TrimSpace(strings.SplitN(prevRaw, ":", 2)[1])
	}
	return rec, nil
}

// parseName takes the leading run of name characters (PEP 508: letters,
// digits, dot, underscore, hyphen) from a declaration.
func parseName(spec string) string {
	for i, r := range spec {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '.', r == '_', r == '-':
		default:
			return spec[:i]
		}
	}
	return spec
}

func isInclude(line string) bool {
	return strings.HasPrefix(line, "-r ") || strings.HasPrefix(line, "--requirement ") ||
		strings.HasPrefix(line, "--requirement=")
}

func includePath(line string) string {
	if rest, ok := strings.CutPrefix(line, "--requirement="); ok {
		return strings.TrimSpace(rest)
	}
	if rest, ok := strings.CutPrefix(line, "--requirement "); ok {
		return strings.TrimSpace(rest)
	}
	return strings.TrimSpace(strings.TrimPrefix(line, "-r "))
}
