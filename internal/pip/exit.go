package pip

import (
	"fmt"
	"strings"
)

// ExitError reports a delegate invocation that exited non-zero. Code is
// the delegate's own exit status and is forwarded to the caller
// untouched. Output holds the tail of what the delegate printed.
type ExitError struct {
	Code   int
	Output string
}

func (e *ExitError) Error() string {
	if e.Output != "" {
		return fmt.Sprintf("delegate exited with code %d: %s", e.Code, strings.TrimSpace(e.Output))
	}
	return fmt.Sprintf("delegate exited with code %d", e.Code)
}

// DownloadCountError reports a download that left other than exactly one
// new file in the destination directory. Output carries the delegate's
// words, which usually explain why (a cached file, for instance).
type DownloadCountError struct {
	Specifier string
	Count     int
	Output    string
}

func (e *DownloadCountError) Error() string {
	return fmt.Sprintf("unexpected: %d newly downloaded files for %s", e.Count, e.Specifier)
}
