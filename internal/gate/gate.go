// Package gate runs the verify-before-install pipeline: fetch every
// requirement into a scratch area, digest the exact downloaded bytes,
// compare against the declared annotations, and hand the archives to the
// installer only when the whole batch matched.
package gate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/schollz/progressbar/v3"
	"golang.org/x/sync/errgroup"

	"github.com/VikingOwl91/pip-warden/internal/archive"
	"github.com/VikingOwl91/pip-warden/internal/pip"
	"github.com/VikingOwl91/pip-warden/internal/policy"
	"github.com/VikingOwl91/pip-warden/internal/requirements"
	"github.com/VikingOwl91/pip-warden/internal/scratch"
	"github.com/VikingOwl91/pip-warden/internal/trust"
)

// Exit codes. A delegate failure forwards the delegate's own code
// instead of ExitBlocked.
const (
	ExitOK      = 0
	ExitBlocked = 1
	ExitUsage   = 2
)

// State names the phase a batch run is in.
type State int

const (
	StateInit State = iota
	StateFetching
	StateVerifying
	StateInstalling
	StateAborted
	StateDone
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateFetching:
		return "fetching"
	case StateVerifying:
		return "verifying"
	case StateInstalling:
		return "installing"
	case StateAborted:
		return "aborted"
	case StateDone:
		return "done"
	}
	return "unknown"
}

// Delegate is the package-manager capability the gate drives: download
// one requirement into a directory, install one verified archive.
type Delegate interface {
	Fetch(ctx context.Context, destDir, specifier string) (string, error)
	InstallArchive(ctx context.Context, archivePath string) error
}

// Options configures a Gate.
type Options struct {
	Delegate   Delegate
	Policy     *policy.Engine // nil disables admission rules
	ScratchDir string         // base for scratch areas, "" means the system temp dir
	MinFreeMB  int64          // warn when the scratch filesystem has less free
	Progress   bool           // draw a progress bar during the digest phase
	Logger     *slog.Logger
	Stdout     io.Writer // report destination
	Stderr     io.Writer // progress bar destination, defaults to os.Stderr
}

// Gate owns one batch at a time.
type Gate struct {
	delegate   Delegate
	policy     *policy.Engine
	scratchDir string
	minFreeMB  int64
	progress   bool
	logger     *slog.Logger
	stdout     io.Writer
	stderr     io.Writer

	state State
}

func New(opts Options) *Gate {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	stdout := opts.Stdout
	if stdout == nil {
		stdout = os.Stdout
	}
	stderr := opts.Stderr
	if stderr == nil {
		stderr = os.Stderr
	}
	return &Gate{
		delegate:   opts.Delegate,
		policy:     opts.Policy,
		scratchDir: opts.ScratchDir,
		minFreeMB:  opts.MinFreeMB,
		progress:   opts.Progress,
		logger:     logger,
		stdout:     stdout,
		stderr:     stderr,
	}
}

// State reports the phase the last Run reached.
func (g *Gate) State() State {
	return g.state
}

// Run executes one batch over the given records and returns the process
// exit code. Installation happens only when every requirement's verdict
// is Matched; the scratch area is released on every path.
func (g *Gate) Run(ctx context.Context, records []requirements.Record) int {
	g.state = StateInit
	logger := g.logger.With("run", uuid.NewString())

	// Policy runs before any network activity.
	if denied := g.applyPolicy(records, logger); len(denied) > 0 {
		g.state = StateAborted
		writePolicyReport(g.stdout, denied)
		return ExitBlocked
	}

	area, err := scratch.Acquire(g.scratchDir)
	if err != nil {
		logger.Error("acquiring scratch area", "error", err)
		g.state = StateAborted
		return ExitBlocked
	}
	defer func() {
		if err := area.Release(); err != nil {
			logger.Warn("releasing scratch area", "path", area.Path, "error", err)
		}
	}()
	logger.Debug("scratch area ready", "path", area.Path)
	g.checkFreeSpace(area.Path, logger)

	g.state = StateFetching
	files := make([]string, len(records))
	for i, rec := range records {
		filename, err := g.delegate.Fetch(ctx, area.Path, rec.Specifier)
		if err != nil {
			g.state = StateAborted
			return failureCode(err, logger)
		}
		files[i] = filename
		logger.Info("fetched", "package", rec.Name, "file", filename)
	}

	g.state = StateVerifying
	computed, versions, err := g.digestArchives(area.Path, records, files)
	if err != nil {
		logger.Error("verifying downloads", "error", err)
		g.state = StateAborted
		return ExitBlocked
	}

	names := make([]string, len(records))
	expected := make(map[string]string, len(records))
	computedByName := make(map[string]string, len(records))
	versionsByName := make(map[string]string, len(records))
	for i, rec := range records {
		names[i] = rec.Name
		if rec.Pinned() {
			expected[rec.Name] = rec.ExpectedHash
		}
		computedByName[rec.Name] = computed[i]
		versionsByName[rec.Name] = versions[i]
	}

	results := trust.Evaluate(names, expected, computedByName)
	if flagged(results) {
		g.state = StateAborted
		writeReport(g.stdout, results, versionsByName)
		return ExitBlocked
	}

	g.state = StateInstalling
	entries, err := os.ReadDir(area.Path)
	if err != nil {
		logger.Error("listing scratch area", "error", err)
		g.state = StateAborted
		return ExitBlocked
	}
	for _, entry := range entries {
		if err := g.delegate.InstallArchive(ctx, filepath.Join(area.Path, entry.Name())); err != nil {
			g.state = StateAborted
			return failureCode(err, logger)
		}
	}

	g.state = StateDone
	logger.Info("batch installed", "packages", len(records))
	return ExitOK
}

type denial struct {
	record requirements.Record
	rule   string
}

func (g *Gate) applyPolicy(records []requirements.Record, logger *slog.Logger) []denial {
	if g.policy == nil {
		return nil
	}
	var denied []denial
	for _, rec := range records {
		effect, rule := g.policy.Evaluate(rec)
		if effect == policy.Deny {
			logger.Warn("requirement denied by policy", "package", rec.Name, "rule", rule)
			denied = append(denied, denial{record: rec, rule: rule})
		}
	}
	return denied
}

func (g *Gate) checkFreeSpace(path string, logger *slog.Logger) {
	if g.minFreeMB <= 0 {
		return
	}
	free, err := scratch.FreeBytes(path)
	if err != nil {
		logger.Debug("free space probe failed", "error", err)
		return
	}
	if free > 0 && free < uint64(g.minFreeMB)*1024*1024 {
		logger.Warn("scratch filesystem is low on space",
			"free_bytes", free, "min_free_mb", g.minFreeMB)
	}
}

// digestArchives hashes the downloaded archives concurrently and infers
// their versions. Results line up with the records slice so verdict and
// report order stay in requirement order.
func (g *Gate) digestArchives(dir string, records []requirements.Record, files []string) ([]string, []string, error) {
	computed := make([]string, len(records))
	versions := make([]string, len(records))

	var bar *progressbar.ProgressBar
	if g.progress {
		// Stdout belongs to the report; the bar draws elsewhere.
		bar = progressbar.NewOptions(len(records),
			progressbar.OptionSetWriter(g.stderr),
			progressbar.OptionSetDescription("verifying"),
			progressbar.OptionSetWidth(40),
			progressbar.OptionShowCount(),
			progressbar.OptionThrottle(100*time.Millisecond),
		)
	}

	var eg errgroup.Group
	for i := range records {
		i := i // per-iteration copy; required while go.mod targets go < 1.22
		eg.Go(func() error {
			if bar != nil {
				bar.Describe(fmt.Sprintf("verifying %s", records[i].Name))
			}
			digest, err := trust.FileDigest(filepath.Join(dir, files[i]))
			if err != nil {
				return fmt.Errorf("hashing %s: %w", files[i], err)
			}
			version, err := archive.VersionFromFilename(files[i], records[i].Name)
			if err != nil {
				return err
			}
			computed[i] = digest
			versions[i] = version
			if bar != nil {
				_ = bar.Add(1)
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, nil, err
	}
	if bar != nil {
		_ = bar.Finish()
	}
	return computed, versions, nil
}

func flagged(results []trust.Result) bool {
	for _, r := range results {
		if r.Verdict != trust.Matched {
			return true
		}
	}
	return false
}

// failureCode maps a batch-fatal error to the process exit code. A
// delegate failure forwards the delegate's own code verbatim.
func failureCode(err error, logger *slog.Logger) int {
	var exitErr *pip.ExitError
	if errors.As(err, &exitErr) {
		logger.Error("delegate failed", "code", exitErr.Code)
		return exitErr.Code
	}
	var countErr *pip.DownloadCountError
	if errors.As(err, &countErr) && countErr.Output != "" {
		logger.Debug("delegate output", "output", countErr.Output)
	}
	logger.Error("batch failed", "error", err)
	return ExitBlocked
}
