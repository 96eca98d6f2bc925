package command

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	// DefaultEntryPoint is the file a plugin directory must contain.
	DefaultEntryPoint = "__init__.star"

	defaultMaxSteps    = uint64(10_000_000)
	defaultLoadTimeout = 10 * time.Second
	maxEntryPointBytes = 1 << 20
)

// LoadOptions controls plugin discovery.
type LoadOptions struct {
	EntryPoint     string
	FollowSymlinks bool
	// Reserved names are never loaded, whether they appear as a directory
	// name or as the exported symbol.
	Reserved []string
	// MaxSteps bounds Starlark execution at load time and per transform.
	// Zero selects the default.
	MaxSteps    uint64
	LoadTimeout time.Duration
	Parallelism int
}

func (o LoadOptions) withDefaults() LoadOptions {
	if o.EntryPoint == "" {
		o.EntryPoint = DefaultEntryPoint
	}
	if o.MaxSteps == 0 {
		o.MaxSteps = defaultMaxSteps
	}
	if o.LoadTimeout <= 0 {
		o.LoadTimeout = defaultLoadTimeout
	}
	if o.Parallelism <= 0 {
		o.Parallelism = min(runtime.NumCPU(), 8)
	}
	return o
}

// Diagnostic explains why a plugin directory was not loaded.
type Diagnostic struct {
	Dir    string `json:"dir"`
	Reason string `json:"reason"`
}

type candidate struct {
	name  string
	dir   string
	entry string
}

type compiled struct {
	entry  Entry
	symbol string
	err    error
}

// Load discovers plugins: every subdirectory of dir holding the entry point
// file is compiled, and the first name its __all__ exports becomes a unit
// named after the directory. Entry points compile in parallel; the result
// is in directory order. Plugins that fail to compile, export nothing
// usable or collide with a reserved name are reported as diagnostics.
func Load(ctx context.Context, dir string, opts LoadOptions) ([]Entry, []Diagnostic, error) {
	opts = opts.withDefaults()
	candidates, err := discover(dir, opts)
	if err != nil {
		return nil, nil, err
	}

	results := make([]compiled, len(candidates))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Parallelism)
	for i, c := range candidates {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				results[i].err = err
				return nil
			}
			e, symbol, err := compilePlugin(gctx, c, opts)
			results[i] = compiled{entry: e, symbol: symbol, err: err}
			return nil
		})
	}
	_ = g.Wait()

	var (
		entries []Entry
		diags   []Diagnostic
	)
	for i, c := range candidates {
		res := results[i]
		switch {
		case res.err != nil:
			diags = append(diags, Diagnostic{Dir: c.dir, Reason: res.err.Error()})
		case slices.Contains(opts.Reserved, c.name):
			diags = append(diags, Diagnostic{Dir: c.dir, Reason: fmt.Sprintf("directory name %q is reserved", c.name)})
		case slices.Contains(opts.Reserved, res.symbol):
			diags = append(diags, Diagnostic{Dir: c.dir, Reason: fmt.Sprintf("exported name %q is reserved", res.symbol)})
		default:
			entries = append(entries, res.entry)
		}
	}
	return entries, diags, ctx.Err()
}

// discover lists plugin directories in name order.
func discover(dir string, opts LoadOptions) ([]candidate, error) {
	des, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read plugin directory: %w", err)
	}
	var out []candidate
	for _, de := range des {
		path := filepath.Join(dir, de.Name())
		if de.Type()&fs.ModeSymlink != 0 {
			if !opts.FollowSymlinks {
				continue
			}
			info, err := os.Stat(path)
			if err != nil || !info.IsDir() {
				continue
			}
		} else if !de.IsDir() {
			continue
		}
		entry := filepath.Join(path, opts.EntryPoint)
		if _, err := os.Stat(entry); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("stat plugin entry point: %w", err)
		}
		out = append(out, candidate{name: de.Name(), dir: path, entry: entry})
	}
	return out, nil
}
