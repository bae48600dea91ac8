package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"fitsrating/pkg/fits"
	"fitsrating/pkg/photometry"
)

var fitsExtensions = []string{".fit", ".fits", ".fts"}

// IsFITS reports whether name has a FITS extension, optionally followed by
// .gz or .zst.
func IsFITS(name string) bool {
	lower := strings.ToLower(name)
	for _, ext := range []string{".gz", ".zst"} {
		lower = strings.TrimSuffix(lower, ext)
	}
	return slices.Contains(fitsExtensions, filepath.Ext(lower))
}

// ListFrames returns the FITS files directly inside dir, sorted by name. A
// non-nil pattern must match the base name.
func ListFrames(dir string, pattern *regexp.Regexp) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}
	return lo.FilterMap(entries, func(e os.DirEntry, _ int) (string, bool) {
		ok := !e.IsDir() && IsFITS(e.Name()) && (pattern == nil || pattern.MatchString(e.Name()))
		return filepath.Join(dir, e.Name()), ok
	}), nil
}

// Result is the rating of one frame. Err is set when the frame could not be
// rated; the other fields are then zero.
type Result struct {
	Path       string                    `json:"path"`
	Filter     string                    `json:"filter,omitempty"`
	Exposure   float64                   `json:"exposure,omitempty"`
	Width      int                       `json:"width"`
	Height     int                       `json:"height"`
	Statistics photometry.Statistics     `json:"statistics"`
	Field      *photometry.FieldAnalysis `json:"field,omitempty"`
	Elapsed    time.Duration             `json:"elapsed"`
	Err        error                     `json:"-"`
	Error      string                    `json:"error,omitempty"`
}

// RateFunc rates a single file.
type RateFunc func(ctx context.Context, path string) Result

// Rater opens, decodes and measures frames.
type Rater struct {
	Limits fits.Limits
	Params photometry.Parameters
	Logger *slog.Logger
}

// Rate measures the frame at path. Failures are reported in the result.
func (r *Rater) Rate(ctx context.Context, path string) Result {
	start := time.Now()
	res := Result{Path: path}
	log := r.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	f, err := Open(path, r.Limits)
	if err != nil {
		res.Err = err
		return res
	}
	defer f.Close()

	attrs := f.Handle().Attributes
	res.Filter, res.Exposure = attrs.Filter, attrs.Exposure
	engine := photometry.NewEngine(r.Params, photometry.Options{Logger: log.With("file", filepath.Base(path))})
	cat, err := f.Photometry(ctx, engine)
	if err != nil {
		res.Err = err
		return res
	}
	img, _ := f.Decode()
	res.Width, res.Height = img.Width, img.Height
	res.Statistics = cat.Statistics
	res.Field = photometry.AnalyzeField(cat.All(), img.Width, img.Height)
	res.Elapsed = time.Since(start)
	log.Debug("rated", "file", path, "stars", cat.Statistics.Stars, "elapsed", res.Elapsed)
	return res
}

// RateAll rates files with at most workers concurrent frames. Results keep
// the order of files. Per-file failures are recorded in the results; only
// cancellation of ctx is returned as an error.
func RateAll(ctx context.Context, files []string, workers int, fn RateFunc) ([]Result, error) {
	results := make([]Result, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(workers, 1))
	for i, path := range files {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res := fn(gctx, path)
			if res.Err != nil {
				res.Error = res.Err.Error()
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}
	if err := ctx.Err(); err != nil {
		return results, err
	}
	return results, nil
}
