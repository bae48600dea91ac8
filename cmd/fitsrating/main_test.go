package main

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fitsrating/internal/pipeline"
	"fitsrating/pkg/photometry"
)

func TestParseSize(t *testing.T) {
	w, h, err := parseSize("")
	require.NoError(t, err)
	assert.Zero(t, w)
	assert.Zero(t, h)

	w, h, err = parseSize("640X480")
	require.NoError(t, err)
	assert.Equal(t, 640, w)
	assert.Equal(t, 480, h)

	for _, bad := range []string{"640", "x480", "640x", "0x10", "-1x10", "axb"} {
		_, _, err := parseSize(bad)
		assert.Error(t, err, bad)
	}
}

func TestCollectFrames(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.fits", "a.fit", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0o644))
	}
	extra := filepath.Join(t.TempDir(), "single.fts")
	require.NoError(t, os.WriteFile(extra, nil, 0o644))

	files, err := collectFrames([]string{dir, extra}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "a.fit"), filepath.Join(dir, "b.fits"), extra}, files)

	_, err = collectFrames([]string{filepath.Join(dir, "missing")}, nil)
	assert.Error(t, err)
}

func TestSortResults(t *testing.T) {
	results := []pipeline.Result{
		{Path: "bad", Err: errors.New("boom")},
		{Path: "soft", Statistics: photometry.Statistics{FWHM: photometry.MetricStats{Median: 4}}},
		{Path: "sharp", Statistics: photometry.Statistics{FWHM: photometry.MetricStats{Median: 2}}},
	}
	sortResults(results, photometry.FWHMMedian)

	var order []string
	for _, r := range results {
		order = append(order, r.Path)
	}
	assert.Equal(t, []string{"sharp", "soft", "bad"}, order)
}

func TestRootCommandSetup(t *testing.T) {
	root := newRootCmd()
	root.SetArgs([]string{"--log-level", "debug", "--max-width", "512", "header", filepath.Join(t.TempDir(), "missing.fits")})
	err := root.Execute()
	assert.Error(t, err)

	sub, _, err := root.Find([]string{"rate"})
	require.NoError(t, err)
	assert.Equal(t, "rate", sub.Name())
}
