package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/astrogo/fitsio"
	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fitsrating/pkg/fits"
	"fitsrating/pkg/photometry"
	"fitsrating/pkg/stretch"
)

const frameSize = 192

// starField renders Gaussian stars on a noisy background as a float32 FITS
// file.
func starField(t *testing.T, filter string) []byte {
	t.Helper()
	rng := rand.New(rand.NewPCG(7, 8))
	data := make([]float32, frameSize*frameSize)
	centers := [][2]float64{{40, 40}, {96, 96}, {150, 50}, {50, 150}, {150, 150}}
	for y := 0; y < frameSize; y++ {
		for x := 0; x < frameSize; x++ {
			v := 1000 + 10*rng.NormFloat64()
			for _, c := range centers {
				dx, dy := float64(x)-c[0], float64(y)-c[1]
				v += 4000 * math.Exp(-(dx*dx+dy*dy)/8)
			}
			data[y*frameSize+x] = float32(v)
		}
	}

	var buf bytes.Buffer
	f, err := fitsio.Create(&buf)
	require.NoError(t, err)
	img := fitsio.NewImage(-32, []int{frameSize, frameSize})
	require.NoError(t, img.Header().Append(
		fitsio.Card{Name: "FILTER", Value: filter},
		fitsio.Card{Name: "EXPTIME", Value: 120.0},
	))
	require.NoError(t, img.Write(data))
	require.NoError(t, f.Write(img))
	require.NoError(t, f.Close())
	return buf.Bytes()
}

func writeFrame(t *testing.T, dir, name, filter string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, starField(t, filter), 0o644))
	return path
}

func TestIsFITS(t *testing.T) {
	for name, want := range map[string]bool{
		"a.fits":     true,
		"b.FIT":      true,
		"c.fts":      true,
		"d.fits.gz":  true,
		"e.fit.zst":  true,
		"f.png":      false,
		"g.gz":       false,
		"fits":       false,
		"h.fits.bak": false,
	} {
		assert.Equal(t, want, IsFITS(name), name)
	}
}

func TestListFrames(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"Light_002.fits", "Light_001.fit", "Dark_001.fits", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0o644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.fits"), 0o755))

	files, err := ListFrames(dir, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "Dark_001.fits"),
		filepath.Join(dir, "Light_001.fit"),
		filepath.Join(dir, "Light_002.fits"),
	}, files)

	files, err = ListFrames(dir, regexp.MustCompile(`^Light_`))
	require.NoError(t, err)
	assert.Len(t, files, 2)

	_, err = ListFrames(filepath.Join(dir, "missing"), nil)
	assert.Error(t, err)
}

func TestFrame(t *testing.T) {
	path := writeFrame(t, t.TempDir(), "frame.fits", "Red")
	f, err := Open(path, fits.DefaultLimits())
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, fits.FilterR, f.Handle().Attributes.FilterType)
	assert.NotEmpty(t, f.Records())

	img, err := f.Decode()
	require.NoError(t, err)
	again, err := f.Decode()
	require.NoError(t, err)
	assert.Same(t, img, again)
	linear := img.Clone()

	params, err := f.Stretch()
	require.NoError(t, err)
	p, err := f.Preview(PreviewOptions{Stretch: &params})
	require.NoError(t, err)
	assert.Equal(t, frameSize, p.Width)
	assert.Len(t, p.BGRA, 4*frameSize*frameSize)
	assert.Equal(t, params, p.Stretch)
	var total uint32
	for _, n := range p.Histograms[0] {
		total += n
	}
	assert.Equal(t, uint32(frameSize*frameSize), total)
	assert.Equal(t, linear.Pix, img.Pix, "preview must not stretch the cached image")

	p, err = f.Preview(PreviewOptions{Linear: true})
	require.NoError(t, err)
	assert.Equal(t, stretch.IdentityFor(img), p.Stretch)

	cat, err := f.Photometry(context.Background(), photometry.NewEngine(photometry.DefaultParameters(), photometry.Options{}))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, cat.Statistics.Stars, 4)
}

func TestOpenMissing(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing.fits"), fits.DefaultLimits())
	assert.ErrorIs(t, err, fits.ErrInvalidInput)
}

func TestRateAll(t *testing.T) {
	dir := t.TempDir()
	files := []string{
		writeFrame(t, dir, "a.fits", "L"),
		filepath.Join(dir, "missing.fits"),
		writeFrame(t, dir, "b.fits", "L"),
	}
	r := &Rater{Limits: fits.DefaultLimits(), Params: photometry.DefaultParameters()}

	results, err := RateAll(context.Background(), files, 2, r.Rate)
	require.NoError(t, err)
	require.Len(t, results, 3)
	for i, res := range results {
		assert.Equal(t, files[i], res.Path)
	}
	assert.NoError(t, results[0].Err)
	assert.Error(t, results[1].Err)
	assert.NoError(t, results[2].Err)
	assert.Equal(t, "l", results[0].Filter)
	assert.Equal(t, 120.0, results[0].Exposure)
	assert.Equal(t, frameSize, results[0].Width)
	assert.GreaterOrEqual(t, results[0].Statistics.Stars, 4)
	assert.NotNil(t, results[0].Field)

	s := Summarize(results)
	assert.Equal(t, 3, s.Frames)
	assert.Equal(t, 1, s.Failed)
	assert.InDelta(t, results[0].Statistics.FWHM.Median, s.FWHM.P50, 0.01)
	assert.LessOrEqual(t, s.HFR.Min, s.HFR.Max)
}

func TestRateAllCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0
	_, err := RateAll(ctx, []string{"a", "b"}, 1, func(context.Context, string) Result {
		calls++
		return Result{}
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, calls)
}

func TestSummarizeEmpty(t *testing.T) {
	s := Summarize(nil)
	assert.Zero(t, s.Frames)
	assert.Equal(t, Distribution{}, s.FWHM)
}

func TestDistribution(t *testing.T) {
	d := distribution([]float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10})
	assert.InDelta(t, 1, d.Min, 0.01)
	assert.InDelta(t, 10, d.Max, 0.01)
	assert.InDelta(t, 5, d.P50, 0.01)
	assert.InDelta(t, 5.5, d.Mean, 0.01)
}

func TestWatch(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	seen := make(chan string, 4)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, dir, WatchOptions{Settle: 50 * time.Millisecond}, func(path string) {
			seen <- path
		})
	}()
	// Give the watcher time to register.
	time.Sleep(100 * time.Millisecond)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))
	path := writeFrame(t, dir, "new.fits", "G")

	select {
	case got := <-seen:
		assert.Equal(t, path, got)
	case <-ctx.Done():
		t.Fatal("watch did not report the new frame")
	}

	cancel()
	assert.NoError(t, <-done)
	assert.Empty(t, seen)
}

func TestWatchEventsClosed(t *testing.T) {
	events := make(chan fsnotify.Event, 32)
	for i := 0; i < 20; i++ {
		events <- fsnotify.Event{Name: fmt.Sprintf("/frames/f%02d.fits", i), Op: fsnotify.Create}
	}
	close(events)

	done := make(chan error, 1)
	go func() {
		done <- watchEvents(context.Background(), events, make(chan error), time.Millisecond,
			nil, slog.New(slog.DiscardHandler), func(string) {})
	}()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watch loop did not return after its events closed")
	}
}

func TestSettlerAfterLoopReturn(t *testing.T) {
	s := newSettler()
	for len(s.ready) < cap(s.ready) {
		s.ready <- "queued.fits"
	}
	close(s.done)

	returned := make(chan struct{})
	go func() {
		s.fire("late.fits")
		close(returned)
	}()
	select {
	case <-returned:
	case <-time.After(5 * time.Second):
		t.Fatal("settle timer blocked after the loop returned")
	}
}
