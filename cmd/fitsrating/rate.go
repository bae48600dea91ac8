package main

import (
	"cmp"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"

	"github.com/spf13/cobra"

	"fitsrating/internal/pipeline"
	"fitsrating/pkg/photometry"
)

func newRateCmd(a *app) *cobra.Command {
	var (
		workers int
		pattern string
		sortBy  string
		asJSON  bool
	)

	cmd := &cobra.Command{
		Use:   "rate DIR|FILES...",
		Short: "Rate a batch of frames",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("workers") {
				a.cfg.Rate.Workers = workers
			}
			if cmd.Flags().Changed("pattern") {
				a.cfg.Rate.Pattern = pattern
			}
			if err := a.cfg.Finalize(); err != nil {
				return err
			}
			var measure photometry.Measurement
			if sortBy != "" {
				m, err := photometry.ParseMeasurement(sortBy)
				if err != nil {
					return err
				}
				measure = m
			}

			files, err := collectFrames(args, a.cfg.Pattern())
			if err != nil {
				return err
			}
			if len(files) == 0 {
				return fmt.Errorf("no FITS frames found")
			}
			a.log.Info("rating", "frames", len(files), "workers", a.cfg.Rate.Workers)

			r := &pipeline.Rater{Limits: a.cfg.FitsLimits(), Params: a.cfg.Photometry, Logger: a.log}
			results, err := pipeline.RateAll(cmd.Context(), files, a.cfg.Rate.Workers, r.Rate)
			if err != nil {
				return err
			}
			if sortBy != "" {
				sortResults(results, measure)
			}
			summary := pipeline.Summarize(results)

			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(struct {
					Frames  []pipeline.Result `json:"frames"`
					Summary pipeline.Summary  `json:"summary"`
				}{results, summary})
			}

			fmt.Printf("%-32s %6s %7s %7s %6s %8s %7s\n", "FILE", "STARS", "FWHM", "HFR", "ECC", "SNR", "NOISE")
			for _, res := range results {
				printResult(res)
			}
			fmt.Println()
			fmt.Printf("Frames: %d (%d failed)\n", summary.Frames, summary.Failed)
			fmt.Printf("  Stars: %s\n", summary.Stars)
			fmt.Printf("  FWHM:  %s\n", summary.FWHM)
			fmt.Printf("  HFR:   %s\n", summary.HFR)
			fmt.Printf("  SNR:   %s\n", summary.SNR)
			return nil
		},
	}

	cmd.Flags().IntVar(&workers, "workers", 0, "frames rated concurrently (0 = number of CPUs)")
	cmd.Flags().StringVar(&pattern, "pattern", "", "regular expression the file names must match")
	cmd.Flags().StringVar(&sortBy, "sort", "", "sort by a measurement, e.g. FWHMMedian")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func newWatchCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "watch DIR",
		Short: "Rate frames as they are written to a directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r := &pipeline.Rater{Limits: a.cfg.FitsLimits(), Params: a.cfg.Photometry, Logger: a.log}
			fmt.Printf("%-32s %6s %7s %7s %6s %8s %7s\n", "FILE", "STARS", "FWHM", "HFR", "ECC", "SNR", "NOISE")
			return pipeline.Watch(cmd.Context(), args[0], pipeline.WatchOptions{Pattern: a.cfg.Pattern(), Logger: a.log}, func(path string) {
				printResult(r.Rate(cmd.Context(), path))
			})
		},
	}
}

// collectFrames expands directories into their FITS files. Explicit files
// are kept as given.
func collectFrames(args []string, pattern *regexp.Regexp) ([]string, error) {
	var files []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			files = append(files, arg)
			continue
		}
		found, err := pipeline.ListFrames(arg, pattern)
		if err != nil {
			return nil, err
		}
		files = append(files, found...)
	}
	return files, nil
}

func sortResults(results []pipeline.Result, m photometry.Measurement) {
	value := func(r pipeline.Result) float64 {
		v, _ := r.Statistics.Value(m)
		return v
	}
	// Failed frames sort last.
	slices.SortStableFunc(results, func(x, y pipeline.Result) int {
		switch {
		case x.Err == nil && y.Err != nil:
			return -1
		case x.Err != nil && y.Err == nil:
			return 1
		}
		return cmp.Compare(value(x), value(y))
	})
}

func printResult(res pipeline.Result) {
	name := filepath.Base(res.Path)
	if res.Err != nil {
		fmt.Printf("%-32s error: %v\n", name, res.Err)
		return
	}
	s := res.Statistics
	fmt.Printf("%-32s %6d %7.3f %7.3f %6.3f %8.1f %7.2f\n",
		name, s.Stars, s.FWHM.Median, s.HFR.Median, s.Eccentricity.Median, s.SNR.Median, s.Noise)
}
