package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"fitsrating/internal/pipeline"
	"fitsrating/pkg/photometry"
)

type analysis struct {
	File       string                    `json:"file"`
	Width      int                       `json:"width"`
	Height     int                       `json:"height"`
	Statistics photometry.Statistics     `json:"statistics"`
	Field      *photometry.FieldAnalysis `json:"field,omitempty"`
	Stars      []photometry.Object       `json:"stars,omitempty"`
}

func newAnalyzeCmd(a *app) *cobra.Command {
	var (
		noPSF    bool
		asJSON   bool
		withList bool
	)

	cmd := &cobra.Command{
		Use:   "analyze FILE",
		Short: "Measure the stars of a frame",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			params := a.cfg.Photometry
			if noPSF {
				params.PSFFit = false
			}

			f, err := pipeline.Open(args[0], a.cfg.FitsLimits())
			if err != nil {
				return err
			}
			defer f.Close()

			start := time.Now()
			engine := photometry.NewEngine(params, photometry.Options{
				Logger: a.log,
				Progress: func(p photometry.Progress) {
					if p.Phase != photometry.PhaseObject {
						a.log.Debug("progress", "phase", p.Phase, "objects", p.Objects, "stars", p.Stars)
					}
				},
			})
			cat, err := f.Photometry(cmd.Context(), engine)
			if err != nil {
				return err
			}
			img, _ := f.Decode()

			res := analysis{
				File:       args[0],
				Width:      img.Width,
				Height:     img.Height,
				Statistics: cat.Statistics,
				Field:      photometry.AnalyzeField(cat.All(), img.Width, img.Height),
			}
			if asJSON {
				if withList {
					res.Stars = cat.All()
				}
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(res)
			}
			printAnalysis(res, time.Since(start), params.PSFFit)
			if withList {
				for _, o := range cat.All() {
					fmt.Println("  " + o.String())
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&noPSF, "no-psf", false, "skip the Moffat fit and use moment widths")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	cmd.Flags().BoolVar(&withList, "stars", false, "include every measured star")
	return cmd
}

func printAnalysis(res analysis, elapsed time.Duration, fitted bool) {
	s := res.Statistics
	fmt.Printf("=== Star Measurement Results (%.1fs) ===\n", elapsed.Seconds())
	fmt.Printf("  Image size:      %d x %d\n", res.Width, res.Height)
	fmt.Printf("  Stars:           %d\n", s.Stars)
	fmt.Printf("  Background:      %.2f (MAD %.2f)\n", s.Median, s.MedianMAD)
	fmt.Printf("  Noise:           %.3f (%.1f%% kept)\n", s.Noise, 100*s.NoiseRatio)
	fmt.Printf("  SNR weight:      %.3f\n", s.SNRWeight())
	if s.Stars > 0 {
		fmt.Printf("  HFR (median):    %.3f +/- %.3f px\n", s.HFR.Median, s.HFR.MAD)
		fmt.Printf("  HFD (median):    %.3f px\n", s.HFD().Median)
		fmt.Printf("  FWHM (median):   %.3f +/- %.3f px\n", s.FWHM.Median, s.FWHM.MAD)
		fmt.Printf("  Eccentricity:    %.3f +/- %.3f\n", s.Eccentricity.Median, s.Eccentricity.MAD)
		fmt.Printf("  SNR (median):    %.1f\n", s.SNR.Median)
		if fitted {
			fmt.Printf("  Fit residual:    %.4f\n", s.Residual.Median)
		}
	}
	fmt.Println("==============================")

	field := res.Field
	if field == nil {
		return
	}
	fmt.Println()
	fmt.Println("=== Field Analysis (3x3) ===")
	for pos := photometry.ZoneTopLeft; pos <= photometry.ZoneBottomRight; pos++ {
		z := field.Zones[pos]
		fmt.Printf("  %-8s HFR=%.3f  FWHM=%.3f  n=%d\n", z.Label, z.MedianHFR, z.MedianFWHM, z.Stars)
		if pos%3 == 2 && pos != photometry.ZoneBottomRight {
			fmt.Println("  ---")
		}
	}
	fmt.Printf("\n  Tilt:     %.1f%% (best: %s, worst: %s)\n", field.TiltPct, field.BestCorner, field.WorstCorner)
	fmt.Printf("  Off-axis: %.1f%%\n", field.OffAxisPct)
	if !field.Reliable {
		fmt.Println("  [LOW STAR COUNT - UNRELIABLE]")
	}
	fmt.Println("==============================")
}
