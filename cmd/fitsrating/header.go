package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"fitsrating/internal/pipeline"
)

func newHeaderCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "header FILE",
		Short: "Print the header records and decode geometry of a frame",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := pipeline.Open(args[0], a.cfg.FitsLimits())
			if err != nil {
				return err
			}
			defer f.Close()

			for _, r := range f.Records() {
				switch {
				case r.Value == "" && r.Comment == "":
					fmt.Printf("%-8s\n", r.Keyword)
				case r.Value == "":
					fmt.Printf("%-8s %s\n", r.Keyword, r.Comment)
				case r.Comment == "":
					fmt.Printf("%-8s = %s\n", r.Keyword, r.Value)
				default:
					fmt.Printf("%-8s = %s / %s\n", r.Keyword, r.Value, r.Comment)
				}
			}

			h := f.Handle()
			attrs := h.Attributes
			fmt.Println()
			fmt.Println("=== Frame ===")
			fmt.Printf("  Input:        %d x %d x %d (%s, %s)\n", h.InDim.Width, h.InDim.Height, h.InDim.Channels, h.DataType, h.Compression)
			fmt.Printf("  Output:       %d x %d x %d (stride %d, debayer %t)\n", h.OutDim.Width, h.OutDim.Height, h.OutDim.Channels, h.Geometry.Stride, h.Debayer)
			fmt.Printf("  Filter:       %s (%s)\n", attrs.Filter, attrs.FilterType)
			fmt.Printf("  Exposure:     %.2fs\n", attrs.Exposure)
			if !attrs.Date.IsZero() {
				fmt.Printf("  Date:         %s\n", attrs.Date)
			}
			if attrs.BayerPattern != "" {
				fmt.Printf("  Bayer:        %s (offset %d,%d)\n", attrs.BayerPattern, attrs.BayerOffsetX, attrs.BayerOffsetY)
			}
			return nil
		},
	}
}
