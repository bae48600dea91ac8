package main

import (
	"fmt"
	"image"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"fitsrating/internal/pipeline"
	"fitsrating/pkg/photometry"
	"fitsrating/pkg/render"
)

func newPreviewCmd(a *app) *cobra.Command {
	var (
		output     string
		thumb      string
		outline    bool
		saturation float64
		overlay    bool
		linear     bool
		fieldOut   string
	)

	cmd := &cobra.Command{
		Use:   "preview FILE -o OUT.{png,jpg,bmp}",
		Short: "Render a stretched preview of a frame",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := render.FormatForPath(output)
			if err != nil {
				return err
			}
			maxW, maxH, err := parseSize(thumb)
			if err != nil {
				return err
			}

			opts := pipeline.PreviewOptions{Render: a.cfg.RenderOptions(), Linear: linear || !a.cfg.StretchEnabled()}
			if cmd.Flags().Changed("outline") {
				opts.Render.MonoColorOutline = outline
			}
			if cmd.Flags().Changed("saturation") {
				opts.Render.Saturation = saturation
			}

			f, err := pipeline.Open(args[0], a.cfg.FitsLimits())
			if err != nil {
				return err
			}
			defer f.Close()

			p, err := f.Preview(opts)
			if err != nil {
				return err
			}
			a.log.Debug("preview", "file", args[0], "width", p.Width, "height", p.Height, "stretch", p.Stretch)

			var img image.Image
			img, err = render.ToImage(p.BGRA, p.Width, p.Height)
			if err != nil {
				return err
			}

			if overlay || fieldOut != "" {
				engine := photometry.NewEngine(a.cfg.Photometry, photometry.Options{Logger: a.log})
				cat, err := f.Photometry(cmd.Context(), engine)
				if err != nil {
					return err
				}
				if overlay {
					img = render.RenderStarOverlay(img, cat.All(), 1)
				}
				if fieldOut != "" {
					if err := writeFieldOverlay(fieldOut, cat, p.Width, p.Height); err != nil {
						return err
					}
				}
			}
			img = render.Thumbnail(img, maxW, maxH)

			return writeImage(output, img, format)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "output image (.png, .jpg or .bmp)")
	cmd.Flags().StringVar(&thumb, "thumb", "", "scale the preview to fit WxH")
	cmd.Flags().BoolVar(&outline, "outline", false, "tint the border of mono frames by filter")
	cmd.Flags().Float64Var(&saturation, "saturation", 1, "saturation multiplier for color frames")
	cmd.Flags().BoolVar(&overlay, "overlay", false, "mark measured stars")
	cmd.Flags().BoolVar(&linear, "linear", false, "skip the auto stretch")
	cmd.Flags().StringVar(&fieldOut, "field", "", "also write the 3x3 field analysis panel to this image")
	_ = cmd.MarkFlagRequired("output")
	return cmd
}

func writeFieldOverlay(path string, cat *photometry.Catalog, width, height int) error {
	format, err := render.FormatForPath(path)
	if err != nil {
		return err
	}
	field := photometry.AnalyzeField(cat.All(), width, height)
	if field == nil {
		return fmt.Errorf("no stars for a field analysis")
	}
	panel, err := render.RenderFieldOverlay(field, width, height)
	if err != nil {
		return err
	}
	return writeImage(path, panel, format)
}

func writeImage(path string, img image.Image, format render.Format) error {
	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := render.Encode(out, img, format); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// parseSize parses "WxH". An empty string means no limit.
func parseSize(s string) (int, int, error) {
	if s == "" {
		return 0, 0, nil
	}
	ws, hs, ok := strings.Cut(strings.ToLower(s), "x")
	if !ok {
		return 0, 0, fmt.Errorf("invalid size %q, want WxH", s)
	}
	w, err := strconv.Atoi(ws)
	if err != nil || w <= 0 {
		return 0, 0, fmt.Errorf("invalid width in %q", s)
	}
	h, err := strconv.Atoi(hs)
	if err != nil || h <= 0 {
		return 0, 0, fmt.Errorf("invalid height in %q", s)
	}
	return w, h, nil
}
