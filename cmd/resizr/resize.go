package main

import (
	"fmt"
	"os"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/resizr/resizr/internal/errutil"
	"github.com/resizr/resizr/internal/fetch"
	"github.com/resizr/resizr/internal/imageproc"
	"github.com/resizr/resizr/internal/resizer"
	"github.com/resizr/resizr/internal/store"
)

var resizeCmd = &cobra.Command{
	Use:   "resize <url>",
	Short: "Resize a single image from the command line",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		url := args[0]
		width, err := cmd.Flags().GetInt("width")
		if err != nil || width < 1 {
			errutil.LogMsg(err, "Failed to read --width")
			fmt.Fprintln(os.Stderr, "a positive --width is required")
			os.Exit(1)
		}
		height, _ := cmd.Flags().GetInt("height")
		formatStr, _ := cmd.Flags().GetString("format")
		output, _ := cmd.Flags().GetString("output")
		cacheDir, _ := cmd.Flags().GetString("cache-dir")

		var format imageproc.Format
		if formatStr != "" {
			format, err = imageproc.ParseRequested(formatStr)
			if err != nil {
				errutil.ReportError(err, "Invalid --format")
				os.Exit(1)
			}
		}

		bar := progressbar.NewOptions64(
			-1,
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionSetDescription("downloading"),
			progressbar.OptionShowBytes(true),
			progressbar.OptionSetWidth(10),
			progressbar.OptionThrottle(65*time.Millisecond),
			progressbar.OptionOnCompletion(func() {
				if _, err := fmt.Fprint(os.Stderr, "\n"); err != nil {
					errutil.LogMsg(err, "Failed to print newline to stderr")
				}
			}),
		)

		fetcher := fetch.NewFetcher(nil, 0)
		fetcher.Progress = bar

		rz := resizer.New(resizer.Config{
			Store:    store.New(cacheDir, nil),
			Fetcher:  fetcher,
			Pipeline: imageproc.Pipeline{Policy: imageproc.DefaultPolicy()},
			Policy:   imageproc.DefaultPolicy(),
		})

		res, err := rz.Resize(cmd.Context(), resizer.Request{
			URL:    url,
			Width:  width,
			Height: height,
			Format: format,
		})
		if err != nil {
			errutil.ReportError(err, "Resize failed")
			os.Exit(1)
		}

		out := os.Stdout
		if output != "" {
			file, err := os.Create(output)
			if err != nil {
				errutil.ReportError(err, "Failed to create output file")
				os.Exit(1)
			}
			defer func() {
				errutil.LogMsg(file.Close(), "Failed to close output file")
			}()
			out = file
		}
		if _, err := out.Write(res.Data); err != nil {
			errutil.ReportError(err, "Failed to write output")
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(resizeCmd)
	resizeCmd.Flags().IntP("width", "w", 0, "Target width in pixels")
	resizeCmd.Flags().IntP("height", "H", 0, "Target height in pixels (default: keep aspect ratio)")
	resizeCmd.Flags().StringP("format", "f", "", "Output format (jpg, png, webp, avif; default: source format)")
	resizeCmd.Flags().StringP("output", "o", "", "Output file (default: stdout)")
	resizeCmd.Flags().String("cache-dir", "./images", "Directory for cached originals and variants")
}
