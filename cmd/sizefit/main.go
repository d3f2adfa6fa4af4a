// Command sizefit resizes an image file until it fits a byte budget.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/harliandi/sizefit/internal/codec"
	"github.com/harliandi/sizefit/internal/converter"
	"github.com/harliandi/sizefit/internal/logging"
	"github.com/harliandi/sizefit/internal/render"
	"github.com/harliandi/sizefit/pkg/search"
)

var (
	// Version is set via ldflags during build
	Version = "dev"
)

type options struct {
	input       string
	output      string
	targetKB    int
	toleranceKB int
	format      string
	mode        string
	width       int
	height      int
	quality     float64
	kernel      string
	logLevel    string
	quiet       bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:   "sizefit -i INPUT [-o OUTPUT]",
		Short: "Resize an image to fit a file size",
		Long: `sizefit searches for the largest scale and highest quality at which
an image encodes to no more than the target size.

Example:
  sizefit -i photo.heic -o photo.jpg --target 300
  sizefit -i scan.png --format webp --target 80 --mode fit --width 1600`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			err := run(ctx, opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
			if err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "sizefit: %v\n", err)
			}
			return err
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.input, "input", "i", "", "Path to the source image")
	flags.StringVarP(&opts.output, "output", "o", "", "Output path (default: INPUT-sized.EXT)")
	flags.IntVarP(&opts.targetKB, "target", "t", 500, "Target size in KB")
	flags.IntVar(&opts.toleranceKB, "tolerance", 10, "Accepted deviation from the target in KB, either side")
	flags.StringVarP(&opts.format, "format", "f", "", "Output format: jpeg, png, webp, avif (default: from output extension, else jpeg)")
	flags.StringVar(&opts.mode, "mode", "", "Layout mode: fit, crop, letterbox, stretch")
	flags.IntVar(&opts.width, "width", 0, "Layout box width in pixels")
	flags.IntVar(&opts.height, "height", 0, "Layout box height in pixels")
	flags.Float64VarP(&opts.quality, "quality", "q", 0, "Fixed quality in (0,1]; searches scale only")
	flags.StringVar(&opts.kernel, "kernel", render.KernelCatmullRom, "Resampling kernel: catmullrom, bilinear, nearest")
	flags.StringVar(&opts.logLevel, "log-level", "warn", "Log level: debug, info, warn, error")
	flags.BoolVar(&opts.quiet, "quiet", false, "Hide the progress spinner")
	cmd.MarkFlagRequired("input")

	return cmd
}

// outputFormat picks the format from --format, then the output extension.
func outputFormat(opts *options) (codec.Format, error) {
	if opts.format != "" {
		return codec.ParseFormat(opts.format)
	}
	if opts.output != "" {
		if f, err := codec.ParseFormat(filepath.Ext(opts.output)); err == nil {
			return f, nil
		}
	}
	return codec.JPEG, nil
}

func outputPath(input string, f codec.Format) string {
	base := strings.TrimSuffix(input, filepath.Ext(input))
	return base + "-sized" + f.Ext()
}

func run(ctx context.Context, opts *options, stdout, stderr io.Writer) error {
	if opts.targetKB <= 0 {
		return fmt.Errorf("--target must be positive, got %d", opts.targetKB)
	}
	if opts.quality < 0 || opts.quality > 1 {
		return fmt.Errorf("--quality must be in (0,1], got %g", opts.quality)
	}

	format, err := outputFormat(opts)
	if err != nil {
		return err
	}
	mode, err := render.ParseMode(opts.mode)
	if err != nil {
		return err
	}
	kernel, err := render.ParseKernel(opts.kernel)
	if err != nil {
		return err
	}

	logger, err := logging.New(logging.Options{Level: opts.logLevel, Console: true})
	if err != nil {
		return err
	}
	defer logger.Sync()

	data, err := os.ReadFile(opts.input)
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}

	convOpts := converter.DefaultOptions()
	convOpts.Format = format
	convOpts.Kernel = kernel
	convOpts.Logger = logger
	conv := converter.New(convOpts)

	req := converter.Request{
		TargetBytes:    opts.targetKB * 1024,
		ToleranceBytes: opts.toleranceKB * 1024,
		Layout:         render.Layout{Mode: mode, Width: opts.width, Height: opts.height},
		Quality:        opts.quality,
	}

	var bar *progressbar.ProgressBar
	if !opts.quiet {
		bar = newSpinner(stderr)
		req.Observer = func(e search.Event) {
			bar.Describe(fmt.Sprintf("[cyan]%s[reset] scale %.3f quality %.2f %dKB", e.Phase, e.Scale, e.Quality, e.Size/1024))
			bar.Add(1)
		}
	}

	out, err := conv.Resize(ctx, data, req)
	if bar != nil {
		bar.Finish()
		fmt.Fprintln(stderr)
	}
	if err != nil {
		return err
	}

	path := opts.output
	if path == "" {
		path = outputPath(opts.input, out.Format)
	}
	if err := os.WriteFile(path, out.Data, 0o644); err != nil {
		return fmt.Errorf("write output: %w", err)
	}

	if out.FellBack {
		logger.Warn("requested format unavailable", zap.Stringer("requested", format), zap.Stringer("written", out.Format))
	}
	fmt.Fprintf(stdout, "%s -> %s: %s\n", opts.input, path, out)
	return nil
}

func newSpinner(w io.Writer) *progressbar.ProgressBar {
	return progressbar.NewOptions(-1,
		progressbar.OptionSetWriter(w),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("probes"),
		progressbar.OptionSetDescription("[cyan]Searching[reset]"),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionClearOnFinish(),
	)
}
