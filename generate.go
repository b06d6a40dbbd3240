package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"mediastudio/config"
	"mediastudio/generation"
	"mediastudio/providers"
	"mediastudio/store"
)

func newGenerateCommand(ctx *commandContext) *cobra.Command {
	var (
		req       generation.Request
		mediaType string
		imagePath string
	)
	cmd := &cobra.Command{
		Use:   "generate [prompt]",
		Short: "Generate images or a video and add them to the gallery",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 && req.Prompt == "" {
				req.Prompt = args[0]
			}
			req.Type = providers.MediaType(strings.ToLower(mediaType))
			if imagePath != "" {
				data, err := os.ReadFile(imagePath)
				if err != nil {
					return fmt.Errorf("read reference image: %w", err)
				}
				req.Image = data
				req.ImageName = filepath.Base(imagePath)
			}
			return ctx.withService(func(_ *config.Config, _ *store.Store, svc *generation.Service) error {
				return runGenerate(cmd.Context(), cmd.OutOrStdout(), svc, req)
			})
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&mediaType, "type", "t", "image", "Media type: image or video")
	flags.StringVarP(&req.Prompt, "prompt", "p", "", "Prompt text")
	flags.StringVar(&req.NegativePrompt, "negative-prompt", "", "What to avoid (Stability only)")
	flags.StringVar(&req.Provider, "provider", "", "Provider to use (default: first configured by priority)")
	flags.StringVarP(&req.Model, "model", "m", "", "Provider model")
	flags.IntVar(&req.Width, "width", 0, "Requested width")
	flags.IntVar(&req.Height, "height", 0, "Requested height")
	flags.StringVar(&req.AspectRatio, "aspect-ratio", "", "Aspect ratio such as 16:9")
	flags.Int64Var(&req.Seed, "seed", 0, "Seed; batches use seed, seed+1, ...")
	flags.IntVar(&req.Duration, "duration", 0, "Video length in seconds")
	flags.IntVarP(&req.Count, "count", "n", 1, "Number of images to generate in sequence")
	flags.StringVarP(&imagePath, "image", "i", "", "Reference image file")
	return cmd
}

func runGenerate(ctx context.Context, out io.Writer, svc *generation.Service, req generation.Request) error {
	if ctx == nil {
		ctx = context.Background()
	}
	progress, finish := newProgressReporter(out)
	items, err := svc.Generate(ctx, req, progress)
	finish()

	for _, item := range items {
		location := item.URL
		if item.LocalPath != "" {
			location = filepath.Join(svc.MediaDir(), item.LocalPath)
		}
		fmt.Fprintf(out, "%s  %s/%s  %s\n", item.ID, item.Provider, item.Model, location)
	}
	if err != nil {
		zap.S().Debugf("Generation error: %v", err)
		return errors.New(generation.UserMessage(err))
	}
	return nil
}

// newProgressReporter draws a progress bar on terminals and prints stage
// changes otherwise.
func newProgressReporter(out io.Writer) (providers.ProgressFunc, func()) {
	if !isTerminal(out) {
		var last providers.Stage
		return func(p providers.Progress) {
			if p.Stage != last {
				last = p.Stage
				fmt.Fprintf(out, "%s %d%%\n", p.Stage, p.Percent)
			}
		}, func() {}
	}

	bar := progressbar.NewOptions(100,
		progressbar.OptionSetWriter(out),
		progressbar.OptionSetDescription("submitted"),
		progressbar.OptionSetWidth(30),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionClearOnFinish(),
	)
	report := func(p providers.Progress) {
		bar.Describe(string(p.Stage))
		_ = bar.Set(p.Percent)
	}
	return report, func() { _ = bar.Finish() }
}

func isTerminal(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
