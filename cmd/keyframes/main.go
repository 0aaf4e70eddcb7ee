// Command keyframes scans one video for keyframes and prints their indices.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/enph353/labeller/internal/config"
	"github.com/enph353/labeller/internal/frames"
	"github.com/enph353/labeller/internal/keyframe"
	"github.com/enph353/labeller/internal/logging"
	"github.com/enph353/labeller/internal/store"
)

func main() {
	threshold := flag.Float64("threshold", config.DefaultThreshold, "similarity at or below which a frame becomes a keyframe")
	showLabels := flag.Bool("labels", false, "also print the existing label file for the video")
	suffix := flag.String("suffix", config.DefaultLabelSuffix, "label file suffix")
	logLevel := flag.String("log-level", "warn", "log level (debug, info, warn, error)")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: keyframes [-threshold 0.95] [-labels] video.avi")
		os.Exit(2)
	}

	if err := run(flag.Arg(0), *threshold, *showLabels, *suffix, *logLevel); err != nil {
		log.Fatalf("keyframes: %v", err)
	}
}

func run(video string, threshold float64, showLabels bool, suffix, logLevel string) error {
	logger := logging.NewLoggerTo(os.Stderr, logLevel, "text")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tools, err := frames.NewTools(frames.Config{
		FFmpegPath:  os.Getenv(config.EnvFFmpeg),
		FFprobePath: os.Getenv(config.EnvFFprobe),
		Logger:      logger,
	})
	if err != nil {
		return err
	}

	src, err := tools.Open(ctx, video)
	if err != nil {
		return err
	}
	defer src.Close()

	sel, err := keyframe.NewSelector(src,
		keyframe.WithThreshold(threshold),
		keyframe.WithLogger(logging.WithVideo(logger, video)),
	)
	if err != nil {
		return err
	}

	last := -1
	res, err := keyframe.Scan(ctx, sel, func(p keyframe.Progress) {
		if pct := p.Percent(); pct != last {
			last = pct
			fmt.Fprintf(os.Stderr, "\rscanning %3d%%  %d keyframes", pct, p.Keyframes)
		}
	})
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return err
	}

	switch {
	case res.Cancelled:
		fmt.Fprintf(os.Stderr, "cancelled after %d frames, keeping %d keyframes\n", res.Frames, len(res.Keyframes))
	case res.ReadErr != nil:
		fmt.Fprintf(os.Stderr, "stream ended early at frame %d: %v\n", res.Frames, res.ReadErr)
	}

	for _, index := range res.Keyframes {
		fmt.Println(index)
	}

	if !showLabels {
		return nil
	}

	doc, err := store.NewFileStore(suffix).Load(context.Background(), video)
	if err != nil {
		return err
	}
	if doc == nil {
		fmt.Fprintln(os.Stderr, "no label file")
		return nil
	}
	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
