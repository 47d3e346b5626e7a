// Command darkroom applies a YAML edit recipe to an image file.
//
//	darkroom -in photo.jpg -out edited.png -recipe edit.yaml
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"sort"

	"github.com/disintegration/imaging"

	"github.com/gogpu/darkroom"
)

func main() {
	var (
		in        = flag.String("in", "", "input image")
		out       = flag.String("out", "out.png", "output image")
		recipe    = flag.String("recipe", "", "YAML edit recipe")
		overlay   = flag.String("overlay", "", "write a clipping overlay PNG of the result")
		histogram = flag.Bool("histogram", true, "print a histogram summary of the result")
		verbose   = flag.Bool("v", false, "debug logging to stderr")
	)
	flag.Parse()

	if *in == "" {
		flag.Usage()
		os.Exit(2)
	}
	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	darkroom.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	if err := run(*in, *out, *recipe, *overlay, *histogram, os.Stdout); err != nil {
		log.Fatalf("darkroom: %v", err)
	}
}

func run(in, out, recipePath, overlayPath string, histogram bool, w io.Writer) error {
	r, err := LoadRecipe(recipePath)
	if err != nil {
		return err
	}
	ops, hint, err := r.Operations()
	if err != nil {
		return err
	}

	src, err := imaging.Open(in, imaging.AutoOrientation(true))
	if err != nil {
		return fmt.Errorf("open %s: %w", in, err)
	}

	var opts []darkroom.ServiceOption
	if hint == darkroom.HintCPU {
		opts = append(opts, darkroom.WithForceCPU())
	}
	svc := darkroom.NewService(opts...)
	defer svc.Teardown()
	p := darkroom.NewPipeline(svc)

	res, err := p.Process(darkroom.FromImage(src), ops, hint)
	if err != nil {
		return err
	}
	if err := imaging.Save(res.Image.ToNRGBA(), out); err != nil {
		return fmt.Errorf("save %s: %w", out, err)
	}
	fmt.Fprintf(w, "%s: %dx%d on %s\n", out, res.Image.Width, res.Image.Height, res.Backend)
	printTiming(w, res.Timing)

	if overlayPath != "" {
		ov, err := darkroom.ClippingOverlay(res.Image)
		if err != nil {
			return err
		}
		if err := imaging.Save(ov, overlayPath); err != nil {
			return fmt.Errorf("save %s: %w", overlayPath, err)
		}
	}
	if histogram {
		h, err := p.ComputeHistogram(res.Image)
		if err != nil {
			return err
		}
		printHistogram(w, h)
	}
	return nil
}

func printTiming(w io.Writer, timing map[darkroom.Stage]float64) {
	stages := make([]string, 0, len(timing))
	for st := range timing {
		stages = append(stages, string(st))
	}
	sort.Strings(stages)
	for _, st := range stages {
		fmt.Fprintf(w, "  %-12s %8.2f ms\n", st, timing[darkroom.Stage(st)])
	}
}

func printHistogram(w io.Writer, h darkroom.HistogramResult) {
	fmt.Fprintf(w, "histogram: max bin %d\n", h.MaxValue)
	for _, ch := range []struct {
		name string
		bins *[256]uint32
		clip darkroom.Clipping
	}{
		{"red", &h.Red, h.RedClipping},
		{"green", &h.Green, h.GreenClipping},
		{"blue", &h.Blue, h.BlueClipping},
		{"luminance", &h.Luminance, h.LuminanceClipping},
	} {
		fmt.Fprintf(w, "  %-9s mean %6.1f  shadows clipped %-5v highlights clipped %v\n",
			ch.name, mean(ch.bins), ch.clip.Shadows, ch.clip.Highlights)
	}
}

func mean(bins *[256]uint32) float64 {
	var n, sum uint64
	for v, c := range bins {
		n += uint64(c)
		sum += uint64(v) * uint64(c)
	}
	if n == 0 {
		return 0
	}
	return float64(sum) / float64(n)
}
