package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/chai2010/webp"
	"github.com/sirupsen/logrus"

	slideanalyzer "github.com/menta2k/slide-analyzer"
	"github.com/menta2k/slide-analyzer/internal/config"
	"github.com/menta2k/slide-analyzer/internal/utils"
	"github.com/menta2k/slide-analyzer/pkg/slide"
)

func main() {
	var in, outDir, configPath string
	var backend, model, url, format string
	var workers int
	var minArea float64
	var split, annotations bool
	var thumb bool
	var thumbSize int
	var metadata bool
	var verbose bool

	flag.StringVar(&in, "in", "", "input slide path or directory (jpg/png/tiff/webp)")
	flag.StringVar(&outDir, "out", "", "output directory (default from config)")
	flag.StringVar(&configPath, "config", "", "configuration file (JSON)")
	flag.StringVar(&backend, "backend", "", "classifier backend: intensity or ollama")
	flag.StringVar(&model, "model", "", "vision model name (ollama backend)")
	flag.StringVar(&url, "url", "", "ollama server URL")
	flag.StringVar(&format, "format", "", "output format: json or wkt")
	flag.IntVar(&workers, "workers", -1, "concurrent tile workers (0 = one per CPU)")
	flag.Float64Var(&minArea, "min-area", -1, "drop objects smaller than this area in pixels")
	flag.BoolVar(&split, "split", false, "emit one object per connected piece")
	flag.BoolVar(&annotations, "annotations", false, "commit locked annotations instead of detections")
	flag.BoolVar(&thumb, "thumb", false, "write a WebP overview thumbnail")
	flag.IntVar(&thumbSize, "thumbsize", 0, "thumbnail long side in pixels")
	flag.BoolVar(&metadata, "metadata", false, "dump slide properties as JSON and exit")
	flag.BoolVar(&verbose, "verbose", false, "enable debug logging")
	flag.Parse()

	log := logrus.New()
	if verbose {
		log.SetLevel(logrus.DebugLevel)
	}

	if in == "" {
		log.Fatalf("usage: %s -in slide.tiff|dir [-config config.json] [-backend intensity|ollama] [-format json|wkt]",
			filepath.Base(os.Args[0]))
	}

	inputs, err := collectInputs(in)
	if err != nil {
		log.Fatal(err)
	}

	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.LoadFromFile(configPath)
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}
		cfg = loaded
	}
	applyFlags(cfg, backend, model, url, format, outDir, workers, minArea, split, annotations, thumb, thumbSize)

	if err := cfg.Validate(); err != nil {
		log.Fatal(err)
	}
	if err := utils.EnsureDir(cfg.Output.OutputDir); err != nil {
		log.Fatalf("failed to create output directory: %v", err)
	}

	// Cancel the run cleanly on interrupt; nothing is committed in that case.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	for _, input := range inputs {
		if err := processSlide(ctx, log, cfg, input, metadata); err != nil {
			log.Fatalf("%s: %v", input, err)
		}
	}
}

// collectInputs resolves the -in argument to one or more slide files.
func collectInputs(in string) ([]string, error) {
	if info, err := os.Stat(in); err == nil && info.IsDir() {
		files, err := utils.ListSlideFiles(in)
		if err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", in, err)
		}
		if len(files) == 0 {
			return nil, fmt.Errorf("no slide files found in %s", in)
		}
		return files, nil
	}
	if !utils.FileExists(in) {
		return nil, fmt.Errorf("input file not found: %s", in)
	}
	if !utils.IsSlideFile(in) {
		return nil, fmt.Errorf("unsupported slide format: %s", in)
	}
	return []string{in}, nil
}

// processSlide runs the full pipeline for one slide. Each slide gets its
// own analyzer so hierarchies stay per-image.
func processSlide(ctx context.Context, log *logrus.Logger, cfg *config.Config, in string, metadata bool) error {
	analyzer, err := slideanalyzer.NewWithConfig(cfg)
	if err != nil {
		return err
	}
	analyzer.SetLogger(log)

	reader, err := analyzer.OpenSlide(in)
	if err != nil {
		return fmt.Errorf("failed to open slide: %w", err)
	}
	defer reader.Close()

	if metadata {
		fmt.Println(slide.DumpMetadata(reader))
		return nil
	}

	result, err := analyzer.Run(ctx, reader, nil)
	if err != nil {
		return fmt.Errorf("classification failed: %w", err)
	}
	log.WithFields(logrus.Fields{
		"slide":   in,
		"objects": result.Objects,
		"tiles":   result.TilesProcessed,
		"skipped": result.TilesSkipped,
	}).Info("classification complete")

	outPath := utils.GenerateOutputFilename(in, cfg.Output.OutputDir, "_objects", cfg.Output.Format)
	f, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", outPath, err)
	}
	defer f.Close()

	switch cfg.Output.Format {
	case "wkt":
		err = analyzer.ExportWKT(f)
	default:
		err = analyzer.ExportJSON(f)
	}
	if err != nil {
		return fmt.Errorf("export failed: %w", err)
	}
	log.Infof("wrote %s", outPath)

	if cfg.Output.Thumbnail {
		if err := writeThumbnail(reader, in, cfg); err != nil {
			log.Warnf("thumbnail failed: %v", err)
		} else {
			log.Infof("wrote %s", utils.GenerateOutputFilename(in, cfg.Output.OutputDir, "_thumb", "webp"))
		}
	}
	return nil
}

// applyFlags overrides config values with explicitly set flags.
func applyFlags(cfg *config.Config, backend, model, url, format, outDir string, workers int, minArea float64, split, annotations, thumb bool, thumbSize int) {
	if backend != "" {
		cfg.Classifier.Backend = backend
	}
	if model != "" {
		cfg.Classifier.Model = model
	}
	if url != "" {
		cfg.Classifier.OllamaURL = url
	}
	if format != "" {
		cfg.Output.Format = format
	}
	if outDir != "" {
		cfg.Output.OutputDir = outDir
	}
	if workers >= 0 {
		cfg.Executor.Workers = workers
	}
	if minArea >= 0 {
		cfg.Assembly.MinAreaPixels = minArea
	}
	if split {
		cfg.Assembly.Split = true
	}
	if annotations {
		cfg.Assembly.AsAnnotations = true
	}
	if thumb {
		cfg.Output.Thumbnail = true
	}
	if thumbSize > 0 {
		cfg.Output.ThumbnailSize = thumbSize
	}
}

// writeThumbnail saves a WebP overview of the slide.
func writeThumbnail(reader slide.Reader, in string, cfg *config.Config) error {
	fs, ok := reader.(*slide.FileSlide)
	if !ok {
		return fmt.Errorf("backend provides no thumbnails")
	}
	img, err := fs.Thumbnail(cfg.Output.ThumbnailSize, cfg.Output.ThumbnailSize)
	if err != nil {
		return err
	}
	path := utils.GenerateOutputFilename(in, cfg.Output.OutputDir, "_thumb", "webp")
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return webp.Encode(f, img, &webp.Options{Quality: 90})
}
