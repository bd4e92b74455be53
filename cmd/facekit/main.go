package main

import (
	"flag"
	"fmt"
	"image"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
	"go.uber.org/zap"

	"github.com/dudu/facekit/internal/align"
	"github.com/dudu/facekit/internal/config"
	"github.com/dudu/facekit/internal/logging"
	"github.com/dudu/facekit/internal/pipeline"
	"github.com/dudu/facekit/internal/recognizer"
)

type options struct {
	ConfigPath string
	Threshold  float64
	MaxFaces   int
	CropsDir   string
	Normalized bool
}

func main() {
	opts, photos := parseFlags()

	if len(photos) == 0 {
		fmt.Fprintln(os.Stderr, "Error: at least one photo path is required")
		flag.Usage()
		os.Exit(1)
	}

	if err := run(opts, photos); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags() (options, []string) {
	opts := options{}

	flag.StringVar(&opts.ConfigPath, "config", "", "YAML config file (optional)")
	flag.Float64Var(&opts.Threshold, "threshold", -1, "Detection score threshold override")
	flag.IntVar(&opts.MaxFaces, "max-faces", -1, "Keep only the N largest faces per photo (override)")
	flag.StringVar(&opts.CropsDir, "crops", "", "Directory to save aligned 112x112 face crops")
	flag.BoolVar(&opts.Normalized, "normalized", false, "Print face geometry in 0-1 photo coordinates")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "facekit - face detection and identity embeddings for photos\n\n")
		fmt.Fprintf(os.Stderr, "Usage: facekit [options] photo.jpg [photo2.jpg ...]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  facekit family.jpg\n")
		fmt.Fprintf(os.Stderr, "  facekit --config facekit.yaml --crops out/ *.jpg\n")
	}

	flag.Parse()
	return opts, flag.Args()
}

func run(opts options, photos []string) error {
	cfg := config.Default()
	if opts.ConfigPath != "" {
		var err error
		cfg, err = config.Load(opts.ConfigPath)
		if err != nil {
			return err
		}
	}
	if opts.Threshold >= 0 {
		cfg.Detection.ScoreThreshold = float32(opts.Threshold)
	}
	if opts.MaxFaces >= 0 {
		cfg.Detection.MaxFaces = opts.MaxFaces
	}

	log, err := logging.Init(cfg.Logging.Development)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer log.Sync()

	p, err := pipeline.New(pipeline.Config{
		DetectorModel:   cfg.Models.Detector,
		RecognizerModel: cfg.Models.Recognizer,
		ScoreThreshold:  cfg.Detection.ScoreThreshold,
		MaxFaces:        cfg.Detection.MaxFaces,
	}, log)
	if err != nil {
		return err
	}
	defer p.Close()

	if opts.CropsDir != "" {
		if err := os.MkdirAll(opts.CropsDir, 0o755); err != nil {
			return fmt.Errorf("failed to create crops directory: %w", err)
		}
	}

	type indexedFace struct {
		label     string
		embedding recognizer.Embedding
	}
	var all []indexedFace

	for _, path := range photos {
		img, err := imaging.Open(path, imaging.AutoOrientation(true))
		if err != nil {
			log.Warn("skipping photo", zap.String("path", path), zap.Error(err))
			continue
		}
		buf, w, h := rgbBuffer(img)

		results, err := p.IndexPhoto(buf, w, h)
		if err != nil {
			log.Warn("failed to index photo", zap.String("path", path), zap.Error(err))
			continue
		}

		timing := p.LastTiming()
		fmt.Printf("%s: %d face(s) [detect %dms, embed %dms]\n",
			path, len(results),
			timing.Detection.Milliseconds(), timing.Recognition.Milliseconds())

		for i, r := range results {
			face := r.Face
			if opts.Normalized {
				face.Normalize(w, h)
			}
			b := face.BoundingBox
			fmt.Printf("  face %d: score=%.3f box=(%.1f,%.1f)-(%.1f,%.1f) dim=%d\n",
				i, face.Score, b.X1, b.Y1, b.X2, b.Y2, len(r.Embedding))

			if opts.CropsDir != "" {
				crop, err := align.Crop(buf, w, h, r.Face.Landmarks)
				if err != nil {
					log.Warn("failed to crop face", zap.String("path", path), zap.Int("face", i), zap.Error(err))
					continue
				}
				name := fmt.Sprintf("%s_face%d.png", stem(path), i)
				if err := imaging.Save(cropImage(crop), filepath.Join(opts.CropsDir, name)); err != nil {
					log.Warn("failed to save crop", zap.String("name", name), zap.Error(err))
				}
			}

			all = append(all, indexedFace{
				label:     fmt.Sprintf("%s#%d", filepath.Base(path), i),
				embedding: r.Embedding,
			})
		}
	}

	if len(all) > 1 {
		fmt.Println("\nPairwise similarities:")
		for i := 0; i < len(all); i++ {
			for j := i + 1; j < len(all); j++ {
				sim := recognizer.Similarity(all[i].embedding, all[j].embedding)
				fmt.Printf("  %s <-> %s: %.4f\n", all[i].label, all[j].label, sim)
			}
		}
	}

	return nil
}

// rgbBuffer flattens a decoded image into the row-major RGB byte
// layout the pipeline works on.
func rgbBuffer(img image.Image) ([]uint8, int, int) {
	nrgba := imaging.Clone(img)
	w := nrgba.Rect.Dx()
	h := nrgba.Rect.Dy()

	buf := make([]uint8, w*h*3)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			s := nrgba.PixOffset(x, y)
			d := (y*w + x) * 3
			buf[d] = nrgba.Pix[s]
			buf[d+1] = nrgba.Pix[s+1]
			buf[d+2] = nrgba.Pix[s+2]
		}
	}
	return buf, w, h
}

// cropImage converts an aligned RGB crop back into an image for saving.
func cropImage(crop []uint8) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, align.CropSize, align.CropSize))
	for i := 0; i < align.CropSize*align.CropSize; i++ {
		s := i * 3
		d := i * 4
		img.Pix[d] = crop[s]
		img.Pix[d+1] = crop[s+1]
		img.Pix[d+2] = crop[s+2]
		img.Pix[d+3] = 255
	}
	return img
}

func stem(path string) string {
	base := filepath.Base(path)
	return base[:len(base)-len(filepath.Ext(base))]
}
