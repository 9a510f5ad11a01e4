package classifier

import (
	"context"
	"image"
	"image/color"
	"math"
	"testing"
)

func solidImage(w, h int, fill color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, fill)
		}
	}
	return img
}

func TestMetadataValidate(t *testing.T) {
	valid := Metadata{
		InputWidth: 256, InputHeight: 256, InputDownsample: 1.0,
		OutputType: OutputProbability,
		Channels:   []Channel{{Name: "tumor"}},
	}
	if err := valid.Validate(); err != nil {
		t.Errorf("expected valid metadata, got %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*Metadata)
	}{
		{"zero width", func(m *Metadata) { m.InputWidth = 0 }},
		{"zero downsample", func(m *Metadata) { m.InputDownsample = 0 }},
		{"negative padding", func(m *Metadata) { m.Padding = -1 }},
		{"no channels", func(m *Metadata) { m.Channels = nil }},
		{"bad output type", func(m *Metadata) { m.OutputType = "fuzzy" }},
	}
	for _, tc := range cases {
		m := valid
		tc.mutate(&m)
		if err := m.Validate(); err == nil {
			t.Errorf("%s: expected validation error", tc.name)
		}
	}
}

func TestIntensityClassifierBands(t *testing.T) {
	c := &IntensityClassifier{
		TileWidth: 4, TileHeight: 4, Downsample: 1.0,
		Cutpoints: []float64{128},
		Bands:     []Channel{{Name: "dark"}, {Name: "light"}},
	}

	dark := solidImage(4, 4, color.NRGBA{50, 50, 50, 255})
	r, err := c.Classify(context.Background(), dark)
	if err != nil {
		t.Fatalf("Classify failed: %v", err)
	}
	if got := r.At(0, 0, 0); got != 0 {
		t.Errorf("dark tile: expected label 0, got %v", got)
	}

	light := solidImage(4, 4, color.NRGBA{200, 200, 200, 255})
	r, err = c.Classify(context.Background(), light)
	if err != nil {
		t.Fatalf("Classify failed: %v", err)
	}
	if got := r.At(0, 0, 0); got != 1 {
		t.Errorf("light tile: expected label 1, got %v", got)
	}
}

func TestIntensityClassifierBandMismatch(t *testing.T) {
	c := &IntensityClassifier{
		TileWidth: 4, TileHeight: 4, Downsample: 1.0,
		Cutpoints: []float64{64, 192},
		Bands:     []Channel{{Name: "only"}},
	}
	if _, err := c.Classify(context.Background(), solidImage(4, 4, color.NRGBA{})); err == nil {
		t.Error("expected error for band/cutpoint mismatch")
	}
}

func TestNeighborWindowFeatures(t *testing.T) {
	n := NeighborWindow{Radius: 1}
	if got := n.FeaturesPerPixel(); got != 27 {
		t.Fatalf("expected 27 features for radius 1, got %d", got)
	}

	// 3x3 padded image yields a single 1x1 output pixel.
	img := solidImage(3, 3, color.NRGBA{255, 0, 0, 255})
	feats, err := n.CalculateFeatures(img)
	if err != nil {
		t.Fatalf("CalculateFeatures failed: %v", err)
	}
	if feats.Width != 1 || feats.Height != 1 {
		t.Fatalf("expected 1x1 output, got %dx%d", feats.Width, feats.Height)
	}
	// Every window position contributes R=1, G=0, B=0.
	for c := 0; c < 27; c += 3 {
		if got := feats.At(0, 0, c); math.Abs(got-1) > 1e-9 {
			t.Errorf("feature %d: expected 1, got %v", c, got)
		}
		if got := feats.At(0, 0, c+1); got != 0 {
			t.Errorf("feature %d: expected 0, got %v", c+1, got)
		}
	}
}

func TestNeighborWindowTooSmall(t *testing.T) {
	n := NeighborWindow{Radius: 2}
	if _, err := n.CalculateFeatures(solidImage(3, 3, color.NRGBA{})); err == nil {
		t.Error("expected error for undersized image")
	}
}

func TestFilterBankIdentityKernel(t *testing.T) {
	fb := FilterBank{Filters: []Filter{{Name: "identity", Kernel: [][]float64{{1}}}}}
	if fb.Padding() != 0 {
		t.Fatalf("expected padding 0, got %d", fb.Padding())
	}

	img := solidImage(2, 2, color.NRGBA{255, 255, 255, 255})
	feats, err := fb.CalculateFeatures(img)
	if err != nil {
		t.Fatalf("CalculateFeatures failed: %v", err)
	}
	if got := feats.At(0, 0, 0); math.Abs(got-1) > 1e-9 {
		t.Errorf("expected grayscale 1 through identity kernel, got %v", got)
	}
}

func TestGaussianFilterNormalized(t *testing.T) {
	f := GaussianFilter("smooth", 2, 1.5)
	var total float64
	for _, row := range f.Kernel {
		for _, v := range row {
			total += v
		}
	}
	if math.Abs(total-1) > 1e-9 {
		t.Errorf("expected kernel sum 1, got %v", total)
	}
	if fb := (FilterBank{Filters: []Filter{f}}); fb.Padding() != 2 {
		t.Errorf("expected padding 2, got %d", fb.Padding())
	}
}

func TestLinearClassifierFavorsMatchingClass(t *testing.T) {
	c := &LinearClassifier{
		Features:  FilterBank{Filters: []Filter{{Name: "identity", Kernel: [][]float64{{1}}}}},
		Weights:   [][]float64{{4}, {-4}},
		Biases:    []float64{0, 2},
		TileWidth: 2, TileHeight: 2, Downsample: 1.0,
		Classes: []Channel{{Name: "bright"}, {Name: "dim"}},
	}
	if md := c.Metadata(); md.OutputType != OutputProbability || md.Padding != 0 {
		t.Fatalf("unexpected metadata %+v", md)
	}

	r, err := c.Classify(context.Background(), solidImage(2, 2, color.NRGBA{255, 255, 255, 255}))
	if err != nil {
		t.Fatalf("Classify failed: %v", err)
	}
	bright := r.At(0, 0, 0)
	dim := r.At(0, 0, 1)
	if bright <= dim {
		t.Errorf("expected bright class to dominate, got %v vs %v", bright, dim)
	}
	if math.Abs(bright+dim-1) > 1e-9 {
		t.Errorf("expected normalized scores, sum %v", bright+dim)
	}
}

func TestParseScores(t *testing.T) {
	classes := []Channel{{Name: "tumor"}, {Name: "stroma"}}

	scores, err := parseScores(`{"scores": {"tumor": 0.8, "stroma": 0.3}}`, classes)
	if err != nil {
		t.Fatalf("parseScores failed: %v", err)
	}
	if scores[0] != 0.8 || scores[1] != 0.3 {
		t.Errorf("unexpected scores %v", scores)
	}

	// Fenced response with a trailing comma still parses.
	fenced := "```json\n{\"scores\": {\"tumor\": 1.5,}}\n```"
	scores, err = parseScores(fenced, classes)
	if err != nil {
		t.Fatalf("parseScores failed on fenced response: %v", err)
	}
	if scores[0] != 1.0 {
		t.Errorf("expected score clamped to 1.0, got %v", scores[0])
	}
	if scores[1] != 0 {
		t.Errorf("expected missing class to score 0, got %v", scores[1])
	}

	if _, err := parseScores("the tile looks cancerous", classes); err == nil {
		t.Error("expected error for non-JSON response")
	}
	if _, err := parseScores(`{"scores": {"vessel": 0.5}}`, classes); err == nil {
		t.Error("expected error when no expected class is scored")
	}
}
