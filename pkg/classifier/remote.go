package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/ollama/ollama/api"
	"github.com/sirupsen/logrus"

	"github.com/menta2k/slide-analyzer/pkg/raster"
)

// remotePromptTemplate asks the vision model for one score per class.
const remotePromptTemplate = `You are a tissue tile scorer.

Score this image tile for each of the following classes: %s.

Return JSON only:
{"scores": {%s}}

HARD RULES
- One score per class, each in [0,1].
- Scores need not sum to 1; they are normalized downstream.
- JSON only. No markdown, no code fences, no comments, no trailing commas.`

const defaultRemoteTimeout = 300 * time.Second

// Remote classifies whole tiles with a vision model served over the ollama
// chat API. The model scores each class for the tile as a whole; the score
// vector is broadcast to every pixel, so downstream tracing yields at most
// one rectangle per tile. Remote is safe for concurrent use.
type Remote struct {
	client     *api.Client
	model      string
	log        *logrus.Logger
	tileWidth  int
	tileHeight int
	downsample float64
	classes    []Channel
}

// RemoteOptions configures a Remote classifier.
type RemoteOptions struct {
	TileWidth  int
	TileHeight int
	Downsample float64
	Classes    []Channel
	Log        *logrus.Logger
}

// NewRemote creates a classifier backed by an ollama server. Any path on
// the URL is discarded; only scheme and host are used.
func NewRemote(serverURL, model string, opts RemoteOptions) (*Remote, error) {
	parsed, err := url.Parse(serverURL)
	if err != nil {
		return nil, fmt.Errorf("invalid server URL: %w", err)
	}
	base := &url.URL{Scheme: parsed.Scheme, Host: parsed.Host}

	if opts.TileWidth <= 0 {
		opts.TileWidth = 256
	}
	if opts.TileHeight <= 0 {
		opts.TileHeight = 256
	}
	if opts.Downsample <= 0 {
		opts.Downsample = 1.0
	}
	if len(opts.Classes) == 0 {
		return nil, fmt.Errorf("remote classifier needs at least one class")
	}
	log := opts.Log
	if log == nil {
		log = logrus.StandardLogger()
	}

	return &Remote{
		client:     api.NewClient(base, http.DefaultClient),
		model:      model,
		log:        log,
		tileWidth:  opts.TileWidth,
		tileHeight: opts.TileHeight,
		downsample: opts.Downsample,
		classes:    opts.Classes,
	}, nil
}

// Metadata implements Classifier.
func (r *Remote) Metadata() Metadata {
	return Metadata{
		InputWidth:      r.tileWidth,
		InputHeight:     r.tileHeight,
		InputDownsample: r.downsample,
		Padding:         0,
		OutputType:      OutputProbability,
		Channels:        r.classes,
	}
}

// Classify implements Classifier.
func (r *Remote) Classify(ctx context.Context, img *image.NRGBA) (*raster.Raster, error) {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultRemoteTimeout)
		defer cancel()
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode tile: %w", err)
	}

	names := make([]string, len(r.classes))
	fields := make([]string, len(r.classes))
	for i, c := range r.classes {
		names[i] = c.Name
		fields[i] = fmt.Sprintf("%q: 0.0", c.Name)
	}
	prompt := fmt.Sprintf(remotePromptTemplate, strings.Join(names, ", "), strings.Join(fields, ", "))

	streamFalse := false
	req := &api.ChatRequest{
		Model: r.model,
		Messages: []api.Message{
			{
				Role:    "user",
				Content: prompt,
				Images:  []api.ImageData{api.ImageData(buf.Bytes())},
			},
		},
		Stream: &streamFalse,
	}

	var responseContent string
	err := r.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		responseContent = resp.Message.Content
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ollama chat error: %w", err)
	}
	if responseContent == "" {
		return nil, fmt.Errorf("empty response from ollama")
	}

	scores, err := parseScores(responseContent, r.classes)
	if err != nil {
		return nil, err
	}
	r.log.WithFields(logrus.Fields{
		"model":  r.model,
		"scores": scores,
	}).Debug("tile scored")

	b := img.Bounds()
	out := raster.New(b.Dx(), b.Dy(), len(r.classes))
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			for c, s := range scores {
				out.Set(x, y, c, s)
			}
			out.NormalizePixel(x, y)
		}
	}
	return out, nil
}

type scoresResponse struct {
	Scores map[string]float64 `json:"scores"`
}

// parseScores extracts the per-class score vector from a model response.
// Missing classes score zero; a fully unscored response is an error.
func parseScores(raw string, classes []Channel) ([]float64, error) {
	raw = sanitizeModelJSON(raw)
	if !strings.HasPrefix(raw, "{") {
		return nil, fmt.Errorf("model returned non-JSON response")
	}

	var parsed scoresResponse
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, fmt.Errorf("parse scores: %w", err)
	}

	out := make([]float64, len(classes))
	found := false
	for i, c := range classes {
		if s, ok := parsed.Scores[c.Name]; ok {
			if s < 0 {
				s = 0
			}
			if s > 1 {
				s = 1
			}
			out[i] = s
			found = true
		}
	}
	if !found {
		return nil, fmt.Errorf("response scored none of the expected classes")
	}
	return out, nil
}

var (
	reBlockComment  = regexp.MustCompile(`(?s)/\*.*?\*/`)
	reLineComment   = regexp.MustCompile(`(?m)^\s*//.*$`)
	reInlineComment = regexp.MustCompile(`(?m)//.*$`)
	reTrailingComma = regexp.MustCompile(`,(\s*[}\]])`)
)

// sanitizeModelJSON removes code fences, comments, and trailing commas
// from a model response and keeps only the outermost JSON object.
func sanitizeModelJSON(raw string) string {
	raw = strings.TrimSpace(raw)

	if strings.HasPrefix(raw, "```") {
		if i := strings.Index(raw, "\n"); i >= 0 {
			raw = raw[i+1:]
		}
		if j := strings.LastIndex(raw, "```"); j >= 0 {
			raw = raw[:j]
		}
	}
	raw = strings.TrimSpace(raw)
	raw = strings.Trim(raw, "`")

	raw = reBlockComment.ReplaceAllString(raw, "")
	raw = reLineComment.ReplaceAllString(raw, "")
	raw = reInlineComment.ReplaceAllString(raw, "")
	raw = reTrailingComma.ReplaceAllString(raw, "$1")

	if start := strings.Index(raw, "{"); start >= 0 {
		if end := strings.LastIndex(raw, "}"); end > start {
			raw = raw[start : end+1]
		}
	}
	return strings.TrimSpace(raw)
}
