package slide

import (
	"encoding/json"
	"fmt"
	"image/color"
	"math"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
)

// Well-known property keys, following the OpenSlide naming scheme so
// property maps produced by native backends can be consumed unchanged.
const (
	PropMPPX            = "openslide.mpp-x"
	PropMPPY            = "openslide.mpp-y"
	PropObjectivePower  = "openslide.objective-power"
	PropBackgroundColor = "openslide.background-color"
	PropBoundsX         = "openslide.bounds-x"
	PropBoundsY         = "openslide.bounds-y"
	PropBoundsWidth     = "openslide.bounds-width"
	PropBoundsHeight    = "openslide.bounds-height"
	PropTileWidth       = "openslide.level[0].tile-width"
	PropTileHeight      = "openslide.level[0].tile-height"
)

// NumericProperty parses a numeric property, returning the default when the
// key is absent or unparseable. Absence is logged at warn level, a parse
// failure at error level, matching how callers expect optional calibration
// metadata to degrade.
func NumericProperty(properties map[string]string, name string, defaultValue float64) float64 {
	value, ok := properties[name]
	if !ok {
		logrus.WithField("property", name).Debugf("property not available, using default %v", defaultValue)
		return defaultValue
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		logrus.WithFields(logrus.Fields{"property": name, "value": value}).
			Warnf("could not parse property as a number, using default %v", defaultValue)
		return defaultValue
	}
	return parsed
}

// BackgroundColor parses the slide's declared background color, if any.
// The value may carry a leading '#' or not.
func BackgroundColor(properties map[string]string) (color.NRGBA, bool) {
	value, ok := properties[PropBackgroundColor]
	if !ok {
		return color.NRGBA{}, false
	}
	value = strings.TrimPrefix(strings.TrimSpace(value), "#")
	if len(value) != 6 {
		return color.NRGBA{}, false
	}
	parsed, err := strconv.ParseUint(value, 16, 32)
	if err != nil {
		logrus.WithField("value", value).Debug("unable to parse background color")
		return color.NRGBA{}, false
	}
	return color.NRGBA{
		R: uint8(parsed >> 16),
		G: uint8(parsed >> 8),
		B: uint8(parsed),
		A: 255,
	}, true
}

// Bounds is a stated sub-rectangle of the scanned canvas, typically the
// scanner's slide-bounds region.
type Bounds struct {
	X      int
	Y      int
	Width  int
	Height int
}

// BoundsFromProperties reads the bounds rectangle when all four keys are
// present and parseable. The second return is false otherwise.
func BoundsFromProperties(properties map[string]string) (Bounds, bool) {
	keys := []string{PropBoundsX, PropBoundsY, PropBoundsWidth, PropBoundsHeight}
	values := make([]int, len(keys))
	for i, key := range keys {
		raw, ok := properties[key]
		if !ok {
			return Bounds{}, false
		}
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			logrus.WithFields(logrus.Fields{"property": key, "value": raw}).
				Debug("unable to parse bounds property")
			return Bounds{}, false
		}
		values[i] = parsed
	}
	b := Bounds{X: values[0], Y: values[1], Width: values[2], Height: values[3]}
	if b.Width <= 0 || b.Height <= 0 {
		return Bounds{}, false
	}
	return b, true
}

// PixelCalibration carries the physical calibration recovered from properties.
type PixelCalibration struct {
	PixelWidthMicrons  float64 `json:"pixel_width_microns"`
	PixelHeightMicrons float64 `json:"pixel_height_microns"`
	Magnification      float64 `json:"magnification"`
}

// Calibration extracts the pixel size and magnification; missing values are NaN.
func Calibration(properties map[string]string) PixelCalibration {
	return PixelCalibration{
		PixelWidthMicrons:  NumericProperty(properties, PropMPPX, math.NaN()),
		PixelHeightMicrons: NumericProperty(properties, PropMPPY, math.NaN()),
		Magnification:      NumericProperty(properties, PropObjectivePower, math.NaN()),
	}
}

// DumpMetadata returns a pretty-printed JSON representation of the raw
// property map, for diagnostics.
func DumpMetadata(r Reader) string {
	data, err := json.MarshalIndent(r.Properties(), "", "  ")
	if err != nil {
		return fmt.Sprintf("{\"error\": %q}", err.Error())
	}
	return string(data)
}
