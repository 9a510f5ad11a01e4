package region

import (
	"fmt"
	"math"

	"github.com/menta2k/slide-analyzer/pkg/pyramid"
)

// Tile is a region request materialized against a chosen pyramid level. It
// carries the level index and the tile origin and size in level coordinates,
// so a tile's pixels can be mapped back to full-resolution space without
// re-deriving them from the (possibly rounded) region request.
type Tile struct {
	Region     Request `json:"region"`
	Level      int     `json:"level"`
	TileX      int     `json:"tileX"`
	TileY      int     `json:"tileY"`
	TileWidth  int     `json:"tileWidth"`
	TileHeight int     `json:"tileHeight"`
}

// Downsample returns the downsample of the tile's pyramid level.
func (t Tile) Downsample() float64 { return t.Region.Downsample }

// String formats the tile for logs.
func (t Tile) String() string {
	return fmt.Sprintf("level %d tile %d,%d %dx%d (%s)",
		t.Level, t.TileX, t.TileY, t.TileWidth, t.TileHeight, t.Region)
}

// Tiler splits region requests into fixed-size tiles aligned to a pyramid level.
type Tiler struct {
	model      *pyramid.Model
	path       string
	tileWidth  int
	tileHeight int
}

// NewTiler creates a tiler over the given pyramid with the given tile size.
func NewTiler(model *pyramid.Model, path string, tileWidth, tileHeight int) *Tiler {
	if tileWidth <= 0 {
		tileWidth = 256
	}
	if tileHeight <= 0 {
		tileHeight = 256
	}
	return &Tiler{model: model, path: path, tileWidth: tileWidth, tileHeight: tileHeight}
}

// AllTiles returns every tile of the level serving the given downsample.
func (tl *Tiler) AllTiles(downsample float64) []Tile {
	level := tl.model.LevelForDownsample(downsample)
	dim := tl.model.Level(level)
	return tl.tilesForLevel(level, 0, 0, dim.Width, dim.Height)
}

// TilesForRegion returns the tiles of the serving level that intersect the
// given full-resolution region request.
func (tl *Tiler) TilesForRegion(req Request) ([]Tile, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	level := tl.model.LevelForDownsample(req.Downsample)
	dim := tl.model.Level(level)

	// Convert the request to level coordinates, expanding outward so partial
	// overlap still includes the tile.
	lx := int(math.Floor(float64(req.X) / dim.Downsample))
	ly := int(math.Floor(float64(req.Y) / dim.Downsample))
	lx2 := int(math.Ceil(float64(req.X2()) / dim.Downsample))
	ly2 := int(math.Ceil(float64(req.Y2()) / dim.Downsample))

	lx = clampInt(lx, 0, dim.Width)
	ly = clampInt(ly, 0, dim.Height)
	lx2 = clampInt(lx2, 0, dim.Width)
	ly2 = clampInt(ly2, 0, dim.Height)
	if lx2 <= lx || ly2 <= ly {
		return nil, nil
	}
	return tl.tilesForLevel(level, lx, ly, lx2-lx, ly2-ly), nil
}

// tilesForLevel produces the grid of tiles covering a level-space rectangle.
// Tiles are clamped to the level bounds, so edge tiles may be smaller than
// the nominal tile size but never extend past the level.
func (tl *Tiler) tilesForLevel(level, x, y, width, height int) []Tile {
	dim := tl.model.Level(level)
	downsample := dim.Downsample

	x0 := (x / tl.tileWidth) * tl.tileWidth
	y0 := (y / tl.tileHeight) * tl.tileHeight

	var tiles []Tile
	for ty := y0; ty < y+height; ty += tl.tileHeight {
		for tx := x0; tx < x+width; tx += tl.tileWidth {
			tw := minInt(tl.tileWidth, dim.Width-tx)
			th := minInt(tl.tileHeight, dim.Height-ty)
			if tw <= 0 || th <= 0 {
				continue
			}
			tiles = append(tiles, Tile{
				Region: Request{
					Path:       tl.path,
					Downsample: downsample,
					X:          int(math.Round(float64(tx) * downsample)),
					Y:          int(math.Round(float64(ty) * downsample)),
					Width:      int(math.Round(float64(tw) * downsample)),
					Height:     int(math.Round(float64(th) * downsample)),
					Plane:      DefaultPlane,
				},
				Level:      level,
				TileX:      tx,
				TileY:      ty,
				TileWidth:  tw,
				TileHeight: th,
			})
		}
	}
	return tiles
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
