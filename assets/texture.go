package assets

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg" // register decoders for texture sources
	_ "image/png"

	"github.com/signalsfoundry/globeview/internal/fetch"
	_ "golang.org/x/image/webp"
)

// Texture describes a decoded surface image. Pixel data stays with the
// client; the engine only tracks what is loaded.
type Texture struct {
	URI    string `json:"source"`
	Format string `json:"format"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Bytes  int    `json:"bytes"`
}

// Source implements Resource.
func (t *Texture) Source() string { return t.URI }

// TextureLoader fetches a source and validates that it decodes as an image.
type TextureLoader struct {
	Fetcher fetch.Fetcher
}

// NewTextureLoader returns a loader backed by f.
func NewTextureLoader(f fetch.Fetcher) *TextureLoader {
	return &TextureLoader{Fetcher: f}
}

// Load implements Loader.
func (l *TextureLoader) Load(ctx context.Context, source string) (Resource, error) {
	data, err := l.Fetcher.Fetch(ctx, source)
	if err != nil {
		return nil, err
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode texture %s: %w", source, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("decode texture %s: empty image %dx%d", source, cfg.Width, cfg.Height)
	}
	return &Texture{
		URI:    source,
		Format: format,
		Width:  cfg.Width,
		Height: cfg.Height,
		Bytes:  len(data),
	}, nil
}

// Layer names an auxiliary surface map loaded once at startup.
type Layer string

const (
	LayerBump     Layer = "bump"
	LayerSpecular Layer = "specular"
	LayerNight    Layer = "night"
	LayerClouds   Layer = "clouds"
)

// Layers lists the auxiliary layers in load order.
func Layers() []Layer {
	return []Layer{LayerBump, LayerSpecular, LayerNight, LayerClouds}
}
