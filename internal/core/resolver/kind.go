package resolver

import (
	"fmt"
	"strings"
)

// Kind identifies the resource class a locator refers to.
type Kind string

const (
	KindStyle  Kind = "style"
	KindGlyphs Kind = "glyphs"
	KindSource Kind = "source"
	KindSprite Kind = "sprite"
	KindTile   Kind = "tile"
)

// Kinds lists every supported resource kind in display order.
var Kinds = []Kind{KindStyle, KindGlyphs, KindSource, KindSprite, KindTile}

// ParseKind validates and normalizes a kind string.
func ParseKind(value string) (Kind, error) {
	normalized := Kind(strings.ToLower(strings.TrimSpace(value)))
	for _, kind := range Kinds {
		if kind == normalized {
			return kind, nil
		}
	}
	return "", fmt.Errorf("unsupported resource kind: %s", value)
}

// Request carries the inputs of one resolution. Fields a kind does not use
// are ignored.
type Request struct {
	Kind        Kind   `json:"kind"`
	Locator     string `json:"locator"`
	AccessToken string `json:"access_token,omitempty"`
	Format      string `json:"format,omitempty"`
	Extension   string `json:"extension,omitempty"`
	Source      string `json:"source,omitempty"`
	TileSize    int    `json:"tile_size,omitempty"`
}

// Result is a resolved request.
type Result struct {
	Kind  Kind   `json:"kind"`
	Input string `json:"input"`
	URL   string `json:"url"`
}

// Resolve dispatches req to the operation for its kind.
func (r *Resolver) Resolve(req Request) (*Result, error) {
	var (
		resolved string
		err      error
	)

	switch req.Kind {
	case KindStyle:
		resolved, err = r.Style(req.Locator, req.AccessToken)
	case KindGlyphs:
		resolved, err = r.Glyphs(req.Locator, req.AccessToken)
	case KindSource:
		resolved, err = r.Source(req.Locator, req.AccessToken)
	case KindSprite:
		resolved, err = r.Sprite(req.Locator, req.Format, req.Extension, req.AccessToken)
	case KindTile:
		resolved, err = r.Tile(req.Locator, req.Source, req.TileSize)
	default:
		return nil, fmt.Errorf("unsupported resource kind: %s", req.Kind)
	}
	if err != nil {
		return nil, err
	}

	return &Result{Kind: req.Kind, Input: req.Locator, URL: resolved}, nil
}
