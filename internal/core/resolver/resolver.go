// Package resolver turns mapbox: locators into request URLs for the API host.
package resolver

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/cartolens/cartolens/internal/config"
)

const (
	customScheme    = "mapbox:"
	tempTokenPrefix = "access_token=tk."
	tokenParam      = "access_token="
	secureParam     = "secure"
)

var (
	imageExtensionPattern = regexp.MustCompile(`(\.(?:png|jpg)\d*)$`)
	mapboxHTTPPattern     = regexp.MustCompile(`(?i)^(?:(?:https?:)?//)?(?:[^/?]*\.)?mapbox\.(?:com|cn)(?:/|\?|$)`)
)

// Capabilities reports what the rendering device can handle.
type Capabilities interface {
	DevicePixelRatio() float64
	SupportsWebP() bool
}

// StaticCapabilities is a fixed Capabilities value, usually built from config.
type StaticCapabilities struct {
	PixelRatio float64
	WebP       bool
}

// DevicePixelRatio implements Capabilities.
func (c StaticCapabilities) DevicePixelRatio() float64 { return c.PixelRatio }

// SupportsWebP implements Capabilities.
func (c StaticCapabilities) SupportsWebP() bool { return c.WebP }

// Resolver rewrites locators against a configured API host.
type Resolver struct {
	APIURL             string
	AccessToken        string
	RequireAccessToken bool
	Capabilities       Capabilities
}

// New builds a resolver from API configuration. A nil caps means a 1x
// display without WebP.
func New(api config.APIConfig, caps Capabilities) *Resolver {
	if caps == nil {
		caps = StaticCapabilities{PixelRatio: 1}
	}
	return &Resolver{
		APIURL:             api.BaseURL,
		AccessToken:        api.AccessToken,
		RequireAccessToken: api.RequireAccessToken,
		Capabilities:       caps,
	}
}

// NewFromConfig builds a resolver whose capabilities come from the device section.
func NewFromConfig(cfg *config.Config) (*Resolver, error) {
	if cfg == nil {
		return nil, errors.New("config not loaded")
	}
	return New(cfg.API, StaticCapabilities{
		PixelRatio: cfg.Device.PixelRatio,
		WebP:       cfg.Device.SupportsWebP,
	}), nil
}

// IsMapboxURL reports whether locator uses the custom mapbox: scheme.
func IsMapboxURL(locator string) bool {
	return strings.HasPrefix(locator, customScheme)
}

// IsMapboxHTTPURL reports whether u already points at a Mapbox API host. The
// scheme is optional, so protocol-relative and bare host URLs match too.
func IsMapboxHTTPURL(u string) bool {
	return mapboxHTTPPattern.MatchString(u)
}

// Style resolves a style locator. token overrides the configured token when set.
func (r *Resolver) Style(locator, token string) (string, error) {
	if !IsMapboxURL(locator) {
		return locator, nil
	}
	parsed, err := ParseURL(locator)
	if err != nil {
		return "", err
	}
	parsed.Path = "/styles/v1" + parsed.Path
	return r.apiURL(parsed, token)
}

// Glyphs resolves a glyph range locator.
func (r *Resolver) Glyphs(locator, token string) (string, error) {
	if !IsMapboxURL(locator) {
		return locator, nil
	}
	parsed, err := ParseURL(locator)
	if err != nil {
		return "", err
	}
	parsed.Path = "/fonts/v1" + parsed.Path
	return r.apiURL(parsed, token)
}

// Source resolves a tileset source locator to its TileJSON URL. The secure
// param asks the API to return https tile URLs in the TileJSON body.
func (r *Resolver) Source(locator, token string) (string, error) {
	if !IsMapboxURL(locator) {
		return locator, nil
	}
	parsed, err := ParseURL(locator)
	if err != nil {
		return "", err
	}
	parsed.Path = "/v4/" + parsed.Authority + ".json"
	parsed.Params = append(parsed.Params, secureParam)
	return r.apiURL(parsed, token)
}

// Sprite resolves a sprite locator. format is the density suffix (e.g. "@2x")
// and extension the file type (".json" or ".png"). Absolute URLs get the
// suffix appended but keep their host.
func (r *Resolver) Sprite(locator, format, extension, token string) (string, error) {
	parsed, err := ParseURL(locator)
	if err != nil {
		return "", err
	}
	if !IsMapboxURL(locator) {
		parsed.Path += format + extension
		return parsed.String(), nil
	}
	parsed.Path = "/styles/v1" + parsed.Path + "/sprite" + format + extension
	return r.apiURL(parsed, token)
}

// Tile rewrites a tile URL taken from a Mapbox TileJSON. Tiles of third-party
// sources (sourceURL empty or not mapbox:) are returned untouched.
func (r *Resolver) Tile(tileURL, sourceURL string, tileSize int) (string, error) {
	if sourceURL == "" || !IsMapboxURL(sourceURL) {
		return tileURL, nil
	}

	parsed, err := ParseURL(tileURL)
	if err != nil {
		return "", err
	}

	caps := r.capabilities()
	suffix := ""
	if caps.DevicePixelRatio() >= 2 || tileSize == 512 {
		suffix = "@2x"
	}
	webp := caps.SupportsWebP()

	parsed.Path = imageExtensionPattern.ReplaceAllStringFunc(parsed.Path, func(ext string) string {
		if webp {
			return suffix + ".webp"
		}
		return suffix + ext
	})

	r.replaceTempAccessToken(parsed.Params)
	return parsed.String(), nil
}

// replaceTempAccessToken swaps short-lived tk.* tokens for the configured one.
func (r *Resolver) replaceTempAccessToken(params []string) {
	for i, param := range params {
		if strings.HasPrefix(param, tempTokenPrefix) {
			params[i] = tokenParam + r.AccessToken
		}
	}
}

func (r *Resolver) apiURL(target *ParsedURL, token string) (string, error) {
	api, err := ParseURL(r.APIURL)
	if err != nil {
		return "", fmt.Errorf("api url: %w", err)
	}

	target.Protocol = api.Protocol
	target.Authority = api.Authority
	if api.Path != "/" {
		target.Path = api.Path + target.Path
	}

	if !r.RequireAccessToken {
		return target.String(), nil
	}

	if token == "" {
		token = r.AccessToken
	}
	if token == "" {
		return "", ErrMissingToken
	}
	if token[0] == 's' {
		return "", ErrSecretToken
	}

	target.Params = append(target.Params, tokenParam+token)
	return target.String(), nil
}

func (r *Resolver) capabilities() Capabilities {
	if r.Capabilities == nil {
		return StaticCapabilities{PixelRatio: 1}
	}
	return r.Capabilities
}
