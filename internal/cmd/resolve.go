package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cartolens/cartolens/internal/core/resolver"
	"github.com/cartolens/cartolens/internal/observability"
	"github.com/cartolens/cartolens/internal/output"
)

// resolveFlags holds the flags shared by the resolve subcommands.
type resolveFlags struct {
	output string
	token  string

	format    string
	extension string

	source     string
	tileSize   int
	pixelRatio float64
	webp       bool
}

var resolveOpts resolveFlags

var resolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Resolve mapbox:// locators into API URLs",
	Long: `Resolve mapbox:// locators into fully qualified API URLs.

Locators that do not use the mapbox: scheme are printed unchanged, except
sprites, which always receive the density suffix and file extension.

Examples:
  cartolens resolve style mapbox://styles/mapbox/streets-v12
  cartolens resolve glyphs "mapbox://fonts/mapbox/{fontstack}/{range}.pbf"
  cartolens resolve source mapbox://mapbox.mapbox-streets-v8 --output json
  cartolens resolve sprite mapbox://sprites/mapbox/bright --format @2x --extension .png
  cartolens resolve tile "http://a.tiles.mapbox.com/v4/a.b/{z}/{x}/{y}.png?access_token=tk.abc" \
      --source mapbox://a.b --pixel-ratio 2`,
}

var resolveStyleCmd = &cobra.Command{
	Use:   "style <locator>...",
	Short: "Resolve style locators",
	Args:  cobra.MinimumNArgs(1),
	RunE:  resolveRunner(resolver.KindStyle),
}

var resolveGlyphsCmd = &cobra.Command{
	Use:   "glyphs <locator>...",
	Short: "Resolve glyph range locators",
	Args:  cobra.MinimumNArgs(1),
	RunE:  resolveRunner(resolver.KindGlyphs),
}

var resolveSourceCmd = &cobra.Command{
	Use:   "source <locator>...",
	Short: "Resolve tileset source locators to TileJSON URLs",
	Args:  cobra.MinimumNArgs(1),
	RunE:  resolveRunner(resolver.KindSource),
}

var resolveSpriteCmd = &cobra.Command{
	Use:   "sprite <locator>...",
	Short: "Resolve sprite locators",
	Args:  cobra.MinimumNArgs(1),
	RunE:  resolveRunner(resolver.KindSprite),
}

var resolveTileCmd = &cobra.Command{
	Use:   "tile <tile-url>...",
	Short: "Normalize tile URLs from a Mapbox TileJSON",
	Long: `Normalize tile URLs taken from a TileJSON document.

Tiles are only rewritten when --source is a mapbox: locator. Rewriting adds
the @2x suffix for high density displays or 512px tiles, switches to webp
when supported, and replaces temporary tk.* tokens with the configured one.`,
	Args: cobra.MinimumNArgs(1),
	RunE: resolveRunner(resolver.KindTile),
}

func init() {
	rootCmd.AddCommand(resolveCmd)
	resolveCmd.AddCommand(resolveStyleCmd, resolveGlyphsCmd, resolveSourceCmd, resolveSpriteCmd, resolveTileCmd)

	resolveCmd.PersistentFlags().StringVarP(&resolveOpts.output, "output", "o", string(output.FormatText),
		"output format: "+formatList())
	resolveCmd.PersistentFlags().StringVar(&resolveOpts.token, "token", "",
		"access token (overrides api.access_token)")

	resolveSpriteCmd.Flags().StringVar(&resolveOpts.format, "format", "", "density suffix, e.g. @2x")
	resolveSpriteCmd.Flags().StringVar(&resolveOpts.extension, "extension", ".json", "sprite file extension (.json or .png)")

	resolveTileCmd.Flags().StringVar(&resolveOpts.source, "source", "", "source locator the tiles belong to")
	resolveTileCmd.Flags().IntVar(&resolveOpts.tileSize, "tile-size", 0, "source tile size in pixels; 512 requests @2x tiles")
	resolveTileCmd.Flags().Float64Var(&resolveOpts.pixelRatio, "pixel-ratio", 1, "device pixel ratio (overrides device.pixel_ratio)")
	resolveTileCmd.Flags().BoolVar(&resolveOpts.webp, "webp", false, "device supports webp (overrides device.supports_webp)")
}

func resolveRunner(kind resolver.Kind) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		format, err := output.ParseFormat(resolveOpts.output)
		if err != nil {
			return err
		}

		cfg, err := loadConfig(cmd.Context(), resolveOverrides(cmd, resolveOpts))
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		res, err := resolver.NewFromConfig(cfg)
		if err != nil {
			return err
		}

		results, err := resolveAll(res, buildRequests(kind, args, resolveOpts))
		if err != nil {
			return err
		}

		rendered, err := output.NewFormatter(format).FormatResults(results)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), rendered)
		return err
	}
}

// resolveOverrides maps explicitly set flags onto config keys.
func resolveOverrides(cmd *cobra.Command, opts resolveFlags) map[string]any {
	overrides := map[string]any{}
	if token := strings.TrimSpace(opts.token); token != "" {
		overrides["api.access_token"] = token
	}
	if flagChanged(cmd, "pixel-ratio") {
		overrides["device.pixel_ratio"] = opts.pixelRatio
	}
	if flagChanged(cmd, "webp") {
		overrides["device.supports_webp"] = opts.webp
	}
	return overrides
}

func flagChanged(cmd *cobra.Command, name string) bool {
	if cmd == nil {
		return false
	}
	flag := cmd.Flags().Lookup(name)
	return flag != nil && flag.Changed
}

func buildRequests(kind resolver.Kind, locators []string, opts resolveFlags) []resolver.Request {
	requests := make([]resolver.Request, 0, len(locators))
	for _, locator := range locators {
		req := resolver.Request{Kind: kind, Locator: strings.TrimSpace(locator)}
		switch kind {
		case resolver.KindSprite:
			req.Format = opts.format
			req.Extension = opts.extension
		case resolver.KindTile:
			req.Source = opts.source
			req.TileSize = opts.tileSize
		}
		requests = append(requests, req)
	}
	return requests
}

// resolveAll stops at the first failure so scripts never see partial output.
func resolveAll(res *resolver.Resolver, requests []resolver.Request) ([]*resolver.Result, error) {
	results := make([]*resolver.Result, 0, len(requests))
	for _, req := range requests {
		result, err := res.Resolve(req)
		if err != nil {
			return nil, fmt.Errorf("resolve %s %q: %w", req.Kind, req.Locator, err)
		}
		if logger := observability.CLILogger; logger != nil {
			logger.Debug("Resolved locator",
				zap.String("kind", string(req.Kind)),
				zap.String("input", req.Locator),
				zap.String("url", result.URL))
		}
		results = append(results, result)
	}
	return results, nil
}

func formatList() string {
	names := make([]string, 0, len(output.Formats))
	for _, format := range output.Formats {
		names = append(names, string(format))
	}
	return strings.Join(names, "|")
}
