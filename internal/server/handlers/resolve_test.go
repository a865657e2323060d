package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cartolens/cartolens/internal/config"
	"github.com/cartolens/cartolens/internal/core/resolver"
)

type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func newResolveRouter(token string) http.Handler {
	res := resolver.New(config.APIConfig{
		BaseURL:            "https://api.mapbox.com",
		AccessToken:        token,
		RequireAccessToken: true,
	}, resolver.StaticCapabilities{PixelRatio: 1})

	router := chi.NewRouter()
	router.Method(http.MethodGet, "/v1/resolve/{kind}", NewResolveHandler(res))
	return router
}

func resolvePath(kind string, params map[string]string) string {
	values := url.Values{}
	for key, value := range params {
		values.Set(key, value)
	}
	return "/v1/resolve/" + kind + "?" + values.Encode()
}

func TestResolveHandlerSuccess(t *testing.T) {
	router := newResolveRouter("pk.server")

	cases := []struct {
		name   string
		kind   string
		params map[string]string
		want   string
	}{
		{
			name:   "Style",
			kind:   "style",
			params: map[string]string{"url": "mapbox://styles/mapbox/streets-v11"},
			want:   "https://api.mapbox.com/styles/v1/mapbox/streets-v11?access_token=pk.server",
		},
		{
			name:   "StyleWithCallerToken",
			kind:   "style",
			params: map[string]string{"url": "mapbox://styles/mapbox/streets-v11", "access_token": "pk.caller"},
			want:   "https://api.mapbox.com/styles/v1/mapbox/streets-v11?access_token=pk.caller",
		},
		{
			name:   "Glyphs",
			kind:   "glyphs",
			params: map[string]string{"url": "mapbox://fonts/mapbox/{fontstack}/{range}.pbf"},
			want:   "https://api.mapbox.com/fonts/v1/mapbox/{fontstack}/{range}.pbf?access_token=pk.server",
		},
		{
			name:   "Source",
			kind:   "source",
			params: map[string]string{"url": "mapbox://mapbox.satellite"},
			want:   "https://api.mapbox.com/v4/mapbox.satellite.json?secure&access_token=pk.server",
		},
		{
			name:   "SpriteDefaultsToJSON",
			kind:   "sprite",
			params: map[string]string{"url": "mapbox://sprites/mapbox/streets-v11"},
			want:   "https://api.mapbox.com/styles/v1/mapbox/streets-v11/sprite.json?access_token=pk.server",
		},
		{
			name:   "SpriteRetina",
			kind:   "sprite",
			params: map[string]string{"url": "mapbox://sprites/mapbox/streets-v11", "format": "@2x", "extension": ".png"},
			want:   "https://api.mapbox.com/styles/v1/mapbox/streets-v11/sprite@2x.png?access_token=pk.server",
		},
		{
			name: "Tile512",
			kind: "tile",
			params: map[string]string{
				"url":       "http://path.png/tile.png?access_token=tk.abc",
				"source":    "mapbox://mapbox.satellite",
				"tile_size": "512",
			},
			want: "http://path.png/tile@2x.png?access_token=pk.server",
		},
		{
			name:   "KindIsCaseInsensitive",
			kind:   "STYLE",
			params: map[string]string{"url": "https://example.com/style.json"},
			want:   "https://example.com/style.json",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, resolvePath(tc.kind, tc.params), nil))

			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

			var result resolver.Result
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&result))
			assert.Equal(t, tc.want, result.URL)
			assert.Equal(t, tc.params["url"], result.Input)
		})
	}
}

func TestResolveHandlerErrors(t *testing.T) {
	cases := []struct {
		name       string
		token      string
		kind       string
		params     map[string]string
		wantStatus int
		wantCode   string
	}{
		{
			name:       "UnknownKind",
			token:      "pk.server",
			kind:       "terrain",
			params:     map[string]string{"url": "mapbox://x"},
			wantStatus: http.StatusBadRequest,
			wantCode:   "INVALID_INPUT",
		},
		{
			name:       "MissingURL",
			token:      "pk.server",
			kind:       "style",
			wantStatus: http.StatusBadRequest,
			wantCode:   "INVALID_INPUT",
		},
		{
			name:       "BadTileSize",
			token:      "pk.server",
			kind:       "tile",
			params:     map[string]string{"url": "http://a/b.png", "source": "mapbox://x", "tile_size": "big"},
			wantStatus: http.StatusBadRequest,
			wantCode:   "INVALID_INPUT",
		},
		{
			name:       "MalformedLocator",
			token:      "pk.server",
			kind:       "sprite",
			params:     map[string]string{"url": "not a url"},
			wantStatus: http.StatusBadRequest,
			wantCode:   "INVALID_INPUT",
		},
		{
			name:       "MissingToken",
			kind:       "style",
			params:     map[string]string{"url": "mapbox://styles/mapbox/streets-v11"},
			wantStatus: http.StatusUnauthorized,
			wantCode:   "UNAUTHORIZED",
		},
		{
			name:       "SecretToken",
			token:      "sk.secret",
			kind:       "source",
			params:     map[string]string{"url": "mapbox://mapbox.satellite"},
			wantStatus: http.StatusForbidden,
			wantCode:   "FORBIDDEN",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			router := newResolveRouter(tc.token)

			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, resolvePath(tc.kind, tc.params), nil))

			require.Equal(t, tc.wantStatus, rec.Code, rec.Body.String())

			var body errorBody
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
			assert.Equal(t, tc.wantCode, body.Error.Code)
			assert.NotEmpty(t, body.Error.Message)
		})
	}
}

func TestResolveHandlerTokenMessagesIncludeHelpLink(t *testing.T) {
	router := newResolveRouter("")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet,
		resolvePath("glyphs", map[string]string{"url": "mapbox://fonts/a/b.pbf"}), nil))

	var body errorBody
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Contains(t, body.Error.Message, resolver.HelpURL)
}

func TestResolveHandlerWithoutResolver(t *testing.T) {
	router := chi.NewRouter()
	router.Method(http.MethodGet, "/v1/resolve/{kind}", NewResolveHandler(nil))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet,
		resolvePath("style", map[string]string{"url": "mapbox://styles/a/b"}), nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestResolveHandlerSetResolver(t *testing.T) {
	first := resolver.New(config.APIConfig{
		BaseURL:            "https://api.mapbox.com",
		AccessToken:        "pk.first",
		RequireAccessToken: true,
	}, nil)
	handler := NewResolveHandler(first)

	router := chi.NewRouter()
	router.Method(http.MethodGet, "/v1/resolve/{kind}", handler)

	resolveStyle := func() resolver.Result {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet,
			resolvePath("style", map[string]string{"url": "mapbox://styles/mapbox/streets-v11"}), nil))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var result resolver.Result
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&result))
		return result
	}

	assert.Equal(t, "https://api.mapbox.com/styles/v1/mapbox/streets-v11?access_token=pk.first", resolveStyle().URL)

	second := resolver.New(config.APIConfig{
		BaseURL:            "https://api.example.com",
		AccessToken:        "pk.second",
		RequireAccessToken: true,
	}, nil)
	previous := handler.SetResolver(second)

	assert.Same(t, first, previous)
	assert.Same(t, second, handler.Resolver())
	assert.Equal(t, "https://api.example.com/styles/v1/mapbox/streets-v11?access_token=pk.second", resolveStyle().URL)
}
