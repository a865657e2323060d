package resolver

import "errors"

// HelpURL is where callers learn about access token classes.
const HelpURL = "https://www.mapbox.com/api-documentation/#access-tokens"

var (
	// ErrMalformedURL is returned when an input does not look like scheme://authority.
	ErrMalformedURL = errors.New("malformed url")

	// ErrMissingToken is returned when a token is required but none is configured or supplied.
	ErrMissingToken = errors.New("an API access token is required to use Mapbox GL; see " + HelpURL)

	// ErrSecretToken is returned when a secret (sk.*) token would be embedded in a URL.
	ErrSecretToken = errors.New("use a public access token (pk.*) with Mapbox GL, not a secret access token (sk.*); see " + HelpURL)
)
