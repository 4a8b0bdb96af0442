package llm

import (
	"fmt"
	"net/url"
	"strings"
)

const (
	versionRoot    = "/v1"
	completionPath = "/chat/completions"
)

// ResolveEndpoint turns a configured base URL into the chat-completions URL.
//
//	https://api.example.com                     -> https://api.example.com/v1/chat/completions
//	https://api.example.com/v1                  -> https://api.example.com/v1/chat/completions
//	https://api.example.com/v1/chat/completions -> unchanged
func ResolveEndpoint(raw string) (string, error) {
	endpoint := strings.TrimSpace(raw)
	if endpoint == "" {
		return "", fmt.Errorf("%w: API endpoint not configured - set THREADLENS_ENDPOINT or endpoint in config.yaml", ErrConfiguration)
	}

	u, err := url.Parse(endpoint)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("%w: invalid API endpoint URL %q", ErrConfiguration, endpoint)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("%w: API endpoint must use http or https, got %q", ErrConfiguration, u.Scheme)
	}

	endpoint = strings.TrimRight(endpoint, "/")
	switch {
	case strings.HasSuffix(endpoint, completionPath):
		return endpoint, nil
	case strings.HasSuffix(endpoint, versionRoot):
		return endpoint + completionPath, nil
	default:
		return endpoint + versionRoot + completionPath, nil
	}
}
