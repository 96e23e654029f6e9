package prober

import (
	"context"
	"maps"
)

// DefaultAuthScheme is the Authorization scheme used with API tokens.
const DefaultAuthScheme = "APIToken"

// HeaderProvider supplies per-request headers, typically authorization.
type HeaderProvider interface {
	Headers(ctx context.Context) (map[string]string, error)
}

// StaticHeaders sends a fixed token and extra headers with every request.
type StaticHeaders struct {
	Scheme string
	Token  string
	Extra  map[string]string
}

// Headers implements HeaderProvider.
func (s StaticHeaders) Headers(context.Context) (map[string]string, error) {
	h := make(map[string]string, len(s.Extra)+1)
	maps.Copy(h, s.Extra)
	if s.Token != "" {
		scheme := s.Scheme
		if scheme == "" {
			scheme = DefaultAuthScheme
		}
		h["Authorization"] = scheme + " " + s.Token
	}
	return h, nil
}
