package proxy

import "context"

// AppEndpoint is the caller-supplied endpoint handed to the hosting
// collaborator when a channel is opened. It is opaque to this package
// and is transferred alongside a command, never serialized with it.
type AppEndpoint = any

// HTTPScope describes an inbound HTTP request destined for a hosted
// application. It is forwarded unchanged.
type HTTPScope struct {
	Method  string            `json:"method"`
	Path    string            `json:"path"`
	Headers map[string]string `json:"headers,omitempty"`
	Query   string            `json:"query,omitempty"`
}

// AppHost serves hosted applications. Backends pass openChannel and
// httpScope commands straight through to it.
type AppHost interface {
	// OpenChannel establishes a logical channel between endpoint and
	// the application identified by appID.
	OpenChannel(ctx context.Context, path, appID string, endpoint AppEndpoint) error

	// DispatchHTTPScope routes one HTTP request scope to the
	// application identified by appID, replying through endpoint.
	DispatchHTTPScope(ctx context.Context, scope HTTPScope, appID string, endpoint AppEndpoint) error
}
