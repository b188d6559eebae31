// Package driving defines interfaces that external actors (the JSON-RPC
// tool server, the HTTP proxy) use to drive core services. Implementations
// live in internal/core/services.
package driving
