// Package provider abstracts the external sandbox capability.
//
// The provider package defines the Provider interface for creating,
// running code in, and destroying isolated execution environments, and
// offers concrete implementations backed by the Docker and Podman CLIs
// plus an unisolated local backend for development.
//
// Unlike a one-shot executor, a provider environment is long lived: it is
// created once, reused for many runs, and destroyed explicitly. The
// session pool owns that lifecycle; the provider only supplies the raw
// operations.
//
// Usage:
//
//	prov, err := provider.NewFromConfig(logger, cfg)
//	handle, err := prov.Create(ctx, "python")
//	result, err := prov.Run(ctx, handle, "print('Hello, World!')")
//	_ = prov.Destroy(ctx, handle)
package provider
