// Package provider implements the remote vendor API client that feeds
// raw device samples into the runtime engine.
//
// The provider exposes a JSON status endpoint per device plus an OAuth
// style token endpoint. Access tokens expire quickly; the client
// refreshes lazily on 401 rather than tracking expiry clocks, and
// retries the failed request exactly once. Refresh tokens rotate on
// every exchange.
//
// Samples are ephemeral: the client maps the provider payload straight
// onto runtime.Sample and keeps nothing else.
package provider
