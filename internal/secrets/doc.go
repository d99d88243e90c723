// Package secrets provides constant-time secret comparison and pluggable
// secret sources (environment variables, HashiCorp Vault KV v2) for
// externally supplied signing secrets and API keys.
package secrets
