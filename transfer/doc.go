// Package transfer implements the authenticated peer-to-peer log exchange
// service. Peers identified by Ed25519 public keys upload sealed log files
// and download each other's, subject to per-request signature authentication,
// replay protection, storage capacity with oldest-first eviction, and
// per-peer daily download quotas.
package transfer
