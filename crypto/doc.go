// Package crypto provides the key and signature types used to authenticate
// peers on the log exchange network.
//
// Peers are identified by Ed25519 public keys. Every upload and download
// request carries a signature over a canonical message binding the operation
// target, the request timestamp and the peer's key; the transfer service
// verifies it with these types.
package crypto
