package transfer

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/flyingMooncake/SentinelKarma-sub000/crypto"
)

// Request headers carrying the per-request authentication triple.
const (
	HeaderPubkey    = "peer-pubkey"
	HeaderTimestamp = "timestamp"
	HeaderSignature = "signature"
)

// Authenticator validates the per-request signature protocol. The checks
// run in a fixed order so every failure mode maps to exactly one rejection:
// roster membership, timestamp freshness, replay, then the signature
// itself. The triple is cached only after all four checks pass.
type Authenticator struct {
	Peers        *AuthorizedPeers
	Replay       *ReplayCache
	ReplayWindow time.Duration

	// DisableSignatureCheck skips the signature verification step only.
	// Roster, freshness and replay checks still apply. For test
	// deployments; production config asserts it off.
	DisableSignatureCheck bool

	// now is stubbed in tests.
	now func() time.Time
}

// authResult identifies the authenticated caller.
type authResult struct {
	pubkey    crypto.PublicKey
	pubkeyHex string
}

// Authenticate validates the request headers against the canonical message.
// message is the exact byte string the peer signed; callers build it from
// the operation's canonical fields plus the header timestamp and pubkey.
func (a *Authenticator) Authenticate(r *http.Request, message func(pubkeyHex, timestamp string) []byte) (*authResult, error) {
	pubkeyHex := r.Header.Get(HeaderPubkey)
	timestamp := r.Header.Get(HeaderTimestamp)
	sigHex := r.Header.Get(HeaderSignature)
	if pubkeyHex == "" || timestamp == "" || sigHex == "" {
		return nil, fmt.Errorf("%w: missing auth headers", ErrUnauthorized)
	}

	if !a.Peers.Contains(pubkeyHex) {
		return nil, ErrUnauthorized
	}
	pubkey, err := crypto.NewPublicKeyFromString(pubkeyHex)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: bad timestamp", ErrStaleRequest)
	}
	nowFn := a.now
	if nowFn == nil {
		nowFn = time.Now
	}
	now := nowFn()
	skew := now.Sub(time.Unix(ts, 0))
	if skew < 0 {
		skew = -skew
	}
	if skew > a.ReplayWindow {
		return nil, ErrStaleRequest
	}

	if a.Replay.Contains(pubkeyHex, timestamp, sigHex, now) {
		return nil, ErrReplayDetected
	}

	if !a.DisableSignatureCheck {
		sig, err := crypto.NewSignatureFromString(sigHex)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
		}
		if !sig.Verify(pubkey, message(pubkeyHex, timestamp)) {
			return nil, ErrInvalidSignature
		}
	}

	a.Replay.Insert(pubkeyHex, timestamp, sigHex, now)
	return &authResult{pubkey: pubkey, pubkeyHex: pubkeyHex}, nil
}

// UploadMessage is the canonical byte string signed for POST /logs.
func UploadMessage(filename, timestamp, pubkeyHex string) []byte {
	return []byte(filename + timestamp + pubkeyHex)
}

// DownloadMessage is the canonical byte string signed for GET /logs/{id}.
func DownloadMessage(logID, timestamp, pubkeyHex string) []byte {
	return []byte(logID + timestamp + pubkeyHex)
}
