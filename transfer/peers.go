package transfer

import (
	"bufio"
	"context"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/flyingMooncake/SentinelKarma-sub000/crypto"
)

// AuthorizedPeers holds the set of peer public keys allowed to call the
// authenticated endpoints. The set is loaded from a text file, one hex key
// per line, and refreshed in the background so an external process can
// rotate the roster without a restart.
type AuthorizedPeers struct {
	path string
	log  *slog.Logger

	mu   sync.RWMutex
	keys map[string]struct{}
	// pinned keys are added programmatically (the node's own identity)
	// and survive roster reloads.
	pinned map[string]struct{}
}

// NewAuthorizedPeers loads the roster from path. Missing file means an
// empty roster, not an error, so a fresh deployment can start before its
// first sync.
func NewAuthorizedPeers(path string, log *slog.Logger) *AuthorizedPeers {
	if log == nil {
		log = slog.Default()
	}
	p := &AuthorizedPeers{
		path:   path,
		log:    log,
		keys:   map[string]struct{}{},
		pinned: map[string]struct{}{},
	}
	p.Reload()
	return p
}

// Contains reports whether the hex-encoded public key is authorized.
func (p *AuthorizedPeers) Contains(pubkey string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	key := strings.ToLower(pubkey)
	if _, ok := p.pinned[key]; ok {
		return true
	}
	_, ok := p.keys[key]
	return ok
}

// Add pins a key directly, bypassing the file. Pinned keys are kept across
// Reload; used for the node's own identity and by tests.
func (p *AuthorizedPeers) Add(pubkey crypto.PublicKey) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pinned[strings.ToLower(pubkey.String())] = struct{}{}
}

// Len returns the roster size including pinned keys.
func (p *AuthorizedPeers) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	n := len(p.pinned)
	for key := range p.keys {
		if _, ok := p.pinned[key]; !ok {
			n++
		}
	}
	return n
}

// Reload re-reads the roster file. Lines that are blank, comments, or not
// valid hex keys are skipped with a warning. A read error keeps the
// previous roster.
func (p *AuthorizedPeers) Reload() {
	if p.path == "" {
		return
	}
	f, err := os.Open(p.path)
	if err != nil {
		if !os.IsNotExist(err) {
			p.log.Warn("reading authorized peers file", "path", p.path, "err", err)
		}
		return
	}
	defer f.Close()

	keys := map[string]struct{}{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if _, err := crypto.NewPublicKeyFromString(line); err != nil {
			p.log.Warn("skipping invalid peer key", "path", p.path, "err", err)
			continue
		}
		keys[strings.ToLower(line)] = struct{}{}
	}
	if err := scanner.Err(); err != nil {
		p.log.Warn("reading authorized peers file", "path", p.path, "err", err)
		return
	}

	p.mu.Lock()
	p.keys = keys
	p.mu.Unlock()
}

// RunRefresh reloads the roster on an interval until ctx is cancelled.
func (p *AuthorizedPeers) RunRefresh(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Reload()
		}
	}
}
