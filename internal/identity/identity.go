// ABOUTME: Authenticated identity value and the in-memory credential holder.
// ABOUTME: The holder is the single shared credential source for all transports.

package identity

import (
	"sync"
)

// Identity is the authenticated user produced by completing verification.
type Identity struct {
	UserID      string
	PhoneNumber string
}

// Holder stores the current bearer credential and identity. It implements
// transport.CredentialSource. There is exactly one live credential; replacing
// it affects every subsystem that shares the holder.
type Holder struct {
	mu       sync.RWMutex
	token    string
	identity *Identity
}

// NewHolder creates an empty, unauthenticated holder.
func NewHolder() *Holder {
	return &Holder{}
}

// Token returns the current bearer token, or "" when unauthenticated.
func (h *Holder) Token() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.token
}

// Identity returns the current identity, or nil when unauthenticated.
func (h *Holder) Identity() *Identity {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.identity == nil {
		return nil
	}
	id := *h.identity
	return &id
}

// Set stores a credential and the identity it authenticates.
func (h *Holder) Set(token string, id Identity) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.token = token
	h.identity = &id
}

// SetToken stores a credential whose identity is not yet known, such as a
// token restored from disk before the session has been probed.
func (h *Holder) SetToken(token string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.token = token
}

// Clear drops the credential and identity.
func (h *Holder) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.token = ""
	h.identity = nil
}
