package auth

import (
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// RevocationList tracks bearer tokens invalidated before their expiry.
// Entries are dropped once the token would have expired anyway.
type RevocationList struct {
	entries *gocache.Cache
}

func NewRevocationList() *RevocationList {
	return &RevocationList{entries: gocache.New(time.Hour, 5*time.Minute)}
}

// Revoke marks the token ID as revoked until expiresAt.
func (r *RevocationList) Revoke(jti string, expiresAt time.Time) {
	ttl := time.Until(expiresAt)
	if jti == "" || ttl <= 0 {
		return
	}
	r.entries.Set(jti, struct{}{}, ttl)
}

func (r *RevocationList) IsRevoked(jti string) bool {
	_, ok := r.entries.Get(jti)
	return ok
}

// Count returns the number of tracked revocations.
func (r *RevocationList) Count() int {
	return r.entries.ItemCount()
}
