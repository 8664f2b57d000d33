package memory

import (
	"context"

	"github.com/xenking/gmarket/internal/domain/auth"
	"github.com/xenking/gmarket/internal/domain/fault"
)

var _ auth.Repository = (*APIKeyRepository)(nil)

// APIKeyRepository stores hashed API keys.
type APIKeyRepository struct {
	s *Store
}

// APIKeys returns the store's API key repository.
func (s *Store) APIKeys() *APIKeyRepository {
	return &APIKeyRepository{s: s}
}

// Put stores k under its hash.
func (r *APIKeyRepository) Put(ctx context.Context, k auth.APIKeyInfo) {
	defer r.s.lock(ctx)()
	k.Scopes = append([]string(nil), k.Scopes...)
	r.s.st.apikeys[k.KeyHash] = k
}

// FindByHash looks up a key by its HMAC hash.
func (r *APIKeyRepository) FindByHash(ctx context.Context, hash string) (*auth.APIKeyInfo, error) {
	defer r.s.lock(ctx)()
	k, ok := r.s.st.apikeys[hash]
	if !ok {
		return nil, fault.NotFoundf("api key")
	}
	k.Scopes = append([]string(nil), k.Scopes...)
	return &k, nil
}
