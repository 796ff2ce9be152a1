package auth

import (
	"context"
	"sync"
	"time"

	"github.com/djsadd/AcademicQuestionBot/internal/models"
)

// IdentityResolver turns a platform bearer token into the identity it
// belongs to. Implemented by platform.Client.
type IdentityResolver interface {
	Me(ctx context.Context, token string) (*models.Identity, error)
}

// Service resolves bearer tokens into identities, caching positive
// results so hot request paths do not hit the platform on every call.
type Service struct {
	resolver IdentityResolver
	ttl      time.Duration

	mu    sync.Mutex
	cache map[string]cachedIdentity
}

type cachedIdentity struct {
	identity *models.Identity
	expires  time.Time
}

func NewService(resolver IdentityResolver, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Service{
		resolver: resolver,
		ttl:      ttl,
		cache:    make(map[string]cachedIdentity),
	}
}

// Resolve returns the identity behind the token, consulting the cache
// first. Failures are never cached.
func (s *Service) Resolve(ctx context.Context, token string) (*models.Identity, error) {
	s.mu.Lock()
	entry, ok := s.cache[token]
	if ok && time.Now().Before(entry.expires) {
		s.mu.Unlock()
		return entry.identity, nil
	}
	if ok {
		delete(s.cache, token)
	}
	s.mu.Unlock()

	identity, err := s.resolver.Me(ctx, token)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.cache[token] = cachedIdentity{identity: identity, expires: time.Now().Add(s.ttl)}
	s.mu.Unlock()
	return identity, nil
}

// Forget drops a cached token, e.g. after the platform rejected it.
func (s *Service) Forget(token string) {
	s.mu.Lock()
	delete(s.cache, token)
	s.mu.Unlock()
}
