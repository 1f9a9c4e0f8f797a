// File: power/domain.go
// Package power: in-process power-domain provider.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package power

import (
	"sync"

	"github.com/momentics/hioload-vram/api"
)

// DomainService is a reference-counted stand-in for the host's
// power-domain framework, used when the embedder does not supply one.
type DomainService struct {
	mu   sync.Mutex
	next api.PowerDomainToken
	held map[api.PowerDomainToken]api.PowerDomain
}

var _ api.PowerDomainService = (*DomainService)(nil)

// NewDomainService creates an empty provider.
func NewDomainService() *DomainService {
	return &DomainService{held: make(map[api.PowerDomainToken]api.PowerDomain)}
}

// Acquire implements api.PowerDomainService.
func (s *DomainService) Acquire(d api.PowerDomain) (api.PowerDomainToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	tok := s.next
	s.held[tok] = d
	return tok, nil
}

// Release implements api.PowerDomainService. Unknown tokens are
// ignored.
func (s *DomainService) Release(d api.PowerDomain, tok api.PowerDomainToken) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if dom, ok := s.held[tok]; ok && dom == d {
		delete(s.held, tok)
	}
}

// Held returns the number of outstanding references on a domain.
func (s *DomainService) Held(d api.PowerDomain) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, dom := range s.held {
		if dom == d {
			n++
		}
	}
	return n
}
