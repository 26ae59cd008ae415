// Package memory provides an in-process implementation of the repository
// interfaces. It mirrors the PostgreSQL semantics the services rely on: unique
// email and external id, conditional token consumption and transactional
// rollback. Service tests run against it, including the concurrent ones.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/upb/securestarter/models"
	"github.com/upb/securestarter/repositories"
)

// Store holds principals and ephemeral tokens behind a single mutex.
// A transaction holds the mutex from Begin until Commit or Rollback.
type Store struct {
	mu         sync.Mutex
	principals map[uuid.UUID]*models.Principal
	tokens     map[string]*models.EphemeralToken
	faults     map[string]error
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{
		principals: make(map[uuid.UUID]*models.Principal),
		tokens:     make(map[string]*models.EphemeralToken),
		faults:     make(map[string]error),
	}
}

// Repositories returns repository views over the store
func (s *Store) Repositories() *repositories.Repositories {
	return &repositories.Repositories{
		Principals:      &principalRepo{s: s},
		EphemeralTokens: &tokenRepo{s: s},
	}
}

// TransactionManager returns a transaction manager over the store
func (s *Store) TransactionManager() repositories.TransactionManager {
	return &txManager{s: s}
}

// InjectFault makes the next call of the named operation fail with err.
// Operation names match the repository method names.
func (s *Store) InjectFault(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults[op] = err
}

// Principal returns a copy of the stored principal, for assertions
func (s *Store) Principal(id uuid.UUID) (*models.Principal, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.principals[id]
	if !ok {
		return nil, false
	}
	return clonePrincipal(p), true
}

// Token returns a copy of the stored token, for assertions
func (s *Store) Token(value string) (*models.EphemeralToken, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tokens[value]
	if !ok {
		return nil, false
	}
	c := *t
	return &c, true
}

// Tokens returns copies of all tokens owned by a principal
func (s *Store) Tokens(principalID uuid.UUID) []*models.EphemeralToken {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.EphemeralToken
	for _, t := range s.tokens {
		if t.PrincipalID == principalID {
			c := *t
			out = append(out, &c)
		}
	}
	return out
}

type txKey struct{}

// enter acquires the store lock unless ctx already belongs to a transaction on this store
func (s *Store) enter(ctx context.Context) func() {
	if tx, ok := ctx.Value(txKey{}).(*transaction); ok && tx.s == s && !tx.done {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

// fault pops an injected fault. Callers must hold the lock.
func (s *Store) fault(op string) error {
	if err, ok := s.faults[op]; ok {
		delete(s.faults, op)
		return err
	}
	return nil
}

func (s *Store) snapshot() (map[uuid.UUID]*models.Principal, map[string]*models.EphemeralToken) {
	principals := make(map[uuid.UUID]*models.Principal, len(s.principals))
	for id, p := range s.principals {
		principals[id] = clonePrincipal(p)
	}
	tokens := make(map[string]*models.EphemeralToken, len(s.tokens))
	for v, t := range s.tokens {
		c := *t
		tokens[v] = &c
	}
	return principals, tokens
}

type txManager struct {
	s *Store
}

func (m *txManager) Begin(ctx context.Context) (repositories.Transaction, error) {
	m.s.mu.Lock()
	principals, tokens := m.s.snapshot()
	tx := &transaction{s: m.s, principals: principals, tokens: tokens}
	tx.ctx = context.WithValue(ctx, txKey{}, tx)
	return tx, nil
}

func (m *txManager) InTransaction(ctx context.Context, fn func(ctx context.Context, tx repositories.Transaction) error) error {
	if outer, ok := ctx.Value(txKey{}).(*transaction); ok && outer.s == m.s && !outer.done {
		return fn(ctx, outer)
	}

	tx, err := m.Begin(ctx)
	if err != nil {
		return err
	}
	t := tx.(*transaction)

	if err := fn(t.ctx, t); err != nil {
		_ = t.Rollback()
		return err
	}
	return t.Commit()
}

type transaction struct {
	s          *Store
	ctx        context.Context
	principals map[uuid.UUID]*models.Principal
	tokens     map[string]*models.EphemeralToken
	done       bool
}

func (t *transaction) Commit() error {
	if t.done {
		return fmt.Errorf("failed to commit transaction: already finished")
	}
	t.done = true
	t.s.mu.Unlock()
	return nil
}

func (t *transaction) Rollback() error {
	if t.done {
		return nil
	}
	t.done = true
	t.s.principals = t.principals
	t.s.tokens = t.tokens
	t.s.mu.Unlock()
	return nil
}

func (t *transaction) Context() context.Context {
	return t.ctx
}

func clonePrincipal(p *models.Principal) *models.Principal {
	c := *p
	c.PasswordHash = cloneString(p.PasswordHash)
	c.FirstName = cloneString(p.FirstName)
	c.LastName = cloneString(p.LastName)
	c.ExternalID = cloneString(p.ExternalID)
	return &c
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}

func notFound(op string) error {
	return fmt.Errorf("%s: %w", op, repositories.ErrNotFound)
}

func conflict(op, constraint string) error {
	return fmt.Errorf("%s: %w (%s)", op, repositories.ErrConflict, constraint)
}

func now() time.Time {
	return time.Now().UTC()
}
