package memory

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/upb/securestarter/models"
)

type principalRepo struct {
	s *Store
}

func (r *principalRepo) Create(ctx context.Context, p *models.Principal) error {
	defer r.s.enter(ctx)()
	if err := r.s.fault("Create"); err != nil {
		return err
	}
	if err := r.checkUnique(p); err != nil {
		return err
	}
	r.s.principals[p.ID] = clonePrincipal(p)
	return nil
}

func (r *principalRepo) checkUnique(p *models.Principal) error {
	for _, existing := range r.s.principals {
		if existing.Email == p.Email {
			return conflict("create principal", "principals_email_key")
		}
		if p.ExternalID != nil && existing.ExternalID != nil && *existing.ExternalID == *p.ExternalID {
			return conflict("create principal", "principals_external_id_key")
		}
	}
	return nil
}

func (r *principalRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Principal, error) {
	defer r.s.enter(ctx)()
	p, ok := r.s.principals[id]
	if !ok {
		return nil, notFound("get principal by id")
	}
	return clonePrincipal(p), nil
}

func (r *principalRepo) GetByEmail(ctx context.Context, email string) (*models.Principal, error) {
	defer r.s.enter(ctx)()
	email = models.NormalizeEmail(email)
	for _, p := range r.s.principals {
		if p.Email == email {
			return clonePrincipal(p), nil
		}
	}
	return nil, notFound("get principal by email")
}

func (r *principalRepo) GetByExternalID(ctx context.Context, externalID string) (*models.Principal, error) {
	defer r.s.enter(ctx)()
	for _, p := range r.s.principals {
		if p.ExternalID != nil && *p.ExternalID == externalID {
			return clonePrincipal(p), nil
		}
	}
	return nil, notFound("get principal by external id")
}

func (r *principalRepo) InsertExternalOrGet(ctx context.Context, candidate *models.Principal) (*models.Principal, bool, error) {
	defer r.s.enter(ctx)()
	if err := r.s.fault("InsertExternalOrGet"); err != nil {
		return nil, false, err
	}
	for _, p := range r.s.principals {
		if p.Email == candidate.Email {
			return clonePrincipal(p), false, nil
		}
	}
	if err := r.checkUnique(candidate); err != nil {
		return nil, false, err
	}
	r.s.principals[candidate.ID] = clonePrincipal(candidate)
	return clonePrincipal(candidate), true, nil
}

func (r *principalRepo) update(ctx context.Context, op string, id uuid.UUID, fn func(p *models.Principal) error) error {
	defer r.s.enter(ctx)()
	if err := r.s.fault(op); err != nil {
		return err
	}
	p, ok := r.s.principals[id]
	if !ok {
		return notFound(op)
	}
	if err := fn(p); err != nil {
		return err
	}
	p.UpdatedAt = now()
	return nil
}

func (r *principalRepo) BindExternalID(ctx context.Context, id uuid.UUID, externalID string) error {
	return r.update(ctx, "BindExternalID", id, func(p *models.Principal) error {
		for otherID, other := range r.s.principals {
			if otherID != id && other.ExternalID != nil && *other.ExternalID == externalID {
				return conflict("bind external id", "principals_external_id_key")
			}
		}
		p.ExternalID = &externalID
		p.Verified = true
		return nil
	})
}

func (r *principalRepo) UpdateNames(ctx context.Context, id uuid.UUID, firstName, lastName *string) error {
	return r.update(ctx, "UpdateNames", id, func(p *models.Principal) error {
		p.FirstName = cloneString(firstName)
		p.LastName = cloneString(lastName)
		return nil
	})
}

func (r *principalRepo) UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error {
	return r.update(ctx, "UpdatePassword", id, func(p *models.Principal) error {
		p.PasswordHash = &passwordHash
		return nil
	})
}

func (r *principalRepo) MarkVerified(ctx context.Context, id uuid.UUID) error {
	return r.update(ctx, "MarkVerified", id, func(p *models.Principal) error {
		p.Verified = true
		return nil
	})
}

type tokenRepo struct {
	s *Store
}

func (r *tokenRepo) Create(ctx context.Context, t *models.EphemeralToken) error {
	defer r.s.enter(ctx)()
	if err := r.s.fault("CreateToken"); err != nil {
		return err
	}
	if _, exists := r.s.tokens[t.Value]; exists {
		return conflict("create ephemeral token", "ephemeral_tokens_value_key")
	}
	if _, ok := r.s.principals[t.PrincipalID]; !ok {
		return notFound("create ephemeral token")
	}
	c := *t
	r.s.tokens[t.Value] = &c
	return nil
}

func (r *tokenRepo) GetByValue(ctx context.Context, value string, kind models.TokenKind) (*models.EphemeralToken, error) {
	defer r.s.enter(ctx)()
	t, ok := r.s.tokens[value]
	if !ok || t.Kind != kind {
		return nil, notFound("get ephemeral token")
	}
	c := *t
	return &c, nil
}

func (r *tokenRepo) ConsumeIfLive(ctx context.Context, value string, kind models.TokenKind, at time.Time) (*models.EphemeralToken, error) {
	defer r.s.enter(ctx)()
	t, ok := r.s.tokens[value]
	if !ok || t.Kind != kind || t.Used || !at.Before(t.ExpiresAt) {
		return nil, notFound("consume ephemeral token")
	}
	t.Used = true
	c := *t
	return &c, nil
}

func (r *tokenRepo) InvalidateOutstanding(ctx context.Context, principalID uuid.UUID, kind models.TokenKind, at time.Time) (int64, error) {
	defer r.s.enter(ctx)()
	var n int64
	for _, t := range r.s.tokens {
		if t.PrincipalID == principalID && t.Kind == kind && t.IsLive(at) {
			t.Used = true
			n++
		}
	}
	return n, nil
}

func (r *tokenRepo) DeleteExpired(ctx context.Context, at time.Time) (int64, error) {
	defer r.s.enter(ctx)()
	if err := r.s.fault("DeleteExpired"); err != nil {
		return 0, err
	}
	var n int64
	for v, t := range r.s.tokens {
		if t.ExpiresAt.Before(at) {
			delete(r.s.tokens, v)
			n++
		}
	}
	return n, nil
}
