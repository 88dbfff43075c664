package service

import (
	"context"
	"strings"

	tenantdomain "github.com/croplytics/croplytics/internal/tenant/domain"
)

func (s *Service) AddNote(ctx context.Context, req tenantdomain.AddNoteRequest) (tenantdomain.TenantNote, error) {
	tenant, err := s.Get(ctx, req.TenantID)
	if err != nil {
		return tenantdomain.TenantNote{}, err
	}

	body := strings.TrimSpace(req.Body)
	if body == "" {
		return tenantdomain.TenantNote{}, tenantdomain.ErrInvalidNote
	}
	author := strings.TrimSpace(req.AuthorID)
	if author == "" {
		return tenantdomain.TenantNote{}, tenantdomain.ErrInvalidNote
	}

	now := s.clock.Now()
	note := tenantdomain.TenantNote{
		ID:        s.genID.Generate(),
		TenantID:  tenant.ID,
		AuthorID:  author,
		Body:      body,
		Pinned:    req.Pinned,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.InsertNote(ctx, s.db, &note); err != nil {
		return tenantdomain.TenantNote{}, err
	}
	return note, nil
}

func (s *Service) ListNotes(ctx context.Context, tenantID string) ([]tenantdomain.TenantNote, error) {
	tenant, err := s.Get(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return s.repo.ListNotes(ctx, s.db, tenant.ID)
}

func (s *Service) DeleteNote(ctx context.Context, tenantID, noteID string) error {
	tenant, err := s.Get(ctx, tenantID)
	if err != nil {
		return err
	}
	id, err := parseID(noteID)
	if err != nil {
		return tenantdomain.ErrNoteNotFound
	}

	deleted, err := s.repo.DeleteNote(ctx, s.db, tenant.ID, id)
	if err != nil {
		return err
	}
	if !deleted {
		return tenantdomain.ErrNoteNotFound
	}
	return nil
}
