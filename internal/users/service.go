package users

import (
	"context"
	"errors"
	"fmt"

	"github.com/scanara-ai/scanara-backend/internal/docstore"
	"github.com/scanara-ai/scanara-backend/internal/models"
)

var errProfileNotFound = models.NotFound("Profile not found")

type Service struct {
	store docstore.Store
}

func NewService(store docstore.Store) *Service {
	return &Service{store: store}
}

func (s *Service) Get(ctx context.Context, uid string) (*models.UserProfile, error) {
	doc, err := s.store.Get(ctx, models.CollectionUsers, uid)
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, errProfileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}
	return decodeProfile(doc)
}

// Upsert creates the caller's profile or merges the input into the existing
// one. createdAt is only stamped on the first write.
func (s *Service) Upsert(ctx context.Context, uid string, in models.ProfileInput) (*models.UserProfile, error) {
	fields := map[string]any{
		"firstName":   in.FirstName,
		"lastName":    in.LastName,
		"phoneNumber": in.PhoneNumber,
		"email":       in.Email,
		"companyName": docstore.Optional(in.CompanyName),
	}
	return s.write(ctx, uid, fields)
}

// Update applies a patch to an existing profile. Empty names and phone
// numbers keep their stored values.
func (s *Service) Update(ctx context.Context, uid string, patch models.ProfilePatch) (*models.UserProfile, error) {
	existing, err := s.Get(ctx, uid)
	if err != nil {
		return nil, err
	}

	fields := map[string]any{
		"firstName":   firstNonEmpty(patch.FirstName, existing.FirstName),
		"lastName":    firstNonEmpty(patch.LastName, existing.LastName),
		"phoneNumber": firstNonEmpty(patch.PhoneNumber, existing.PhoneNumber),
		"companyName": docstore.Optional(patch.CompanyName),
	}
	return s.write(ctx, uid, fields)
}

func (s *Service) write(ctx context.Context, uid string, fields map[string]any) (*models.UserProfile, error) {
	_, err := s.store.Get(ctx, models.CollectionUsers, uid)
	switch {
	case errors.Is(err, docstore.ErrNotFound):
		fields["createdAt"] = docstore.ServerTimestamp
	case err != nil:
		return nil, fmt.Errorf("get profile: %w", err)
	}
	fields["updatedAt"] = docstore.ServerTimestamp

	if err := s.store.Set(ctx, models.CollectionUsers, uid, docstore.StripUndefined(fields), true); err != nil {
		return nil, fmt.Errorf("save profile: %w", err)
	}
	return s.Get(ctx, uid)
}

func decodeProfile(doc *docstore.Document) (*models.UserProfile, error) {
	var p models.UserProfile
	if err := docstore.Decode(doc, &p); err != nil {
		return nil, err
	}
	p.UID = doc.ID
	p.CreatedAt = docstore.NormalizeTimestamp(p.CreatedAt)
	p.UpdatedAt = docstore.NormalizeTimestamp(p.UpdatedAt)
	return &p, nil
}

func firstNonEmpty(v, fallback string) string {
	if v != "" {
		return v
	}
	return fallback
}
