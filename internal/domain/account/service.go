package account

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/elanza/clinic/internal/platform/apperr"
	"github.com/elanza/clinic/internal/platform/auth"
	"github.com/elanza/clinic/internal/platform/events"
	"github.com/elanza/clinic/internal/platform/identity"
	"github.com/elanza/clinic/pkg/pagination"
)

// Service manages user profiles and roles. Every write publishes
// events.TopicUserWritten so the role claim follows the stored role.
type Service struct {
	users  UserRepository
	claims identity.ClaimsStore
	pub    events.Publisher
	logger zerolog.Logger
}

// NewService builds the account service. claims may be nil when identities
// are provisioned elsewhere.
func NewService(users UserRepository, claims identity.ClaimsStore, pub events.Publisher, logger zerolog.Logger) *Service {
	return &Service{
		users:  users,
		claims: claims,
		pub:    pub,
		logger: logger.With().Str("component", "account").Logger(),
	}
}

// UpsertSelf creates or updates the caller's own profile. New users start
// with the default role; existing users keep theirs.
func (s *Service) UpsertSelf(ctx context.Context, actor *auth.Actor, in ProfileInput) (*User, error) {
	if actor == nil || actor.UserID == "" {
		return nil, apperr.New(apperr.Unauthenticated, "authentication required")
	}
	fields := map[string]interface{}{"user_id": actor.UserID}

	if s.claims != nil {
		if err := s.claims.Ensure(ctx, actor.UserID); err != nil {
			return nil, apperr.Surface(s.logger, "user.upsert", err, fields)
		}
	}
	u := &User{
		ID:               actor.UserID,
		Role:             auth.DefaultRole,
		Email:            strings.ToLower(strings.TrimSpace(in.Email)),
		Nombre:           strings.TrimSpace(in.Nombre),
		ApPaterno:        strings.TrimSpace(in.ApPaterno),
		ApMaterno:        strings.TrimSpace(in.ApMaterno),
		Telefono:         strings.TrimSpace(in.Telefono),
		Sexo:             in.Sexo,
		FechaNacimiento:  in.FechaNacimiento,
		AuthProvider:     in.AuthProvider,
		PerfilCompletado: true,
	}
	if err := s.users.UpsertProfile(ctx, u); err != nil {
		return nil, apperr.Surface(s.logger, "user.upsert", err, fields)
	}
	s.publish(ctx, u.ID, &u.Role, false)
	return u, nil
}

func (s *Service) Get(ctx context.Context, actor *auth.Actor, id string) (*User, error) {
	if actor == nil {
		return nil, apperr.New(apperr.Unauthenticated, "authentication required")
	}
	if !actor.CanAccess(id) {
		return nil, apperr.New(apperr.PermissionDenied, "you can only view your own profile")
	}
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, apperr.Surface(s.logger, "user.get", err, map[string]interface{}{"user_id": id})
	}
	return u, nil
}

// List returns one page of users ordered by email. The cursor key is the
// email of the last user on the previous page.
func (s *Service) List(ctx context.Context, role auth.Role, search string, p pagination.Params) (*pagination.Page, error) {
	if role != "" && !role.Valid() {
		return nil, apperr.Newf(apperr.InvalidArgument, "unknown role %q", role)
	}
	f := ListFilter{Role: role, Search: strings.TrimSpace(search), Limit: p.Fetch()}
	if p.After != nil {
		f.AfterEmail, f.AfterID = p.After.Key, p.After.ID
	}
	rows, err := s.users.List(ctx, f)
	if err != nil {
		return nil, apperr.Surface(s.logger, "user.list", err, map[string]interface{}{"role": string(role)})
	}
	items, hasMore := pagination.Trim(rows, p)
	if items == nil {
		items = []*User{}
	}
	var next *pagination.Cursor
	if hasMore {
		last := items[len(items)-1]
		next = &pagination.Cursor{Key: last.Email, ID: last.ID}
	}
	return pagination.NewPage(items, next, hasMore), nil
}

func (s *Service) UpdateRole(ctx context.Context, id string, role auth.Role) (*User, error) {
	if !role.Valid() {
		return nil, apperr.Newf(apperr.InvalidArgument, "unknown role %q", role)
	}
	u, err := s.users.UpdateRole(ctx, id, role)
	if err != nil {
		return nil, apperr.Surface(s.logger, "user.role", err, map[string]interface{}{"user_id": id})
	}
	s.logger.Info().Str("user_id", id).Str("role", string(role)).Msg("role updated")
	s.publish(ctx, u.ID, &u.Role, false)
	return u, nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.users.Delete(ctx, id); err != nil {
		return apperr.Surface(s.logger, "user.delete", err, map[string]interface{}{"user_id": id})
	}
	s.logger.Info().Str("user_id", id).Msg("user deleted")
	s.publish(ctx, id, nil, true)
	return nil
}

// publish never fails the write that triggered it.
func (s *Service) publish(ctx context.Context, uid string, role *auth.Role, deleted bool) {
	msg := UserWritten{UserID: uid, Deleted: deleted}
	if role != nil {
		r := string(*role)
		msg.Role = &r
	}
	if err := s.pub.Publish(ctx, events.TopicUserWritten, uid, msg); err != nil {
		s.logger.Error().Err(err).Str("user_id", uid).Msg("publish user.written failed")
	}
}
