package account

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/elanza/clinic/internal/platform/apperr"
	"github.com/elanza/clinic/internal/platform/auth"
	"github.com/elanza/clinic/internal/platform/events"
	"github.com/elanza/clinic/internal/platform/identity"
	"github.com/elanza/clinic/internal/platform/metrics"
)

// ClaimSyncer mirrors each user's stored role onto the role claim of their
// identity. It consumes events.TopicUserWritten.
type ClaimSyncer struct {
	users  UserRepository
	claims identity.ClaimsStore
	rec    metrics.Recorder
	logger zerolog.Logger
}

func NewClaimSyncer(users UserRepository, claims identity.ClaimsStore, rec metrics.Recorder, logger zerolog.Logger) *ClaimSyncer {
	return &ClaimSyncer{
		users:  users,
		claims: claims,
		rec:    rec,
		logger: logger.With().Str("component", "claim-sync").Logger(),
	}
}

// Handle is the events.Handler for user.written.
func (s *ClaimSyncer) Handle(ctx context.Context, ev events.Event) error {
	var msg UserWritten
	if err := ev.Decode(&msg); err != nil {
		return err
	}
	if msg.UserID == "" {
		msg.UserID = ev.Key
	}
	return s.apply(ctx, msg)
}

// SyncUser re-derives the claim for uid from the stored user. A missing user
// clears the claim.
func (s *ClaimSyncer) SyncUser(ctx context.Context, uid string) error {
	u, err := s.users.GetByID(ctx, uid)
	if apperr.Is(err, apperr.NotFound) {
		return s.apply(ctx, UserWritten{UserID: uid, Deleted: true})
	}
	if err != nil {
		return fmt.Errorf("load user %s: %w", uid, err)
	}
	role := string(u.Role)
	return s.apply(ctx, UserWritten{UserID: uid, Role: &role})
}

func (s *ClaimSyncer) apply(ctx context.Context, msg UserWritten) error {
	log := s.logger.With().Str("user_id", msg.UserID).Logger()

	if msg.Deleted {
		err := s.claims.SetRoleClaim(ctx, msg.UserID, nil)
		switch {
		case errors.Is(err, apperr.ErrIdentityNotFound):
			log.Warn().Msg("identity missing while clearing role claim")
			s.rec.ClaimSync("identity-missing")
			return nil
		case err != nil:
			s.rec.ClaimSync("error")
			return fmt.Errorf("clear role claim: %w", err)
		}
		log.Info().Msg("role claim cleared")
		s.rec.ClaimSync("cleared")
		return nil
	}

	role := string(auth.DefaultRole)
	if msg.Role != nil && *msg.Role != "" {
		role = *msg.Role
	}

	current, set, err := s.claims.RoleClaim(ctx, msg.UserID)
	if errors.Is(err, apperr.ErrIdentityNotFound) {
		log.Warn().Msg("identity missing, role claim not synced")
		s.rec.ClaimSync("identity-missing")
		return nil
	}
	if err != nil {
		s.rec.ClaimSync("error")
		return fmt.Errorf("read role claim: %w", err)
	}
	if set && current == role {
		s.rec.ClaimSync("unchanged")
		return nil
	}

	if err := s.claims.SetRoleClaim(ctx, msg.UserID, &role); err != nil {
		if errors.Is(err, apperr.ErrIdentityNotFound) {
			log.Warn().Msg("identity missing, role claim not synced")
			s.rec.ClaimSync("identity-missing")
			return nil
		}
		s.rec.ClaimSync("error")
		return fmt.Errorf("set role claim: %w", err)
	}
	log.Info().Str("role", role).Msg("role claim updated")
	s.rec.ClaimSync("updated")
	return nil
}
