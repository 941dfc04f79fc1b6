// Package resolver maps server nicknames to control API identifiers.
package resolver

import (
	"context"
	"fmt"
	"net/netip"

	"github.com/fgeck/vserverctl/internal/models"
	"github.com/rs/zerolog"
)

// ControlAPI is the subset of the control API the resolver needs.
type ControlAPI interface {
	ListServers(ctx context.Context) ([]string, error)
	GetServerInfo(ctx context.Context, identifier string) (*models.ServerDetails, error)
}

// Service defines the interface for identity resolution.
type Service interface {
	Refresh(ctx context.Context) (models.IdentityMap, error)
	Resolve(m models.IdentityMap, nickname string) (models.ServerRecord, error)
}

// Impl implements the resolver Service interface.
type Impl struct {
	api    ControlAPI
	logger zerolog.Logger
}

// New creates a new resolver service.
func New(logger zerolog.Logger, api ControlAPI) *Impl {
	return &Impl{
		api:    api,
		logger: logger,
	}
}

// Refresh builds a new identity map from the control API. A failed detail
// lookup degrades that server to its identifier; a failed listing or a
// cancelled ctx fails the whole refresh and no map is returned.
func (s *Impl) Refresh(ctx context.Context) (models.IdentityMap, error) {
	ids, err := s.api.ListServers(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing servers: %w", err)
	}

	m := make(models.IdentityMap, len(ids))
	for _, id := range ids {
		record := models.ServerRecord{Identifier: id}

		details, err := s.api.GetServerInfo(ctx, id)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, fmt.Errorf("fetching details of %s: %w", id, ctxErr)
			}
			s.logger.Warn().Err(err).Str("identifier", id).Msg("failed to fetch server details, using identifier as name")
		} else {
			record.Nickname = details.Nickname
			record.HasNickname = details.Nickname != ""
			record.Address = firstAddress(details.IPv4)
		}

		name := record.Name()
		if prev, ok := m[name]; ok {
			// Later servers win; nicknames are not unique on the provider side.
			s.logger.Warn().
				Str("server", name).
				Str("replaced", prev.Identifier).
				Str("identifier", id).
				Msg("duplicate server name")
		}
		m[name] = record
	}

	s.logger.Debug().Int("servers", len(ids)).Int("names", len(m)).Msg("identity map refreshed")
	return m, nil
}

// Resolve looks up a nickname without any network call. It returns
// models.ErrNotFound when the name is absent.
func (s *Impl) Resolve(m models.IdentityMap, nickname string) (models.ServerRecord, error) {
	record, ok := m[nickname]
	if !ok {
		return models.ServerRecord{}, fmt.Errorf("%w: %q", models.ErrNotFound, nickname)
	}
	return record, nil
}

func firstAddress(candidates []string) netip.Addr {
	for _, c := range candidates {
		if addr, err := netip.ParseAddr(c); err == nil {
			return addr
		}
	}
	return netip.Addr{}
}
