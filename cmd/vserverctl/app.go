package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/fgeck/vserverctl/internal/config"
	"github.com/fgeck/vserverctl/internal/models"
	"github.com/fgeck/vserverctl/internal/services/netcup"
	"github.com/fgeck/vserverctl/internal/services/qbittorrent"
	"github.com/fgeck/vserverctl/internal/services/resolver"
	"github.com/rs/zerolog/log"
)

var errConfigRequired = errors.New("config file is required (--config)")

// app bundles the collaborators of one invocation.
type app struct {
	cfg       *models.Config
	control   netcup.Service
	resolver  resolver.Service
	downloads qbittorrent.Service
}

func loadConfig() (*models.Config, error) {
	if configFile == "" {
		log.Error().Msg("config file is required")
		return nil, errConfigRequired
	}

	parser := config.NewParser()
	cfg, err := parser.LoadFile(configFile)
	if err != nil {
		log.Error().Err(err).Str("file", configFile).Msg("failed to load config")
		return nil, err
	}

	log.Debug().Str("config", configFile).Str("endpoint", cfg.Netcup.Endpoint).Msg("configuration loaded")
	return cfg, nil
}

func newApp() (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	control := netcup.New(log.Logger, cfg.Netcup)
	return &app{
		cfg:       cfg,
		control:   control,
		resolver:  resolver.New(log.Logger, control),
		downloads: qbittorrent.New(log.Logger, cfg.QBittorrent),
	}, nil
}

// identities builds a fresh identity map for this invocation.
func (a *app) identities(ctx context.Context) (models.IdentityMap, error) {
	m, err := a.resolver.Refresh(ctx)
	if err != nil {
		log.Error().Err(err).Msg("failed to load servers")
		return nil, err
	}
	return m, nil
}

// lookup resolves a single nickname against a fresh identity map.
func (a *app) lookup(ctx context.Context, nickname string) (models.ServerRecord, error) {
	m, err := a.identities(ctx)
	if err != nil {
		return models.ServerRecord{}, err
	}
	record, err := a.resolver.Resolve(m, nickname)
	if err != nil {
		return models.ServerRecord{}, notFound(err, nickname)
	}
	return record, nil
}

func notFound(err error, nickname string) error {
	if errors.Is(err, models.ErrNotFound) {
		return fmt.Errorf("server %q not found: %w", nickname, models.ErrNotFound)
	}
	return err
}
