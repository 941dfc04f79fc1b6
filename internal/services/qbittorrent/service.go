// Package qbittorrent provides pause and resume control over a qBittorrent Web API.
package qbittorrent

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/fgeck/vserverctl/internal/models"
	"github.com/rs/zerolog"
)

const sessionCookie = "SID"

// Service defines the interface for download client operations.
type Service interface {
	Login(ctx context.Context, baseURL string) (*models.DownloadSession, error)
	PauseAll(ctx context.Context, session *models.DownloadSession) error
	ResumeAll(ctx context.Context, session *models.DownloadSession) error
	Version(ctx context.Context, session *models.DownloadSession) (string, error)
}

// HTTPClient allows mocking HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Impl implements the qBittorrent Service interface.
type Impl struct {
	httpClient HTTPClient
	logger     zerolog.Logger
	cfg        models.QBittorrentConfig
	now        func() time.Time
}

// New creates a new qBittorrent service.
func New(logger zerolog.Logger, cfg models.QBittorrentConfig) *Impl {
	return &Impl{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			// The login response carries the cookie; following redirects would drop it.
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		logger: logger,
		cfg:    cfg,
		now:    time.Now,
	}
}

// NewWithClient creates a new qBittorrent service with a custom HTTP client (for testing).
func NewWithClient(logger zerolog.Logger, cfg models.QBittorrentConfig, httpClient HTTPClient) *Impl {
	return &Impl{
		httpClient: httpClient,
		logger:     logger,
		cfg:        cfg,
		now:        time.Now,
	}
}

// TargetURL returns the Web API base URL of the download client running on server.
// An explicit hosts entry for the nickname or identifier wins over the address.
func TargetURL(cfg models.QBittorrentConfig, server models.ServerRecord) (string, error) {
	for _, key := range []string{server.Name(), server.Identifier} {
		if u, ok := cfg.Hosts[key]; ok {
			return u, nil
		}
	}

	if !server.Address.IsValid() {
		return "", fmt.Errorf("no address known for server %q and no qbittorrent host configured", server.Name())
	}

	u := url.URL{
		Scheme: cfg.Scheme,
		Host:   net.JoinHostPort(server.Address.String(), strconv.Itoa(cfg.Port)),
	}
	return u.String(), nil
}

// Login opens a session against the download client at baseURL. Clients
// configured without a username are assumed to bypass authentication.
func (s *Impl) Login(ctx context.Context, baseURL string) (*models.DownloadSession, error) {
	session := &models.DownloadSession{
		BaseURL:   strings.TrimRight(baseURL, "/"),
		CreatedAt: s.now(),
	}

	if s.cfg.Username == "" {
		s.logger.Debug().Str("url", session.BaseURL).Msg("no username configured, skipping login")
		return session, nil
	}

	form := url.Values{}
	form.Set("username", s.cfg.Username)
	form.Set("password", s.cfg.Password)

	resp, body, err := s.post(ctx, session, "/api/v2/auth/login", form)
	if err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}

	if resp.StatusCode == http.StatusForbidden {
		return nil, fmt.Errorf("login: %w: client refused login (too many failed attempts?)", models.ErrAuth)
	}
	if err := statusError(resp.StatusCode); err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	if strings.TrimSpace(body) != "Ok." {
		return nil, fmt.Errorf("login: %w: invalid username or password", models.ErrAuth)
	}

	for _, c := range resp.Cookies() {
		if c.Name == sessionCookie {
			session.SID = c.Value
		}
	}
	if session.SID == "" {
		return nil, fmt.Errorf("login: %w: no session cookie in response", models.ErrAuth)
	}

	s.logger.Debug().Str("url", session.BaseURL).Msg("download client session opened")
	return session, nil
}

// PauseAll pauses every torrent.
func (s *Impl) PauseAll(ctx context.Context, session *models.DownloadSession) error {
	s.logger.Info().Str("url", session.BaseURL).Msg("pausing all transfers")
	return s.torrentsAction(ctx, session, "pause", "stop")
}

// ResumeAll resumes every torrent.
func (s *Impl) ResumeAll(ctx context.Context, session *models.DownloadSession) error {
	s.logger.Info().Str("url", session.BaseURL).Msg("resuming all transfers")
	return s.torrentsAction(ctx, session, "resume", "start")
}

// Version returns the application version reported by the client.
func (s *Impl) Version(ctx context.Context, session *models.DownloadSession) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, session.BaseURL+"/api/v2/app/version", nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	s.decorate(req, session)

	resp, body, err := s.do(req)
	if err != nil {
		return "", fmt.Errorf("version: %w", err)
	}
	if resp.StatusCode == http.StatusForbidden {
		return "", fmt.Errorf("version: %w: session rejected", models.ErrAuth)
	}
	if err := statusError(resp.StatusCode); err != nil {
		return "", fmt.Errorf("version: %w", err)
	}
	return strings.TrimSpace(body), nil
}

// torrentsAction calls a bulk torrents endpoint. qBittorrent 5 renamed
// pause/resume to stop/start, so a 404 on the first name retries the second.
func (s *Impl) torrentsAction(ctx context.Context, session *models.DownloadSession, name, fallback string) error {
	form := url.Values{}
	form.Set("hashes", "all")

	resp, _, err := s.post(ctx, session, "/api/v2/torrents/"+name, form)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}

	if resp.StatusCode == http.StatusNotFound {
		s.logger.Debug().Str("endpoint", name).Str("fallback", fallback).Msg("endpoint not found, retrying with newer name")
		name = fallback
		resp, _, err = s.post(ctx, session, "/api/v2/torrents/"+name, form)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}

	if resp.StatusCode == http.StatusForbidden {
		return fmt.Errorf("%s: %w: session rejected", name, models.ErrAuth)
	}
	if err := statusError(resp.StatusCode); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

func (s *Impl) post(ctx context.Context, session *models.DownloadSession, path string, form url.Values) (*http.Response, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, session.BaseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	s.decorate(req, session)

	return s.do(req)
}

// decorate adds the headers qBittorrent's CSRF protection and session handling expect.
func (s *Impl) decorate(req *http.Request, session *models.DownloadSession) {
	req.Header.Set("Referer", session.BaseURL)
	req.Header.Set("Origin", session.BaseURL)
	if session.SID != "" {
		req.AddCookie(&http.Cookie{Name: sessionCookie, Value: session.SID})
	}
}

func (s *Impl) do(req *http.Request) (*http.Response, string, error) {
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", models.ErrTransport, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return nil, "", fmt.Errorf("%w: reading response: %v", models.ErrTransport, err)
	}
	return resp, string(body), nil
}

func statusError(code int) error {
	switch {
	case code >= 200 && code <= 299:
		return nil
	case code >= 500:
		return fmt.Errorf("%w: download client returned status %d", models.ErrTransport, code)
	default:
		return fmt.Errorf("%w: download client returned status %d", models.ErrRemoteRejected, code)
	}
}
