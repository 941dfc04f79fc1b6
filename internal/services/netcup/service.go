// Package netcup provides access to the netcup server control panel webservice.
package netcup

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"time"

	"github.com/fgeck/vserverctl/internal/models"
	"github.com/rs/zerolog"
)

const namespace = "http://enduser.service.web.vcp.netcup.de/"

// Service defines the interface for control API operations.
type Service interface {
	ListServers(ctx context.Context) ([]string, error)
	GetServerInfo(ctx context.Context, identifier string) (*models.ServerDetails, error)
	GetState(ctx context.Context, identifier string) (string, error)
	SetPowerState(ctx context.Context, identifier string, action models.PowerAction) error
	GetTraffic(ctx context.Context, identifier string, period models.TrafficPeriod, date time.Time) (*models.TrafficStats, error)
	SetNickname(ctx context.Context, identifier, nickname string) error
	ChangePassword(ctx context.Context, newPassword string) error
}

// HTTPClient allows mocking HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Impl implements the netcup Service interface.
type Impl struct {
	httpClient HTTPClient
	logger     zerolog.Logger
	cfg        models.NetcupConfig
}

// New creates a new netcup service.
func New(logger zerolog.Logger, cfg models.NetcupConfig) *Impl {
	return &Impl{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		logger: logger,
		cfg:    cfg,
	}
}

// NewWithClient creates a new netcup service with a custom HTTP client (for testing).
func NewWithClient(logger zerolog.Logger, cfg models.NetcupConfig, httpClient HTTPClient) *Impl {
	return &Impl{
		httpClient: httpClient,
		logger:     logger,
		cfg:        cfg,
	}
}

var powerOperations = map[models.PowerAction]string{
	models.PowerStart:     "vServerStart",
	models.PowerStop:      "vServerStop",
	models.PowerHardReset: "vServerReset",
}

// ListServers returns the identifiers of every server on the account.
func (s *Impl) ListServers(ctx context.Context) ([]string, error) {
	var resp struct {
		Return []string `xml:"return"`
	}
	if err := s.call(ctx, "getVServers", nil, &resp); err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(resp.Return))
	for _, id := range resp.Return {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}

	s.logger.Debug().Int("count", len(ids)).Msg("listed servers")
	return ids, nil
}

type serverInfo struct {
	Name       string   `xml:"vServerName"`
	Nickname   string   `xml:"vServerNickname"`
	Status     string   `xml:"status"`
	Uptime     string   `xml:"uptime"`
	IPs        []string `xml:"ips"`
	Interfaces []struct {
		IPv4 []string `xml:"ipv4IP"`
	} `xml:"serverInterfaces"`
}

// GetServerInfo returns the details of one server.
func (s *Impl) GetServerInfo(ctx context.Context, identifier string) (*models.ServerDetails, error) {
	var resp struct {
		Return serverInfo `xml:"return"`
	}
	if err := s.call(ctx, "getVServerInformation", []param{{"vservername", identifier}}, &resp); err != nil {
		return nil, err
	}

	info := resp.Return
	details := &models.ServerDetails{
		Identifier: identifier,
		Nickname:   strings.TrimSpace(info.Nickname),
		Status:     strings.TrimSpace(info.Status),
		Uptime:     strings.TrimSpace(info.Uptime),
	}

	candidates := append([]string{}, info.IPs...)
	for _, iface := range info.Interfaces {
		candidates = append(candidates, iface.IPv4...)
	}
	seen := map[string]bool{}
	for _, raw := range candidates {
		addr, err := netip.ParseAddr(strings.TrimSpace(raw))
		if err != nil || !addr.Is4() || seen[addr.String()] {
			continue
		}
		seen[addr.String()] = true
		details.IPv4 = append(details.IPv4, addr.String())
	}

	return details, nil
}

// GetState returns the power state of a server as reported by the API.
func (s *Impl) GetState(ctx context.Context, identifier string) (string, error) {
	var resp struct {
		Return string `xml:"return"`
	}
	if err := s.call(ctx, "getVServerState", []param{{"vservername", identifier}}, &resp); err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Return), nil
}

// SetPowerState changes the power state of a server.
func (s *Impl) SetPowerState(ctx context.Context, identifier string, action models.PowerAction) error {
	op, ok := powerOperations[action]
	if !ok {
		return fmt.Errorf("unsupported power action %q", action)
	}

	s.logger.Info().
		Str("identifier", identifier).
		Str("action", string(action)).
		Msg("changing power state")

	return s.action(ctx, op, []param{{"vserverName", identifier}})
}

// GetTraffic returns the traffic of a server for the day or month containing date.
func (s *Impl) GetTraffic(ctx context.Context, identifier string, period models.TrafficPeriod, date time.Time) (*models.TrafficStats, error) {
	params := []param{
		{"vservername", identifier},
		{"year", strconv.Itoa(date.Year())},
		{"month", strconv.Itoa(int(date.Month()))},
	}

	var op string
	switch period {
	case models.TrafficDay:
		op = "getVServerTrafficOfDay"
		params = append(params, param{"day", strconv.Itoa(date.Day())})
	case models.TrafficMonth:
		op = "getVServerTrafficOfMonth"
	default:
		return nil, fmt.Errorf("unsupported traffic period %q", period)
	}

	var resp struct {
		Return struct {
			In    int64 `xml:"in"`
			Out   int64 `xml:"out"`
			Total int64 `xml:"total"`
		} `xml:"return"`
	}
	if err := s.call(ctx, op, params, &resp); err != nil {
		return nil, err
	}

	stats := &models.TrafficStats{
		In:    resp.Return.In,
		Out:   resp.Return.Out,
		Total: resp.Return.Total,
	}
	if stats.Total == 0 {
		stats.Total = stats.In + stats.Out
	}
	return stats, nil
}

// SetNickname changes the display nickname of a server.
func (s *Impl) SetNickname(ctx context.Context, identifier, nickname string) error {
	s.logger.Info().
		Str("identifier", identifier).
		Str("nickname", nickname).
		Msg("setting server nickname")

	return s.action(ctx, "setVServerNickname", []param{
		{"vservername", identifier},
		{"vservernickname", nickname},
	})
}

// ChangePassword changes the password of the control panel account.
func (s *Impl) ChangePassword(ctx context.Context, newPassword string) error {
	if newPassword == "" {
		return fmt.Errorf("new password must not be empty")
	}

	s.logger.Info().Msg("changing control panel password")
	return s.action(ctx, "changeUserPassword", []param{{"newPassword", newPassword}})
}

type actionResult struct {
	Text    string `xml:",chardata"`
	Success *bool  `xml:"success"`
	Message string `xml:"message"`
}

// action calls an operation whose response only signals success.
func (s *Impl) action(ctx context.Context, op string, params []param) error {
	var resp struct {
		Return *actionResult `xml:"return"`
	}
	if err := s.call(ctx, op, params, &resp); err != nil {
		return err
	}

	if r := resp.Return; r != nil {
		rejected := (r.Success != nil && !*r.Success) ||
			(r.Success == nil && strings.EqualFold(strings.TrimSpace(r.Text), "false"))
		if rejected {
			msg := strings.TrimSpace(r.Message)
			if msg == "" {
				msg = "operation not successful"
			}
			return fmt.Errorf("%s: %w: %s", op, models.ErrRemoteRejected, msg)
		}
	}
	return nil
}

type param struct {
	name  string
	value string
}

type envelope struct {
	Body struct {
		Fault *struct {
			Code   string `xml:"faultcode"`
			String string `xml:"faultstring"`
		} `xml:"Fault"`
		Content []byte `xml:",innerxml"`
	} `xml:"Body"`
}

// call performs one SOAP request. Credentials are always sent first.
func (s *Impl) call(ctx context.Context, op string, params []param, out any) error {
	body := buildEnvelope(op, append([]param{
		{"loginName", s.cfg.LoginName},
		{"password", s.cfg.Password},
	}, params...))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%s: failed to create request: %w", op, err)
	}
	req.Header.Set("Content-Type", "text/xml; charset=utf-8")
	req.Header.Set("SOAPAction", `""`)

	s.logger.Debug().Str("operation", op).Msg("calling control API")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w: %v", op, models.ErrTransport, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s: %w: reading response: %v", op, models.ErrTransport, err)
	}

	var env envelope
	if err := xml.Unmarshal(raw, &env); err != nil {
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return fmt.Errorf("%s: %w: control API returned status %d", op, models.ErrTransport, resp.StatusCode)
		}
		return fmt.Errorf("%s: %w: malformed response: %v", op, models.ErrTransport, err)
	}

	if f := env.Body.Fault; f != nil {
		kind := models.ErrRemoteRejected
		if isAuthFault(f.String) {
			kind = models.ErrAuth
		}
		return fmt.Errorf("%s: %w: %s", op, kind, strings.TrimSpace(f.String))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%s: %w: control API returned status %d", op, models.ErrTransport, resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := xml.Unmarshal(env.Body.Content, out); err != nil {
		return fmt.Errorf("%s: %w: malformed response body: %v", op, models.ErrTransport, err)
	}
	return nil
}

func buildEnvelope(op string, params []param) []byte {
	var b bytes.Buffer
	b.WriteString(xml.Header)
	b.WriteString(`<soapenv:Envelope xmlns:soapenv="http://schemas.xmlsoap.org/soap/envelope/" xmlns:ns="`)
	b.WriteString(namespace)
	b.WriteString(`"><soapenv:Body><ns:`)
	b.WriteString(op)
	b.WriteString(">")
	for _, p := range params {
		b.WriteString("<" + p.name + ">")
		_ = xml.EscapeText(&b, []byte(p.value))
		b.WriteString("</" + p.name + ">")
	}
	b.WriteString("</ns:")
	b.WriteString(op)
	b.WriteString("></soapenv:Body></soapenv:Envelope>")
	return b.Bytes()
}

func isAuthFault(msg string) bool {
	msg = strings.ToLower(msg)
	for _, marker := range []string{"login", "password", "authentication", "not authorized"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
