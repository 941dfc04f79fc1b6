package ssh

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"errors"
	"io"
	"net/netip"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fgeck/vserverctl/internal/models"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"
)

// Mock implementations
type mockSSHSession struct {
	combinedOutputFunc func(cmd string) ([]byte, error)
}

func (m *mockSSHSession) CombinedOutput(cmd string) ([]byte, error) {
	if m.combinedOutputFunc != nil {
		return m.combinedOutputFunc(cmd)
	}
	return []byte(""), nil
}

func (m *mockSSHSession) Close() error {
	return nil
}

type mockSSHClient struct {
	newSessionFunc func() (SSHSession, error)
	closed         bool
}

func (m *mockSSHClient) NewSession() (SSHSession, error) {
	if m.newSessionFunc != nil {
		return m.newSessionFunc()
	}
	return &mockSSHSession{}, nil
}

func (m *mockSSHClient) Close() error {
	m.closed = true
	return nil
}

type mockClientFactory struct {
	newClientFunc func(network, addr string, config *ssh.ClientConfig) (SSHClient, error)
}

func (m *mockClientFactory) NewClient(network, addr string, config *ssh.ClientConfig) (SSHClient, error) {
	if m.newClientFunc != nil {
		return m.newClientFunc(network, addr, config)
	}
	return &mockSSHClient{}, nil
}

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

// generateTestKey generates a valid ed25519 key in OpenSSH format.
func generateTestKey(t *testing.T) []byte {
	t.Helper()

	_, privateKey, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	pemBlock, err := ssh.MarshalPrivateKey(privateKey, "")
	require.NoError(t, err)

	return pem.EncodeToMemory(pemBlock)
}

func testConfig(t *testing.T) models.SSHConfig {
	return models.SSHConfig{
		Username:   "root",
		Port:       2222,
		PrivateKey: generateTestKey(t),
		Timeout:    5 * time.Second,
	}
}

func testServer() models.ServerRecord {
	return models.ServerRecord{
		Identifier:  "v123",
		Nickname:    "web1",
		HasNickname: true,
		Address:     netip.MustParseAddr("203.0.113.10"),
	}
}

func TestProbe_Success(t *testing.T) {
	var capturedAddr, capturedCommand string
	var capturedConfig *ssh.ClientConfig
	client := &mockSSHClient{
		newSessionFunc: func() (SSHSession, error) {
			return &mockSSHSession{
				combinedOutputFunc: func(cmd string) ([]byte, error) {
					capturedCommand = cmd
					return []byte(" 12:00:01 up 2 min,  0 users,  load average: 0.10\n"), nil
				},
			}, nil
		},
	}
	factory := &mockClientFactory{
		newClientFunc: func(network, addr string, config *ssh.ClientConfig) (SSHClient, error) {
			capturedAddr = addr
			capturedConfig = config
			return client, nil
		},
	}

	svc := NewWithClientFactory(testLogger(), factory)
	result, err := svc.Probe(context.Background(), testConfig(t), testServer())

	require.NoError(t, err)
	assert.True(t, result.CommandRun)
	assert.Nil(t, result.Error)
	assert.Equal(t, "12:00:01 up 2 min,  0 users,  load average: 0.10", result.Output)
	assert.Equal(t, "203.0.113.10:2222", capturedAddr)
	assert.Equal(t, "uptime", capturedCommand)
	assert.Equal(t, "root", capturedConfig.User)
	assert.Equal(t, 5*time.Second, capturedConfig.Timeout)
	assert.True(t, client.closed)
}

func TestProbe_NoAddress(t *testing.T) {
	called := false
	factory := &mockClientFactory{
		newClientFunc: func(network, addr string, config *ssh.ClientConfig) (SSHClient, error) {
			called = true
			return &mockSSHClient{}, nil
		},
	}

	svc := NewWithClientFactory(testLogger(), factory)
	result, err := svc.Probe(context.Background(), testConfig(t), models.ServerRecord{Identifier: "v9"})

	require.NoError(t, err)
	require.Error(t, result.Error)
	assert.Contains(t, result.Error.Error(), "no address known")
	assert.False(t, called)
}

func TestProbe_ConnectionFailed(t *testing.T) {
	factory := &mockClientFactory{
		newClientFunc: func(network, addr string, config *ssh.ClientConfig) (SSHClient, error) {
			return nil, errors.New("connection refused")
		},
	}

	svc := NewWithClientFactory(testLogger(), factory)
	result, err := svc.Probe(context.Background(), testConfig(t), testServer())

	require.NoError(t, err)
	assert.False(t, result.CommandRun)
	require.Error(t, result.Error)
	assert.Contains(t, result.Error.Error(), "failed to connect")
}

func TestProbe_SessionFailed(t *testing.T) {
	factory := &mockClientFactory{
		newClientFunc: func(network, addr string, config *ssh.ClientConfig) (SSHClient, error) {
			return &mockSSHClient{
				newSessionFunc: func() (SSHSession, error) {
					return nil, errors.New("session limit reached")
				},
			}, nil
		},
	}

	svc := NewWithClientFactory(testLogger(), factory)
	result, err := svc.Probe(context.Background(), testConfig(t), testServer())

	require.NoError(t, err)
	assert.False(t, result.CommandRun)
	assert.Contains(t, result.Error.Error(), "failed to create session")
}

func TestProbe_CommandFailed(t *testing.T) {
	factory := &mockClientFactory{
		newClientFunc: func(network, addr string, config *ssh.ClientConfig) (SSHClient, error) {
			return &mockSSHClient{
				newSessionFunc: func() (SSHSession, error) {
					return &mockSSHSession{
						combinedOutputFunc: func(cmd string) ([]byte, error) {
							return []byte("uptime: not found"), errors.New("exit status 127")
						},
					}, nil
				},
			}, nil
		},
	}

	svc := NewWithClientFactory(testLogger(), factory)
	result, err := svc.Probe(context.Background(), testConfig(t), testServer())

	require.NoError(t, err)
	assert.True(t, result.CommandRun)
	assert.Equal(t, "uptime: not found", result.Output)
	assert.Contains(t, result.Error.Error(), "probe command failed")
}

func TestProbe_NoPrivateKey(t *testing.T) {
	svc := NewWithClientFactory(testLogger(), &mockClientFactory{})

	cfg := testConfig(t)
	cfg.PrivateKey = nil

	result, err := svc.Probe(context.Background(), cfg, testServer())

	require.NoError(t, err)
	assert.Contains(t, result.Error.Error(), "no private key provided")
}

func TestProbe_InvalidPrivateKey(t *testing.T) {
	svc := NewWithClientFactory(testLogger(), &mockClientFactory{})

	cfg := testConfig(t)
	cfg.PrivateKey = []byte("not a key")

	result, err := svc.Probe(context.Background(), cfg, testServer())

	require.NoError(t, err)
	assert.Contains(t, result.Error.Error(), "failed to parse private key")
}

func TestProbe_ContextCancelled(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	factory := &mockClientFactory{
		newClientFunc: func(network, addr string, config *ssh.ClientConfig) (SSHClient, error) {
			<-release
			return &mockSSHClient{}, nil
		},
	}

	svc := NewWithClientFactory(testLogger(), factory)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := svc.Probe(ctx, testConfig(t), testServer())

	require.NoError(t, err)
	assert.ErrorIs(t, result.Error, context.Canceled)
}

func TestBuildConfig_WithKeyPath(t *testing.T) {
	keyPath := filepath.Join(t.TempDir(), "id_ed25519")
	require.NoError(t, os.WriteFile(keyPath, generateTestKey(t), 0o600))

	svc := New(testLogger())
	cfg := models.SSHConfig{Username: "ops", KeyPath: keyPath, Timeout: time.Second}

	config, err := svc.buildConfig(cfg)

	require.NoError(t, err)
	assert.Equal(t, "ops", config.User)
	assert.Len(t, config.Auth, 1)
}

func TestBuildConfig_KeyPathNotFound(t *testing.T) {
	svc := New(testLogger())
	cfg := models.SSHConfig{KeyPath: filepath.Join(t.TempDir(), "missing")}

	_, err := svc.buildConfig(cfg)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read private key")
}
