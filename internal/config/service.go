package config

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/dexpositosanchez/fyntra/internal/loggy"
	"golang.org/x/oauth2"
)

// ErrNoToken is returned by the token source when no bearer token is configured
var ErrNoToken = errors.New("no API token configured")

// SettingsService provides operations for managing application settings
type SettingsService struct {
	repo   SettingsRepository
	config *Config
	logger *loggy.Logger
}

// NewSettingsService creates a new settings service backed by the settings table
func NewSettingsService(db *sql.DB, config *Config, logger *loggy.Logger) *SettingsService {
	return NewSettingsServiceWithRepository(NewSQLSettingsRepository(db, logger), config, logger)
}

// NewSettingsServiceWithRepository creates a settings service with a custom repository (for testing)
func NewSettingsServiceWithRepository(repo SettingsRepository, config *Config, logger *loggy.Logger) *SettingsService {
	return &SettingsService{
		repo:   repo,
		config: config,
		logger: logger,
	}
}

// GetRepository returns the underlying repository
func (s *SettingsService) GetRepository() SettingsRepository {
	return s.repo
}

// LoadServerSettings overlays persisted server settings onto the Config
func (s *SettingsService) LoadServerSettings(ctx context.Context) error {
	if url, err := s.repo.GetSetting(ctx, SettingAPIURL); err != nil {
		return err
	} else if url != "" {
		s.config.Server.URL = url
	}

	if name, err := s.repo.GetSetting(ctx, SettingDeviceName); err != nil {
		return err
	} else if name != "" {
		s.config.Server.DeviceName = name
	}

	return nil
}

// SetToken stores the bearer token; an empty token removes it
func (s *SettingsService) SetToken(ctx context.Context, token string) error {
	if token == "" {
		return s.repo.DeleteSetting(ctx, SettingAuthToken)
	}
	return s.repo.SetSetting(ctx, SettingAuthToken, token)
}

// SetDeviceName stores the device name sent with every API request
func (s *SettingsService) SetDeviceName(ctx context.Context, name string) error {
	s.config.Server.DeviceName = name
	return s.repo.SetSetting(ctx, SettingDeviceName, name)
}

// SetServerURL stores the API base URL
func (s *SettingsService) SetServerURL(ctx context.Context, url string) error {
	s.config.Server.URL = url
	return s.repo.SetSetting(ctx, SettingAPIURL, url)
}

// TokenSource returns an oauth2.TokenSource that looks the token up on every call,
// so a login after the API client was built is picked up by the next request.
func (s *SettingsService) TokenSource() oauth2.TokenSource {
	return &settingsTokenSource{service: s}
}

type settingsTokenSource struct {
	service *SettingsService
}

// Token implements oauth2.TokenSource
func (ts *settingsTokenSource) Token() (*oauth2.Token, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	token, err := ts.service.repo.GetSetting(ctx, SettingAuthToken)
	if err != nil {
		ts.service.logger.Warn("Failed to read token from settings, using configured token", "error", err)
		token = ""
	}

	if token == "" {
		token = ts.service.config.Server.Token
	}

	if token == "" {
		return nil, ErrNoToken
	}

	return &oauth2.Token{AccessToken: token, TokenType: "Bearer"}, nil
}
