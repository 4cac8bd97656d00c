// Package tenant handles loading and providing tenant-specific configurations.
package tenant

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/botforgehq/botforge-go/internal/infrastructure/observability/logging"
)

// Config represents the structure of a single tenant's configuration
type Config struct {
	TenantID      string   `json:"tenantId"`
	Domains       []string `json:"domains"`
	Status        string   `json:"status"`
	DatabaseType  string   `json:"databaseType"`
	TursoDatabase string   `json:"TURSO_DATABASE_URL"`
	TursoToken    string   `json:"TURSO_AUTH_TOKEN"`
	JWTSecret     string   `json:"JWT_SECRET"`
	TursoEnabled  bool     `json:"TURSO_ENABLED"`
	SQLitePath    string   `json:"-"`
}

// LoadTenantConfig loads configuration for a specific tenant from its env.json file.
func LoadTenantConfig(tenantID string, logger *logging.ChanneledLogger) (*Config, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("could not find user home directory: %w", err)
	}

	configPath := filepath.Join(homeDir, "botforge-server", "config", tenantID, "env.json")
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("tenant config file not found at %s", configPath)
	}

	configFile, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("could not read tenant config file: %w", err)
	}

	var tenantConfig Config
	if err := json.Unmarshal(configFile, &tenantConfig); err != nil {
		return nil, fmt.Errorf("could not parse tenant config json: %w", err)
	}

	tenantConfig.TenantID = tenantID
	tenantConfig.SQLitePath = filepath.Join(homeDir, "botforge-server", "db", tenantID, "botforge.db")

	if logger != nil {
		logger.Tenant().Debug("Loaded tenant config", "tenantId", tenantID, "tursoEnabled", tenantConfig.TursoEnabled)
	}
	return &tenantConfig, nil
}

// Registry holds the global tenant configuration
type Registry struct {
	Tenants map[string]Info `json:"tenants"`
}

// Info holds tenant metadata
type Info struct {
	TenantID     string   `json:"tenantId"`
	Domains      []string `json:"domains"`
	Status       string   `json:"status"`       // "unknown", "inactive", "active"
	DatabaseType string   `json:"databaseType"` // "turso", "sqlite3"
}

// ActiveTenantIDs returns the IDs of all active tenants.
func (r *Registry) ActiveTenantIDs() []string {
	ids := make([]string, 0, len(r.Tenants))
	for tenantID, info := range r.Tenants {
		if info.Status == "active" {
			ids = append(ids, tenantID)
		}
	}
	return ids
}

func registryPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not find user home directory: %w", err)
	}
	return filepath.Join(homeDir, "botforge-server", "config", "botforge", "tenants.json"), nil
}

// LoadTenantRegistry loads the global tenant registry
func LoadTenantRegistry() (*Registry, error) {
	path, err := registryPath()
	if err != nil {
		return nil, err
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return &Registry{
			Tenants: map[string]Info{
				"default": {
					TenantID:     "default",
					Domains:      []string{"*"},
					Status:       "inactive",
					DatabaseType: "",
				},
			},
		}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read tenant registry: %w", err)
	}

	var registry Registry
	if err := json.Unmarshal(data, &registry); err != nil {
		return nil, fmt.Errorf("failed to parse tenant registry: %w", err)
	}
	return &registry, nil
}

// RegisterTenant adds a new tenant to the registry and persists it.
func RegisterTenant(tenantID string) error {
	path, err := registryPath()
	if err != nil {
		return err
	}

	registry, err := LoadTenantRegistry()
	if err != nil {
		return err
	}

	if _, exists := registry.Tenants[tenantID]; !exists {
		registry.Tenants[tenantID] = Info{
			TenantID:     tenantID,
			Domains:      []string{"*"},
			Status:       "inactive",
			DatabaseType: "",
		}

		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return fmt.Errorf("failed to create registry directory: %w", err)
		}

		data, err := json.MarshalIndent(registry, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal registry: %w", err)
		}
		if err := os.WriteFile(path, data, 0644); err != nil {
			return fmt.Errorf("failed to write registry: %w", err)
		}
	}
	return nil
}
