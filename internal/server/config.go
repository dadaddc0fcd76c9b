package server

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"

	"github.com/techox/unotable/internal/store"
	"github.com/techox/unotable/internal/uno"
)

// ServerConfig represents the complete server configuration
type ServerConfig struct {
	Server ServerSettings `hcl:"server,block"`
	Store  *StoreSettings `hcl:"store,block"`
	Auth   *AuthSettings  `hcl:"auth,block"`
	Rooms  []RoomConfig   `hcl:"room,block"`
}

// ServerSettings contains server-level configuration
type ServerSettings struct {
	Address     string `hcl:"address,optional"`
	Port        int    `hcl:"port,optional"`
	LogLevel    string `hcl:"log_level,optional"`
	LogFile     string `hcl:"log_file,optional"`
	DeckCatalog string `hcl:"deck_catalog,optional"` // JSON card catalog; empty uses the house deck
}

// StoreSettings bounds the in-memory match store
type StoreSettings struct {
	MaxSessions        int `hcl:"max_sessions,optional"`
	MemoryBudgetMB     int `hcl:"memory_budget_mb,optional"`
	SessionTTLMinutes  int `hcl:"session_ttl_minutes,optional"`
	SweepSeconds       int `hcl:"sweep_seconds,optional"`
	MemoryCheckSeconds int `hcl:"memory_check_seconds,optional"`
	HeapPressureMB     int `hcl:"heap_pressure_mb,optional"`
}

// AuthSettings selects the identity verifier
type AuthSettings struct {
	Mode   string `hcl:"mode,optional"` // dev | http
	URL    string `hcl:"url,optional"`
	Secret string `hcl:"secret,optional"`
}

// RoomConfig seeds a room record into the in-memory directory (dev mode;
// production reads rooms from the external directory)
type RoomConfig struct {
	Name       string `hcl:"name,label"`
	ID         int64  `hcl:"id"`
	Game       string `hcl:"game,optional"`
	OwnerID    int64  `hcl:"owner_id,optional"`
	MaxPlayers int    `hcl:"max_players,optional"`
}

// DefaultServerConfig returns default server configuration
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Server: ServerSettings{
			Address:  "localhost",
			Port:     8080,
			LogLevel: "info",
			LogFile:  "unotable-server.log",
		},
		Store: &StoreSettings{
			MaxSessions:        1000,
			MemoryBudgetMB:     64,
			SessionTTLMinutes:  120,
			SweepSeconds:       300,
			MemoryCheckSeconds: 60,
			HeapPressureMB:     512,
		},
		Auth: &AuthSettings{Mode: "dev"},
		Rooms: []RoomConfig{
			{Name: "main", ID: 1, Game: "uno", OwnerID: 1, MaxPlayers: 4},
		},
	}
}

// LoadServerConfig loads server configuration from an HCL file. A missing
// file yields the defaults.
func LoadServerConfig(filename string) (*ServerConfig, error) {
	if _, err := os.Stat(filename); os.IsNotExist(err) {
		return DefaultServerConfig(), nil
	}

	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file: %s", diags.Error())
	}

	var config ServerConfig
	diags = gohcl.DecodeBody(file.Body, nil, &config)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL: %s", diags.Error())
	}

	// Apply defaults for missing values
	if config.Server.Address == "" {
		config.Server.Address = "localhost"
	}
	if config.Server.Port == 0 {
		config.Server.Port = 8080
	}
	if config.Server.LogLevel == "" {
		config.Server.LogLevel = "info"
	}
	if config.Server.LogFile == "" {
		config.Server.LogFile = "unotable-server.log"
	}

	defaults := DefaultServerConfig()
	if config.Store == nil {
		config.Store = defaults.Store
	} else {
		if config.Store.MaxSessions == 0 {
			config.Store.MaxSessions = defaults.Store.MaxSessions
		}
		if config.Store.MemoryBudgetMB == 0 {
			config.Store.MemoryBudgetMB = defaults.Store.MemoryBudgetMB
		}
		if config.Store.SessionTTLMinutes == 0 {
			config.Store.SessionTTLMinutes = defaults.Store.SessionTTLMinutes
		}
		if config.Store.SweepSeconds == 0 {
			config.Store.SweepSeconds = defaults.Store.SweepSeconds
		}
		if config.Store.MemoryCheckSeconds == 0 {
			config.Store.MemoryCheckSeconds = defaults.Store.MemoryCheckSeconds
		}
		if config.Store.HeapPressureMB == 0 {
			config.Store.HeapPressureMB = defaults.Store.HeapPressureMB
		}
	}
	if config.Auth == nil {
		config.Auth = defaults.Auth
	}
	if config.Auth.Mode == "" {
		config.Auth.Mode = "dev"
	}

	for i := range config.Rooms {
		if config.Rooms[i].Game == "" {
			config.Rooms[i].Game = "uno"
		}
		if config.Rooms[i].MaxPlayers == 0 {
			config.Rooms[i].MaxPlayers = 4
		}
	}

	return &config, nil
}

// Validate validates the server configuration
func (c *ServerConfig) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}

	if c.Auth.Mode != "dev" && c.Auth.Mode != "http" {
		return fmt.Errorf("invalid auth mode: %s", c.Auth.Mode)
	}
	if c.Auth.Mode == "http" && c.Auth.URL == "" {
		return fmt.Errorf("auth mode http requires a url")
	}

	seen := map[int64]bool{}
	for _, room := range c.Rooms {
		if room.ID <= 0 {
			return fmt.Errorf("room %s: id must be positive", room.Name)
		}
		if seen[room.ID] {
			return fmt.Errorf("room %s: duplicate id %d", room.Name, room.ID)
		}
		seen[room.ID] = true
		if room.MaxPlayers < 2 || room.MaxPlayers > 10 {
			return fmt.Errorf("room %s: max players must be between 2 and 10", room.Name)
		}
	}

	return nil
}

// GetServerAddress returns the full server address
func (c *ServerConfig) GetServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Address, c.Server.Port)
}

// StoreConfig converts the settings into the store's config
func (c *ServerConfig) StoreConfig() store.Config {
	return store.Config{
		MaxSessions:         c.Store.MaxSessions,
		MemoryBudgetBytes:   int64(c.Store.MemoryBudgetMB) << 20,
		SessionTTL:          time.Duration(c.Store.SessionTTLMinutes) * time.Minute,
		SweepInterval:       time.Duration(c.Store.SweepSeconds) * time.Second,
		MemoryCheckInterval: time.Duration(c.Store.MemoryCheckSeconds) * time.Second,
		HeapPressureBytes:   uint64(c.Store.HeapPressureMB) << 20,
	}
}

// LoadDeckCatalog reads a JSON card catalog of {id, count} records
func LoadDeckCatalog(path string) ([]uno.CatalogEntry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read deck catalog: %w", err)
	}
	var entries []uno.CatalogEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("parse deck catalog: %w", err)
	}
	return entries, nil
}
