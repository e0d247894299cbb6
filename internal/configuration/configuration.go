package configuration

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

var defaultConfig = Config{
	APIKey:         "API_KEY",
	APIHost:        "https://api.openai.com/v1",
	RequestTimeout: 120,
	SystemInstruction: "You are a helpful, creative, and professional AI assistant. " +
		"You provide clear, concise, and accurate information.",
	SearchGroundingSuffix: ":online",

	Chat: &ChatConfig{
		DefaultModel: "gemini-3-flash-preview",
		DatabasePath: "~/.wgpt/threads.db",
	},

	Server: &ServerConfig{
		Port: 3030,
	},
}

// Config holds configuration for the wgpt tool.
type Config struct {
	APIKey  string `json:"api_key"`
	APIHost string `json:"api_host"`
	// Per-turn timeout, in seconds.
	RequestTimeout int `json:"request_timeout"`
	// System instruction injected at the head of every model request.
	SystemInstruction string `json:"system_instruction"`
	// Suffix appended to the model identifier to enable search grounding.
	SearchGroundingSuffix string `json:"search_grounding_suffix"`

	Chat   *ChatConfig   `json:"chat"`
	Server *ServerConfig `json:"server"`
}

// ChatConfig holds configuration for chat threads.
type ChatConfig struct {
	// The model new threads are bound to.
	DefaultModel string `json:"default_model"`
	// The database file where we store threads.
	DatabasePath string `json:"database_path"`
}

// ServerConfig holds configuration for the web server.
type ServerConfig struct {
	Port int `json:"port"`
}

// Parse a configuration file.
func Parse(path string) (*Config, error) {
	path, err := ExpandPath(path)
	if err != nil {
		return nil, errors.Wrap(err, "expanding path")
	}

	if err := initializeIfNotPresent(path); err != nil {
		return nil, errors.Wrap(err, "initializing configuration")
	}
	bytes, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "reading file")
	}

	config := &Config{}
	if err = json.Unmarshal(bytes, config); err != nil {
		return nil, errors.Wrap(err, "unmarshaling into config")
	}

	expandedDatabasePath, err := ExpandPath(config.Chat.DatabasePath)
	if err != nil {
		return nil, errors.Wrap(err, "expanding database path")
	}
	config.Chat.DatabasePath = expandedDatabasePath
	if err := os.MkdirAll(filepath.Dir(config.Chat.DatabasePath), 0755); err != nil {
		return nil, errors.Wrap(err, "creating database directory")
	}
	return config, nil
}

// save a configuration file.
func (c *Config) save(path string) error {
	bytes, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshaling config")
	}

	err = os.WriteFile(path, bytes, 0644)
	if err != nil {
		return errors.Wrap(err, "writing file")
	}

	return nil
}

// initializeIfNotPresent initializes a config if it does not exist.
func initializeIfNotPresent(path string) error {
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		return nil
	}

	// Create the directories.
	dir, _ := filepath.Split(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrap(err, "creating folders")
	}

	if err := defaultConfig.save(path); err != nil {
		return errors.Wrap(err, "saving default config")
	}
	return nil
}

// ExpandPath expands a leading `~` to the user's home directory.
func ExpandPath(path string) (string, error) {
	if !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.Wrap(err, "getting user home dir")
	}
	return filepath.Join(home, path[2:]), nil
}
