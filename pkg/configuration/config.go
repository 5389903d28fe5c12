// Package configuration manages the server configuration: an INI-style
// settings.cfg with typed getters, plus an optional settings.local.cfg
// overlay for machine-specific overrides.
package configuration

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Config holds the parsed settings.
type Config struct {
	settings map[string]map[string]string
	filePath string
	mu       sync.RWMutex
}

var (
	globalConfig *Config
	once         sync.Once
)

// Initialize loads the global configuration. A missing file is created with
// defaults. A settings.local.cfg in the working directory overrides
// individual keys when present.
func Initialize(configPath string) error {
	var err error
	once.Do(func() {
		globalConfig, err = loadConfig(configPath)
		if err != nil {
			return
		}
		localConfigPath := "settings.local.cfg"
		if _, statErr := os.Stat(localConfigPath); statErr == nil {
			// Overlay errors are not fatal; the base config stands.
			globalConfig.loadLocalConfig(localConfigPath)
		}
	})
	return err
}

func loadConfig(filePath string) (*Config, error) {
	config := &Config{
		settings: make(map[string]map[string]string),
		filePath: filePath,
	}
	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		config.createDefaultConfig()
		if err := config.saveToFile(); err != nil {
			return nil, fmt.Errorf("failed to create default config: %v", err)
		}
		return config, nil
	}

	file, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	if err := parseInto(config.settings, file); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *Config) loadLocalConfig(filePath string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	file, err := os.Open(filePath)
	if err != nil {
		return err
	}
	defer file.Close()

	return parseInto(c.settings, file)
}

func parseInto(settings map[string]map[string]string, file *os.File) error {
	scanner := bufio.NewScanner(file)
	currentSection := ""
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, ";") || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			currentSection = line[1 : len(line)-1]
			if settings[currentSection] == nil {
				settings[currentSection] = make(map[string]string)
			}
			continue
		}
		if strings.Contains(line, "=") && currentSection != "" {
			parts := strings.SplitN(line, "=", 2)
			settings[currentSection][strings.TrimSpace(parts[0])] = strings.TrimSpace(parts[1])
		}
	}
	return scanner.Err()
}

// createDefaultConfig seeds every parameter the server reads.
func (c *Config) createDefaultConfig() {
	c.settings["System"] = map[string]string{
		"max_workers_per_board":    "32",
		"max_boards":               "16",
		"session_cleanup_interval": "5m",
		"max_inactive_time":        "30m",
	}

	c.settings["Runtime"] = map[string]string{
		"steps_per_tick":    "250",
		"tick_interval":     "10ms",
		"input_queue_limit": "256",
	}

	c.settings["Grid"] = map[string]string{
		"width":      "64",
		"height":     "64",
		"space_size": "4096",
	}

	c.settings["Network"] = map[string]string{
		"bind_address":        "0.0.0.0",
		"port":                "8080",
		"pong_timeout":        "90s",
		"write_wait_timeout":  "10s",
		"max_message_size_kb": "64",
		"max_channel_buffer":  "1024",
	}

	c.settings["Authentication"] = map[string]string{
		"min_username_length": "3",
		"max_username_length": "20",
		"min_password_length": "6",
		"max_password_length": "100",
		"password_hash_cost":  "12",
		"enable_guest_access": "true",
	}

	c.settings["JWT"] = map[string]string{
		"secret_key":             "CHANGE_ME_IN_LOCAL_CONFIG",
		"token_expiration_hours": "24",
	}

	c.settings["Database"] = map[string]string{
		"file": "gridworker.db",
	}

	c.settings["Debug"] = map[string]string{
		"enable_debug_logging": "true",
		"log_level":            "INFO",
		"log_file":             "gridworker.log",
		"max_log_size_mb":      "10",
		"log_rotation_count":   "3",
		// Per-area switches
		"log_interpreter": "false",
		"log_parser":      "false",
		"log_memory":      "false",
		"log_debugger":    "false",
		"log_session":     "true",
		"log_websocket":   "false",
		"log_database":    "false",
		"log_auth":        "true",
		"log_config":      "true",
		"log_general":     "true",
	}
}

func (c *Config) saveToFile() error {
	dir := filepath.Dir(c.filePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	file, err := os.Create(c.filePath)
	if err != nil {
		return err
	}
	defer file.Close()

	file.WriteString("; GridWorker configuration file\n")
	file.WriteString("; Generated automatically - modify with care\n\n")

	sections := []string{"System", "Runtime", "Grid", "Network", "Authentication", "JWT", "Database", "Debug"}
	for _, section := range sections {
		if settings, exists := c.settings[section]; exists {
			file.WriteString(fmt.Sprintf("[%s]\n", section))
			for key, value := range settings {
				file.WriteString(fmt.Sprintf("%s = %s\n", key, value))
			}
			file.WriteString("\n")
		}
	}
	return nil
}

// GetString returns a string value, or defaultValue when unset.
func GetString(section, key, defaultValue string) string {
	if globalConfig == nil {
		return defaultValue
	}

	globalConfig.mu.RLock()
	defer globalConfig.mu.RUnlock()

	if sectionMap, exists := globalConfig.settings[section]; exists {
		if value, exists := sectionMap[key]; exists {
			return value
		}
	}
	return defaultValue
}

// GetInt returns an integer value, or defaultValue when unset or malformed.
func GetInt(section, key string, defaultValue int) int {
	str := GetString(section, key, "")
	if str == "" {
		return defaultValue
	}
	if value, err := strconv.Atoi(str); err == nil {
		return value
	}
	return defaultValue
}

// GetBool returns a boolean value, or defaultValue when unset or malformed.
func GetBool(section, key string, defaultValue bool) bool {
	str := GetString(section, key, "")
	if str == "" {
		return defaultValue
	}
	if value, err := strconv.ParseBool(str); err == nil {
		return value
	}
	return defaultValue
}

// GetDuration returns a duration value, or defaultValue when unset or
// malformed.
func GetDuration(section, key string, defaultValue time.Duration) time.Duration {
	str := GetString(section, key, "")
	if str == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(str); err == nil {
		return value
	}
	return defaultValue
}

// GetSection returns a copy of all key-value pairs in a section.
func GetSection(sectionName string) map[string]string {
	if globalConfig == nil {
		return make(map[string]string)
	}

	globalConfig.mu.RLock()
	defer globalConfig.mu.RUnlock()

	result := make(map[string]string)
	if section, exists := globalConfig.settings[sectionName]; exists {
		for key, value := range section {
			result[key] = value
		}
	}
	return result
}

// SetString sets one value in the in-memory configuration.
func SetString(section, key, value string) {
	if globalConfig == nil {
		return
	}

	globalConfig.mu.Lock()
	defer globalConfig.mu.Unlock()

	if globalConfig.settings[section] == nil {
		globalConfig.settings[section] = make(map[string]string)
	}
	globalConfig.settings[section][key] = value
}

// Save writes the current configuration back to its file.
func Save() error {
	if globalConfig == nil {
		return fmt.Errorf("configuration not initialized")
	}

	globalConfig.mu.RLock()
	defer globalConfig.mu.RUnlock()

	return globalConfig.saveToFile()
}
