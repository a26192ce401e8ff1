package config

import (
	"log"
	"os"
	"strconv"

	"gopkg.in/ini.v1"
)

// Config holds all application configuration
type Config struct {
	// Network settings
	WSPort int

	// Call button handling
	CallButtonPattern  string
	SafetyDelaySeconds int
	DelayAfterHangup   bool

	// Device selection ("" monitors every enumerated HID interface)
	DevicePath string

	// Feature flags
	BlockTeams      bool
	EchoLogs        bool
	ReportLogToFile bool

	// Log retention for the UI sink
	LogLimit int
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	return &Config{
		WSPort:             9231,
		CallButtonPattern:  "",
		SafetyDelaySeconds: 2,
		DelayAfterHangup:   false,
		DevicePath:         "",
		BlockTeams:         true,
		EchoLogs:           true,
		ReportLogToFile:    false,
		LogLimit:           100,
	}
}

// LoadFromFile loads configuration from INI file
func (c *Config) LoadFromFile(filename string) error {
	cfg, err := ini.LoadSources(ini.LoadOptions{Insensitive: true}, filename)
	if err != nil {
		log.Printf("Skipping config file %s: %s", filename, err)
		return err
	}

	section := cfg.Section("")
	c.WSPort = section.Key("wsport").MustInt(c.WSPort)
	c.CallButtonPattern = section.Key("callbuttonpattern").MustString(c.CallButtonPattern)
	c.SafetyDelaySeconds = section.Key("safetydelayseconds").MustInt(c.SafetyDelaySeconds)
	c.DelayAfterHangup = section.Key("delayafterhangup").MustBool(c.DelayAfterHangup)
	c.DevicePath = section.Key("devicepath").MustString(c.DevicePath)
	c.BlockTeams = section.Key("blockteams").MustBool(c.BlockTeams)
	c.EchoLogs = section.Key("echologs").MustBool(c.EchoLogs)
	c.ReportLogToFile = section.Key("reportlogtofile").MustBool(c.ReportLogToFile)
	c.LogLimit = section.Key("loglimit").MustInt(c.LogLimit)

	return nil
}

// LoadFromEnv loads configuration from environment variables
func (c *Config) LoadFromEnv() {
	if v := os.Getenv("WSPORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.WSPort = port
		}
	}
	if v := os.Getenv("CALLBUTTONPATTERN"); v != "" {
		c.CallButtonPattern = v
	}
	if v := os.Getenv("SAFETYDELAYSECONDS"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil {
			c.SafetyDelaySeconds = secs
		}
	}
	if v := os.Getenv("DELAYAFTERHANGUP"); v != "" {
		c.DelayAfterHangup, _ = strconv.ParseBool(v)
	}
	if v := os.Getenv("DEVICEPATH"); v != "" {
		c.DevicePath = v
	}
	if v := os.Getenv("BLOCKTEAMS"); v != "" {
		c.BlockTeams, _ = strconv.ParseBool(v)
	}
	if v := os.Getenv("ECHOLOGS"); v != "" {
		c.EchoLogs, _ = strconv.ParseBool(v)
	}
	if v := os.Getenv("REPORTLOGTOFILE"); v != "" {
		c.ReportLogToFile, _ = strconv.ParseBool(v)
	}
	if v := os.Getenv("LOGLIMIT"); v != "" {
		if limit, err := strconv.Atoi(v); err == nil {
			c.LogLimit = limit
		}
	}
}

// New creates a new configuration instance
func New(configFile string) (*Config, error) {
	cfg := DefaultConfig()

	// Load from file first
	cfg.LoadFromFile(configFile)

	// Override with environment variables
	cfg.LoadFromEnv()

	return cfg, nil
}
