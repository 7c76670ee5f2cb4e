// Package config loads the transcoder's YAML configuration with viper:
// defaults first, then the config file, then TCD_-prefixed environment
// variables.
package config

import (
	"fmt"
	"os"

	"github.com/spf13/viper"
)

// Config is the root configuration.
type Config struct {
	Daemon      bool              `mapstructure:"daemon"`
	Log         LogConfig         `mapstructure:"log"`
	System      SystemConfig      `mapstructure:"system"`
	SrcNetwork  NetworkConfig     `mapstructure:"srcNetwork"`
	DstNetwork  NetworkConfig     `mapstructure:"dstNetwork"`
	Network     JitterConfig      `mapstructure:"network"`
	DMRIDLookup DMRIDLookupConfig `mapstructure:"dmrIdLookup"`
	Database    DatabaseConfig    `mapstructure:"database"`
}

// LogConfig controls the independent file and display log sinks.
type LogConfig struct {
	FilePath     string `mapstructure:"filePath"`
	FileRoot     string `mapstructure:"fileRoot"`
	FileLevel    uint32 `mapstructure:"fileLevel"`
	DisplayLevel uint32 `mapstructure:"displayLevel"`
}

// SystemConfig holds the transcoder's own identity and behavior switches.
type SystemConfig struct {
	Timeout         uint32     `mapstructure:"timeout"`
	Identity        string     `mapstructure:"identity"`
	TwoWayTranscode bool       `mapstructure:"twoWayTranscode"`
	Verbose         bool       `mapstructure:"verbose"`
	Debug           bool       `mapstructure:"debug"`
	Info            InfoConfig `mapstructure:"info"`
}

// InfoConfig is the repeater-site metadata sent in Homebrew RPTC packets.
type InfoConfig struct {
	Latitude  float64 `mapstructure:"latitude"`
	Longitude float64 `mapstructure:"longitude"`
	Height    int32   `mapstructure:"height"`
	Power     uint32  `mapstructure:"power"`
	Location  string  `mapstructure:"location"`
}

// NetworkConfig describes one Homebrew/MMDVM endpoint (src or dst).
type NetworkConfig struct {
	Address       string `mapstructure:"address"`
	Port          uint32 `mapstructure:"port"`
	Local         uint32 `mapstructure:"local"`
	ID            uint32 `mapstructure:"id"`
	Password      string `mapstructure:"password"`
	TalkgroupHang uint32 `mapstructure:"talkgroupHang"`
	Slot1         bool   `mapstructure:"slot1"`
	Slot2         bool   `mapstructure:"slot2"`
	Debug         bool   `mapstructure:"debug"`
}

// JitterConfig is the shared DMR jitter buffer setting.
type JitterConfig struct {
	Jitter uint32 `mapstructure:"jitter"`
}

// DMRIDLookupConfig controls the optional DMR subscriber-ID enrichment;
// an empty File disables it.
type DMRIDLookupConfig struct {
	File string `mapstructure:"file"`
	Time uint32 `mapstructure:"time"`
}

// DatabaseConfig backs the DMR ID lookup cache.
type DatabaseConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Path      string `mapstructure:"path"`
	SyncHours uint32 `mapstructure:"syncHours"`
	CacheSize uint32 `mapstructure:"cacheSize"`
	Debug     bool   `mapstructure:"debug"`
}

// Load reads configFile (or searches the default paths if empty), applies
// defaults, and validates the result.
func Load(configFile string) (*Config, error) {
	setDefaults()

	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.SetConfigName("dvmtranscode")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("./configs")
		viper.AddConfigPath("/etc/dvmtranscode")
	}

	viper.SetEnvPrefix("TCD")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// no config file found; defaults stand
		} else if os.IsNotExist(err) {
			// an explicitly named file that doesn't exist; defaults stand
		} else {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("daemon", false)

	viper.SetDefault("log.filePath", "/var/log/dvmtranscode")
	viper.SetDefault("log.fileRoot", "dvmtranscode")
	viper.SetDefault("log.fileLevel", 1)
	viper.SetDefault("log.displayLevel", 1)

	viper.SetDefault("system.timeout", 180)
	viper.SetDefault("system.identity", "TCD-1")
	viper.SetDefault("system.twoWayTranscode", false)
	viper.SetDefault("system.verbose", true)
	viper.SetDefault("system.debug", false)
	viper.SetDefault("system.info.latitude", 0.0)
	viper.SetDefault("system.info.longitude", 0.0)
	viper.SetDefault("system.info.height", 0)
	viper.SetDefault("system.info.power", 0)
	viper.SetDefault("system.info.location", "")

	viper.SetDefault("srcNetwork.address", "127.0.0.1")
	viper.SetDefault("srcNetwork.port", 62031)
	viper.SetDefault("srcNetwork.local", 0)
	viper.SetDefault("srcNetwork.id", 0)
	viper.SetDefault("srcNetwork.talkgroupHang", 360)
	viper.SetDefault("srcNetwork.slot1", true)
	viper.SetDefault("srcNetwork.slot2", true)
	viper.SetDefault("srcNetwork.debug", false)

	viper.SetDefault("dstNetwork.address", "127.0.0.1")
	viper.SetDefault("dstNetwork.port", 62032)
	viper.SetDefault("dstNetwork.local", 0)
	viper.SetDefault("dstNetwork.id", 0)
	viper.SetDefault("dstNetwork.talkgroupHang", 360)
	viper.SetDefault("dstNetwork.slot1", true)
	viper.SetDefault("dstNetwork.slot2", true)
	viper.SetDefault("dstNetwork.debug", false)

	viper.SetDefault("network.jitter", 360)

	viper.SetDefault("dmrIdLookup.file", "")
	viper.SetDefault("dmrIdLookup.time", 24)

	viper.SetDefault("database.enabled", false)
	viper.SetDefault("database.path", "data/dmr_ids.db")
	viper.SetDefault("database.syncHours", 24)
	viper.SetDefault("database.cacheSize", 1000)
	viper.SetDefault("database.debug", false)
}

// validate checks the handful of fields the transcoder cannot run without.
func validate(cfg *Config) error {
	if cfg.SrcNetwork.Address == "" {
		return fmt.Errorf("srcNetwork.address must be set")
	}
	if cfg.DstNetwork.Address == "" {
		return fmt.Errorf("dstNetwork.address must be set")
	}
	if cfg.System.Identity == "" {
		return fmt.Errorf("system.identity must be set")
	}
	return nil
}
