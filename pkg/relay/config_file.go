package relay

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/relaylog/relay/pkg/formatters"
	"github.com/relaylog/relay/pkg/types"
)

// fileConfig is the on-disk shape of a Config, decoded with yaml.v3 before
// being converted to the runtime Config type. Field names match the
// builder's own vocabulary rather than the wire-format's abbreviations.
type fileConfig struct {
	Level   string `yaml:"level"`
	DevMode bool   `yaml:"dev_mode"`
	Sync    bool   `yaml:"sync"`
	Sinks   []struct {
		Name           string `yaml:"name"`
		Kind           string `yaml:"kind"` // terminal, file, udp
		Raw            bool   `yaml:"raw"`
		Template       string `yaml:"template"`
		SkipServerLogs bool   `yaml:"skip_server_logs"`

		Path               string `yaml:"path"`
		MaxFileSize        int64  `yaml:"max_file_size"`
		MaxCompressedFiles int    `yaml:"max_compressed_files"`
		MaxArchiveAge      string `yaml:"max_archive_age"`
		CompressOnDrop     bool   `yaml:"compress_on_drop"`
		CompressionLevel   int    `yaml:"compression_level"`
		MinCompressThreads int    `yaml:"min_compress_threads"`

		Addr      string `yaml:"addr"`
		AuthToken string `yaml:"auth_token"`
		AppID     string `yaml:"app_id"`
	} `yaml:"sinks"`
}

// LoadConfig reads and parses a YAML configuration file into a Config,
// applying the same defaults and validation as a builder-constructed one.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, newLogError(types.ErrIoFailed, "read", fmt.Sprintf("reading config file %q", path), err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, newLogError(types.ErrConfigInvalid, "parse", fmt.Sprintf("parsing config file %q", path), err)
	}

	cfg := &Config{DevMode: fc.DevMode, Sync: fc.Sync, Level: levelUnset}
	if fc.Level != "" {
		lv, ok := types.ParseLevel(fc.Level)
		if !ok {
			return nil, newLogError(types.ErrConfigInvalid, "parse", "unrecognized level "+fc.Level, nil)
		}
		cfg.Level = lv
	}

	for _, s := range fc.Sinks {
		spec := SinkSpec{
			Name:           s.Name,
			SkipServerLogs: s.SkipServerLogs,
			FormatConfig:   formatters.DefaultFormatConfig(),
		}
		if s.Template != "" {
			spec.FormatConfig.Template = s.Template
		}

		switch s.Kind {
		case "terminal", "":
			spec.Kind = SinkTerminal
			spec.Terminal = &TerminalConfig{Raw: s.Raw}
		case "file":
			spec.Kind = SinkFile
			var maxAge time.Duration
			if s.MaxArchiveAge != "" {
				d, err := time.ParseDuration(s.MaxArchiveAge)
				if err != nil {
					return nil, newLogError(types.ErrConfigInvalid, "parse", "invalid max_archive_age for sink "+s.Name, err)
				}
				maxAge = d
			}
			spec.File = &FileConfig{
				Path:               s.Path,
				MaxFileSize:        s.MaxFileSize,
				MaxCompressedFiles: s.MaxCompressedFiles,
				MaxArchiveAge:      maxAge,
				CompressOnDrop:     s.CompressOnDrop,
				CompressionLevel:   s.CompressionLevel,
				CompressionThreads: s.MinCompressThreads,
				Raw:                s.Raw,
			}
		case "udp":
			spec.Kind = SinkUDP
			spec.UDP = &UDPConfig{Addr: s.Addr, AuthToken: s.AuthToken, AppID: s.AppID}
		default:
			return nil, newLogError(types.ErrConfigInvalid, "parse", "unknown sink kind "+s.Kind+" for "+s.Name, nil)
		}
		cfg.Sinks = append(cfg.Sinks, spec)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
