package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the typed view of everything viper has loaded.
type Config struct {
	RegistryURL string        `mapstructure:"registry_url"`
	CameraPort  int           `mapstructure:"camera_port"`
	PoolSize    int           `mapstructure:"pool_size"`
	ImageDir    string        `mapstructure:"image_dir"`
	Debug       bool          `mapstructure:"debug"`
	LogFile     string        `mapstructure:"log_file"`
	Timeouts    TimeoutConfig `mapstructure:"timeouts"`
	Serve       ServeConfig   `mapstructure:"serve"`
	MQTT        MQTTConfig    `mapstructure:"mqtt"`
}

type TimeoutConfig struct {
	Info       time.Duration `mapstructure:"info"`
	Activate   time.Duration `mapstructure:"activate"`
	Capture    time.Duration `mapstructure:"capture"`
	Deactivate time.Duration `mapstructure:"deactivate"`
	Registry   time.Duration `mapstructure:"registry"`
	Download   time.Duration `mapstructure:"download"`
}

type ServeConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// MQTTConfig is optional; an empty Broker disables publishing.
type MQTTConfig struct {
	Broker      string        `mapstructure:"broker"`
	ClientID    string        `mapstructure:"client_id"`
	TopicPrefix string        `mapstructure:"topic_prefix"`
	QoS         int           `mapstructure:"qos"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

var defaults = map[string]any{
	"registry_url":        "http://localhost:8082/registration",
	"camera_port":         8081,
	"pool_size":           10,
	"image_dir":           "camimages",
	"debug":               false,
	"log_file":            "",
	"timeouts.info":       10 * time.Second,
	"timeouts.activate":   5 * time.Second,
	"timeouts.capture":    10 * time.Second,
	"timeouts.deactivate": 5 * time.Second,
	"timeouts.registry":   10 * time.Second,
	"timeouts.download":   30 * time.Second,
	"serve.host":          "",
	"serve.port":          8090,
	"mqtt.broker":         "",
	"mqtt.client_id":      "",
	"mqtt.topic_prefix":   "argus/cameras",
	"mqtt.qos":            0,
	"mqtt.timeout":        5 * time.Second,
}

// SetDefaults registers every known key so that env overrides apply to it.
func SetDefaults(v *viper.Viper) {
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.SetEnvPrefix("ARGUS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// InitConfig reads in config file and ENV variables if set.
func InitConfig(cfgFile string) {
	SetDefaults(viper.GetViper())

	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		// Find home directory.
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}

		// Search config in home directory with name ".argus-master" (without extension).
		viper.AddConfigPath(home)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".argus-master")
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && cfgFile != "" {
			fmt.Fprintf(os.Stderr, "Warning: could not read config %s: %v\n", cfgFile, err)
		}
	}
}

// Load unmarshals the global viper instance.
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

func LoadFrom(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.RegistryURL == "" {
		return errors.New("registry_url must be set")
	}
	if c.CameraPort < 1 || c.CameraPort > 65535 {
		return fmt.Errorf("invalid camera_port: %d", c.CameraPort)
	}
	if c.PoolSize < 1 {
		return fmt.Errorf("invalid pool_size: %d", c.PoolSize)
	}
	if c.Serve.Port < 1 || c.Serve.Port > 65535 {
		return fmt.Errorf("invalid serve.port: %d", c.Serve.Port)
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		return fmt.Errorf("invalid mqtt.qos: %d", c.MQTT.QoS)
	}
	for name, d := range map[string]time.Duration{
		"info":       c.Timeouts.Info,
		"activate":   c.Timeouts.Activate,
		"capture":    c.Timeouts.Capture,
		"deactivate": c.Timeouts.Deactivate,
		"registry":   c.Timeouts.Registry,
	} {
		if d <= 0 {
			return fmt.Errorf("timeouts.%s must be positive", name)
		}
	}
	return nil
}

// ServeAddress is the listen address of the console daemon.
func (c *Config) ServeAddress() string {
	return fmt.Sprintf("%s:%d", c.Serve.Host, c.Serve.Port)
}

// WriteDefaults saves the current settings to the config file in use, or to
// $HOME/.argus-master.yaml when none was loaded.
func WriteDefaults() (string, error) {
	// Ensure the file exists before writing
	if err := viper.WriteConfig(); err != nil {
		// If file doesn't exist, create it
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			if err := viper.SafeWriteConfig(); err != nil {
				return "", err
			}
			home, _ := os.UserHomeDir()
			return filepath.Join(home, ".argus-master.yaml"), nil
		}
		// If it exists but failed to write, try writing to default path
		home, _ := os.UserHomeDir()
		path := filepath.Join(home, ".argus-master.yaml")
		return path, viper.WriteConfigAs(path)
	}
	return viper.ConfigFileUsed(), nil
}
