package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Mode               string        `mapstructure:"mode"`
	SignalURL          string        `mapstructure:"signal_url"`
	APIBaseURL         string        `mapstructure:"api_base_url"`
	ICEServers         []string      `mapstructure:"ice_servers"`
	CameraWidth        int           `mapstructure:"camera_width"`
	CameraHeight       int           `mapstructure:"camera_height"`
	CameraFrameRate    float64       `mapstructure:"camera_frame_rate"`
	ScreenFrameRate    float64       `mapstructure:"screen_frame_rate"`
	NegotiationTimeout time.Duration `mapstructure:"negotiation_timeout"`
	ReconnectAttempts  int           `mapstructure:"reconnect_attempts"`
	ReconnectBackoff   time.Duration `mapstructure:"reconnect_backoff"`
	RecordingDir       string        `mapstructure:"recording_dir"`
	SendBuffer         int           `mapstructure:"send_buffer"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetDefault("mode", "release")
	v.SetDefault("signal_url", "ws://localhost:3001/ws")
	v.SetDefault("api_base_url", "http://localhost:3001")
	v.SetDefault("ice_servers", []string{"stun:stun.l.google.com:19302"})
	v.SetDefault("camera_width", 1280)
	v.SetDefault("camera_height", 720)
	v.SetDefault("camera_frame_rate", 30)
	v.SetDefault("screen_frame_rate", 15)
	v.SetDefault("negotiation_timeout", "20s")
	v.SetDefault("reconnect_attempts", 3)
	v.SetDefault("reconnect_backoff", "2s")
	v.SetDefault("recording_dir", "./recordings")
	v.SetDefault("send_buffer", 32)

	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("⚠️ Config file not found (%s), using defaults\n", fileName)
	} else {
		fmt.Printf("✅ Loaded config: %s\n", fileName)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
