package server

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pion/webrtc/v4"
	log "github.com/sirupsen/logrus"
	"gopkg.in/ini.v1"
)

// DefaultConfigLocation is read when neither --config nor SERVER_CONFIG names another file
const DefaultConfigLocation = "server.ini"

// Config holds every server setting. Load it with LoadConfig or ParseConfig; missing keys keep their defaults.
type Config struct {
	Port            int
	AllowedOrigins  []string
	ShutdownTimeout time.Duration

	MaxMessageBytes   int64
	MessagesPerSecond float64
	MessageBurst      int
	SendQueueSize     int
	WriteTimeout      time.Duration
	PongTimeout       time.Duration
	PingInterval      time.Duration

	// Only let clients relay to their current partner
	PartnerOnlyRelay bool

	ICEServers []webrtc.ICEServer

	ModerationWebhookURL string
	ModerationSecret     string
	ModerationTimeout    time.Duration

	LogLevel log.Level
}

// DefaultConfig returns the settings used when no configuration file exists
func DefaultConfig() *Config {
	return &Config{
		Port:            3001,
		AllowedOrigins:  []string{"*"},
		ShutdownTimeout: 5 * time.Second,

		MaxMessageBytes:   64 * 1024,
		MessagesPerSecond: 50,
		MessageBurst:      100,
		SendQueueSize:     64,
		WriteTimeout:      5 * time.Second,
		PongTimeout:       60 * time.Second,
		PingInterval:      25 * time.Second,

		ICEServers: []webrtc.ICEServer{
			{URLs: []string{"stun:stun.l.google.com:19302", "stun:stun1.l.google.com:19302"}},
		},

		ModerationTimeout: 10 * time.Second,

		LogLevel: log.InfoLevel,
	}
}

// LoadConfig reads the INI file at location. A missing file is not an error and yields the defaults.
// The PORT environment variable overrides the configured port.
func LoadConfig(location string) (*Config, error) {
	file, err := ini.LooseLoad(location)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", location, err)
	}

	config, err := parseConfigFile(file)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", location, err)
	}

	if rawPort := strings.TrimSpace(os.Getenv("PORT")); rawPort != "" {
		port, err := strconv.Atoi(rawPort)
		if err != nil || port < 1 || port > 65535 {
			return nil, fmt.Errorf("PORT: invalid port %q", rawPort)
		}
		config.Port = port
	}

	return config, nil
}

// ParseConfig reads configuration from INI data held in memory
func ParseConfig(data []byte) (*Config, error) {
	file, err := ini.Load(data)
	if err != nil {
		return nil, err
	}
	return parseConfigFile(file)
}

func parseConfigFile(file *ini.File) (*Config, error) {
	config := DefaultConfig()
	p := configParser{}

	serverSection := file.Section("server")
	p.intKey(serverSection, "port", &config.Port)
	p.listKey(serverSection, "allowed_origins", &config.AllowedOrigins)
	p.durationKey(serverSection, "shutdown_timeout", &config.ShutdownTimeout)

	wsSection := file.Section("websocket")
	p.int64Key(wsSection, "max_message_bytes", &config.MaxMessageBytes)
	p.floatKey(wsSection, "messages_per_second", &config.MessagesPerSecond)
	p.intKey(wsSection, "message_burst", &config.MessageBurst)
	p.intKey(wsSection, "send_queue_size", &config.SendQueueSize)
	p.durationKey(wsSection, "write_timeout", &config.WriteTimeout)
	p.durationKey(wsSection, "pong_timeout", &config.PongTimeout)
	p.durationKey(wsSection, "ping_interval", &config.PingInterval)

	p.boolKey(file.Section("relay"), "partner_only", &config.PartnerOnlyRelay)

	iceSection := file.Section("ice")
	if iceSection.HasKey("stun_urls") || iceSection.HasKey("turn_urls") {
		config.ICEServers = p.iceServers(iceSection)
	}

	moderationSection := file.Section("moderation")
	config.ModerationWebhookURL = strings.TrimSpace(moderationSection.Key("webhook_url").String())
	config.ModerationSecret = moderationSection.Key("secret").String()
	p.durationKey(moderationSection, "timeout", &config.ModerationTimeout)

	if logSection := file.Section("log"); logSection.HasKey("level") {
		level, err := log.ParseLevel(logSection.Key("level").String())
		if err != nil {
			p.fail(logSection, "level", err)
		} else {
			config.LogLevel = level
		}
	}

	if p.err != nil {
		return nil, p.err
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate checks the values make sense together
func (config *Config) Validate() error {
	switch {
	case config.Port < 1 || config.Port > 65535:
		return fmt.Errorf("server.port %d out of range", config.Port)
	case config.SendQueueSize < 1:
		return fmt.Errorf("websocket.send_queue_size must be positive")
	case config.MaxMessageBytes < 0:
		return fmt.Errorf("websocket.max_message_bytes must not be negative")
	case config.MessagesPerSecond < 0:
		return fmt.Errorf("websocket.messages_per_second must not be negative")
	case config.MessagesPerSecond > 0 && config.MessageBurst < 1:
		return fmt.Errorf("websocket.message_burst must be positive when rate limiting is enabled")
	case config.PongTimeout > 0 && config.PingInterval >= config.PongTimeout:
		return fmt.Errorf("websocket.ping_interval must be shorter than websocket.pong_timeout")
	case config.ModerationWebhookURL != "" && config.ModerationSecret == "":
		return fmt.Errorf("moderation.secret is required when moderation.webhook_url is set")
	}

	for _, server := range config.ICEServers {
		for _, url := range server.URLs {
			if !hasICEScheme(url) {
				return fmt.Errorf("ice: %q is not a stun/turn url", url)
			}
		}
	}
	return nil
}

func hasICEScheme(url string) bool {
	for _, scheme := range []string{"stun:", "stuns:", "turn:", "turns:"} {
		if strings.HasPrefix(url, scheme) {
			return true
		}
	}
	return false
}

// configParser remembers the first invalid key so parseConfigFile can report it
type configParser struct {
	err error
}

func (p *configParser) fail(section *ini.Section, key string, err error) {
	if p.err == nil {
		p.err = fmt.Errorf("%s.%s: %w", section.Name(), key, err)
	}
}

func (p *configParser) intKey(section *ini.Section, key string, out *int) {
	if !section.HasKey(key) {
		return
	}
	value, err := section.Key(key).Int()
	if err != nil {
		p.fail(section, key, err)
		return
	}
	*out = value
}

func (p *configParser) int64Key(section *ini.Section, key string, out *int64) {
	if !section.HasKey(key) {
		return
	}
	value, err := section.Key(key).Int64()
	if err != nil {
		p.fail(section, key, err)
		return
	}
	*out = value
}

func (p *configParser) floatKey(section *ini.Section, key string, out *float64) {
	if !section.HasKey(key) {
		return
	}
	value, err := section.Key(key).Float64()
	if err != nil {
		p.fail(section, key, err)
		return
	}
	*out = value
}

func (p *configParser) boolKey(section *ini.Section, key string, out *bool) {
	if !section.HasKey(key) {
		return
	}
	value, err := section.Key(key).Bool()
	if err != nil {
		p.fail(section, key, err)
		return
	}
	*out = value
}

func (p *configParser) durationKey(section *ini.Section, key string, out *time.Duration) {
	if !section.HasKey(key) {
		return
	}
	value, err := section.Key(key).Duration()
	if err != nil {
		p.fail(section, key, err)
		return
	}
	*out = value
}

func (p *configParser) listKey(section *ini.Section, key string, out *[]string) {
	if !section.HasKey(key) {
		return
	}
	*out = splitList(section.Key(key).String())
}

func (p *configParser) iceServers(section *ini.Section) []webrtc.ICEServer {
	var servers []webrtc.ICEServer

	if stunURLs := splitList(section.Key("stun_urls").String()); len(stunURLs) > 0 {
		servers = append(servers, webrtc.ICEServer{URLs: stunURLs})
	}

	if turnURLs := splitList(section.Key("turn_urls").String()); len(turnURLs) > 0 {
		username := strings.TrimSpace(section.Key("turn_username").String())
		credential := section.Key("turn_credential").String()
		if username == "" || credential == "" {
			p.fail(section, "turn_urls", fmt.Errorf("turn_username and turn_credential are required"))
			return servers
		}
		servers = append(servers, webrtc.ICEServer{
			URLs:       turnURLs,
			Username:   username,
			Credential: credential,
		})
	}

	return servers
}

func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
