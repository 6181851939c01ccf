package store

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Mode string `yaml:"mode"`
	LLM  struct {
		Provider    string  `yaml:"provider"`
		Model       string  `yaml:"model"`
		Endpoint    string  `yaml:"endpoint"`
		MaxTokens   int     `yaml:"max_tokens"`
		Temperature float32 `yaml:"temperature"`
		Stream      bool    `yaml:"stream"`
	} `yaml:"llm"`
	Transport struct {
		Mode string `yaml:"mode"`
		URL  string `yaml:"url"`
	} `yaml:"transport"`
	Roles struct {
		HistoryLimit      int `yaml:"history_limit"`
		RiskReviewSeconds int `yaml:"risk_review_seconds"`
		LongtermMinutes   int `yaml:"longterm_minutes"`
	} `yaml:"roles"`
	Market struct {
		TickerThreshold float64 `yaml:"ticker_threshold"`
	} `yaml:"market"`
	Kraken struct {
		BaseURL         string `yaml:"base_url"`
		IntervalMinutes int    `yaml:"interval_minutes"`
		TimeoutSeconds  int    `yaml:"timeout_seconds"`
		Candles         int    `yaml:"candles"`
	} `yaml:"kraken"`
	News struct {
		Enabled         bool `yaml:"enabled"`
		IntervalMinutes int  `yaml:"interval_minutes"`
	} `yaml:"news"`
	Metrics struct {
		Addr string `yaml:"addr"`
	} `yaml:"metrics"`
}

// validKrakenIntervals lists the candle sizes the public OHLC endpoint serves.
var validKrakenIntervals = map[int]bool{
	1: true, 5: true, 15: true, 30: true, 60: true,
	240: true, 1440: true, 10080: true, 21600: true,
}

func (c *Config) Validate() error {
	if c.Mode != "DRY_RUN" && c.Mode != "LIVE" {
		return fmt.Errorf("invalid mode '%s': must be 'DRY_RUN' or 'LIVE'", c.Mode)
	}
	if c.LLM.Provider != "OPENAI" && c.LLM.Provider != "CLAUDE" && c.LLM.Provider != "NONE" {
		return fmt.Errorf("invalid llm.provider '%s': must be 'OPENAI', 'CLAUDE', or 'NONE'", c.LLM.Provider)
	}
	if c.Transport.Mode != "stdio" && c.Transport.Mode != "websocket" {
		return fmt.Errorf("invalid transport.mode '%s': must be 'stdio' or 'websocket'", c.Transport.Mode)
	}
	if c.Transport.Mode == "websocket" && c.Transport.URL == "" {
		return fmt.Errorf("transport.url is required when transport.mode is 'websocket'")
	}
	if c.Roles.HistoryLimit <= 0 {
		return fmt.Errorf("roles.history_limit must be positive, got %d", c.Roles.HistoryLimit)
	}
	if c.Market.TickerThreshold <= 0 || c.Market.TickerThreshold >= 1 {
		return fmt.Errorf("market.ticker_threshold must be between 0-1, got %.4f", c.Market.TickerThreshold)
	}
	if !validKrakenIntervals[c.Kraken.IntervalMinutes] {
		return fmt.Errorf("invalid kraken.interval_minutes %d: must be one of 1, 5, 15, 30, 60, 240, 1440, 10080, 21600", c.Kraken.IntervalMinutes)
	}
	return nil
}

func LoadConfig(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, err
	}

	if c.LLM.Provider == "" {
		c.LLM.Provider = "NONE"
	}
	if c.LLM.MaxTokens == 0 {
		c.LLM.MaxTokens = 1024
	}
	if c.LLM.Temperature == 0 {
		c.LLM.Temperature = 0.2
	}
	if c.Transport.Mode == "" {
		c.Transport.Mode = "stdio"
	}
	if c.Roles.HistoryLimit == 0 {
		c.Roles.HistoryLimit = 30
	}
	if c.Roles.RiskReviewSeconds == 0 {
		c.Roles.RiskReviewSeconds = 30
	}
	if c.Roles.LongtermMinutes == 0 {
		c.Roles.LongtermMinutes = 5
	}
	if c.Market.TickerThreshold == 0 {
		c.Market.TickerThreshold = 0.001
	}
	if c.Kraken.BaseURL == "" {
		c.Kraken.BaseURL = "https://api.kraken.com"
	}
	if c.Kraken.IntervalMinutes == 0 {
		c.Kraken.IntervalMinutes = 60
	}
	if c.Kraken.TimeoutSeconds == 0 {
		c.Kraken.TimeoutSeconds = 10
	}
	if c.Kraken.Candles == 0 {
		c.Kraken.Candles = 24
	}
	if c.News.IntervalMinutes == 0 {
		c.News.IntervalMinutes = 30
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &c, nil
}
