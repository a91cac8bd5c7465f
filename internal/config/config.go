package config

import (
	"log"
	"os"
	"strconv"
	"strings"
)

type Config struct {
	HTTPPort    int
	DatabaseURL string
	RedisURL    string

	MarketDataURL  string
	UserServiceURL string

	TelegramBotToken string

	OpenAIAPIKey string
	OpenAIModel  string

	ScanTimeoutSecs    int
	ScannerTimeoutSecs int
	ScanRetentionSecs  int

	ConsensusStdLimit float64

	ReapIntervalSecs int
	ReapStaleSecs    int

	MinTradeUSD        float64
	DeviationThreshold float64
}

func Load() *Config {
	cfg := &Config{
		TelegramBotToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		RedisURL:         os.Getenv("REDIS_URL"),
	}

	if cfg.TelegramBotToken == "" {
		log.Println("Warning: TELEGRAM_BOT_TOKEN not set")
	}
	if cfg.DatabaseURL == "" {
		log.Println("Warning: DATABASE_URL not set")
	}
	if cfg.RedisURL == "" {
		log.Println("Warning: REDIS_URL not set, defaulting to localhost:6379")
		cfg.RedisURL = "localhost:6379"
	}

	cfg.HTTPPort = 8080
	if v := strings.TrimSpace(os.Getenv("HTTP_PORT")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.HTTPPort = n
		}
	}

	cfg.MarketDataURL = strings.TrimSpace(os.Getenv("MARKET_DATA_URL"))
	if cfg.MarketDataURL == "" {
		log.Println("Warning: MARKET_DATA_URL not set, defaulting to http://localhost:8081")
		cfg.MarketDataURL = "http://localhost:8081"
	}

	cfg.UserServiceURL = strings.TrimSpace(os.Getenv("USER_SERVICE_URL"))
	if cfg.UserServiceURL == "" {
		log.Println("Warning: USER_SERVICE_URL not set, defaulting to http://localhost:8082")
		cfg.UserServiceURL = "http://localhost:8082"
	}

	cfg.OpenAIAPIKey = os.Getenv("OPENAI_API_KEY")
	if cfg.OpenAIAPIKey == "" {
		log.Println("Warning: OPENAI_API_KEY not set, consensus runs on the heuristic provider only")
	}

	cfg.OpenAIModel = strings.TrimSpace(os.Getenv("OPENAI_MODEL"))
	if cfg.OpenAIModel == "" {
		cfg.OpenAIModel = "gpt-4o-mini"
	}

	cfg.ScanTimeoutSecs = 120
	if v := strings.TrimSpace(os.Getenv("SCAN_TIMEOUT_SECS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.ScanTimeoutSecs = n
		}
	}

	cfg.ScannerTimeoutSecs = 15
	if v := strings.TrimSpace(os.Getenv("SCANNER_TIMEOUT_SECS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.ScannerTimeoutSecs = n
		}
	}

	cfg.ScanRetentionSecs = 3600
	if v := strings.TrimSpace(os.Getenv("SCAN_RETENTION_SECS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.ScanRetentionSecs = n
		}
	}

	cfg.ConsensusStdLimit = 20
	if v := strings.TrimSpace(os.Getenv("CONSENSUS_STD_LIMIT")); v != "" {
		if n, err := strconv.ParseFloat(v, 64); err == nil && n > 0 {
			cfg.ConsensusStdLimit = n
		}
	}

	cfg.ReapIntervalSecs = 300
	if v := strings.TrimSpace(os.Getenv("REAP_INTERVAL_SECS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.ReapIntervalSecs = n
		}
	}

	cfg.ReapStaleSecs = 600
	if v := strings.TrimSpace(os.Getenv("REAP_STALE_SECS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.ReapStaleSecs = n
		}
	}

	cfg.MinTradeUSD = 1
	if v := strings.TrimSpace(os.Getenv("MIN_TRADE_USD")); v != "" {
		if n, err := strconv.ParseFloat(v, 64); err == nil && n > 0 {
			cfg.MinTradeUSD = n
		}
	}

	cfg.DeviationThreshold = 0.05
	if v := strings.TrimSpace(os.Getenv("DEVIATION_THRESHOLD")); v != "" {
		if n, err := strconv.ParseFloat(v, 64); err == nil && n > 0 && n < 1 {
			cfg.DeviationThreshold = n
		}
	}

	return cfg
}
