package config

import (
	"encoding/json"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// APIKeys holds the API keys for various services.
type APIKeys struct {
	HuggingFace string `json:"HUGGINGFACE_API_TOKEN"`
	Stability   string `json:"STABILITY_API_KEY"`
	NodeImage   string `json:"NODEIMAGE_API_KEY"`
	ImageAPI    string `json:"IMAGEAPI_API_KEY"`
}

// HuggingFace holds the inference API endpoints and their limits.
type HuggingFace struct {
	BaseURL           string   `json:"BASE_URL"`
	GenerationModels  []string `json:"GENERATION_MODELS"`
	CaptionModels     []string `json:"CAPTION_MODELS"`
	GenerationTimeout Duration `json:"GENERATION_TIMEOUT"`
	CaptionTimeout    Duration `json:"CAPTION_TIMEOUT"`
	RateLimitDelay    Duration `json:"RATE_LIMIT_DELAY"`
}

// Stability holds the settings for the Stability AI text-to-image endpoint.
type Stability struct {
	URL     string   `json:"URL"`
	Timeout Duration `json:"TIMEOUT"`
}

// Settings holds optional application settings.
type Settings struct {
	ListenAddr        string   `json:"LISTEN_ADDR"`
	SaveLocalCopy     bool     `json:"SAVE_LOCAL_COPY"`
	ImagesDir         string   `json:"IMAGES_DIR"`
	UploadToImageHost bool     `json:"UPLOAD_TO_IMAGE_HOST"`
	WebPassword       string   `json:"WEB_PASSWORD"`
	SessionSecret     string   `json:"SESSION_SECRET"`
	DownloadTimeout   Duration `json:"DOWNLOAD_TIMEOUT"`
}

// Logging holds the logger settings.
type Logging struct {
	Level      string `json:"LEVEL"`
	Pretty     bool   `json:"PRETTY"`
	File       string `json:"FILE"`
	MaxSizeMB  int    `json:"MAX_SIZE_MB"`
	MaxBackups int    `json:"MAX_BACKUPS"`
	MaxAgeDays int    `json:"MAX_AGE_DAYS"`
	Compress   bool   `json:"COMPRESS"`
}

// Cache holds the caption cache settings. An empty RedisURL disables it.
type Cache struct {
	RedisURL string   `json:"REDIS_URL"`
	TTL      Duration `json:"TTL"`
}

// Config holds the entire application configuration.
type Config struct {
	APIKeys     APIKeys     `json:"API_KEYS"`
	HuggingFace HuggingFace `json:"HUGGINGFACE"`
	Stability   Stability   `json:"STABILITY"`
	Settings    Settings    `json:"SETTINGS"`
	Logging     Logging     `json:"LOGGING"`
	Cache       Cache       `json:"CACHE"`
}

// DefaultSessionSecret is the placeholder secret used when none is configured.
const DefaultSessionSecret = "a_very_long_and_random_secret_string"

// AppConfig is the global configuration instance.
var AppConfig *Config

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		HuggingFace: HuggingFace{
			BaseURL: "https://api-inference.huggingface.co",
			GenerationModels: []string{
				"stabilityai/stable-diffusion-xl-base-1.0",
				"runwayml/stable-diffusion-v1-5",
				"prompthero/openjourney",
			},
			CaptionModels: []string{
				"Salesforce/blip-image-captioning-large",
				"nlpconnect/vit-gpt2-image-captioning",
			},
			GenerationTimeout: Duration(120 * time.Second),
			CaptionTimeout:    Duration(60 * time.Second),
			RateLimitDelay:    Duration(5 * time.Second),
		},
		Stability: Stability{
			URL:     "https://api.stability.ai/v1/generation/stable-diffusion-xl-1024-v1-0/text-to-image",
			Timeout: Duration(120 * time.Second),
		},
		Settings: Settings{
			ListenAddr:        ":8080",
			SaveLocalCopy:     true,
			ImagesDir:         "images",
			UploadToImageHost: false,
			SessionSecret:     DefaultSessionSecret,
			DownloadTimeout:   Duration(10 * time.Second),
		},
		Logging: Logging{
			Level:      "info",
			MaxSizeMB:  100,
			MaxBackups: 10,
			MaxAgeDays: 30,
			Compress:   true,
		},
		Cache: Cache{
			TTL: Duration(24 * time.Hour),
		},
	}
}

// LoadConfig loads the configuration from defaults, conf.json, .env, and environment variables
// into AppConfig.
func LoadConfig() {
	AppConfig = Load("conf.json")
	log.Info().Msg("Configuration loaded successfully.")
}

// Load builds a configuration from defaults, the given JSON file, .env and the environment.
// Later sources override earlier ones.
func Load(path string) *Config {
	// 1. Set default values
	cfg := Default()

	// 2. Load from the JSON file
	file, err := os.Open(path)
	if err == nil {
		defer file.Close()
		decoder := json.NewDecoder(file)
		if err := decoder.Decode(cfg); err != nil {
			log.Warn().Err(err).Str("path", path).Msg("could not decode config file")
		} else {
			log.Info().Str("path", path).Msg("loaded configuration file")
		}
	} else if !os.IsNotExist(err) {
		log.Warn().Err(err).Str("path", path).Msg("could not open config file")
	}

	// 3. Load from .env file (will override the JSON file)
	_ = godotenv.Load()

	// 4. Load from environment variables (will override everything)
	loadFromEnv(cfg)
	return cfg
}

// loadFromEnv loads configuration from environment variables, overriding existing values.
func loadFromEnv(cfg *Config) {
	// API Keys
	setString(&cfg.APIKeys.HuggingFace, "HUGGINGFACE_API_TOKEN")
	setString(&cfg.APIKeys.Stability, "STABILITY_API_KEY")
	setString(&cfg.APIKeys.NodeImage, "NODEIMAGE_API_KEY")
	setString(&cfg.APIKeys.ImageAPI, "IMAGEAPI_API_KEY")

	// HuggingFace
	setString(&cfg.HuggingFace.BaseURL, "HUGGINGFACE_BASE_URL")
	setList(&cfg.HuggingFace.GenerationModels, "HUGGINGFACE_GENERATION_MODELS")
	setList(&cfg.HuggingFace.CaptionModels, "HUGGINGFACE_CAPTION_MODELS")
	setDuration(&cfg.HuggingFace.GenerationTimeout, "HUGGINGFACE_GENERATION_TIMEOUT")
	setDuration(&cfg.HuggingFace.CaptionTimeout, "HUGGINGFACE_CAPTION_TIMEOUT")
	setDuration(&cfg.HuggingFace.RateLimitDelay, "HUGGINGFACE_RATE_LIMIT_DELAY")

	// Stability
	setString(&cfg.Stability.URL, "STABILITY_URL")
	setDuration(&cfg.Stability.Timeout, "STABILITY_TIMEOUT")

	// Settings
	setString(&cfg.Settings.ListenAddr, "LISTEN_ADDR")
	setBool(&cfg.Settings.SaveLocalCopy, "SAVE_LOCAL_COPY")
	setString(&cfg.Settings.ImagesDir, "IMAGES_DIR")
	setBool(&cfg.Settings.UploadToImageHost, "UPLOAD_TO_IMAGE_HOST")
	setString(&cfg.Settings.WebPassword, "WEB_PASSWORD")
	setString(&cfg.Settings.SessionSecret, "SESSION_SECRET")
	setDuration(&cfg.Settings.DownloadTimeout, "DOWNLOAD_TIMEOUT")

	// Logging
	setString(&cfg.Logging.Level, "LOG_LEVEL")
	setBool(&cfg.Logging.Pretty, "LOG_PRETTY")
	setString(&cfg.Logging.File, "LOG_FILE")
	setInt(&cfg.Logging.MaxSizeMB, "LOG_MAX_SIZE_MB")
	setInt(&cfg.Logging.MaxBackups, "LOG_MAX_BACKUPS")
	setInt(&cfg.Logging.MaxAgeDays, "LOG_MAX_AGE_DAYS")
	setBool(&cfg.Logging.Compress, "LOG_COMPRESS")

	// Cache
	setString(&cfg.Cache.RedisURL, "CACHE_REDIS_URL")
	setDuration(&cfg.Cache.TTL, "CACHE_TTL")
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setList(dst *[]string, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) > 0 {
		*dst = out
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setDuration(dst *Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = Duration(d)
		}
	}
}
