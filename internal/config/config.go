package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds everything needed to build the detector, OCR engine and server.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Detector DetectorConfig `yaml:"detector"`
	OCR      OCRConfig      `yaml:"ocr"`
	LogLevel string         `yaml:"log_level"`
}

type ServerConfig struct {
	Port           string `yaml:"port"`
	UploadsDir     string `yaml:"uploads_dir"`
	StaticDir      string `yaml:"static_dir"`
	MaxUploadBytes int64  `yaml:"max_upload_bytes"`
	// MaxImagePixels rejects uploads whose declared width*height is larger.
	MaxImagePixels int64  `yaml:"max_image_pixels"`
	// MaxSessions caps how many processed uploads are kept in memory.
	MaxSessions    int    `yaml:"max_sessions"`
}

type DetectorConfig struct {
	URL        string        `yaml:"url"`
	ModelPath  string        `yaml:"model_path"`
	Confidence float64       `yaml:"confidence"`
	InputSize  int           `yaml:"input_size"`
	Timeout    time.Duration `yaml:"timeout"`
}

type OCRConfig struct {
	// Engine is one of tesseract, rekognition, ollama, openai or gemini.
	Engine      string `yaml:"engine"`
	Language    string `yaml:"language"`
	CacheDir    string `yaml:"cache_dir"`
	TessdataURL string `yaml:"tessdata_url"`
	Model       string `yaml:"model"`
	AWSRegion   string `yaml:"aws_region"`
}

var Engines = []string{"tesseract", "rekognition", "ollama", "openai", "gemini"}

// Default returns the configuration used when nothing else is set.
func Default() *Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return &Config{
		Server: ServerConfig{
			Port:           "8888",
			UploadsDir:     "uploads",
			StaticDir:      "static",
			MaxUploadBytes: 10 * 1024 * 1024,
			MaxImagePixels: 40_000_000,
			MaxSessions:    20,
		},
		Detector: DetectorConfig{
			URL:        "http://localhost:5000",
			ModelPath:  "best.pt",
			Confidence: 0.4,
			InputSize:  640,
			Timeout:    60 * time.Second,
		},
		OCR: OCRConfig{
			Engine:    "tesseract",
			Language:  "eng",
			CacheDir:  filepath.Join(home, ".platereader", "tessdata"),
			AWSRegion: "us-east-1",
		},
		LogLevel: "info",
	}
}

// Load builds a Config from defaults, an optional YAML file and the environment.
// Environment variables win over the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
		slog.Debug("Loaded config file", "path", path)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	setString(&c.Server.Port, "PLATEREADER_PORT")
	setString(&c.Server.UploadsDir, "PLATEREADER_UPLOADS_DIR")
	setString(&c.Server.StaticDir, "PLATEREADER_STATIC_DIR")
	setString(&c.Detector.URL, "PLATEREADER_DETECTOR_URL")
	setString(&c.Detector.ModelPath, "PLATEREADER_MODEL_PATH")
	setString(&c.OCR.Engine, "PLATEREADER_OCR_ENGINE")
	setString(&c.OCR.Language, "PLATEREADER_OCR_LANGUAGE")
	setString(&c.OCR.CacheDir, "PLATEREADER_OCR_CACHE_DIR")
	setString(&c.OCR.TessdataURL, "PLATEREADER_TESSDATA_URL")
	setString(&c.OCR.Model, "PLATEREADER_OCR_MODEL")
	setString(&c.OCR.AWSRegion, "AWS_REGION")
	setString(&c.LogLevel, "LOG_LEVEL")

	if v := os.Getenv("PLATEREADER_DETECTOR_CONFIDENCE"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid PLATEREADER_DETECTOR_CONFIDENCE %q: %w", v, err)
		}
		c.Detector.Confidence = f
	}
	if v := os.Getenv("PLATEREADER_DETECTOR_INPUT_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid PLATEREADER_DETECTOR_INPUT_SIZE %q: %w", v, err)
		}
		c.Detector.InputSize = n
	}
	if v := os.Getenv("PLATEREADER_MAX_IMAGE_PIXELS"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid PLATEREADER_MAX_IMAGE_PIXELS %q: %w", v, err)
		}
		c.Server.MaxImagePixels = n
	}
	if v := os.Getenv("PLATEREADER_MAX_SESSIONS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid PLATEREADER_MAX_SESSIONS %q: %w", v, err)
		}
		c.Server.MaxSessions = n
	}
	if v := os.Getenv("PLATEREADER_MAX_UPLOAD_BYTES"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid PLATEREADER_MAX_UPLOAD_BYTES %q: %w", v, err)
		}
		c.Server.MaxUploadBytes = n
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// Validate checks ranges and enumerations.
func (c *Config) Validate() error {
	var errs []error
	if c.Detector.Confidence < 0 || c.Detector.Confidence > 1 {
		errs = append(errs, fmt.Errorf("detector confidence must be within [0,1], got %v", c.Detector.Confidence))
	}
	if c.Detector.InputSize <= 0 {
		errs = append(errs, fmt.Errorf("detector input size must be positive, got %d", c.Detector.InputSize))
	}
	if c.Detector.URL == "" {
		errs = append(errs, errors.New("detector url is required"))
	}
	if c.Server.MaxUploadBytes <= 0 {
		errs = append(errs, fmt.Errorf("max upload bytes must be positive, got %d", c.Server.MaxUploadBytes))
	}
	if c.Server.MaxImagePixels <= 0 {
		errs = append(errs, fmt.Errorf("max image pixels must be positive, got %d", c.Server.MaxImagePixels))
	}
	if c.Server.MaxSessions <= 0 {
		errs = append(errs, fmt.Errorf("max sessions must be positive, got %d", c.Server.MaxSessions))
	}
	if !knownEngine(c.OCR.Engine) {
		errs = append(errs, fmt.Errorf("unsupported OCR engine %q (expected one of %s)", c.OCR.Engine, strings.Join(Engines, ", ")))
	}
	return errors.Join(errs...)
}

func knownEngine(name string) bool {
	for _, e := range Engines {
		if e == name {
			return true
		}
	}
	return false
}

// SlogLevel maps LogLevel onto a slog.Level, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
