package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

// Rect is a capture rectangle in virtual-screen coordinates, stored as
// (left, top, right, bottom) in the region file.
type Rect struct {
	Left   int
	Top    int
	Right  int
	Bottom int
}

func (r Rect) Width() int  { return r.Right - r.Left }
func (r Rect) Height() int { return r.Bottom - r.Top }

func (r Rect) Valid() bool {
	return r.Width() > 0 && r.Height() > 0
}

type Config struct {
	APIKey       string   `env:"DEEPL_API_KEY"`
	Endpoint     string   `env:"DEEPL_ENDPOINT"`
	TargetLang   string   `env:"TARGET_LANG"`
	AllowedLangs []string `env:"ALLOWED_SOURCE_LANGS" envSeparator:","`
	OCRLanguages string   `env:"OCR_LANGUAGES"`

	PollInterval    time.Duration `env:"POLL_INTERVAL"`
	TickTimeout     time.Duration `env:"TICK_TIMEOUT"`
	OverlayDuration time.Duration `env:"OVERLAY_DURATION"`
	DedupWindow     time.Duration `env:"DEDUP_WINDOW"` // 0 = whole session

	Hotkey            string  `env:"HOTKEY"`
	MinConfidence     float64 `env:"MIN_CONFIDENCE"`
	CopyToClipboard   bool    `env:"COPY_TO_CLIPBOARD"`
	EnableFileLogging bool    `env:"ENABLE_FILE_LOGGING"`
	DebugMode         bool    `env:"DEBUG_MODE"`

	RegionPath string `env:"REGION_PATH"`
	Region     Rect
}

// Defaults: 300ms poll, Japanese target, EN/ZH/KO translated and every
// other language passed through.
func Defaults() *Config {
	return &Config{
		Endpoint:        "https://api-free.deepl.com/v2/translate",
		TargetLang:      "JA",
		AllowedLangs:    []string{"EN", "ZH", "KO"},
		OCRLanguages:    "jpn+eng+chi_sim+chi_tra+kor",
		PollInterval:    300 * time.Millisecond,
		TickTimeout:     12 * time.Second,
		OverlayDuration: 5 * time.Second,
		Hotkey:          "Ctrl+Alt+T",
		MinConfidence:   30,
		RegionPath:      "config.json",
		Region:          Rect{Left: 40, Top: 830, Right: 780, Bottom: 1070},
	}
}

// Load reads .env (current dir first, then the executable's dir), overlays
// environment variables onto the defaults, and loads the persisted capture
// rectangle. Configuration is loaded once at startup and immutable after.
func Load() (*Config, error) {
	loadDotenv()

	cfg := Defaults()
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	region, err := loadRegion(cfg.RegionPath)
	if err != nil {
		return nil, err
	}
	if region != nil {
		cfg.Region = *region
	}

	return cfg, nil
}

// Validate reports the startup-fatal conditions.
func (c *Config) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("DEEPL_API_KEY is required; set it in your .env file")
	}
	if c.TargetLang == "" {
		return fmt.Errorf("TARGET_LANG must not be empty")
	}
	if !c.Region.Valid() {
		return fmt.Errorf("capture region %+v has no area; fix %s", c.Region, c.RegionPath)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("POLL_INTERVAL must be positive, got %s", c.PollInterval)
	}
	return nil
}

func loadDotenv() {
	envPaths := []string{".env"}
	if execPath, err := os.Executable(); err == nil {
		envPaths = append(envPaths, filepath.Join(filepath.Dir(execPath), ".env"))
	}
	for _, envPath := range envPaths {
		if _, err := os.Stat(envPath); err == nil {
			godotenv.Load(envPath)
			break
		}
	}
}

type regionFile struct {
	CaptureRect []int `json:"capture_rect"`
}

// loadRegion reads the persisted capture rectangle. A missing file is fine
// (defaults apply); a malformed one is an error, so a typo never silently
// captures the wrong part of the screen.
func loadRegion(path string) (*Rect, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read region file %s: %w", path, err)
	}

	var rf regionFile
	if err := json.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("parse region file %s: %w", path, err)
	}
	if len(rf.CaptureRect) != 4 {
		return nil, fmt.Errorf("region file %s: capture_rect must have 4 elements, got %d", path, len(rf.CaptureRect))
	}

	return &Rect{
		Left:   rf.CaptureRect[0],
		Top:    rf.CaptureRect[1],
		Right:  rf.CaptureRect[2],
		Bottom: rf.CaptureRect[3],
	}, nil
}

// SaveRegion persists the capture rectangle in the config.json shape that
// existing installs already carry.
func SaveRegion(path string, r Rect) error {
	data, err := json.MarshalIndent(regionFile{
		CaptureRect: []int{r.Left, r.Top, r.Right, r.Bottom},
	}, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
