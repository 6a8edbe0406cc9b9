package deferred

import (
	"errors"
	"fmt"
	"math"
	"os"

	"github.com/go-gl/mathgl/mgl32"
	"gopkg.in/yaml.v3"
)

var (
	ErrInvalidScale = errors.New("deferred: render scale must be a positive finite number")
	ErrInvalidSize  = errors.New("deferred: viewport size must be positive")
	ErrEmptyTarget  = errors.New("deferred: scaled target size is empty")
)

// Config is the viewport and render scale of a Renderer. Targets are
// floor(Scale*Width) x floor(Scale*Height).
type Config struct {
	Width  int     `yaml:"width"`
	Height int     `yaml:"height"`
	Scale  float64 `yaml:"scale"`
	// Offscreen composites into the final target instead of the surface.
	Offscreen        bool       `yaml:"offscreen"`
	TraversalWorkers int        `yaml:"traversal_workers"`
	ClearColor       [4]float32 `yaml:"clear_color"`
}

func DefaultConfig() Config {
	return Config{
		Width:            800,
		Height:           600,
		Scale:            1,
		TraversalWorkers: 1,
	}
}

// LoadConfig reads a YAML config. Fields missing from the file keep their
// DefaultConfig values.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if err := validateScale(c.Scale); err != nil {
		return err
	}
	if c.Width <= 0 || c.Height <= 0 {
		return fmt.Errorf("%w: %dx%d", ErrInvalidSize, c.Width, c.Height)
	}
	if w, h := c.ScaledSize(); w <= 0 || h <= 0 {
		return fmt.Errorf("%w: %dx%d at scale %g", ErrEmptyTarget, c.Width, c.Height, c.Scale)
	}
	if c.TraversalWorkers < 0 {
		return fmt.Errorf("deferred: traversal_workers must not be negative, got %d", c.TraversalWorkers)
	}
	return nil
}

func validateScale(s float64) error {
	if s <= 0 || math.IsNaN(s) || math.IsInf(s, 0) {
		return fmt.Errorf("%w: %g", ErrInvalidScale, s)
	}
	return nil
}

// ScaledSize is the size of the g-buffer targets.
func (c Config) ScaledSize() (int, int) {
	return int(math.Floor(c.Scale * float64(c.Width))), int(math.Floor(c.Scale * float64(c.Height)))
}

func (c Config) clearColor() mgl32.Vec4 {
	return mgl32.Vec4(c.ClearColor)
}
