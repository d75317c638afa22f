// Package preset loads named confetti configurations from a YAML file.
package preset

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/mx-space/confetti-bridge/internal/modules/confetti"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// DefaultName is always present and resolves to the built-in defaults unless overridden.
const DefaultName = "default"

// ErrNotFound is returned for an unknown preset name.
var ErrNotFound = errors.New("preset not found")

type rawFile struct {
	Presets map[string]rawPreset `yaml:"presets"`
}

type rawPreset struct {
	BlastDirectionality *string   `yaml:"blast_directionality"`
	Shape               *string   `yaml:"shape"`
	BlastDirection      *float64  `yaml:"blast_direction"`
	EmissionFrequency   *float64  `yaml:"emission_frequency"`
	NumberOfParticles   *int      `yaml:"number_of_particles"`
	ShouldLoop          *bool     `yaml:"should_loop"`
	MinBlastForce       *float64  `yaml:"min_blast_force"`
	MaxBlastForce       *float64  `yaml:"max_blast_force"`
	DisplayTarget       *bool     `yaml:"display_target"`
	Colors              *[]string `yaml:"colors"`
	StrokeWidth         *float64  `yaml:"stroke_width"`
	StrokeColor         *string   `yaml:"stroke_color"`
	Gravity             *float64  `yaml:"gravity"`
	ParticleDrag        *float64  `yaml:"particle_drag"`
	MinParticleWidth    *float64  `yaml:"min_particle_width"`
	MinParticleHeight   *float64  `yaml:"min_particle_height"`
	MaxParticleWidth    *float64  `yaml:"max_particle_width"`
	MaxParticleHeight   *float64  `yaml:"max_particle_height"`
	CustomShape         *[]any    `yaml:"custom_shape"`
}

// Parse decodes a presets document and merges every entry over the defaults.
func Parse(content []byte, source string) (map[string]confetti.Config, error) {
	var raw rawFile
	if len(bytes.TrimSpace(content)) > 0 {
		dec := yaml.NewDecoder(bytes.NewReader(content))
		dec.KnownFields(true)
		if err := dec.Decode(&raw); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("parse presets %s: %w", source, err)
		}
	}
	if err := validateRaw(raw); err != nil {
		return nil, fmt.Errorf("%s: %w", source, err)
	}

	out := map[string]confetti.Config{DefaultName: confetti.DefaultConfig()}
	for name, rp := range raw.Presets {
		cfg, err := merge(confetti.DefaultConfig(), rp)
		if err != nil {
			return nil, fmt.Errorf("%s: preset %q: %w", source, name, err)
		}
		out[strings.TrimSpace(name)] = cfg
	}
	return out, nil
}

// validateRaw reports every problem in the document at once.
func validateRaw(raw rawFile) error {
	var msgs []string
	names := make([]string, 0, len(raw.Presets))
	for name := range raw.Presets {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		p := raw.Presets[name]
		if strings.TrimSpace(name) == "" {
			msgs = append(msgs, "preset name must not be empty")
			continue
		}
		if p.BlastDirectionality != nil {
			if _, err := confetti.ParseBlastDirectionality(*p.BlastDirectionality); err != nil {
				msgs = append(msgs, fmt.Sprintf("%s: %v", name, err))
			}
		}
		if p.Shape != nil {
			if _, err := confetti.ParseShape(*p.Shape); err != nil {
				msgs = append(msgs, fmt.Sprintf("%s: %v", name, err))
			}
		}
		if p.NumberOfParticles != nil && *p.NumberOfParticles < 0 {
			msgs = append(msgs, fmt.Sprintf("%s: number_of_particles must be >= 0", name))
		}
		// Snapshots travel as JSON, which has no NaN or Inf.
		for _, f := range p.floatFields() {
			if f.v != nil && (math.IsNaN(*f.v) || math.IsInf(*f.v, 0)) {
				msgs = append(msgs, fmt.Sprintf("%s: %s must be a finite number", name, f.key))
			}
		}
	}
	if len(msgs) > 0 {
		return fmt.Errorf("preset validation failed: %s", strings.Join(msgs, "; "))
	}
	return nil
}

type floatField struct {
	key string
	v   *float64
}

func (p rawPreset) floatFields() []floatField {
	return []floatField{
		{"blast_direction", p.BlastDirection},
		{"emission_frequency", p.EmissionFrequency},
		{"min_blast_force", p.MinBlastForce},
		{"max_blast_force", p.MaxBlastForce},
		{"stroke_width", p.StrokeWidth},
		{"gravity", p.Gravity},
		{"particle_drag", p.ParticleDrag},
		{"min_particle_width", p.MinParticleWidth},
		{"min_particle_height", p.MinParticleHeight},
		{"max_particle_width", p.MaxParticleWidth},
		{"max_particle_height", p.MaxParticleHeight},
	}
}

func merge(cfg confetti.Config, p rawPreset) (confetti.Config, error) {
	if p.BlastDirectionality != nil {
		d, err := confetti.ParseBlastDirectionality(*p.BlastDirectionality)
		if err != nil {
			return cfg, err
		}
		cfg.BlastDirectionality = d
	}
	if p.Shape != nil {
		s, err := confetti.ParseShape(*p.Shape)
		if err != nil {
			return cfg, err
		}
		cfg.Shape = s
	}
	setFloat(&cfg.BlastDirection, p.BlastDirection)
	setFloat(&cfg.EmissionFrequency, p.EmissionFrequency)
	if p.NumberOfParticles != nil {
		cfg.NumberOfParticles = *p.NumberOfParticles
	}
	if p.ShouldLoop != nil {
		cfg.ShouldLoop = *p.ShouldLoop
	}
	setFloat(&cfg.MinBlastForce, p.MinBlastForce)
	setFloat(&cfg.MaxBlastForce, p.MaxBlastForce)
	if p.DisplayTarget != nil {
		cfg.DisplayTarget = *p.DisplayTarget
	}
	if p.Colors != nil {
		cfg.Colors = make([]confetti.Color, 0, len(*p.Colors))
		for _, c := range *p.Colors {
			cfg.Colors = append(cfg.Colors, confetti.Color(c))
		}
	}
	setFloat(&cfg.StrokeWidth, p.StrokeWidth)
	if p.StrokeColor != nil {
		c := confetti.Color(*p.StrokeColor)
		cfg.StrokeColor = &c
	}
	setFloat(&cfg.Gravity, p.Gravity)
	setFloat(&cfg.ParticleDrag, p.ParticleDrag)
	setFloat(&cfg.MinParticleWidth, p.MinParticleWidth)
	setFloat(&cfg.MinParticleHeight, p.MinParticleHeight)
	setFloat(&cfg.MaxParticleWidth, p.MaxParticleWidth)
	setFloat(&cfg.MaxParticleHeight, p.MaxParticleHeight)
	if p.CustomShape != nil {
		shape, err := confetti.GeometryFromValues(*p.CustomShape)
		if err != nil {
			return cfg, err
		}
		cfg.CustomShape = shape
	}
	return cfg, nil
}

func setFloat(dst *float64, v *float64) {
	if v != nil {
		*dst = *v
	}
}

// Catalog holds the presets of one file and can reload them.
type Catalog struct {
	mu      sync.RWMutex
	path    string
	presets map[string]confetti.Config
	logger  *zap.Logger
}

// Load reads path. A missing file yields a catalog with only the default preset.
func Load(path string, logger *zap.Logger) (*Catalog, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Catalog{path: path, logger: logger}
	if err := c.Reload(); err != nil {
		return nil, err
	}
	return c, nil
}

// Reload re-reads the file. On error the previous presets stay in place.
func (c *Catalog) Reload() error {
	var content []byte
	if c.path != "" {
		data, err := os.ReadFile(c.path)
		switch {
		case err == nil:
			content = data
		case errors.Is(err, os.ErrNotExist):
			c.logger.Debug("presets file missing, using defaults", zap.String("path", c.path))
		default:
			return fmt.Errorf("read presets %s: %w", c.path, err)
		}
	}

	presets, err := Parse(content, c.path)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.presets = presets
	c.mu.Unlock()
	c.logger.Info("presets loaded", zap.String("path", c.path), zap.Int("count", len(presets)))
	return nil
}

// Get returns a copy of the named preset. An empty name means DefaultName.
func (c *Catalog) Get(name string) (confetti.Config, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = DefaultName
	}
	c.mu.RLock()
	cfg, ok := c.presets[name]
	c.mu.RUnlock()
	if !ok {
		return confetti.Config{}, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return cfg.Clone(), nil
}

// Names lists preset names in order.
func (c *Catalog) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.presets))
	for name := range c.presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Path returns the watched file.
func (c *Catalog) Path() string { return c.path }
