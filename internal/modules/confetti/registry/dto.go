package registry

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mx-space/confetti-bridge/internal/modules/confetti"
)

// Nullable distinguishes an absent JSON key from an explicit null.
type Nullable[T any] struct {
	Set   bool
	Valid bool
	Value T
}

func (n *Nullable[T]) UnmarshalJSON(data []byte) error {
	n.Set = true
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		n.Valid = false
		var zero T
		n.Value = zero
		return nil
	}
	if err := json.Unmarshal(data, &n.Value); err != nil {
		return err
	}
	n.Valid = true
	return nil
}

// ConfigPatch is a partial configuration. Absent keys keep their value;
// null on colors, stroke_color or custom_shape clears it.
type ConfigPatch struct {
	BlastDirectionality *confetti.BlastDirectionality `json:"blast_directionality"`
	Shape               *confetti.Shape               `json:"shape"`
	BlastDirection      *float64                      `json:"blast_direction"`
	EmissionFrequency   *float64                      `json:"emission_frequency"`
	NumberOfParticles   *int                          `json:"number_of_particles"`
	ShouldLoop          *bool                         `json:"should_loop"`
	MinBlastForce       *float64                      `json:"min_blast_force"`
	MaxBlastForce       *float64                      `json:"max_blast_force"`
	DisplayTarget       *bool                         `json:"display_target"`
	Colors              Nullable[[]confetti.Color]    `json:"colors"`
	StrokeWidth         *float64                      `json:"stroke_width"`
	StrokeColor         Nullable[confetti.Color]      `json:"stroke_color"`
	Gravity             *float64                      `json:"gravity"`
	ParticleDrag        *float64                      `json:"particle_drag"`
	MinParticleWidth    *float64                      `json:"min_particle_width"`
	MinParticleHeight   *float64                      `json:"min_particle_height"`
	MaxParticleWidth    *float64                      `json:"max_particle_width"`
	MaxParticleHeight   *float64                      `json:"max_particle_height"`
	CustomShape         Nullable[json.RawMessage]     `json:"custom_shape"`
}

// Apply writes the patch onto cfg. cfg is left untouched on error.
func (p *ConfigPatch) Apply(cfg *confetti.Config) error {
	if p == nil {
		return nil
	}
	next := cfg.Clone()

	if p.BlastDirectionality != nil {
		next.BlastDirectionality = *p.BlastDirectionality
	}
	if p.Shape != nil {
		next.Shape = *p.Shape
	}
	if p.NumberOfParticles != nil {
		if *p.NumberOfParticles < 0 {
			return fmt.Errorf("%w: number_of_particles must be >= 0", ErrInvalid)
		}
		next.NumberOfParticles = *p.NumberOfParticles
	}
	if p.ShouldLoop != nil {
		next.ShouldLoop = *p.ShouldLoop
	}
	if p.DisplayTarget != nil {
		next.DisplayTarget = *p.DisplayTarget
	}
	for _, f := range []struct {
		dst *float64
		v   *float64
	}{
		{&next.BlastDirection, p.BlastDirection},
		{&next.EmissionFrequency, p.EmissionFrequency},
		{&next.MinBlastForce, p.MinBlastForce},
		{&next.MaxBlastForce, p.MaxBlastForce},
		{&next.StrokeWidth, p.StrokeWidth},
		{&next.Gravity, p.Gravity},
		{&next.ParticleDrag, p.ParticleDrag},
		{&next.MinParticleWidth, p.MinParticleWidth},
		{&next.MinParticleHeight, p.MinParticleHeight},
		{&next.MaxParticleWidth, p.MaxParticleWidth},
		{&next.MaxParticleHeight, p.MaxParticleHeight},
	} {
		if f.v != nil {
			*f.dst = *f.v
		}
	}

	if p.Colors.Set {
		if p.Colors.Valid {
			next.Colors = append(make([]confetti.Color, 0, len(p.Colors.Value)), p.Colors.Value...)
		} else {
			next.Colors = nil
		}
	}
	if p.StrokeColor.Set {
		if p.StrokeColor.Valid {
			c := p.StrokeColor.Value
			next.StrokeColor = &c
		} else {
			next.StrokeColor = nil
		}
	}
	if p.CustomShape.Set {
		if p.CustomShape.Valid {
			shape, err := confetti.DecodeGeometry(p.CustomShape.Value)
			if err != nil {
				return fmt.Errorf("%w: %v", ErrInvalid, err)
			}
			next.CustomShape = shape
		} else {
			next.CustomShape = nil
		}
	}

	*cfg = next
	return nil
}

// CreateDTO declares a control from an optional preset plus overrides.
type CreateDTO struct {
	Preset string       `json:"preset"`
	Config *ConfigPatch `json:"config"`
}

// View is the API representation of a control.
type View struct {
	ID        string              `json:"id"`
	Mounted   bool                `json:"mounted"`
	Version   string              `json:"version"`
	Config    confetti.ConfigView `json:"config"`
	Snapshot  confetti.Snapshot   `json:"snapshot"`
	CreatedAt time.Time           `json:"created_at"`
	SyncedAt  time.Time           `json:"synced_at"`
}

// Declared is returned when a control is created.
type Declared struct {
	View
	MountToken string `json:"mount_token"`
}

// Summary is one row of the control list.
type Summary struct {
	ID        string     `json:"id"`
	Mounted   bool       `json:"mounted"`
	Version   string     `json:"version"`
	CreatedAt time.Time  `json:"created_at"`
	IdleSince *time.Time `json:"idle_since,omitempty"`
}
