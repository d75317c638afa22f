package confetti

import "encoding/json"

// ConfigView is the JSON form of a Config used by the HTTP API.
type ConfigView struct {
	BlastDirectionality BlastDirectionality `json:"blast_directionality"`
	Shape               Shape               `json:"shape"`
	BlastDirection      float64             `json:"blast_direction"`
	EmissionFrequency   float64             `json:"emission_frequency"`
	NumberOfParticles   int                 `json:"number_of_particles"`
	ShouldLoop          bool                `json:"should_loop"`
	MinBlastForce       float64             `json:"min_blast_force"`
	MaxBlastForce       float64             `json:"max_blast_force"`
	DisplayTarget       bool                `json:"display_target"`
	Colors              []Color             `json:"colors"`
	StrokeWidth         float64             `json:"stroke_width"`
	StrokeColor         *Color              `json:"stroke_color"`
	Gravity             float64             `json:"gravity"`
	ParticleDrag        float64             `json:"particle_drag"`
	MinParticleWidth    float64             `json:"min_particle_width"`
	MinParticleHeight   float64             `json:"min_particle_height"`
	MaxParticleWidth    float64             `json:"max_particle_width"`
	MaxParticleHeight   float64             `json:"max_particle_height"`
	CustomShape         json.RawMessage     `json:"custom_shape"`
}

// NewConfigView renders cfg. CustomShape uses the same element encoding as the snapshot.
func NewConfigView(cfg Config) ConfigView {
	v := ConfigView{
		BlastDirectionality: cfg.BlastDirectionality,
		Shape:               cfg.Shape,
		BlastDirection:      cfg.BlastDirection,
		EmissionFrequency:   cfg.EmissionFrequency,
		NumberOfParticles:   cfg.NumberOfParticles,
		ShouldLoop:          cfg.ShouldLoop,
		MinBlastForce:       cfg.MinBlastForce,
		MaxBlastForce:       cfg.MaxBlastForce,
		DisplayTarget:       cfg.DisplayTarget,
		Colors:              cfg.Colors,
		StrokeWidth:         cfg.StrokeWidth,
		StrokeColor:         cfg.StrokeColor,
		Gravity:             cfg.Gravity,
		ParticleDrag:        cfg.ParticleDrag,
		MinParticleWidth:    cfg.MinParticleWidth,
		MinParticleHeight:   cfg.MinParticleHeight,
		MaxParticleWidth:    cfg.MaxParticleWidth,
		MaxParticleHeight:   cfg.MaxParticleHeight,
		CustomShape:         json.RawMessage("null"),
	}
	if cfg.CustomShape != nil {
		v.CustomShape = json.RawMessage(EncodeCustomShape(cfg.CustomShape))
	}
	return v
}
