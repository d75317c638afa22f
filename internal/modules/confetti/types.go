package confetti

import (
	"fmt"
	"math"
	"strings"
)

// BlastDirectionality decides whether particles shoot in random directions or along BlastDirection.
type BlastDirectionality string

const (
	BlastExplosive   BlastDirectionality = "explosive"
	BlastDirectional BlastDirectionality = "directional"
)

// ParseBlastDirectionality accepts the wire name case-insensitively.
func ParseBlastDirectionality(raw string) (BlastDirectionality, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case string(BlastExplosive):
		return BlastExplosive, nil
	case string(BlastDirectional):
		return BlastDirectional, nil
	}
	return "", fmt.Errorf("unknown blast_directionality %q, expected explosive|directional", raw)
}

func (d *BlastDirectionality) UnmarshalText(text []byte) error {
	v, err := ParseBlastDirectionality(string(text))
	if err != nil {
		return err
	}
	*d = v
	return nil
}

// Shape is the built-in particle shape. CustomShape overrides it when set.
type Shape string

const (
	ShapeCircle   Shape = "circle"
	ShapeSquare   Shape = "square"
	ShapeStar     Shape = "star"
	ShapeHeart    Shape = "heart"
	ShapeTriangle Shape = "triangle"
	ShapeDiamond  Shape = "diamond"
)

var shapes = []Shape{ShapeCircle, ShapeSquare, ShapeStar, ShapeHeart, ShapeTriangle, ShapeDiamond}

// Shapes returns every supported built-in shape.
func Shapes() []Shape {
	return append([]Shape(nil), shapes...)
}

// ParseShape accepts the wire name case-insensitively.
func ParseShape(raw string) (Shape, error) {
	name := strings.ToLower(strings.TrimSpace(raw))
	for _, s := range shapes {
		if string(s) == name {
			return s, nil
		}
	}
	return "", fmt.Errorf("unknown shape %q, expected circle|square|star|heart|triangle|diamond", raw)
}

func (s *Shape) UnmarshalText(text []byte) error {
	v, err := ParseShape(string(text))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// Color is a host color value ("#FF0000", "red", "primary,0.5"). It is passed through verbatim.
type Color string

// Config is the declarative configuration of one confetti emitter.
//
// Numeric domains (EmissionFrequency, Gravity, ParticleDrag in [0,1], min <= max pairs) are
// owned by the rendering host and are not checked here.
type Config struct {
	BlastDirectionality BlastDirectionality
	Shape               Shape
	// BlastDirection is in radians; π shoots to the left.
	BlastDirection    float64
	EmissionFrequency float64
	NumberOfParticles int
	ShouldLoop        bool
	MinBlastForce     float64
	MaxBlastForce     float64
	// DisplayTarget draws a crosshair at the emitter position.
	DisplayTarget     bool
	Colors            []Color
	StrokeWidth       float64
	StrokeColor       *Color
	Gravity           float64
	ParticleDrag      float64
	MinParticleWidth  float64
	MinParticleHeight float64
	MaxParticleWidth  float64
	MaxParticleHeight float64
	// CustomShape, when non-nil, replaces Shape on the host.
	CustomShape []GeometryElement
}

// DefaultConfig returns the emitter defaults the host widget expects.
func DefaultConfig() Config {
	return Config{
		BlastDirectionality: BlastDirectional,
		Shape:               ShapeCircle,
		BlastDirection:      math.Pi,
		EmissionFrequency:   0.02,
		NumberOfParticles:   10,
		MinBlastForce:       5,
		MaxBlastForce:       20,
		Gravity:             0.1,
		ParticleDrag:        0.05,
		MinParticleWidth:    20,
		MinParticleHeight:   10,
		MaxParticleWidth:    20,
		MaxParticleHeight:   10,
	}
}

// Clone returns a copy that shares no slices or pointers with c.
func (c Config) Clone() Config {
	out := c
	if c.Colors != nil {
		out.Colors = append(make([]Color, 0, len(c.Colors)), c.Colors...)
	}
	if c.StrokeColor != nil {
		v := *c.StrokeColor
		out.StrokeColor = &v
	}
	if c.CustomShape != nil {
		out.CustomShape = append(make([]GeometryElement, 0, len(c.CustomShape)), c.CustomShape...)
	}
	return out
}
