package confetti

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
)

// Wire keys of the snapshot handed to the host.
const (
	KeyBlastDirectionality = "blast_directionality"
	KeyShape               = "shape"
	KeyBlastDirection      = "blast_direction"
	KeyEmissionFrequency   = "emission_frequency"
	KeyNumberOfParticles   = "number_of_particles"
	KeyShouldLoop          = "should_loop"
	KeyMinBlastForce       = "min_blast_force"
	KeyMaxBlastForce       = "max_blast_force"
	KeyDisplayTarget       = "display_target"
	KeyColorsEncoded       = "colors_encoded"
	KeyStrokeWidth         = "stroke_width"
	KeyStrokeColor         = "stroke_color"
	KeyGravity             = "gravity"
	KeyParticleDrag        = "particle_drag"
	KeyMinParticleWidth    = "min_particle_width"
	KeyMinParticleHeight   = "min_particle_height"
	KeyMaxParticleWidth    = "max_particle_width"
	KeyMaxParticleHeight   = "max_particle_height"
	KeyCustomShapeEncoded  = "custom_shape_encoded"
)

// Snapshot is an immutable key-value projection of a Config, ready for the host.
type Snapshot struct {
	fields map[string]any
}

// PrepareSnapshot projects cfg into its wire form.
//
// colors and custom_shape are replaced by their encoded JSON text. When the source is nil
// the encoded key is left out entirely so the host keeps its own default. stroke_color is
// omitted for the same reason when unset.
func PrepareSnapshot(cfg Config) Snapshot {
	fields := map[string]any{
		KeyBlastDirectionality: string(cfg.BlastDirectionality),
		KeyShape:               string(cfg.Shape),
		KeyBlastDirection:      cfg.BlastDirection,
		KeyEmissionFrequency:   cfg.EmissionFrequency,
		KeyNumberOfParticles:   cfg.NumberOfParticles,
		KeyShouldLoop:          cfg.ShouldLoop,
		KeyMinBlastForce:       cfg.MinBlastForce,
		KeyMaxBlastForce:       cfg.MaxBlastForce,
		KeyDisplayTarget:       cfg.DisplayTarget,
		KeyStrokeWidth:         cfg.StrokeWidth,
		KeyGravity:             cfg.Gravity,
		KeyParticleDrag:        cfg.ParticleDrag,
		KeyMinParticleWidth:    cfg.MinParticleWidth,
		KeyMinParticleHeight:   cfg.MinParticleHeight,
		KeyMaxParticleWidth:    cfg.MaxParticleWidth,
		KeyMaxParticleHeight:   cfg.MaxParticleHeight,
	}
	if cfg.StrokeColor != nil {
		fields[KeyStrokeColor] = string(*cfg.StrokeColor)
	}
	if cfg.Colors != nil {
		fields[KeyColorsEncoded] = EncodeColors(cfg.Colors)
	}
	if cfg.CustomShape != nil {
		fields[KeyCustomShapeEncoded] = EncodeCustomShape(cfg.CustomShape)
	}
	return Snapshot{fields: fields}
}

// EncodeColors returns the ordered color list as a JSON array of strings.
func EncodeColors(colors []Color) string {
	values := make([]string, len(colors))
	for i, c := range colors {
		values[i] = string(c)
	}
	b, _ := json.Marshal(values)
	return string(b)
}

// EncodeCustomShape returns the ordered geometry list as a JSON array with one entry per element.
// Structured elements become objects; everything else becomes a string.
func EncodeCustomShape(elements []GeometryElement) string {
	items := make([]json.RawMessage, len(elements))
	for i, el := range elements {
		items[i] = encodeGeometryElement(el)
	}
	b, _ := json.Marshal(items)
	return string(b)
}

// encodeGeometryElement never fails: a field mapping that cannot be encoded falls back to
// the element's text, and a nil element becomes a fixed placeholder.
func encodeGeometryElement(el GeometryElement) json.RawMessage {
	if el == nil {
		return quoteJSON(unencodablePlaceholder(el))
	}
	if s, ok := el.(StructuredGeometryElement); ok {
		if b, err := json.Marshal(s.GeometryFields()); err == nil {
			return b
		}
	}
	return quoteJSON(safeString(el))
}

func safeString(el GeometryElement) (text string) {
	defer func() {
		if recover() != nil {
			text = unencodablePlaceholder(el)
		}
	}()
	return el.String()
}

func unencodablePlaceholder(el GeometryElement) string {
	return fmt.Sprintf("<unencodable:%T>", el)
}

func quoteJSON(s string) json.RawMessage {
	b, _ := json.Marshal(s)
	return b
}

// Get returns the value stored under key.
func (s Snapshot) Get(key string) (any, bool) {
	v, ok := s.fields[key]
	return v, ok
}

// Has reports whether key is present.
func (s Snapshot) Has(key string) bool {
	_, ok := s.fields[key]
	return ok
}

// Len returns the number of keys.
func (s Snapshot) Len() int { return len(s.fields) }

// Keys returns the keys in sorted order.
func (s Snapshot) Keys() []string {
	keys := make([]string, 0, len(s.fields))
	for k := range s.fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Map returns a copy of the fields.
func (s Snapshot) Map() map[string]any {
	out := make(map[string]any, len(s.fields))
	for k, v := range s.fields {
		out[k] = v
	}
	return out
}

// IsZero reports whether the snapshot was never prepared.
func (s Snapshot) IsZero() bool { return s.fields == nil }

// MarshalJSON encodes the fields with sorted keys.
func (s Snapshot) MarshalJSON() ([]byte, error) {
	if s.fields == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(s.fields)
}

// UnmarshalJSON restores a snapshot previously encoded with MarshalJSON.
// Numbers come back as float64.
func (s *Snapshot) UnmarshalJSON(data []byte) error {
	fields := map[string]any{}
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	s.fields = fields
	return nil
}

// Version is a short digest of the canonical JSON form. Equal snapshots share a version.
func (s Snapshot) Version() string {
	b, err := s.MarshalJSON()
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:8])
}
