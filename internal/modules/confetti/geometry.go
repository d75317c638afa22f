package confetti

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// GeometryElement is one entry of a custom particle path.
// String is the plain text form used when no structured form is available.
type GeometryElement interface {
	String() string
}

// StructuredGeometryElement exposes a field-by-field mapping that is encoded as a JSON object.
// The mapping carries a "_type" discriminator.
type StructuredGeometryElement interface {
	GeometryElement
	GeometryFields() map[string]any
}

const geometryTypeKey = "_type"

// MoveTo starts a new sub-path at (X, Y).
type MoveTo struct{ X, Y float64 }

func (e MoveTo) GeometryFields() map[string]any {
	return map[string]any{geometryTypeKey: "move_to", "x": e.X, "y": e.Y}
}

func (e MoveTo) String() string { return "move_to(" + fmtFloats(e.X, e.Y) + ")" }

// LineTo adds a straight segment to (X, Y).
type LineTo struct{ X, Y float64 }

func (e LineTo) GeometryFields() map[string]any {
	return map[string]any{geometryTypeKey: "line_to", "x": e.X, "y": e.Y}
}

func (e LineTo) String() string { return "line_to(" + fmtFloats(e.X, e.Y) + ")" }

// QuadraticTo adds a quadratic (or conic, when W != 1) bezier segment.
type QuadraticTo struct {
	CP1X, CP1Y float64
	X, Y       float64
	W          float64
}

func (e QuadraticTo) GeometryFields() map[string]any {
	return map[string]any{
		geometryTypeKey: "quadratic_to",
		"cp1x":          e.CP1X, "cp1y": e.CP1Y,
		"x": e.X, "y": e.Y,
		"w": e.W,
	}
}

func (e QuadraticTo) String() string {
	return "quadratic_to(" + fmtFloats(e.CP1X, e.CP1Y, e.X, e.Y, e.W) + ")"
}

// CubicTo adds a cubic bezier segment.
type CubicTo struct {
	CP1X, CP1Y float64
	CP2X, CP2Y float64
	X, Y       float64
}

func (e CubicTo) GeometryFields() map[string]any {
	return map[string]any{
		geometryTypeKey: "cubic_to",
		"cp1x":          e.CP1X, "cp1y": e.CP1Y,
		"cp2x": e.CP2X, "cp2y": e.CP2Y,
		"x": e.X, "y": e.Y,
	}
}

func (e CubicTo) String() string {
	return "cubic_to(" + fmtFloats(e.CP1X, e.CP1Y, e.CP2X, e.CP2Y, e.X, e.Y) + ")"
}

// Arc adds an arc inscribed in the given rectangle. Angles are in radians.
type Arc struct {
	X, Y, Width, Height    float64
	StartAngle, SweepAngle float64
}

func (e Arc) GeometryFields() map[string]any {
	return map[string]any{
		geometryTypeKey: "arc",
		"x":             e.X, "y": e.Y,
		"width": e.Width, "height": e.Height,
		"start_angle": e.StartAngle, "sweep_angle": e.SweepAngle,
	}
}

func (e Arc) String() string {
	return "arc(" + fmtFloats(e.X, e.Y, e.Width, e.Height, e.StartAngle, e.SweepAngle) + ")"
}

// ArcTo adds an elliptical arc ending at (X, Y).
type ArcTo struct {
	X, Y      float64
	Radius    float64
	Rotation  float64
	LargeArc  bool
	Clockwise bool
}

func (e ArcTo) GeometryFields() map[string]any {
	return map[string]any{
		geometryTypeKey: "arc_to",
		"x":             e.X, "y": e.Y,
		"radius": e.Radius, "rotation": e.Rotation,
		"large_arc": e.LargeArc, "clockwise": e.Clockwise,
	}
}

func (e ArcTo) String() string {
	return fmt.Sprintf("arc_to(%s,%t,%t)", fmtFloats(e.X, e.Y, e.Radius, e.Rotation), e.LargeArc, e.Clockwise)
}

// Oval adds a closed ellipse inscribed in the rectangle.
type Oval struct{ X, Y, Width, Height float64 }

func (e Oval) GeometryFields() map[string]any {
	return map[string]any{geometryTypeKey: "oval", "x": e.X, "y": e.Y, "width": e.Width, "height": e.Height}
}

func (e Oval) String() string { return "oval(" + fmtFloats(e.X, e.Y, e.Width, e.Height) + ")" }

// Rect adds a closed rectangle, rounded when BorderRadius > 0.
type Rect struct {
	X, Y, Width, Height float64
	BorderRadius        float64
}

func (e Rect) GeometryFields() map[string]any {
	return map[string]any{
		geometryTypeKey: "rect",
		"x":             e.X, "y": e.Y,
		"width": e.Width, "height": e.Height,
		"border_radius": e.BorderRadius,
	}
}

func (e Rect) String() string {
	return "rect(" + fmtFloats(e.X, e.Y, e.Width, e.Height, e.BorderRadius) + ")"
}

// SubPath appends Elements translated by (X, Y).
type SubPath struct {
	Elements []GeometryElement
	X, Y     float64
}

func (e SubPath) GeometryFields() map[string]any {
	elements := make([]json.RawMessage, 0, len(e.Elements))
	for _, el := range e.Elements {
		elements = append(elements, encodeGeometryElement(el))
	}
	return map[string]any{geometryTypeKey: "sub_path", "x": e.X, "y": e.Y, "elements": elements}
}

func (e SubPath) String() string {
	parts := make([]string, 0, len(e.Elements))
	for _, el := range e.Elements {
		if el == nil {
			parts = append(parts, "nil")
			continue
		}
		parts = append(parts, el.String())
	}
	return "sub_path(" + fmtFloats(e.X, e.Y) + ",[" + strings.Join(parts, ",") + "])"
}

// Close closes the current sub-path.
type Close struct{}

func (Close) GeometryFields() map[string]any { return map[string]any{geometryTypeKey: "close"} }

func (Close) String() string { return "close()" }

// FieldMap is a structured element of a type this package does not model.
// It is forwarded to the host as-is.
type FieldMap map[string]any

func (m FieldMap) GeometryFields() map[string]any { return map[string]any(m) }

func (m FieldMap) String() string {
	b, err := json.Marshal(map[string]any(m))
	if err != nil {
		return fmt.Sprintf("%v", map[string]any(m))
	}
	return string(b)
}

// Opaque is an element without a structured form; only its text is sent to the host.
type Opaque struct{ Text string }

func (o Opaque) String() string { return o.Text }

func fmtFloats(values ...float64) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = strconv.FormatFloat(v, 'g', -1, 64)
	}
	return strings.Join(parts, ",")
}

var errGeometryNotArray = errors.New("custom_shape must be a JSON array")

// DecodeGeometry parses the encoded custom shape form back into elements.
// Strings decode to Opaque; objects with an unknown "_type" decode to FieldMap.
func DecodeGeometry(data []byte) ([]GeometryElement, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, errGeometryNotArray
	}
	var items []json.RawMessage
	if err := json.Unmarshal(trimmed, &items); err != nil {
		return nil, fmt.Errorf("decode custom_shape: %w", err)
	}
	out := make([]GeometryElement, 0, len(items))
	for i, item := range items {
		el, err := decodeGeometryElement(item)
		if err != nil {
			return nil, fmt.Errorf("custom_shape[%d]: %w", i, err)
		}
		out = append(out, el)
	}
	return out, nil
}

// GeometryFromValues converts generically decoded values (YAML or JSON any) into elements.
func GeometryFromValues(values []any) ([]GeometryElement, error) {
	data, err := json.Marshal(values)
	if err != nil {
		return nil, fmt.Errorf("custom_shape: %w", err)
	}
	return DecodeGeometry(data)
}

func decodeGeometryElement(raw json.RawMessage) (GeometryElement, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, errors.New("empty element")
	}
	switch trimmed[0] {
	case '"':
		var text string
		if err := json.Unmarshal(trimmed, &text); err != nil {
			return nil, err
		}
		return Opaque{Text: text}, nil
	case '{':
	default:
		return nil, fmt.Errorf("element must be an object or a string, got %s", string(trimmed))
	}

	var fields map[string]any
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		return nil, err
	}
	kind, _ := fields[geometryTypeKey].(string)

	var f geometryFields
	if err := json.Unmarshal(trimmed, &f); err != nil {
		return nil, err
	}
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "move_to":
		return MoveTo{X: f.X, Y: f.Y}, nil
	case "line_to":
		return LineTo{X: f.X, Y: f.Y}, nil
	case "quadratic_to":
		w := 1.0
		if f.W != nil {
			w = *f.W
		}
		return QuadraticTo{CP1X: f.CP1X, CP1Y: f.CP1Y, X: f.X, Y: f.Y, W: w}, nil
	case "cubic_to":
		return CubicTo{CP1X: f.CP1X, CP1Y: f.CP1Y, CP2X: f.CP2X, CP2Y: f.CP2Y, X: f.X, Y: f.Y}, nil
	case "arc":
		return Arc{X: f.X, Y: f.Y, Width: f.Width, Height: f.Height, StartAngle: f.StartAngle, SweepAngle: f.SweepAngle}, nil
	case "arc_to":
		return ArcTo{X: f.X, Y: f.Y, Radius: f.Radius, Rotation: f.Rotation, LargeArc: f.LargeArc, Clockwise: f.Clockwise}, nil
	case "oval":
		return Oval{X: f.X, Y: f.Y, Width: f.Width, Height: f.Height}, nil
	case "rect":
		return Rect{X: f.X, Y: f.Y, Width: f.Width, Height: f.Height, BorderRadius: f.BorderRadius}, nil
	case "close":
		return Close{}, nil
	case "sub_path":
		var elements []GeometryElement
		if len(f.Elements) > 0 && string(bytes.TrimSpace(f.Elements)) != "null" {
			decoded, err := DecodeGeometry(f.Elements)
			if err != nil {
				return nil, err
			}
			elements = decoded
		}
		return SubPath{Elements: elements, X: f.X, Y: f.Y}, nil
	}
	return FieldMap(fields), nil
}

type geometryFields struct {
	X            float64         `json:"x"`
	Y            float64         `json:"y"`
	CP1X         float64         `json:"cp1x"`
	CP1Y         float64         `json:"cp1y"`
	CP2X         float64         `json:"cp2x"`
	CP2Y         float64         `json:"cp2y"`
	W            *float64        `json:"w"`
	Width        float64         `json:"width"`
	Height       float64         `json:"height"`
	StartAngle   float64         `json:"start_angle"`
	SweepAngle   float64         `json:"sweep_angle"`
	Radius       float64         `json:"radius"`
	Rotation     float64         `json:"rotation"`
	LargeArc     bool            `json:"large_arc"`
	Clockwise    bool            `json:"clockwise"`
	BorderRadius float64         `json:"border_radius"`
	Elements     json.RawMessage `json:"elements"`
}
