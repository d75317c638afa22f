package preset

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mx-space/confetti-bridge/internal/modules/confetti"
	"go.uber.org/zap/zaptest"
)

const sample = `
presets:
  celebration:
    blast_directionality: explosive
    shape: star
    number_of_particles: 40
    should_loop: true
    colors: ["#FF0000", "#00FF00"]
    stroke_color: black
    custom_shape:
      - {_type: move_to, x: 0, y: 0}
      - {_type: line_to, x: 10, y: 5}
      - {_type: close}
  quiet:
    number_of_particles: 0
    colors: []
`

func TestParseMergesOverDefaults(t *testing.T) {
	presets, err := Parse([]byte(sample), "inline")
	if err != nil {
		t.Fatal(err)
	}
	if len(presets) != 3 {
		t.Fatalf("presets=%v", presets)
	}
	if !reflect.DeepEqual(presets[DefaultName], confetti.DefaultConfig()) {
		t.Fatalf("default preset differs from built-in defaults")
	}

	c := presets["celebration"]
	if c.BlastDirectionality != confetti.BlastExplosive || c.Shape != confetti.ShapeStar {
		t.Fatalf("enums=%v %v", c.BlastDirectionality, c.Shape)
	}
	if c.NumberOfParticles != 40 || !c.ShouldLoop {
		t.Fatalf("particles=%d loop=%v", c.NumberOfParticles, c.ShouldLoop)
	}
	if c.Gravity != confetti.DefaultConfig().Gravity {
		t.Fatalf("unset fields must keep defaults, gravity=%v", c.Gravity)
	}
	if !reflect.DeepEqual(c.Colors, []confetti.Color{"#FF0000", "#00FF00"}) {
		t.Fatalf("colors=%v", c.Colors)
	}
	if c.StrokeColor == nil || *c.StrokeColor != "black" {
		t.Fatalf("stroke color=%v", c.StrokeColor)
	}
	wantShape := []confetti.GeometryElement{confetti.MoveTo{}, confetti.LineTo{X: 10, Y: 5}, confetti.Close{}}
	if !reflect.DeepEqual(c.CustomShape, wantShape) {
		t.Fatalf("custom shape=%#v", c.CustomShape)
	}

	q := presets["quiet"]
	if q.Colors == nil || len(q.Colors) != 0 {
		t.Fatalf("explicit empty colors must stay non-nil, got %#v", q.Colors)
	}
	if q.CustomShape != nil {
		t.Fatalf("quiet should not have a custom shape")
	}
}

func TestParseValidation(t *testing.T) {
	content := `
presets:
  a:
    shape: hexagon
  b:
    blast_directionality: sideways
    number_of_particles: -1
`
	_, err := Parse([]byte(content), "inline")
	if err == nil {
		t.Fatalf("expected validation error")
	}
	msg := err.Error()
	for _, want := range []string{"preset validation failed", "a:", "hexagon", "b:", "sideways", "number_of_particles must be >= 0"} {
		if !strings.Contains(msg, want) {
			t.Fatalf("error %q missing %q", msg, want)
		}
	}

	if _, err := Parse([]byte("presets:\n  a:\n    colour: red\n"), "inline"); err == nil {
		t.Fatalf("unknown keys must be rejected")
	}
}

func TestParseRejectsNonFiniteNumbers(t *testing.T) {
	content := `
presets:
  wild:
    gravity: .nan
    max_blast_force: -.inf
`
	_, err := Parse([]byte(content), "inline")
	if err == nil {
		t.Fatalf("non-finite numbers must be rejected")
	}
	for _, want := range []string{"wild: gravity must be a finite number", "wild: max_blast_force must be a finite number"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("error %q missing %q", err, want)
		}
	}

	presets, err := Parse([]byte("presets:\n  heavy:\n    gravity: 7.5\n"), "inline")
	if err != nil {
		t.Fatalf("out-of-range finite values pass through: %v", err)
	}
	if presets["heavy"].Gravity != 7.5 {
		t.Fatalf("gravity=%v", presets["heavy"].Gravity)
	}
}

func TestParseEmpty(t *testing.T) {
	presets, err := Parse(nil, "none")
	if err != nil {
		t.Fatal(err)
	}
	if len(presets) != 1 {
		t.Fatalf("presets=%v", presets)
	}
}

func TestCatalogLoadAndReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "presets.yml")

	cat, err := Load(path, zaptest.NewLogger(t))
	if err != nil {
		t.Fatal(err)
	}
	if got := cat.Names(); !reflect.DeepEqual(got, []string{DefaultName}) {
		t.Fatalf("names=%v", got)
	}
	if _, err := cat.Get("celebration"); err == nil {
		t.Fatalf("expected not found")
	}

	if err := os.WriteFile(path, []byte(sample), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := cat.Reload(); err != nil {
		t.Fatal(err)
	}
	if got := cat.Names(); !reflect.DeepEqual(got, []string{"celebration", DefaultName, "quiet"}) {
		t.Fatalf("names=%v", got)
	}

	cfg, err := cat.Get("celebration")
	if err != nil {
		t.Fatal(err)
	}
	cfg.Colors[0] = "changed"
	again, _ := cat.Get("celebration")
	if again.Colors[0] != "#FF0000" {
		t.Fatalf("Get must return a copy")
	}

	if err := os.WriteFile(path, []byte("presets:\n  x:\n    shape: blob\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := cat.Reload(); err == nil {
		t.Fatalf("expected reload error")
	}
	if _, err := cat.Get("celebration"); err != nil {
		t.Fatalf("failed reload must keep previous presets: %v", err)
	}
	if cfg, err := cat.Get(""); err != nil || cfg.Shape != confetti.ShapeCircle {
		t.Fatalf("empty name should resolve to default: %v %v", cfg.Shape, err)
	}
}

func TestFileWatcherReloads(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "presets.yml")
	if err := os.WriteFile(path, []byte("presets: {}\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cat, err := Load(path, zaptest.NewLogger(t))
	if err != nil {
		t.Fatal(err)
	}

	w := NewFileWatcher(cat, 10*time.Millisecond, zaptest.NewLogger(t))
	w.Start()
	defer w.Stop()

	later := time.Now().Add(2 * time.Second)
	if err := os.WriteFile(path, []byte(sample), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Chtimes(path, later, later); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := cat.Get("celebration"); err == nil {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("watcher did not reload the catalog")
}

func TestHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	path := filepath.Join(t.TempDir(), "presets.yml")
	if err := os.WriteFile(path, []byte(sample), 0o644); err != nil {
		t.Fatal(err)
	}
	cat, err := Load(path, nil)
	if err != nil {
		t.Fatal(err)
	}
	r := gin.New()
	NewHandler(cat).RegisterRoutes(r.Group("/api/v1"))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/presets", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	var list struct {
		Data []string `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil || len(list.Data) != 3 {
		t.Fatalf("list=%s err=%v", w.Body.String(), err)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/presets/celebration", nil))
	var got struct {
		Name   string `json:"name"`
		Config struct {
			Shape       string            `json:"shape"`
			CustomShape []json.RawMessage `json:"custom_shape"`
		} `json:"config"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got.Name != "celebration" || got.Config.Shape != "star" || len(got.Config.CustomShape) != 3 {
		t.Fatalf("body=%s", w.Body.String())
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/presets/missing", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("status=%d", w.Code)
	}
}
