package registry

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/mx-space/confetti-bridge/internal/modules/confetti"
)

func newRouter(t *testing.T) (*gin.Engine, *fixture) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	f := newFixture(t)
	r := gin.New()
	NewHandler(f.svc).RegisterRoutes(r.Group("/api/v1"))
	return r, f
}

func do(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHandlerLifecycle(t *testing.T) {
	r, f := newRouter(t)

	w := do(r, http.MethodPost, "/api/v1/confetti", `{"preset":"party","config":{"number_of_particles":30}}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("create status=%d body=%s", w.Code, w.Body.String())
	}
	var created struct {
		ID         string         `json:"id"`
		MountToken string         `json:"mount_token"`
		Snapshot   map[string]any `json:"snapshot"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatal(err)
	}
	if created.ID == "" || created.MountToken == "" {
		t.Fatalf("created=%s", w.Body.String())
	}
	if created.Snapshot[confetti.KeyNumberOfParticles] != 30.0 {
		t.Fatalf("snapshot=%v", created.Snapshot)
	}

	w = do(r, http.MethodGet, "/api/v1/confetti", "")
	var list struct {
		Data []Summary `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil || len(list.Data) != 1 {
		t.Fatalf("list=%s", w.Body.String())
	}

	w = do(r, http.MethodPatch, "/api/v1/confetti/"+created.ID, `{"colors":null,"shape":"heart"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("patch status=%d body=%s", w.Code, w.Body.String())
	}
	if snap := f.host.last(created.ID); snap.Has(confetti.KeyColorsEncoded) {
		t.Fatalf("colors should be cleared")
	}

	if w := do(r, http.MethodPatch, "/api/v1/confetti/"+created.ID, `{"shape":"blob"}`); w.Code != http.StatusBadRequest {
		t.Fatalf("bad enum status=%d", w.Code)
	}
	if w := do(r, http.MethodPatch, "/api/v1/confetti/"+created.ID, `{"number_of_particles":-1}`); w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("negative particles status=%d", w.Code)
	}

	if w := do(r, http.MethodPost, "/api/v1/confetti/"+created.ID+"/play", ""); w.Code != http.StatusNoContent {
		t.Fatalf("play status=%d", w.Code)
	}
	if w := do(r, http.MethodPost, "/api/v1/confetti/"+created.ID+"/token", ""); w.Code != http.StatusOK {
		t.Fatalf("token status=%d", w.Code)
	}

	if w := do(r, http.MethodDelete, "/api/v1/confetti/"+created.ID, ""); w.Code != http.StatusNoContent {
		t.Fatalf("delete status=%d", w.Code)
	}
	if w := do(r, http.MethodGet, "/api/v1/confetti/"+created.ID, ""); w.Code != http.StatusNotFound {
		t.Fatalf("get after delete status=%d", w.Code)
	}
}

func TestHandlerCreateWithoutBody(t *testing.T) {
	r, _ := newRouter(t)
	w := do(r, http.MethodPost, "/api/v1/confetti", "")
	if w.Code != http.StatusCreated {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	if w := do(r, http.MethodPost, "/api/v1/confetti", `{"preset":"nope"}`); w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("unknown preset status=%d", w.Code)
	}
}

func TestHandlerCommandErrors(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{confetti.ErrNotMounted, http.StatusConflict},
		{confetti.ErrRejected, http.StatusBadGateway},
		{confetti.ErrAckTimeout, http.StatusGatewayTimeout},
		{confetti.ErrChannelClosed, http.StatusServiceUnavailable},
	}
	r, f := newRouter(t)
	w := do(r, http.MethodPost, "/api/v1/confetti", "")
	var created struct {
		ID string `json:"id"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &created)

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			f.channel.err = tt.err
			if w := do(r, http.MethodPost, "/api/v1/confetti/"+created.ID+"/stop", ""); w.Code != tt.want {
				t.Fatalf("status=%d want=%d", w.Code, tt.want)
			}
		})
	}
	if w := do(r, http.MethodPost, "/api/v1/confetti/missing/play", ""); w.Code != http.StatusNotFound {
		t.Fatalf("status=%d", w.Code)
	}
}
