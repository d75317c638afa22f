package preset

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/mx-space/confetti-bridge/internal/modules/confetti"
	"github.com/mx-space/confetti-bridge/internal/pkg/response"
)

type Handler struct{ catalog *Catalog }

func NewHandler(catalog *Catalog) *Handler { return &Handler{catalog: catalog} }

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	g := rg.Group("/presets")
	g.GET("", h.list)
	g.GET("/:name", h.get)
}

func (h *Handler) list(c *gin.Context) {
	response.OK(c, h.catalog.Names())
}

func (h *Handler) get(c *gin.Context) {
	name := c.Param("name")
	cfg, err := h.catalog.Get(name)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			response.NotFoundMsg(c, "preset not found")
			return
		}
		response.InternalError(c, err)
		return
	}
	response.OK(c, gin.H{"name": name, "config": confetti.NewConfigView(cfg)})
}
