package registry

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/mx-space/confetti-bridge/internal/modules/confetti"
	"github.com/mx-space/confetti-bridge/internal/pkg/response"
)

type Handler struct{ svc *Service }

func NewHandler(svc *Service) *Handler { return &Handler{svc: svc} }

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	g := rg.Group("/confetti")
	g.POST("", h.create)
	g.GET("", h.list)
	g.GET("/:id", h.get)
	g.PATCH("/:id", h.update)
	g.DELETE("/:id", h.remove)
	g.POST("/:id/play", h.play)
	g.POST("/:id/stop", h.stop)
	g.POST("/:id/token", h.token)
}

func (h *Handler) create(c *gin.Context) {
	var dto CreateDTO
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&dto); err != nil {
			response.BadRequest(c, err.Error())
			return
		}
	}
	out, err := h.svc.Declare(c.Request.Context(), dto)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Created(c, out)
}

func (h *Handler) list(c *gin.Context) {
	response.OK(c, h.svc.List())
}

func (h *Handler) get(c *gin.Context) {
	view, err := h.svc.Get(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	response.OK(c, view)
}

func (h *Handler) update(c *gin.Context) {
	var patch ConfigPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	view, err := h.svc.Update(c.Request.Context(), c.Param("id"), &patch)
	if err != nil {
		writeError(c, err)
		return
	}
	response.OK(c, view)
}

func (h *Handler) remove(c *gin.Context) {
	if err := h.svc.Remove(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	response.NoContent(c)
}

func (h *Handler) play(c *gin.Context) {
	if err := h.svc.Play(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	response.NoContent(c)
}

func (h *Handler) stop(c *gin.Context) {
	if err := h.svc.Stop(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	response.NoContent(c)
}

func (h *Handler) token(c *gin.Context) {
	token, err := h.svc.MountToken(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	response.OK(c, gin.H{"id": c.Param("id"), "mount_token": token})
}

func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		response.NotFoundMsg(c, err.Error())
	case errors.Is(err, ErrInvalid):
		response.UnprocessableEntity(c, err.Error())
	case errors.Is(err, confetti.ErrNotMounted):
		response.Conflict(c, err.Error())
	case errors.Is(err, confetti.ErrRejected):
		response.BadGateway(c, err.Error())
	case errors.Is(err, confetti.ErrAckTimeout), errors.Is(err, context.DeadlineExceeded):
		response.GatewayTimeout(c, err.Error())
	case errors.Is(err, confetti.ErrChannelClosed):
		response.ServiceUnavailable(c, err.Error())
	default:
		response.InternalError(c, err)
	}
}
