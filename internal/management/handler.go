package management

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"redgrab/internal/logger"
	"redgrab/internal/settings"
	"redgrab/pkg/errors"
)

type BaseHandler struct {
	Service Service
	Logger  logger.Logger
}

func (h *BaseHandler) HandleError(c *gin.Context, err error) {
	h.Logger.ErrorwCtx(c.Request.Context(), "Request error", "error", err, "path", c.Request.URL.Path)

	status := errors.ToHTTPStatus(err)
	response := errors.ToErrorResponse(err)

	c.JSON(status, response)
}

type Handler struct {
	BaseHandler
}

func NewHandler(service Service, log logger.Logger) *Handler {
	return &Handler{
		BaseHandler: BaseHandler{
			Service: service,
			Logger:  log,
		},
	}
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	v1 := router.Group("/api/v1")
	{
		v1.GET("/policy", h.GetPolicy)
		v1.PUT("/policy", h.UpdatePolicy)
		v1.GET("/stats", h.GetStats)
		v1.POST("/stats", h.AddStats)

		cooldowns := v1.Group("/cooldowns")
		{
			cooldowns.GET("", h.ListCooldowns)
			cooldowns.DELETE("", h.ClearCooldowns)
		}

		listener := v1.Group("/listener")
		{
			listener.POST("/enable", h.EnableListener)
			listener.POST("/disable", h.DisableListener)
		}
	}
}

func (h *Handler) GetPolicy(c *gin.Context) {
	pol, err := h.Service.GetPolicy(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, pol)
}

func (h *Handler) UpdatePolicy(c *gin.Context) {
	var pol settings.Policy
	if err := c.ShouldBindJSON(&pol); err != nil {
		c.JSON(http.StatusBadRequest, errors.ToErrorResponse(errors.ErrValidation.WithCause(err)))
		return
	}

	updated, err := h.Service.UpdatePolicy(c.Request.Context(), pol)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (h *Handler) GetStats(c *gin.Context) {
	resp, err := h.Service.Stats(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) AddStats(c *gin.Context) {
	var inc StatsIncrement
	if err := c.ShouldBindJSON(&inc); err != nil {
		c.JSON(http.StatusBadRequest, errors.ToErrorResponse(errors.ErrValidation.WithCause(err)))
		return
	}

	resp, err := h.Service.AddStats(c.Request.Context(), inc)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) ListCooldowns(c *gin.Context) {
	c.JSON(http.StatusOK, h.Service.Cooldowns(c.Request.Context()))
}

func (h *Handler) ClearCooldowns(c *gin.Context) {
	h.Service.ClearCooldowns(c.Request.Context())
	c.Status(http.StatusNoContent)
}

func (h *Handler) EnableListener(c *gin.Context) {
	if err := h.Service.EnableListener(c.Request.Context()); err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"active": true})
}

func (h *Handler) DisableListener(c *gin.Context) {
	if err := h.Service.DisableListener(c.Request.Context()); err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"active": false})
}
