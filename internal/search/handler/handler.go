package handler

import (
	"net/http"
	"strconv"

	"fractionax_search/internal/search/service"
	"fractionax_search/internal/search/transport"
	"fractionax_search/platform/httpkit"
	"fractionax_search/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"
	msgInvalidSession   = "invalid session id"
	msgInvalidIndex     = "invalid suggestion index"
)

type Handler struct {
	svc *service.Service
	val *validator.Validator
}

func New(svc *service.Service, val *validator.Validator) *Handler {
	return &Handler{svc: svc, val: val}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("", h.Create)

	session := rg.Group("/:id", httpkit.SessionContext("id"))
	session.GET("", h.Get)
	session.DELETE("", h.Delete)
	session.PUT("/input", h.Input)
	session.POST("/keys", h.Key)
	session.POST("/focus", h.Focus)
	session.POST("/pointer", h.Pointer)
	session.POST("/suggestions/:index/select", h.Select)
	session.POST("/search", h.Search)
	session.DELETE("/conversation", h.ClearConversation)
}

func (h *Handler) Create(c *gin.Context) {
	httpkit.Created(c, h.svc.Create(c.Request.Context()))
}

func (h *Handler) Get(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}
	view, err := h.svc.View(id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, view)
}

func (h *Handler) Delete(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}
	if httpkit.HandleError(c, h.svc.Delete(c.Request.Context(), id)) {
		return
	}
	httpkit.NoContent(c)
}

func (h *Handler) Input(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}
	var req transport.InputRequest
	if !h.bind(c, &req) {
		return
	}
	view, err := h.svc.Input(id, req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, view)
}

func (h *Handler) Key(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}
	var req transport.KeyRequest
	if !h.bind(c, &req) {
		return
	}
	resp, err := h.svc.Key(c.Request.Context(), id, req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, resp)
}

func (h *Handler) Focus(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}
	view, err := h.svc.Focus(id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, view)
}

func (h *Handler) Pointer(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}
	var req transport.PointerRequest
	if !h.bind(c, &req) {
		return
	}
	view, err := h.svc.Pointer(id, req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, view)
}

func (h *Handler) Select(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil || index < 0 {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidIndex, nil)
		return
	}
	view, err := h.svc.Select(c.Request.Context(), id, index)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, view)
}

func (h *Handler) Search(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}
	resp, err := h.svc.Search(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, resp)
}

func (h *Handler) ClearConversation(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}
	view, err := h.svc.ClearConversation(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, view)
}

func (h *Handler) bind(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return false
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, validator.FailedFields(err))
		return false
	}
	return true
}

func sessionID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidSession, nil)
		return uuid.UUID{}, false
	}
	return id, true
}
