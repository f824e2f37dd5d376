// Package handler handles HTTP requests for the offer board.
package handler

import (
	"errors"
	"io"

	"github.com/gin-gonic/gin"

	"offerboard_backend/internal/offers/service"
	"offerboard_backend/internal/offers/transport"
	"offerboard_backend/platform/httpkit"
	"offerboard_backend/platform/validator"
)

const (
	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"
)

// Handler handles board API requests.
type Handler struct {
	svc *service.Service
	val *validator.Validator
}

// New creates a board handler.
func New(svc *service.Service, val *validator.Validator) *Handler {
	return &Handler{svc: svc, val: val}
}

// Board returns the full enriched board.
// GET /api/v1/board
func (h *Handler) Board(c *gin.Context) {
	httpkit.OK(c, h.svc.Board(c.Request.Context()))
}

// Row returns one enriched offer row.
// GET /api/v1/board/offers/:article
func (h *Handler) Row(c *gin.Context) {
	row, err := h.svc.Row(c.Request.Context(), c.Param("article"))
	if err != nil {
		httpkit.Error(c, err)
		return
	}
	httpkit.OK(c, row)
}

// Stages returns the per-stage readiness flags.
// GET /api/v1/board/stages
func (h *Handler) Stages(c *gin.Context) {
	httpkit.OK(c, h.svc.StageStates())
}

// Refresh enqueues a refresh run. An empty body requests a full refresh.
// POST /api/v1/board/refresh
func (h *Handler) Refresh(c *gin.Context) {
	var req transport.RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		httpkit.BadRequest(c, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.BadRequest(c, msgValidationFailed, err.Error())
		return
	}

	resp, err := h.svc.Refresh(c.Request.Context(), req)
	if err != nil {
		httpkit.Error(c, err)
		return
	}
	httpkit.Accepted(c, resp)
}
