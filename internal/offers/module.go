// Package offers provides the offer board bounded context module: the
// enriched metrics table, its assignments, and the refresh endpoints.
package offers

import (
	"offerboard_backend/internal/cache"
	apphttp "offerboard_backend/internal/http"
	"offerboard_backend/internal/offers/handler"
	"offerboard_backend/internal/offers/service"
	"offerboard_backend/internal/offers/store"
	"offerboard_backend/internal/scheduler"
	"offerboard_backend/platform/logger"
	"offerboard_backend/platform/validator"
)

// Module is the offer board module implementing http.Module.
type Module struct {
	handler *handler.Handler
	service *service.Service
	store   *store.Store
}

// NewModule wires the board service and handler over the shared store.
func NewModule(st *store.Store, roster service.Roster, cacheMgr *cache.Manager, pl service.Pipeline, enqueuer scheduler.RefreshEnqueuer, val *validator.Validator, log *logger.Logger) *Module {
	svc := service.New(st, roster, cacheMgr, pl, enqueuer, log)
	h := handler.New(svc, val)

	return &Module{
		handler: h,
		service: svc,
		store:   st,
	}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "offers"
}

// Service returns the board service for the composition root.
func (m *Module) Service() *service.Service {
	return m.service
}

// RegisterRoutes mounts the board routes.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	board := ctx.V1.Group("/board")
	board.GET("", m.handler.Board)
	board.GET("/offers/:article", m.handler.Row)
	board.GET("/stages", m.handler.Stages)
	board.POST("/refresh", m.handler.Refresh)
}
