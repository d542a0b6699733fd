// Package http provides the generated CRUD route handlers. One handler
// serves every registered entity-type; the router binds each route to an
// entity by closing over its name.
package http

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/allisson/autoapi/internal/crud/http/dto"
	"github.com/allisson/autoapi/internal/entity"
	"github.com/allisson/autoapi/internal/httputil"
	"github.com/allisson/autoapi/internal/pipeline"
	sessionHTTP "github.com/allisson/autoapi/internal/session/http"
	customValidation "github.com/allisson/autoapi/internal/validation"
)

// Handler serves the generated CRUD and login routes for all entity-types.
// Authentication is not checked here: the raw bearer token is forwarded and
// the pipeline validates it after admission.
type Handler struct {
	pipeline pipeline.OperationPipeline
	logger   *slog.Logger
}

// NewHandler creates a new CRUD handler on top of the operation pipeline.
func NewHandler(p pipeline.OperationPipeline, logger *slog.Logger) *Handler {
	return &Handler{
		pipeline: p,
		logger:   logger,
	}
}

// ListHandler returns records for GET /v1/{entity}.
func (h *Handler) ListHandler(entityType string) gin.HandlerFunc {
	return func(c *gin.Context) {
		offset, limit, err := httputil.ParsePagination(c)
		if err != nil {
			httputil.HandleValidationErrorGin(c, err, h.logger)
			return
		}

		records, err := h.pipeline.List(
			c.Request.Context(), entityType, sessionHTTP.BearerToken(c), offset, limit)
		if err != nil {
			httputil.HandleErrorGin(c, err, h.logger)
			return
		}

		c.JSON(http.StatusOK, records)
	}
}

// CountHandler returns the record count for GET /v1/{entity}/count.
func (h *Handler) CountHandler(entityType string) gin.HandlerFunc {
	return func(c *gin.Context) {
		count, err := h.pipeline.Count(c.Request.Context(), entityType, sessionHTTP.BearerToken(c))
		if err != nil {
			httputil.HandleErrorGin(c, err, h.logger)
			return
		}

		c.JSON(http.StatusOK, dto.CountResponse{Count: count})
	}
}

// GetHandler returns one record for GET /v1/{entity}/:id.
func (h *Handler) GetHandler(entityType string) gin.HandlerFunc {
	return func(c *gin.Context) {
		record, err := h.pipeline.Get(
			c.Request.Context(), entityType, sessionHTTP.BearerToken(c), c.Param("id"))
		if err != nil {
			httputil.HandleErrorGin(c, err, h.logger)
			return
		}

		c.JSON(http.StatusOK, record)
	}
}

// CreateHandler persists one record for POST /v1/{entity}.
func (h *Handler) CreateHandler(entityType string) gin.HandlerFunc {
	return func(c *gin.Context) {
		var payload pipeline.Record
		if err := c.ShouldBindJSON(&payload); err != nil {
			httputil.HandleBadRequestGin(c, err, h.logger)
			return
		}

		record, err := h.pipeline.Create(
			c.Request.Context(), entityType, sessionHTTP.BearerToken(c), payload)
		if err != nil {
			httputil.HandleErrorGin(c, err, h.logger)
			return
		}

		c.JSON(http.StatusCreated, record)
	}
}

// CreateBulkHandler persists many records for POST /v1/{entity}/bulk.
func (h *Handler) CreateBulkHandler(entityType string) gin.HandlerFunc {
	return func(c *gin.Context) {
		var payloads []pipeline.Record
		if err := c.ShouldBindJSON(&payloads); err != nil {
			httputil.HandleBadRequestGin(c, err, h.logger)
			return
		}

		records, err := h.pipeline.CreateBulk(
			c.Request.Context(), entityType, sessionHTTP.BearerToken(c), payloads)
		if err != nil {
			httputil.HandleErrorGin(c, err, h.logger)
			return
		}

		c.JSON(http.StatusCreated, records)
	}
}

// UpdateHandler applies a partial payload for PATCH /v1/{entity}/:id.
func (h *Handler) UpdateHandler(entityType string) gin.HandlerFunc {
	return func(c *gin.Context) {
		var payload pipeline.Record
		if err := c.ShouldBindJSON(&payload); err != nil {
			httputil.HandleBadRequestGin(c, err, h.logger)
			return
		}

		record, err := h.pipeline.Update(
			c.Request.Context(), entityType, sessionHTTP.BearerToken(c), c.Param("id"), payload)
		if err != nil {
			httputil.HandleErrorGin(c, err, h.logger)
			return
		}

		c.JSON(http.StatusOK, record)
	}
}

// UpdateBulkHandler applies many partial payloads for PATCH /v1/{entity}/bulk.
func (h *Handler) UpdateBulkHandler(entityType string) gin.HandlerFunc {
	return func(c *gin.Context) {
		var payloads []pipeline.Record
		if err := c.ShouldBindJSON(&payloads); err != nil {
			httputil.HandleBadRequestGin(c, err, h.logger)
			return
		}

		records, err := h.pipeline.UpdateBulk(
			c.Request.Context(), entityType, sessionHTTP.BearerToken(c), payloads)
		if err != nil {
			httputil.HandleErrorGin(c, err, h.logger)
			return
		}

		c.JSON(http.StatusOK, records)
	}
}

// DeleteHandler removes one record for DELETE /v1/{entity}/:id.
func (h *Handler) DeleteHandler(entityType string) gin.HandlerFunc {
	return func(c *gin.Context) {
		err := h.pipeline.Delete(
			c.Request.Context(), entityType, sessionHTTP.BearerToken(c), c.Param("id"))
		if err != nil {
			httputil.HandleErrorGin(c, err, h.logger)
			return
		}

		c.Status(http.StatusNoContent)
	}
}

// DeleteBulkHandler removes many records for DELETE /v1/{entity}/bulk.
func (h *Handler) DeleteBulkHandler(entityType string) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req dto.BulkDeleteRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			httputil.HandleBadRequestGin(c, err, h.logger)
			return
		}
		if err := req.Validate(); err != nil {
			httputil.HandleValidationErrorGin(c, customValidation.WrapValidationError(err), h.logger)
			return
		}

		err := h.pipeline.DeleteBulk(
			c.Request.Context(), entityType, sessionHTTP.BearerToken(c), req.IDs)
		if err != nil {
			httputil.HandleErrorGin(c, err, h.logger)
			return
		}

		c.Status(http.StatusNoContent)
	}
}

// LoginHandler verifies credentials for POST /v1/{entity}/login and returns
// a session token.
func (h *Handler) LoginHandler(def *entity.Definition) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req dto.LoginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			httputil.HandleBadRequestGin(c, err, h.logger)
			return
		}
		if err := req.Validate(def.LoginFields); err != nil {
			httputil.HandleValidationErrorGin(c, customValidation.WrapValidationError(err), h.logger)
			return
		}

		token, err := h.pipeline.Login(c.Request.Context(), def.Name, req)
		if err != nil {
			httputil.HandleErrorGin(c, err, h.logger)
			return
		}

		c.JSON(http.StatusOK, dto.LoginResponse{Token: token})
	}
}

// LogoutHandler revokes the caller's token for POST /v1/{entity}/logout.
func (h *Handler) LogoutHandler(entityType string) gin.HandlerFunc {
	return func(c *gin.Context) {
		err := h.pipeline.Logout(c.Request.Context(), entityType, sessionHTTP.BearerToken(c))
		if err != nil {
			httputil.HandleErrorGin(c, err, h.logger)
			return
		}

		c.Status(http.StatusNoContent)
	}
}
