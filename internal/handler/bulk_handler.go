package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/regflow-io/regflow-api/internal/dto"
	"github.com/regflow-io/regflow-api/internal/models"
	appErrors "github.com/regflow-io/regflow-api/pkg/errors"
	"github.com/regflow-io/regflow-api/pkg/response"
)

type bulkService interface {
	Classify(ctx context.Context, templateID string, rows []map[string]string) (*models.BulkClassification, error)
	Import(ctx context.Context, templateID string, rows []map[string]string, userID string) (*models.BulkImportResult, error)
}

// BulkHandler exposes bulk row classification and batch import.
type BulkHandler struct {
	service bulkService
}

// NewBulkHandler constructs the handler.
func NewBulkHandler(service bulkService) *BulkHandler {
	return &BulkHandler{service: service}
}

// Validate godoc
// @Summary Classify spreadsheet rows without creating drafts
// @Tags Bulk
// @Accept json
// @Produce json
// @Param payload body dto.BulkRequest true "Template and rows"
// @Success 200 {object} response.Envelope
// @Router /bulk/validate [post]
func (h *BulkHandler) Validate(c *gin.Context) {
	var req dto.BulkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid bulk payload"))
		return
	}
	if claims := claimsFromContext(c); claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	classification, err := h.service.Classify(c.Request.Context(), req.TemplateID, req.Rows)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, classification)
}

// Import godoc
// @Summary Classify rows and create batch drafts
// @Tags Bulk
// @Accept json
// @Produce json
// @Param payload body dto.BulkRequest true "Template and rows"
// @Success 201 {object} response.Envelope
// @Router /bulk/import [post]
func (h *BulkHandler) Import(c *gin.Context) {
	var req dto.BulkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid bulk payload"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	result, err := h.service.Import(c.Request.Context(), req.TemplateID, req.Rows, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusCreated, result)
}
