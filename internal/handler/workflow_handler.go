package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/regflow-io/regflow-api/internal/models"
	appErrors "github.com/regflow-io/regflow-api/pkg/errors"
	"github.com/regflow-io/regflow-api/pkg/response"
)

type workflowResolver interface {
	Resolve(ctx context.Context, templateID string) (*models.WorkflowSnapshot, error)
}

// WorkflowHandler previews the workflow a submission would freeze.
type WorkflowHandler struct {
	resolver workflowResolver
}

// NewWorkflowHandler constructs the handler.
func NewWorkflowHandler(resolver workflowResolver) *WorkflowHandler {
	return &WorkflowHandler{resolver: resolver}
}

// Preview godoc
// @Summary Preview the approval chain for a template
// @Tags Workflows
// @Produce json
// @Param id path string true "Template ID"
// @Success 200 {object} response.Envelope
// @Router /templates/{id}/workflow [get]
func (h *WorkflowHandler) Preview(c *gin.Context) {
	if claims := claimsFromContext(c); claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	snapshot, err := h.resolver.Resolve(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, snapshot)
}
