package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/regflow-io/regflow-api/internal/dto"
	"github.com/regflow-io/regflow-api/internal/models"
	"github.com/regflow-io/regflow-api/internal/service"
	appErrors "github.com/regflow-io/regflow-api/pkg/errors"
	"github.com/regflow-io/regflow-api/pkg/response"
)

type requestService interface {
	CreateDraft(ctx context.Context, req dto.CreateRequestRequest, userID string) (*models.RegistrationRequest, error)
	Get(ctx context.Context, id string, actor *models.JWTClaims) (*models.RegistrationRequest, error)
	List(ctx context.Context, query dto.RequestQuery, actor *models.JWTClaims) ([]models.RegistrationRequest, error)
	ListPending(ctx context.Context, actor *models.JWTClaims) ([]models.RegistrationRequest, error)
	UpdateDraft(ctx context.Context, id string, req dto.UpdateDraftRequest, actorID string) (*models.RegistrationRequest, error)
	DeleteDraft(ctx context.Context, id string, actor *models.JWTClaims) error
	Submit(ctx context.Context, id, actorID string) (*models.RegistrationRequest, error)
	Approve(ctx context.Context, id string, req dto.ApproveRequest, actorID string) (*models.RegistrationRequest, error)
	Reject(ctx context.Context, id, reason, actorID string) (*models.RegistrationRequest, error)
	SendBack(ctx context.Context, id string, req dto.SendBackRequest, actorID string) (*models.RegistrationRequest, error)
}

type syncRetrier interface {
	RetrySync(ctx context.Context, requestID string) (*models.RegistrationRequest, error)
}

type changeHistorian interface {
	History(ctx context.Context, requestID string) ([]models.FieldChange, error)
}

type historyExporter interface {
	ApprovalHistory(ctx context.Context, requestID, format string) (*service.ExportResult, error)
}

// RequestHandler exposes the registration request lifecycle over REST.
type RequestHandler struct {
	service requestService
	sync    syncRetrier
	changes changeHistorian
	export  historyExporter
}

// NewRequestHandler constructs the handler. export may be nil when document
// exports are disabled.
func NewRequestHandler(service requestService, sync syncRetrier, changes changeHistorian, export historyExporter) *RequestHandler {
	return &RequestHandler{service: service, sync: sync, changes: changes, export: export}
}

// Create godoc
// @Summary Open a registration draft
// @Tags Requests
// @Accept json
// @Produce json
// @Param payload body dto.CreateRequestRequest true "Draft payload"
// @Success 201 {object} response.Envelope
// @Router /requests [post]
func (h *RequestHandler) Create(c *gin.Context) {
	var req dto.CreateRequestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid draft payload"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	request, err := h.service.CreateDraft(c.Request.Context(), req, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusCreated, request)
}

// List godoc
// @Summary List registration requests
// @Tags Requests
// @Produce json
// @Param status query string false "Comma separated statuses"
// @Param templateId query string false "Template ID"
// @Param operation query string false "NEW or ALTERATION"
// @Success 200 {object} response.Envelope
// @Router /requests [get]
func (h *RequestHandler) List(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	query := dto.RequestQuery{
		TemplateID:  strings.TrimSpace(c.Query("templateId")),
		RequestedBy: strings.TrimSpace(c.Query("requestedBy")),
	}
	if raw := c.Query("operation"); raw != "" {
		query.Operation = models.OperationType(strings.ToUpper(strings.TrimSpace(raw)))
	}
	if raw := c.Query("status"); raw != "" {
		parts := strings.Split(raw, ",")
		statuses := make([]models.RequestStatus, 0, len(parts))
		for _, part := range parts {
			part = strings.ToUpper(strings.TrimSpace(part))
			if part == "" {
				continue
			}
			statuses = append(statuses, models.RequestStatus(part))
		}
		query.Status = statuses
	}
	if raw := c.Query("limit"); raw != "" {
		if limit, err := strconv.Atoi(raw); err == nil {
			query.Limit = limit
		}
	}
	if raw := c.Query("offset"); raw != "" {
		if offset, err := strconv.Atoi(raw); err == nil {
			query.Offset = offset
		}
	}
	requests, err := h.service.List(c.Request.Context(), query, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, requests)
}

// ListPending godoc
// @Summary List requests awaiting the caller's approval
// @Tags Requests
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /requests/pending [get]
func (h *RequestHandler) ListPending(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	requests, err := h.service.ListPending(c.Request.Context(), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, requests)
}

// Get godoc
// @Summary Get a registration request
// @Tags Requests
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} response.Envelope
// @Router /requests/{id} [get]
func (h *RequestHandler) Get(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	request, err := h.service.Get(c.Request.Context(), c.Param("id"), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, request)
}

// Update godoc
// @Summary Replace the form data of a draft
// @Tags Requests
// @Accept json
// @Produce json
// @Param id path string true "Request ID"
// @Param payload body dto.UpdateDraftRequest true "Draft data"
// @Success 200 {object} response.Envelope
// @Router /requests/{id} [put]
func (h *RequestHandler) Update(c *gin.Context) {
	var req dto.UpdateDraftRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid draft payload"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	request, err := h.service.UpdateDraft(c.Request.Context(), c.Param("id"), req, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, request)
}

// Delete godoc
// @Summary Delete a draft
// @Tags Requests
// @Param id path string true "Request ID"
// @Success 204
// @Router /requests/{id} [delete]
func (h *RequestHandler) Delete(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	if err := h.service.DeleteDraft(c.Request.Context(), c.Param("id"), claims); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Submit godoc
// @Summary Submit a draft for approval
// @Tags Requests
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} response.Envelope
// @Router /requests/{id}/submit [post]
func (h *RequestHandler) Submit(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	request, err := h.service.Submit(c.Request.Context(), c.Param("id"), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, request)
}

// Approve godoc
// @Summary Approve at the current level
// @Tags Requests
// @Accept json
// @Produce json
// @Param id path string true "Request ID"
// @Param payload body dto.ApproveRequest false "Comments and field edits"
// @Success 200 {object} response.Envelope
// @Router /requests/{id}/approve [post]
func (h *RequestHandler) Approve(c *gin.Context) {
	var req dto.ApproveRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid approval payload"))
			return
		}
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	request, err := h.service.Approve(c.Request.Context(), c.Param("id"), req, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, request)
}

// Reject godoc
// @Summary Reject the request
// @Tags Requests
// @Accept json
// @Produce json
// @Param id path string true "Request ID"
// @Param payload body dto.RejectRequest true "Rejection reason"
// @Success 200 {object} response.Envelope
// @Router /requests/{id}/reject [post]
func (h *RequestHandler) Reject(c *gin.Context) {
	var req dto.RejectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid rejection payload"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	request, err := h.service.Reject(c.Request.Context(), c.Param("id"), req.Reason, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, request)
}

// SendBack godoc
// @Summary Send the request back to an earlier level or to draft
// @Tags Requests
// @Accept json
// @Produce json
// @Param id path string true "Request ID"
// @Param payload body dto.SendBackRequest true "Target level and reason"
// @Success 200 {object} response.Envelope
// @Router /requests/{id}/send-back [post]
func (h *RequestHandler) SendBack(c *gin.Context) {
	var req dto.SendBackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid send-back payload"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	request, err := h.service.SendBack(c.Request.Context(), c.Param("id"), req, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, request)
}

// RetrySync godoc
// @Summary Retry a failed external sync
// @Tags Requests
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} response.Envelope
// @Router /requests/{id}/retry-sync [post]
func (h *RequestHandler) RetrySync(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	// The requester and admins may retry; visibility is checked via Get.
	if _, err := h.service.Get(c.Request.Context(), c.Param("id"), claims); err != nil {
		response.Error(c, err)
		return
	}
	request, err := h.sync.RetrySync(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, request)
}

// FieldChanges godoc
// @Summary List the approver field-edit audit trail
// @Tags Requests
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} response.Envelope
// @Router /requests/{id}/field-changes [get]
func (h *RequestHandler) FieldChanges(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	if _, err := h.service.Get(c.Request.Context(), c.Param("id"), claims); err != nil {
		response.Error(c, err)
		return
	}
	changes, err := h.changes.History(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, changes)
}

// ExportHistory godoc
// @Summary Export the approval history as CSV or PDF
// @Tags Requests
// @Produce octet-stream
// @Param id path string true "Request ID"
// @Param format query string false "csv or pdf"
// @Success 200 {file} binary
// @Router /requests/{id}/history/export [get]
func (h *RequestHandler) ExportHistory(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	if h.export == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "exports are disabled"))
		return
	}
	if _, err := h.service.Get(c.Request.Context(), c.Param("id"), claims); err != nil {
		response.Error(c, err)
		return
	}
	result, err := h.export.ApprovalHistory(c.Request.Context(), c.Param("id"), strings.ToLower(c.Query("format")))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+result.Filename+`"`)
	c.Data(http.StatusOK, result.ContentType, result.Body)
}
