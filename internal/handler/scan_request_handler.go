package handler

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/oculoscan/oculoscan-api/internal/dto"
	"github.com/oculoscan/oculoscan-api/internal/models"
	appErrors "github.com/oculoscan/oculoscan-api/pkg/errors"
	"github.com/oculoscan/oculoscan-api/pkg/response"
	"github.com/oculoscan/oculoscan-api/pkg/storage"
)

type scanLifecycleService interface {
	CreateRequest(ctx context.Context, actor models.Actor, req dto.CreateScanRequestRequest) (*models.ScanRequest, error)
	Get(ctx context.Context, id string, actor models.Actor) (*models.ScanRequest, error)
	List(ctx context.Context, query dto.ScanRequestQuery, actor models.Actor) ([]models.ScanRequest, error)
	AssignToSelf(ctx context.Context, id string, actor models.Actor) (*models.ScanRequest, error)
	AttachImage(ctx context.Context, id string, actor models.Actor, filename string, size int64, image io.Reader) (*dto.AttachImageResponse, error)
	RecordAnalysis(ctx context.Context, id string, actor models.Actor, result *models.PredictionResult) (*models.ScanRequest, error)
	SaveClinicalNote(ctx context.Context, id string, actor models.Actor, req dto.ClinicalNoteRequest) (*models.ScanRequest, error)
	Complete(ctx context.Context, id string, actor models.Actor) (*models.ScanRequest, error)
	Cancel(ctx context.Context, id string, actor models.Actor) error
}

type imageOpener interface {
	Open(filename string) (io.ReadCloser, error)
}

// ScanRequestHandler exposes REST endpoints for the scan request lifecycle.
type ScanRequestHandler struct {
	service scanLifecycleService
	images  imageOpener
	signer  *storage.SignedURLSigner
}

// NewScanRequestHandler constructs the handler.
func NewScanRequestHandler(service scanLifecycleService, images imageOpener, signer *storage.SignedURLSigner) *ScanRequestHandler {
	return &ScanRequestHandler{service: service, images: images, signer: signer}
}

// Create godoc
// @Summary Open a scan request
// @Tags ScanRequests
// @Accept json
// @Produce json
// @Param payload body dto.CreateScanRequestRequest true "Scan request payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /scan-requests [post]
func (h *ScanRequestHandler) Create(c *gin.Context) {
	actor := actorFromContext(c)
	if actor == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.CreateScanRequestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid scan request payload"))
		return
	}
	request, err := h.service.CreateRequest(c.Request.Context(), *actor, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusCreated, request, nil)
}

// List godoc
// @Summary List scan requests
// @Tags ScanRequests
// @Produce json
// @Param status query string false "Comma separated statuses"
// @Param priority query string false "Comma separated priorities"
// @Param view query string false "all or mine (clinicians only)"
// @Param limit query int false "Page size"
// @Param offset query int false "Offset"
// @Success 200 {object} response.Envelope
// @Router /scan-requests [get]
func (h *ScanRequestHandler) List(c *gin.Context) {
	actor := actorFromContext(c)
	if actor == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	query := dto.ScanRequestQuery{
		View: strings.TrimSpace(c.Query("view")),
	}
	if rawStatus := c.Query("status"); rawStatus != "" {
		for _, part := range strings.Split(rawStatus, ",") {
			part = strings.ToLower(strings.TrimSpace(part))
			if part == "" {
				continue
			}
			status := models.ScanStatus(part)
			if !status.Valid() {
				response.Error(c, appErrors.Clone(appErrors.ErrValidation, "unknown status "+part))
				return
			}
			query.Status = append(query.Status, status)
		}
	}
	if rawPriority := c.Query("priority"); rawPriority != "" {
		for _, part := range strings.Split(rawPriority, ",") {
			part = strings.ToLower(strings.TrimSpace(part))
			if part == "" {
				continue
			}
			priority := models.ScanPriority(part)
			if !priority.Valid() {
				response.Error(c, appErrors.Clone(appErrors.ErrValidation, "unknown priority "+part))
				return
			}
			query.Priority = append(query.Priority, priority)
		}
	}
	query.Limit = parseIntDefault(c.Query("limit"), 20)
	query.Offset = parseIntDefault(c.Query("offset"), 0)

	requests, err := h.service.List(c.Request.Context(), query, *actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, requests, nil)
}

// Get godoc
// @Summary Get scan request detail
// @Tags ScanRequests
// @Produce json
// @Param id path string true "Scan request ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /scan-requests/{id} [get]
func (h *ScanRequestHandler) Get(c *gin.Context) {
	actor := actorFromContext(c)
	if actor == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	request, err := h.service.Get(c.Request.Context(), c.Param("id"), *actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, request, nil)
}

// Assign godoc
// @Summary Claim a pending scan request
// @Description Assign the request to the calling clinician. Exactly one caller wins a concurrent claim.
// @Tags ScanRequests
// @Produce json
// @Param id path string true "Scan request ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /scan-requests/{id}/assign [post]
func (h *ScanRequestHandler) Assign(c *gin.Context) {
	actor := actorFromContext(c)
	if actor == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	request, err := h.service.AssignToSelf(c.Request.Context(), c.Param("id"), *actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, request, nil)
}

// AttachImage godoc
// @Summary Upload a scan image
// @Tags ScanRequests
// @Accept multipart/form-data
// @Produce json
// @Param id path string true "Scan request ID"
// @Param file formData file true "Scan image"
// @Success 200 {object} response.Envelope
// @Failure 413 {object} response.Envelope
// @Router /scan-requests/{id}/image [post]
func (h *ScanRequestHandler) AttachImage(c *gin.Context) {
	actor := actorFromContext(c)
	if actor == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	fileHeader, err := c.FormFile("file")
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "multipart field 'file' is required"))
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "failed to read upload"))
		return
	}
	defer file.Close() //nolint:errcheck

	result, err := h.service.AttachImage(c.Request.Context(), c.Param("id"), *actor, fileHeader.Filename, fileHeader.Size, file)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// DownloadImage godoc
// @Summary Download a scan image via signed token
// @Tags ScanRequests
// @Produce octet-stream
// @Param token path string true "Signed token"
// @Success 200 {file} binary
// @Failure 401 {object} response.Envelope
// @Router /scan-requests/images/{token} [get]
func (h *ScanRequestHandler) DownloadImage(c *gin.Context) {
	token := c.Param("token")
	_, relPath, _, err := h.signer.Parse(token, false)
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "invalid or expired download token"))
		return
	}
	file, err := h.images.Open(relPath)
	if err != nil {
		response.Error(c, appErrors.ErrNotFound)
		return
	}
	defer file.Close() //nolint:errcheck

	c.Header("Content-Type", "application/octet-stream")
	c.Status(http.StatusOK)
	_, _ = io.Copy(c.Writer, file)
}

// RecordAnalysis godoc
// @Summary Run or record image analysis
// @Description With an empty body the stored image is classified; otherwise the supplied result is recorded.
// @Tags ScanRequests
// @Accept json
// @Produce json
// @Param id path string true "Scan request ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /scan-requests/{id}/analysis [post]
func (h *ScanRequestHandler) RecordAnalysis(c *gin.Context) {
	actor := actorFromContext(c)
	if actor == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var result *models.PredictionResult
	if c.Request.ContentLength > 0 {
		var payload models.PredictionResult
		if err := c.ShouldBindJSON(&payload); err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid prediction payload"))
			return
		}
		if payload.PredictedClass == "" {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "predicted_class is required"))
			return
		}
		result = &payload
	}
	request, err := h.service.RecordAnalysis(c.Request.Context(), c.Param("id"), *actor, result)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, request, nil)
}

// SaveNote godoc
// @Summary Save the clinical note
// @Description The first note on an assigned request advances it to reviewed.
// @Tags ScanRequests
// @Accept json
// @Produce json
// @Param id path string true "Scan request ID"
// @Param payload body dto.ClinicalNoteRequest true "Note payload"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /scan-requests/{id}/note [put]
func (h *ScanRequestHandler) SaveNote(c *gin.Context) {
	actor := actorFromContext(c)
	if actor == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.ClinicalNoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid note payload"))
		return
	}
	request, err := h.service.SaveClinicalNote(c.Request.Context(), c.Param("id"), *actor, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, request, nil)
}

// Complete godoc
// @Summary Complete a reviewed scan request
// @Tags ScanRequests
// @Produce json
// @Param id path string true "Scan request ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /scan-requests/{id}/complete [post]
func (h *ScanRequestHandler) Complete(c *gin.Context) {
	actor := actorFromContext(c)
	if actor == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	request, err := h.service.Complete(c.Request.Context(), c.Param("id"), *actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, request, nil)
}

// Cancel godoc
// @Summary Cancel a pending scan request
// @Tags ScanRequests
// @Produce json
// @Param id path string true "Scan request ID"
// @Success 204 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /scan-requests/{id}/cancel [post]
func (h *ScanRequestHandler) Cancel(c *gin.Context) {
	actor := actorFromContext(c)
	if actor == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	if err := h.service.Cancel(c.Request.Context(), c.Param("id"), *actor); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

func parseIntDefault(raw string, def int) int {
	if raw == "" {
		return def
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return def
	}
	return value
}
