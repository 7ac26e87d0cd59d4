package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/kierachat-backend/internal/http/response"
	"github.com/yungbote/kierachat-backend/internal/services"
)

type UploadHandler struct {
	uploads services.UploadService
}

func NewUploadHandler(uploads services.UploadService) *UploadHandler {
	return &UploadHandler{uploads: uploads}
}

// POST /api/uploads
func (h *UploadHandler) Create(c *gin.Context) {
	var req services.UploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	dbc, who := requestScope(c)
	ticket, err := h.uploads.CreateUpload(dbc, who, req)
	if err != nil {
		response.RespondServiceError(c, "upload_url_failed", err)
		return
	}
	response.RespondCreated(c, ticket)
}

// GET /api/uploads/:storageId/url
// storageId contains slashes, so clients send it path-escaped.
func (h *UploadHandler) FileURL(c *gin.Context) {
	dbc, who := requestScope(c)
	out, err := h.uploads.FileURL(dbc, who, c.Param("storageId"))
	if err != nil {
		response.RespondServiceError(c, "file_url_failed", err)
		return
	}
	response.RespondOK(c, out)
}
