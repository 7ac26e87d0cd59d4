package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	types "github.com/yungbote/kierachat-backend/internal/domain"
	"github.com/yungbote/kierachat-backend/internal/http/response"
	"github.com/yungbote/kierachat-backend/internal/services"
)

type SettingsHandler struct {
	settings services.SettingsService
}

func NewSettingsHandler(settings services.SettingsService) *SettingsHandler {
	return &SettingsHandler{settings: settings}
}

// GET /api/settings
func (h *SettingsHandler) Get(c *gin.Context) {
	dbc, who := requestScope(c)
	prefs, err := h.settings.Get(dbc, who)
	if err != nil {
		response.RespondServiceError(c, "get_settings_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"settings": prefs})
}

// PUT /api/settings
func (h *SettingsHandler) Save(c *gin.Context) {
	var req types.Preferences
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	dbc, who := requestScope(c)
	prefs, err := h.settings.Save(dbc, who, req)
	if err != nil {
		response.RespondServiceError(c, "save_settings_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"settings": prefs})
}

// DELETE /api/settings/data
func (h *SettingsHandler) DeleteAllData(c *gin.Context) {
	dbc, who := requestScope(c)
	report, err := h.settings.DeleteAllData(dbc, who)
	if err != nil {
		response.RespondServiceError(c, "delete_data_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"deleted": report})
}

// GET /api/settings/export
func (h *SettingsHandler) Export(c *gin.Context) {
	dbc, who := requestScope(c)
	export, err := h.settings.Export(dbc, who)
	if err != nil {
		response.RespondServiceError(c, "export_failed", err)
		return
	}
	filename := fmt.Sprintf("kierachat-export-%s.json", export.ExportedAt.Format("2006-01-02"))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	response.RespondOK(c, export)
}
