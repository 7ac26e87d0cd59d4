package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/yungbote/kierachat-backend/internal/http/response"
	"github.com/yungbote/kierachat-backend/internal/models"
	"github.com/yungbote/kierachat-backend/internal/pkg/ctxutil"
)

type ModelsHandler struct {
	registry *models.Registry
}

func NewModelsHandler(registry *models.Registry) *ModelsHandler {
	return &ModelsHandler{registry: registry}
}

type modelView struct {
	models.Model
	Usable bool `json:"usable"`
}

type providerView struct {
	Key    string      `json:"key"`
	Name   string      `json:"name"`
	Models []modelView `json:"models"`
}

// GET /api/models
func (h *ModelsHandler) List(c *gin.Context) {
	who := ctxutil.GetIdentity(c.Request.Context())
	providers := h.registry.Providers()
	out := make([]providerView, 0, len(providers))
	for _, p := range providers {
		pv := providerView{Key: p.Key, Name: p.Name, Models: make([]modelView, 0, len(p.Models))}
		for _, m := range p.Models {
			pv.Models = append(pv.Models, modelView{Model: m, Usable: h.registry.IsModelUsable(m.ID, who)})
		}
		out = append(out, pv)
	}
	response.RespondOK(c, gin.H{
		"providers":    out,
		"defaultModel": h.registry.DefaultModel().ID,
	})
}
