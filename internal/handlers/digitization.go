// internal/handlers/digitization.go
package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/javajoker/dealer-contracts/internal/i18n"
	"github.com/javajoker/dealer-contracts/internal/services"
	"github.com/javajoker/dealer-contracts/internal/utils"
)

type DigitizationHandler struct {
	digitizationService *services.DigitizationService
}

func NewDigitizationHandler(digitizationService *services.DigitizationService) *DigitizationHandler {
	return &DigitizationHandler{
		digitizationService: digitizationService,
	}
}

// POST /contracts/:id/digitization
func (h *DigitizationHandler) Submit(c *gin.Context) {
	lang := utils.GetLangFromContext(c)
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	id, ok := parseIDParam(c, "id", "contract")
	if !ok {
		return
	}

	var req services.SubmitDigitizationRequest
	if c.Request.ContentLength > 0 && !bindJSON(c, &req) {
		return
	}

	contract, err := h.digitizationService.Submit(c.Request.Context(), actor, id, req)
	if err != nil {
		utils.ErrorFromService(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"message":      i18n.T(lang, i18n.KeyDigitizationSubmitted),
		"digitization": contract.Digitization,
		"contract":     contract,
	})
}

// PUT /contracts/:id/fields
func (h *DigitizationHandler) DefineFields(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	id, ok := parseIDParam(c, "id", "contract")
	if !ok {
		return
	}

	var req services.DefineFieldsRequest
	if !bindJSON(c, &req) {
		return
	}

	contract, err := h.digitizationService.DefineFields(c.Request.Context(), actor, id, req)
	if err != nil {
		utils.ErrorFromService(c, err)
		return
	}

	utils.SuccessResponse(c, contract)
}

// POST /digitization/callback
func (h *DigitizationHandler) Callback(c *gin.Context) {
	var cb services.WebhookCallback
	if !bindJSON(c, &cb) {
		return
	}

	if err := h.digitizationService.ApplyWebhookCallback(c.Request.Context(), cb); err != nil {
		utils.ErrorFromService(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{"received": true})
}
