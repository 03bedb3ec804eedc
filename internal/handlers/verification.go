// internal/handlers/verification.go
package handlers

import (
	"io"

	"github.com/gin-gonic/gin"

	"github.com/javajoker/dealer-contracts/internal/i18n"
	"github.com/javajoker/dealer-contracts/internal/services"
	"github.com/javajoker/dealer-contracts/internal/utils"
)

type VerificationHandler struct {
	contractService *services.ContractService
	maxUploadMB     int
}

func NewVerificationHandler(contractService *services.ContractService, maxUploadMB int) *VerificationHandler {
	return &VerificationHandler{
		contractService: contractService,
		maxUploadMB:     maxUploadMB,
	}
}

// GET /verify/:id?sha256=
func (h *VerificationHandler) VerifyDigest(c *gin.Context) {
	id, ok := parseIDParam(c, "id", "contract")
	if !ok {
		return
	}

	digest := c.Query("sha256")
	if digest == "" {
		lang := utils.GetLangFromContext(c)
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationRequired, "sha256"), nil)
		return
	}

	result, err := h.contractService.VerifyDigest(c.Request.Context(), id, digest)
	if err != nil {
		utils.ErrorFromService(c, err)
		return
	}

	utils.SuccessResponse(c, result)
}

// POST /verify/:id
func (h *VerificationHandler) VerifyDocument(c *gin.Context) {
	lang := utils.GetLangFromContext(c)
	id, ok := parseIDParam(c, "id", "contract")
	if !ok {
		return
	}

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationRequired, "file"), nil)
		return
	}
	defer file.Close()

	limit := int64(h.maxUploadMB) * 1024 * 1024
	if limit > 0 && header.Size > limit {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyFileTooLarge), nil)
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyFileUploadFailed), nil)
		return
	}

	result, err := h.contractService.VerifyDocument(c.Request.Context(), id, data)
	if err != nil {
		utils.ErrorFromService(c, err)
		return
	}

	utils.SuccessResponse(c, result)
}
