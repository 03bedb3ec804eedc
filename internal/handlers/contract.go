// internal/handlers/contract.go
package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/javajoker/dealer-contracts/internal/i18n"
	"github.com/javajoker/dealer-contracts/internal/middleware"
	"github.com/javajoker/dealer-contracts/internal/models"
	"github.com/javajoker/dealer-contracts/internal/services"
	"github.com/javajoker/dealer-contracts/internal/utils"
)

type ContractHandler struct {
	contractService   *services.ContractService
	signatureService  *services.SignatureService
	completionService *services.CompletionService
	storageService    *services.StorageService
	maxUploadMB       int
}

func NewContractHandler(
	contractService *services.ContractService,
	signatureService *services.SignatureService,
	completionService *services.CompletionService,
	storageService *services.StorageService,
	maxUploadMB int,
) *ContractHandler {
	return &ContractHandler{
		contractService:   contractService,
		signatureService:  signatureService,
		completionService: completionService,
		storageService:    storageService,
		maxUploadMB:       maxUploadMB,
	}
}

// requireActor returns the authenticated staff member or writes a 401.
func requireActor(c *gin.Context) (*services.Actor, bool) {
	actor, ok := middleware.ActorFromContext(c)
	if !ok {
		utils.UnauthorizedResponse(c, "")
		return nil, false
	}
	return actor, true
}

func parseIDParam(c *gin.Context, name, label string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid "+label+" ID", nil)
		return uuid.Nil, false
	}
	return id, true
}

func bindJSON(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		lang := utils.GetLangFromContext(c)
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, "input"), err.Error())
		return false
	}
	return true
}

// POST /contracts
func (h *ContractHandler) CreateContract(c *gin.Context) {
	lang := utils.GetLangFromContext(c)
	actor, ok := requireActor(c)
	if !ok {
		return
	}

	var req services.CreateContractRequest
	if !bindJSON(c, &req) {
		return
	}

	contract, err := h.contractService.Create(c.Request.Context(), actor, req)
	if err != nil {
		utils.ErrorFromService(c, err)
		return
	}

	utils.CreatedResponse(c, gin.H{
		"message":  i18n.T(lang, i18n.KeyContractCreated),
		"contract": contract,
	})
}

// POST /contracts/upload
func (h *ContractHandler) UploadDocument(c *gin.Context) {
	lang := utils.GetLangFromContext(c)

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationRequired, "file"), nil)
		return
	}
	defer file.Close()

	options := h.storageService.GetDefaultUploadOptions("contracts", h.maxUploadMB)
	result, err := h.storageService.UploadFile(c.Request.Context(), file, header, options)
	if err != nil {
		utils.ErrorFromService(c, err)
		return
	}

	utils.CreatedResponse(c, result)
}

// GET /contracts
func (h *ContractHandler) GetContracts(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}

	params := utils.GetPaginationParams(c)
	searchParams := services.ContractSearchParams{PaginationParams: params}

	// Parse filters
	if status := c.Query("status"); status != "" {
		s := models.ContractStatus(status)
		searchParams.Status = &s
	}
	if contractType := c.Query("type"); contractType != "" {
		t := models.ContractType(contractType)
		searchParams.Type = &t
	}
	if saleIDStr := c.Query("sale_id"); saleIDStr != "" {
		if saleID, err := uuid.Parse(saleIDStr); err == nil {
			searchParams.SaleID = &saleID
		}
	}

	contracts, total, err := h.contractService.Search(c.Request.Context(), actor, searchParams)
	if err != nil {
		utils.ErrorFromService(c, err)
		return
	}

	result := utils.CreatePaginationResult(contracts, total, params)
	utils.PaginatedResponse(c, result)
}

// GET /contracts/:id
func (h *ContractHandler) GetContract(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	id, ok := parseIDParam(c, "id", "contract")
	if !ok {
		return
	}

	contract, err := h.contractService.Get(c.Request.Context(), actor, id)
	if err != nil {
		utils.ErrorFromService(c, err)
		return
	}

	signed, required := contract.SignatureProgress()
	utils.SuccessResponse(c, gin.H{
		"contract": contract,
		"progress": gin.H{
			"signed":         signed,
			"required":       required,
			"required_roles": contract.RequiredRoles(),
		},
	})
}

// GET /contracts/:id/events
func (h *ContractHandler) GetContractEvents(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	id, ok := parseIDParam(c, "id", "contract")
	if !ok {
		return
	}

	events, err := h.contractService.Events(c.Request.Context(), actor, id)
	if err != nil {
		utils.ErrorFromService(c, err)
		return
	}

	utils.SuccessResponse(c, events)
}

// POST /contracts/:id/cancel
func (h *ContractHandler) CancelContract(c *gin.Context) {
	lang := utils.GetLangFromContext(c)
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	id, ok := parseIDParam(c, "id", "contract")
	if !ok {
		return
	}

	var req services.CancelContractRequest
	if c.Request.ContentLength > 0 && !bindJSON(c, &req) {
		return
	}

	contract, err := h.contractService.Cancel(c.Request.Context(), actor, id, req)
	if err != nil {
		utils.ErrorFromService(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"message":  i18n.T(lang, i18n.KeyContractCancelled),
		"contract": contract,
	})
}

// POST /contracts/:id/finalize
func (h *ContractHandler) FinalizeContract(c *gin.Context) {
	lang := utils.GetLangFromContext(c)
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	id, ok := parseIDParam(c, "id", "contract")
	if !ok {
		return
	}

	contract, err := h.completionService.Finalize(c.Request.Context(), actor, id)
	if err != nil {
		utils.ErrorFromService(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"message":  i18n.T(lang, i18n.KeyContractCompleted),
		"contract": contract,
	})
}

// POST /contracts/:id/signers
func (h *ContractHandler) AddSigner(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	id, ok := parseIDParam(c, "id", "contract")
	if !ok {
		return
	}

	var req services.AddSignerRequest
	if !bindJSON(c, &req) {
		return
	}

	contract, signature, err := h.signatureService.AddSigner(c.Request.Context(), actor, id, req)
	if err != nil {
		utils.ErrorFromService(c, err)
		return
	}

	utils.CreatedResponse(c, gin.H{
		"contract":  contract,
		"signature": signature,
	})
}

// POST /contracts/:id/invitations
func (h *ContractHandler) InviteSigner(c *gin.Context) {
	lang := utils.GetLangFromContext(c)
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	id, ok := parseIDParam(c, "id", "contract")
	if !ok {
		return
	}

	var req services.InviteRequest
	if !bindJSON(c, &req) {
		return
	}

	invitation, err := h.signatureService.Invite(c.Request.Context(), actor, id, req)
	if err != nil {
		utils.ErrorFromService(c, err)
		return
	}

	utils.CreatedResponse(c, gin.H{
		"message":    i18n.T(lang, i18n.KeySigningInvitationSent),
		"invitation": invitation,
	})
}

// POST /contracts/:id/signatures/:signatureId/complete
func (h *ContractHandler) CompleteSignature(c *gin.Context) {
	lang := utils.GetLangFromContext(c)
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	id, ok := parseIDParam(c, "id", "contract")
	if !ok {
		return
	}
	signatureID, ok := parseIDParam(c, "signatureId", "signature")
	if !ok {
		return
	}

	var req services.CompleteRequest
	if !bindJSON(c, &req) {
		return
	}
	req.IPAddress = c.ClientIP()
	req.UserAgent = c.Request.UserAgent()

	outcome, err := h.signatureService.Complete(c.Request.Context(), actor, id, signatureID, req)
	if err != nil {
		utils.ErrorFromService(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"message":   i18n.T(lang, i18n.KeySigningCompleted),
		"contract":  outcome.Contract,
		"signature": outcome.Signature,
	})
}

// POST /contracts/:id/signatures/:signatureId/decline
func (h *ContractHandler) DeclineSignature(c *gin.Context) {
	lang := utils.GetLangFromContext(c)
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	id, ok := parseIDParam(c, "id", "contract")
	if !ok {
		return
	}
	signatureID, ok := parseIDParam(c, "signatureId", "signature")
	if !ok {
		return
	}

	var req services.DeclineRequest
	if c.Request.ContentLength > 0 && !bindJSON(c, &req) {
		return
	}
	req.IPAddress = c.ClientIP()
	req.UserAgent = c.Request.UserAgent()

	outcome, err := h.signatureService.Decline(c.Request.Context(), actor, id, signatureID, req)
	if err != nil {
		utils.ErrorFromService(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"message":   i18n.T(lang, i18n.KeySigningDeclined),
		"contract":  outcome.Contract,
		"signature": outcome.Signature,
	})
}
