// internal/handlers/signing.go
package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/javajoker/dealer-contracts/internal/i18n"
	"github.com/javajoker/dealer-contracts/internal/services"
	"github.com/javajoker/dealer-contracts/internal/utils"
)

// SigningHandler serves the public signing link. The token in the path is the
// only credential.
type SigningHandler struct {
	signatureService *services.SignatureService
}

func NewSigningHandler(signatureService *services.SignatureService) *SigningHandler {
	return &SigningHandler{
		signatureService: signatureService,
	}
}

// GET /sign/:token
func (h *SigningHandler) GetSession(c *gin.Context) {
	session, err := h.signatureService.Resolve(c.Request.Context(), c.Param("token"), c.ClientIP(), c.Request.UserAgent())
	if err != nil {
		utils.ErrorFromService(c, err)
		return
	}

	utils.SuccessResponse(c, session)
}

// POST /sign/:token/complete
func (h *SigningHandler) Complete(c *gin.Context) {
	lang := utils.GetLangFromContext(c)

	var req services.CompleteRequest
	if !bindJSON(c, &req) {
		return
	}
	req.IPAddress = c.ClientIP()
	req.UserAgent = c.Request.UserAgent()

	outcome, err := h.signatureService.CompleteByToken(c.Request.Context(), c.Param("token"), req)
	if err != nil {
		utils.ErrorFromService(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"message":   i18n.T(lang, i18n.KeySigningCompleted),
		"contract":  outcome.Summary(),
		"signature": outcome.Signature,
	})
}

// POST /sign/:token/decline
func (h *SigningHandler) Decline(c *gin.Context) {
	lang := utils.GetLangFromContext(c)

	var req services.DeclineRequest
	if c.Request.ContentLength > 0 && !bindJSON(c, &req) {
		return
	}
	req.IPAddress = c.ClientIP()
	req.UserAgent = c.Request.UserAgent()

	outcome, err := h.signatureService.DeclineByToken(c.Request.Context(), c.Param("token"), req)
	if err != nil {
		utils.ErrorFromService(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"message":   i18n.T(lang, i18n.KeySigningDeclined),
		"contract":  outcome.Summary(),
		"signature": outcome.Signature,
	})
}
