// internal/router/router.go
package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/javajoker/dealer-contracts/internal/config"
	"github.com/javajoker/dealer-contracts/internal/handlers"
	"github.com/javajoker/dealer-contracts/internal/middleware"
	"github.com/javajoker/dealer-contracts/internal/services"
)

// Services bundles what the HTTP layer calls into.
type Services struct {
	Contracts    *services.ContractService
	Signatures   *services.SignatureService
	Completion   *services.CompletionService
	Digitization *services.DigitizationService
	Storage      *services.StorageService
	Identity     services.IdentityDirectory
}

func Initialize(db *gorm.DB, cfg *config.Config, svc Services) *gin.Engine {
	// Initialize handlers
	contractHandler := handlers.NewContractHandler(svc.Contracts, svc.Signatures, svc.Completion, svc.Storage, cfg.Storage.MaxUploadMB)
	signingHandler := handlers.NewSigningHandler(svc.Signatures)
	digitizationHandler := handlers.NewDigitizationHandler(svc.Digitization)
	verificationHandler := handlers.NewVerificationHandler(svc.Contracts, cfg.Storage.MaxUploadMB)

	generalLimiter := middleware.PerMinute(cfg.Server.RateLimit)
	signingLimiter := middleware.PerMinute(cfg.Server.SigningRateLimit)
	uploadLimiter := middleware.PerMinute(cfg.Server.UploadRateLimit)

	// Initialize Gin router
	r := gin.New()

	// Global middleware
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(otelgin.Middleware(cfg.Telemetry.ServiceName))
	r.Use(middleware.CORS(cfg.CORS.AllowedOrigins))
	r.Use(middleware.I18nMiddleware(cfg.I18n.DefaultLocale))
	r.Use(generalLimiter.Middleware())
	r.Use(middleware.AuditLogMiddleware(db))

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"version": cfg.Telemetry.Version,
		})
	})

	if cfg.Storage.Driver == "local" {
		r.Static("/uploads", cfg.Storage.LocalPath)
	}

	// API v1 routes
	v1 := r.Group("/v1")
	{
		// Public signing links
		sign := v1.Group("/sign")
		sign.Use(signingLimiter.Middleware())
		{
			sign.GET("/:token", signingHandler.GetSession)
			sign.POST("/:token/complete", signingHandler.Complete)
			sign.POST("/:token/decline", signingHandler.Decline)
		}

		// Public verification of final documents
		verify := v1.Group("/verify")
		verify.Use(signingLimiter.Middleware())
		{
			verify.GET("/:id", verificationHandler.VerifyDigest)
			verify.POST("/:id", verificationHandler.VerifyDocument)
		}

		// Extraction engine callbacks carry their own checksum
		v1.POST("/digitization/callback", digitizationHandler.Callback)

		// Contract routes
		contracts := v1.Group("/contracts")
		contracts.Use(middleware.AuthRequired(svc.Identity))
		{
			contracts.GET("", contractHandler.GetContracts)
			contracts.GET("/:id", contractHandler.GetContract)
			contracts.GET("/:id/events", contractHandler.GetContractEvents)

			// Staff who may change contracts
			manage := contracts.Group("")
			manage.Use(middleware.ManagerRequired())
			{
				manage.POST("", contractHandler.CreateContract)
				manage.POST("/upload", uploadLimiter.Middleware(), contractHandler.UploadDocument)
				manage.POST("/:id/cancel", contractHandler.CancelContract)
				manage.POST("/:id/finalize", contractHandler.FinalizeContract)

				manage.POST("/:id/digitization", digitizationHandler.Submit)
				manage.PUT("/:id/fields", digitizationHandler.DefineFields)

				manage.POST("/:id/signers", contractHandler.AddSigner)
				manage.POST("/:id/invitations", contractHandler.InviteSigner)
				manage.POST("/:id/signatures/:signatureId/complete", contractHandler.CompleteSignature)
				manage.POST("/:id/signatures/:signatureId/decline", contractHandler.DeclineSignature)
			}
		}
	}

	return r
}
