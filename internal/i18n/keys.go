// internal/i18n/keys.go
package i18n

// Translation keys constants
const (
	// Common
	KeySuccess = "success"
	KeyError   = "error"

	// Authentication
	KeyAuthRequired     = "auth.required"
	KeyAuthInvalidToken = "auth.invalid_token"
	KeyAuthTokenExpired = "auth.token_expired"
	KeyAuthForbidden    = "auth.forbidden"

	// Contracts
	KeyContractCreated      = "contract.created"
	KeyContractNotFound     = "contract.not_found"
	KeyContractInvalidState = "contract.invalid_state"
	KeyContractConflict     = "contract.conflict"
	KeyContractCancelled    = "contract.cancelled"
	KeyContractCompleted    = "contract.completed"

	// Signing
	KeySigningLinkExpired    = "signing.link_expired"
	KeySigningInvitationSent = "signing.invitation_sent"
	KeySigningCompleted      = "signing.completed"
	KeySigningDeclined       = "signing.declined"

	// Digitization
	KeyDigitizationSubmitted = "digitization.submitted"
	KeyDigitizationInvalid   = "digitization.invalid_callback"

	// Upstream collaborators
	KeyUpstreamFailure = "upstream.failure"

	// Validation
	KeyValidationRequired = "validation.required"
	KeyValidationInvalid  = "validation.invalid"

	// File Upload
	KeyFileUploadFailed = "file.upload_failed"
	KeyFileInvalidType  = "file.invalid_type"
	KeyFileTooLarge     = "file.too_large"

	// Rate limiting
	KeyRateLimited = "rate.limited"
)
