// internal/utils/validator.go
package utils

import (
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/javajoker/dealer-contracts/internal/models"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
	validate.RegisterValidation("signer_role", validateSignerRole)
	validate.RegisterValidation("contract_type", validateContractType)
	validate.RegisterValidation("field_type", validateFieldType)
	validate.RegisterValidation("delivery_channel", validateDeliveryChannel)
}

func ValidateStruct(s interface{}) error {
	return validate.Struct(s)
}

func validateSignerRole(fl validator.FieldLevel) bool {
	return models.SignerRole(fl.Field().String()).Valid()
}

func validateContractType(fl validator.FieldLevel) bool {
	return models.ContractType(fl.Field().String()).Valid()
}

func validateFieldType(fl validator.FieldLevel) bool {
	return models.FieldType(fl.Field().String()).Valid()
}

func validateDeliveryChannel(fl validator.FieldLevel) bool {
	return models.DeliveryChannel(fl.Field().String()).Valid()
}

// Validation tags for common fields
type ValidationError struct {
	Field   string `json:"field"`
	Tag     string `json:"tag"`
	Message string `json:"message"`
}

func GetValidationErrors(err error) []ValidationError {
	var validationErrors []ValidationError

	if validationErrs, ok := err.(validator.ValidationErrors); ok {
		for _, e := range validationErrs {
			validationErrors = append(validationErrors, ValidationError{
				Field:   strings.ToLower(e.Field()),
				Tag:     e.Tag(),
				Message: getValidationMessage(e),
			})
		}
	}

	return validationErrors
}

// ValidationSummary flattens validator output into one line for error values.
func ValidationSummary(err error) string {
	details := GetValidationErrors(err)
	if len(details) == 0 {
		return err.Error()
	}
	messages := make([]string, 0, len(details))
	for _, d := range details {
		messages = append(messages, d.Message)
	}
	return strings.Join(messages, "; ")
}

func getValidationMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return e.Field() + " is required"
	case "email":
		return "Invalid email format"
	case "min":
		return e.Field() + " must be at least " + e.Param()
	case "max":
		return e.Field() + " must be at most " + e.Param()
	case "gte", "lte", "gt":
		return e.Field() + " is out of range"
	case "signer_role":
		return e.Field() + " must be one of buyer, seller, dealer, cosigner, witness"
	case "contract_type":
		return e.Field() + " must be one of purchase, lease, financing, service, warranty, other"
	case "field_type":
		return e.Field() + " must be one of signature, initial, date, text"
	case "delivery_channel":
		return e.Field() + " must be one of email, sms, whatsapp"
	case "e164":
		return "Phone number must be in E.164 format"
	default:
		return e.Field() + " is invalid"
	}
}
