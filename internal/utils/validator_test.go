package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/javajoker/dealer-contracts/internal/models"
)

type signerForm struct {
	Role    models.SignerRole        `validate:"required,signer_role"`
	Type    models.ContractType      `validate:"required,contract_type"`
	Phone   string                   `validate:"omitempty,e164"`
	Email   string                   `validate:"omitempty,email"`
	Channel []models.DeliveryChannel `validate:"omitempty,dive,delivery_channel"`
}

func TestCustomValidators(t *testing.T) {
	valid := signerForm{
		Role:    models.SignerRoleBuyer,
		Type:    models.ContractTypeLease,
		Phone:   "+15555550100",
		Email:   "ana@example.com",
		Channel: []models.DeliveryChannel{models.DeliveryChannelEmail, models.DeliveryChannelWhatsApp},
	}
	require.NoError(t, ValidateStruct(&valid))

	tests := []struct {
		name    string
		mutate  func(f *signerForm)
		field   string
		tag     string
		message string
	}{
		{"unknown role", func(f *signerForm) { f.Role = "notary" }, "role", "signer_role", "Role must be one of buyer, seller, dealer, cosigner, witness"},
		{"unknown contract type", func(f *signerForm) { f.Type = "rental" }, "type", "contract_type", "Type must be one of purchase, lease, financing, service, warranty, other"},
		{"local phone", func(f *signerForm) { f.Phone = "555-0100" }, "phone", "e164", "Phone number must be in E.164 format"},
		{"bad email", func(f *signerForm) { f.Email = "ana@" }, "email", "email", "Invalid email format"},
		{"unknown channel", func(f *signerForm) { f.Channel = []models.DeliveryChannel{"fax"} }, "channel[0]", "delivery_channel", "Channel[0] must be one of email, sms, whatsapp"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			form := valid
			tt.mutate(&form)

			err := ValidateStruct(&form)
			require.Error(t, err)

			details := GetValidationErrors(err)
			require.Len(t, details, 1)
			assert.Equal(t, tt.field, details[0].Field)
			assert.Equal(t, tt.tag, details[0].Tag)
			assert.Equal(t, tt.message, details[0].Message)
			assert.Equal(t, tt.message, ValidationSummary(err))
		})
	}
}

func TestSignatureFieldValidation(t *testing.T) {
	field := models.SignatureField{
		ID: "buyer-signature", Type: models.FieldTypeSignature, Page: 1,
		X: 0.1, Y: 0.1, Width: 0.3, Height: 0.05, AssignedRole: models.SignerRoleBuyer,
	}
	require.NoError(t, ValidateStruct(&field))

	field.Width = 0
	field.Page = 0
	err := ValidateStruct(&field)
	require.Error(t, err)
	assert.Equal(t, "Page is out of range; Width is out of range", ValidationSummary(err))
}
