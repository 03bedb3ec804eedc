// internal/services/digitization_service.go
package services

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/javajoker/dealer-contracts/internal/apperr"
	"github.com/javajoker/dealer-contracts/internal/models"
	"github.com/javajoker/dealer-contracts/internal/repository"
	"github.com/javajoker/dealer-contracts/internal/utils"
)

type DigitizationService struct {
	repo        *repository.ContractRepository
	engine      ExtractionEngine
	webhookSeed string
}

type SubmitDigitizationRequest struct {
	TemplateURL string `json:"template_url" validate:"omitempty,max=2048"`
}

type DefineFieldsRequest struct {
	Fields []models.SignatureField `json:"fields" validate:"required,min=1,dive"`
}

func NewDigitizationService(repo *repository.ContractRepository, engine ExtractionEngine, webhookSeed string) *DigitizationService {
	if engine == nil {
		engine = ManualEngine{}
	}
	return &DigitizationService{
		repo:        repo,
		engine:      engine,
		webhookSeed: webhookSeed,
	}
}

// Submit marks the contract as processing and hands the template to the extraction engine.
func (s *DigitizationService) Submit(ctx context.Context, actor *Actor, contractID uuid.UUID, req SubmitDigitizationRequest) (*models.Contract, error) {
	if !actor.CanManageContracts() {
		return nil, apperr.Forbidden("role %s cannot digitize contracts", actor.Role)
	}
	if err := utils.ValidateStruct(&req); err != nil {
		return nil, apperr.ValidationFields(err, utils.ValidationSummary(err))
	}

	contract, err := s.repo.Get(ctx, actor.TenantID, contractID)
	if err != nil {
		return nil, err
	}
	if !contract.Status.AcceptsFieldChanges() {
		return nil, apperr.InvalidState("cannot digitize a contract that is %s", contract.Status)
	}

	templateURL := strings.TrimSpace(req.TemplateURL)
	if templateURL == "" {
		templateURL = contract.OriginalDocumentURL
	}

	contract, err = s.repo.UpdateDigitization(ctx, actor.TenantID, contractID, repository.DigitizationResult{
		Status:               models.DigitizationStatusProcessing,
		Engine:               s.engine.Name(),
		DigitizedDocumentURL: templateURL,
	}, repository.WithActor(actor.UserID))
	if err != nil {
		return nil, err
	}

	taskID, err := s.engine.Submit(ctx, extractionRequest(contract, templateURL), s.ApplyResult)
	if err != nil {
		logrus.WithError(err).WithField("contract_id", contractID).Warn("Extraction engine rejected submission")
		if _, recErr := s.repo.UpdateDigitization(ctx, actor.TenantID, contractID, repository.DigitizationResult{
			Status: models.DigitizationStatusFailed,
			Engine: s.engine.Name(),
			Error:  err.Error(),
		}, repository.WithActor(actor.UserID)); recErr != nil {
			logrus.WithError(recErr).WithField("contract_id", contractID).Error("Failed to record digitization failure")
		}
		return nil, err
	}
	if taskID == "" {
		return contract, nil
	}

	// The engine may already have reported back; only attach the task id to a
	// submission that is still outstanding.
	return s.repo.Mutate(ctx, actor.TenantID, contractID, func(m *repository.Mutation) error {
		d := &m.Contract.Digitization
		if d.Status != models.DigitizationStatusProcessing || d.TaskID != "" {
			return repository.ErrUnchanged
		}
		d.TaskID = taskID
		return nil
	})
}

func extractionRequest(contract *models.Contract, templateURL string) ExtractionRequest {
	return ExtractionRequest{
		TenantID:    contract.TenantID,
		ContractID:  contract.ID,
		DocumentURL: templateURL,
	}
}

// ApplyResult records an engine's outcome. A failure is stored and never blocks
// staff from defining fields by hand. Results for a submission that was
// superseded or already settled are dropped.
func (s *DigitizationService) ApplyResult(ctx context.Context, result ExtractionResult) error {
	update := repository.DigitizationResult{
		Engine:     result.Engine,
		TaskID:     result.TaskID,
		FromEngine: true,
	}

	if result.Failed() {
		update.Status = models.DigitizationStatusFailed
		update.Error = result.Error
	} else {
		if err := validateFields(result.Fields); err != nil {
			update.Status = models.DigitizationStatusFailed
			update.Error = err.Error()
		} else {
			update.Status = models.DigitizationStatusCompleted
			update.Fields = result.Fields
			if update.Fields == nil {
				update.Fields = []models.SignatureField{}
			}
		}
	}

	contract, err := s.repo.UpdateDigitization(ctx, result.TenantID, result.ContractID, update)
	if errors.Is(err, repository.ErrStaleDigitization) {
		logrus.WithFields(logrus.Fields{
			"contract_id": result.ContractID,
			"engine":      result.Engine,
			"task_id":     result.TaskID,
		}).Warn("Dropped stale digitization result")
		return nil
	}
	if err != nil {
		return err
	}

	logrus.WithFields(logrus.Fields{
		"contract_id": contract.ID,
		"engine":      result.Engine,
		"status":      contract.Digitization.Status,
		"fields":      len(contract.Digitization.ExtractedFields),
	}).Info("Digitization result applied")
	return nil
}

// ApplyWebhookCallback verifies a remote engine's callback before applying it.
func (s *DigitizationService) ApplyWebhookCallback(ctx context.Context, cb WebhookCallback) error {
	if err := utils.ValidateStruct(&cb); err != nil {
		return apperr.ValidationFields(err, utils.ValidationSummary(err))
	}
	if s.webhookSeed == "" {
		return apperr.Forbidden("webhook callbacks are not enabled")
	}
	result, err := ParseWebhookCallback(cb, s.webhookSeed)
	if err != nil {
		return err
	}
	return s.ApplyResult(ctx, *result)
}

// DefineFields lets staff lay out signature fields by hand.
func (s *DigitizationService) DefineFields(ctx context.Context, actor *Actor, contractID uuid.UUID, req DefineFieldsRequest) (*models.Contract, error) {
	if !actor.CanManageContracts() {
		return nil, apperr.Forbidden("role %s cannot edit contract fields", actor.Role)
	}
	if len(req.Fields) == 0 {
		return nil, apperr.Validation("at least one field is required")
	}
	if err := validateFields(req.Fields); err != nil {
		return nil, err
	}

	return s.repo.UpdateDigitization(ctx, actor.TenantID, contractID, repository.DigitizationResult{
		Status: models.DigitizationStatusCompleted,
		Engine: EngineManual,
		Fields: req.Fields,
	}, repository.WithActor(actor.UserID))
}

func validateFields(fields []models.SignatureField) error {
	seen := make(map[string]bool, len(fields))
	for i := range fields {
		f := &fields[i]
		if err := utils.ValidateStruct(f); err != nil {
			return apperr.ValidationFields(err, utils.ValidationSummary(err))
		}
		if seen[f.ID] {
			return apperr.Validation("duplicate field id %q", f.ID)
		}
		seen[f.ID] = true
		if f.X+f.Width > 1.0001 || f.Y+f.Height > 1.0001 {
			return apperr.Validation("field %q extends past the page", f.ID)
		}
	}
	return nil
}
