// internal/repository/contract_repository.go
package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/javajoker/dealer-contracts/internal/apperr"
	"github.com/javajoker/dealer-contracts/internal/database"
	"github.com/javajoker/dealer-contracts/internal/models"
	"github.com/javajoker/dealer-contracts/internal/utils"
)

const defaultMutateAttempts = 5

var errVersionConflict = errors.New("contract version changed")

// ErrStaleDigitization reports an engine result for a submission that is no
// longer outstanding.
var ErrStaleDigitization = errors.New("digitization result does not match the outstanding submission")

type ContractRepository struct {
	db          *gorm.DB
	maxAttempts int
	now         func() time.Time
}

type CreateContractInput struct {
	TenantID            uuid.UUID           `json:"tenant_id" validate:"required"`
	Name                string              `json:"name" validate:"required,max=255"`
	Type                models.ContractType `json:"type" validate:"required,contract_type"`
	SaleID              *uuid.UUID          `json:"sale_id,omitempty"`
	LeadID              *uuid.UUID          `json:"lead_id,omitempty"`
	VehicleID           *uuid.UUID          `json:"vehicle_id,omitempty"`
	FinancingRequestID  *uuid.UUID          `json:"financing_request_id,omitempty"`
	OriginalDocumentURL string              `json:"original_document_url" validate:"required,max=2048"`
	OriginalDocumentKey string              `json:"original_document_key,omitempty"`
	CreatedBy           uuid.UUID           `json:"created_by" validate:"required"`
}

// DigitizationResult is the outcome reported by an extraction engine or by staff.
type DigitizationResult struct {
	Status               models.DigitizationStatus
	Engine               string
	TaskID               string
	Fields               []models.SignatureField
	DigitizedDocumentURL string
	Error                string
	// FromEngine limits the result to the outstanding processing submission of
	// the same engine and task.
	FromEngine bool
}

type ContractFilter struct {
	utils.PaginationParams
	Status *models.ContractStatus
	Type   *models.ContractType
	SaleID *uuid.UUID
}

// TokenLocation is the index entry for a live signing link.
type TokenLocation struct {
	TenantID    uuid.UUID
	ContractID  uuid.UUID
	SignatureID uuid.UUID
	ExpiresAt   time.Time
}

type MutateOption func(*Mutation)

// WithActor attributes the events of a mutation to a staff user.
func WithActor(actorID uuid.UUID) MutateOption {
	return func(m *Mutation) {
		if actorID != uuid.Nil {
			m.actorID = &actorID
		}
	}
}

func NewContractRepository(db *gorm.DB, maxAttempts int) *ContractRepository {
	if maxAttempts < 1 {
		maxAttempts = defaultMutateAttempts
	}
	return &ContractRepository{
		db:          db,
		maxAttempts: maxAttempts,
		now:         time.Now,
	}
}

// SetClock overrides the time source; used by tests exercising expiry.
func (r *ContractRepository) SetClock(now func() time.Time) {
	r.now = now
}

func (r *ContractRepository) Now() time.Time {
	return r.now().UTC()
}

func (r *ContractRepository) Create(ctx context.Context, input CreateContractInput) (*models.Contract, error) {
	if input.TenantID == uuid.Nil {
		return nil, apperr.Validation("tenant id is required")
	}
	if strings.TrimSpace(input.OriginalDocumentURL) == "" {
		return nil, apperr.Validation("original document url is required")
	}
	if err := utils.ValidateStruct(&input); err != nil {
		return nil, apperr.ValidationFields(err, utils.ValidationSummary(err))
	}

	contract := &models.Contract{
		TenantID:            input.TenantID,
		Name:                strings.TrimSpace(input.Name),
		Type:                input.Type,
		SaleID:              input.SaleID,
		LeadID:              input.LeadID,
		VehicleID:           input.VehicleID,
		FinancingRequestID:  input.FinancingRequestID,
		OriginalDocumentURL: input.OriginalDocumentURL,
		OriginalDocumentKey: input.OriginalDocumentKey,
		Digitization: models.Digitization{
			Status:          models.DigitizationStatusPending,
			ExtractedFields: []models.SignatureField{},
		},
		Status:    models.ContractStatusDraft,
		Version:   1,
		CreatedBy: input.CreatedBy,
	}

	err := database.WithTransaction(ctx, r.db, func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(contract).Error; err != nil {
			return fmt.Errorf("failed to create contract: %w", err)
		}
		createdBy := input.CreatedBy
		event := models.ContractEvent{
			TenantID:   contract.TenantID,
			ContractID: contract.ID,
			Type:       models.EventContractCreated,
			ToStatus:   string(contract.Status),
			ActorID:    &createdBy,
		}
		return tx.Create(&event).Error
	})
	if err != nil {
		return nil, err
	}
	contract.Signatures = []models.Signature{}
	return contract, nil
}

// Get loads a contract with its signer entries. A tenant mismatch is reported as not found.
func (r *ContractRepository) Get(ctx context.Context, tenantID, id uuid.UUID) (*models.Contract, error) {
	return r.load(r.db.WithContext(ctx), tenantID, id, false)
}

func (r *ContractRepository) List(ctx context.Context, tenantID uuid.UUID, filter ContractFilter) ([]models.Contract, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.Contract{}).Where("tenant_id = ?", tenantID)
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.Type != nil {
		query = query.Where("type = ?", *filter.Type)
	}
	if filter.SaleID != nil {
		query = query.Where("sale_id = ?", *filter.SaleID)
	}
	if filter.Search != "" {
		query = query.Where("LOWER(name) LIKE ?", "%"+strings.ToLower(filter.Search)+"%")
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count contracts: %w", err)
	}

	var contracts []models.Contract
	query = utils.ApplySort(query, filter.PaginationParams, []string{"created_at", "updated_at", "name", "status"})
	query = utils.ApplyPagination(query, filter.PaginationParams)
	if err := query.Preload("Signatures", func(db *gorm.DB) *gorm.DB {
		return db.Order("position ASC")
	}).Find(&contracts).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list contracts: %w", err)
	}

	return contracts, total, nil
}

func (r *ContractRepository) Events(ctx context.Context, tenantID, id uuid.UUID) ([]models.ContractEvent, error) {
	if _, err := r.Get(ctx, tenantID, id); err != nil {
		return nil, err
	}
	var events []models.ContractEvent
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND contract_id = ?", tenantID, id).
		Order("created_at ASC").
		Find(&events).Error; err != nil {
		return nil, fmt.Errorf("failed to load contract events: %w", err)
	}
	return events, nil
}

// Mutate is the only write path for an existing contract. The aggregate is
// loaded under a row lock, fn edits it in memory, and the result is persisted
// with a version compare-and-set. Status is recomputed before every write.
func (r *ContractRepository) Mutate(ctx context.Context, tenantID, id uuid.UUID, fn func(m *Mutation) error, opts ...MutateOption) (*models.Contract, error) {
	var lastErr error
	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		contract, err := r.mutateOnce(ctx, tenantID, id, fn, opts)
		if !errors.Is(err, errVersionConflict) {
			return contract, err
		}
		lastErr = err
		logrus.WithFields(logrus.Fields{
			"contract_id": id,
			"attempt":     attempt,
		}).Debug("Contract version conflict, retrying")

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(attempt*10) * time.Millisecond):
		}
	}
	return nil, apperr.Conflict("contract %s: %v", id, lastErr)
}

func (r *ContractRepository) mutateOnce(ctx context.Context, tenantID, id uuid.UUID, fn func(m *Mutation) error, opts []MutateOption) (*models.Contract, error) {
	var result *models.Contract
	var deferred error

	err := database.WithTransaction(ctx, r.db, func(tx *gorm.DB) error {
		contract, err := r.load(tx, tenantID, id, true)
		if err != nil {
			return err
		}

		expectedVersion := contract.Version
		knownSignatures := map[uuid.UUID]string{}
		for _, s := range contract.Signatures {
			knownSignatures[s.ID] = s.TokenHash
		}

		m := &Mutation{Contract: contract, Now: r.Now()}
		for _, opt := range opts {
			opt(m)
		}

		if err := fn(m); err != nil {
			if errors.Is(err, ErrUnchanged) {
				result = contract
				return nil
			}
			return err
		}

		if from, changed := contract.RecomputeStatus(); changed {
			m.emitStatusChange(from, contract.Status)
		}

		if err := r.persistSignatures(tx, contract, knownSignatures); err != nil {
			return err
		}
		if err := r.syncTokenIndex(tx, contract, knownSignatures); err != nil {
			return err
		}
		if err := updateContractCAS(tx, contract, expectedVersion); err != nil {
			return err
		}
		if len(m.events) > 0 {
			if err := tx.Create(&m.events).Error; err != nil {
				return fmt.Errorf("failed to record contract events: %w", err)
			}
		}

		result = contract
		deferred = m.deferredErr
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, deferred
}

func (r *ContractRepository) load(db *gorm.DB, tenantID, id uuid.UUID, lock bool) (*models.Contract, error) {
	query := db.Where("id = ? AND tenant_id = ?", id, tenantID)
	if lock {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var contract models.Contract
	if err := query.First(&contract).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("contract %s", id)
		}
		return nil, fmt.Errorf("failed to load contract: %w", err)
	}

	if err := db.Where("contract_id = ?", contract.ID).
		Order("position ASC").
		Find(&contract.Signatures).Error; err != nil {
		return nil, fmt.Errorf("failed to load signatures: %w", err)
	}
	return &contract, nil
}

func (r *ContractRepository) persistSignatures(tx *gorm.DB, contract *models.Contract, known map[uuid.UUID]string) error {
	for i := range contract.Signatures {
		sig := &contract.Signatures[i]
		if _, exists := known[sig.ID]; !exists {
			if err := tx.Create(sig).Error; err != nil {
				return fmt.Errorf("failed to add signature: %w", err)
			}
			continue
		}
		if err := tx.Select("*").Omit("id", "created_at", "contract_id", "tenant_id").Updates(sig).Error; err != nil {
			return fmt.Errorf("failed to update signature: %w", err)
		}
	}
	return nil
}

// syncTokenIndex mirrors the signatures' link digests into signing_tokens. A
// rotated or revoked digest loses its row; a consumed one keeps it.
func (r *ContractRepository) syncTokenIndex(tx *gorm.DB, contract *models.Contract, known map[uuid.UUID]string) error {
	for i := range contract.Signatures {
		sig := &contract.Signatures[i]
		previous := known[sig.ID]
		current := sig.TokenHash
		if previous == current {
			continue
		}
		if previous != "" {
			if err := tx.Where("token_hash = ?", previous).Delete(&models.SigningToken{}).Error; err != nil {
				return fmt.Errorf("failed to revoke signing token: %w", err)
			}
		}
		if current != "" {
			entry := models.SigningToken{
				TokenHash:   current,
				TenantID:    contract.TenantID,
				ContractID:  contract.ID,
				SignatureID: sig.ID,
			}
			if sig.ExpiresAt != nil {
				entry.ExpiresAt = *sig.ExpiresAt
			}
			if err := tx.Create(&entry).Error; err != nil {
				return fmt.Errorf("failed to index signing token: %w", err)
			}
		}
	}
	return nil
}

func updateContractCAS(tx *gorm.DB, contract *models.Contract, expectedVersion int64) error {
	contract.Version = expectedVersion + 1
	res := tx.Model(contract).
		Select("*").
		Omit(clause.Associations, "id", "created_at", "tenant_id", "created_by").
		Where("version = ?", expectedVersion).
		Updates(contract)
	if res.Error != nil {
		contract.Version = expectedVersion
		return fmt.Errorf("failed to update contract: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		contract.Version = expectedVersion
		return errVersionConflict
	}
	return nil
}

// UpdateDigitization stores an extraction outcome. It never touches contract status.
func (r *ContractRepository) UpdateDigitization(ctx context.Context, tenantID, id uuid.UUID, result DigitizationResult, opts ...MutateOption) (*models.Contract, error) {
	return r.Mutate(ctx, tenantID, id, func(m *Mutation) error {
		c := m.Contract
		if result.FromEngine && !matchesSubmission(&c.Digitization, result) {
			return ErrStaleDigitization
		}
		if c.Status == models.ContractStatusCancelled {
			return apperr.InvalidState("contract %s is cancelled", c.ID)
		}
		if result.Fields != nil && !c.Status.AcceptsFieldChanges() {
			return apperr.InvalidState("signature fields cannot change while contract is %s", c.Status)
		}

		d := &c.Digitization
		d.Status = result.Status
		if result.Engine != "" {
			d.Engine = result.Engine
		}
		if result.TaskID != "" || result.Status == models.DigitizationStatusProcessing {
			d.TaskID = result.TaskID
		}
		d.Error = result.Error

		switch result.Status {
		case models.DigitizationStatusCompleted:
			d.ExtractedFields = result.Fields
			if d.ExtractedFields == nil {
				d.ExtractedFields = []models.SignatureField{}
			}
			now := m.Now
			d.ProcessedAt = &now
			if result.DigitizedDocumentURL != "" {
				c.DigitizedDocumentURL = result.DigitizedDocumentURL
			}
			m.Emit(models.EventDigitizationCompleted, nil, fmt.Sprintf("%d fields via %s", len(d.ExtractedFields), d.Engine))
		case models.DigitizationStatusFailed:
			now := m.Now
			d.ProcessedAt = &now
			m.Emit(models.EventDigitizationFailed, nil, result.Error)
		case models.DigitizationStatusProcessing:
			d.ProcessedAt = nil
			if result.DigitizedDocumentURL != "" {
				c.DigitizedDocumentURL = result.DigitizedDocumentURL
			}
			m.Emit(models.EventDigitizationSubmitted, nil, d.Engine)
		}
		return nil
	}, opts...)
}

// matchesSubmission reports whether an engine result belongs to the submission
// in flight. The task id may not be attached yet when the engine answers
// before Submit returns.
func matchesSubmission(d *models.Digitization, result DigitizationResult) bool {
	if d.Status != models.DigitizationStatusProcessing || d.Engine != result.Engine {
		return false
	}
	return d.TaskID == "" || d.TaskID == result.TaskID
}

// AddSignature appends a signer entry; the first entry moves draft to pending_signatures.
func (r *ContractRepository) AddSignature(ctx context.Context, tenantID, id uuid.UUID, entry models.Signature, opts ...MutateOption) (*models.Contract, *models.Signature, error) {
	var added models.Signature
	contract, err := r.Mutate(ctx, tenantID, id, func(m *Mutation) error {
		if !m.Contract.Status.AcceptsSignatures() {
			return apperr.InvalidState("contract is %s", m.Contract.Status)
		}
		sig := m.AddSignature(entry)
		added = *sig
		m.Emit(models.EventSignerAdded, sig, string(sig.Role))
		return nil
	}, opts...)
	if err != nil {
		return nil, nil, err
	}
	return contract, &added, nil
}

// RecomputeStatus re-derives status from the stored signatures. Calling it
// repeatedly without intervening signature changes is a no-op.
func (r *ContractRepository) RecomputeStatus(ctx context.Context, tenantID, id uuid.UUID) (*models.Contract, error) {
	return r.Mutate(ctx, tenantID, id, func(m *Mutation) error {
		if m.Contract.DerivedStatus() == m.Contract.Status {
			return ErrUnchanged
		}
		return nil
	})
}

// Cancel closes a non-terminal contract and revokes every outstanding link.
func (r *ContractRepository) Cancel(ctx context.Context, tenantID, id uuid.UUID, reason string, opts ...MutateOption) (*models.Contract, error) {
	return r.Mutate(ctx, tenantID, id, func(m *Mutation) error {
		c := m.Contract
		if c.Status.IsTerminal() {
			return apperr.InvalidState("contract is already %s", c.Status)
		}
		now := m.Now
		c.InvalidateLiveTokens()
		c.CancelledAt = &now
		c.CancellationReason = reason
		m.Transition(models.ContractStatusCancelled)
		m.Emit(models.EventContractCancelled, nil, reason)
		return nil
	}, opts...)
}

// FindByTokenHash resolves a link digest through the index table.
func (r *ContractRepository) FindByTokenHash(ctx context.Context, hash string) (*TokenLocation, error) {
	var entry models.SigningToken
	if err := r.db.WithContext(ctx).Where("token_hash = ?", hash).First(&entry).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("signing link")
		}
		return nil, fmt.Errorf("failed to look up signing token: %w", err)
	}
	return &TokenLocation{
		TenantID:    entry.TenantID,
		ContractID:  entry.ContractID,
		SignatureID: entry.SignatureID,
		ExpiresAt:   entry.ExpiresAt,
	}, nil
}

// ListExpiring returns live links whose expiry passed before now.
func (r *ContractRepository) ListExpiring(ctx context.Context, now time.Time, limit int) ([]TokenLocation, error) {
	var sigs []models.Signature
	if err := r.db.WithContext(ctx).
		Select("id", "tenant_id", "contract_id", "expires_at").
		Where("status IN ? AND token_hash <> '' AND expires_at < ?",
			[]models.SignatureStatus{models.SignatureStatusSent, models.SignatureStatusViewed}, now).
		Order("expires_at ASC").
		Limit(limit).
		Find(&sigs).Error; err != nil {
		return nil, fmt.Errorf("failed to list expiring signatures: %w", err)
	}

	out := make([]TokenLocation, 0, len(sigs))
	for _, s := range sigs {
		loc := TokenLocation{
			TenantID:    s.TenantID,
			ContractID:  s.ContractID,
			SignatureID: s.ID,
		}
		if s.ExpiresAt != nil {
			loc.ExpiresAt = *s.ExpiresAt
		}
		out = append(out, loc)
	}
	return out, nil
}

// FindCompleted loads a completed contract by id alone. It backs public
// document verification, which has no tenant context.
func (r *ContractRepository) FindCompleted(ctx context.Context, id uuid.UUID) (*models.Contract, error) {
	var contract models.Contract
	err := r.db.WithContext(ctx).
		Where("id = ? AND status = ?", id, models.ContractStatusCompleted).
		First(&contract).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("completed contract %s", id)
		}
		return nil, fmt.Errorf("failed to load contract: %w", err)
	}
	return &contract, nil
}
