// internal/services/completion_service.go
package services

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/javajoker/dealer-contracts/internal/apperr"
	"github.com/javajoker/dealer-contracts/internal/models"
	"github.com/javajoker/dealer-contracts/internal/repository"
	"github.com/javajoker/dealer-contracts/internal/utils"
)

const imageLoadConcurrency = 4

var tracer = otel.Tracer("github.com/javajoker/dealer-contracts/internal/services")

// CompletionService turns a fully signed contract into a completed one.
type CompletionService struct {
	repo           *repository.ContractRepository
	store          DocumentStore
	assembler      Assembler
	dispatcher     Dispatcher
	dealershipName string
}

func NewCompletionService(repo *repository.ContractRepository, store DocumentStore, assembler Assembler, dispatcher Dispatcher, dealershipName string) *CompletionService {
	return &CompletionService{
		repo:           repo,
		store:          store,
		assembler:      assembler,
		dispatcher:     dispatcher,
		dealershipName: dealershipName,
	}
}

// OnSignatureChange re-derives status and assembles the final document once every
// required role has signed. Contracts in any other state are returned unchanged.
func (s *CompletionService) OnSignatureChange(ctx context.Context, tenantID, contractID uuid.UUID) (*models.Contract, error) {
	contract, err := s.repo.RecomputeStatus(ctx, tenantID, contractID)
	if err != nil {
		return nil, err
	}
	if contract.Status != models.ContractStatusFullySigned {
		return contract, nil
	}
	return s.finalize(ctx, contract)
}

// Finalize retries assembly for a contract stuck in fully_signed.
func (s *CompletionService) Finalize(ctx context.Context, actor *Actor, contractID uuid.UUID) (*models.Contract, error) {
	if !actor.CanManageContracts() {
		return nil, apperr.Forbidden("role %s cannot finalize contracts", actor.Role)
	}
	contract, err := s.repo.Get(ctx, actor.TenantID, contractID)
	if err != nil {
		return nil, err
	}
	switch contract.Status {
	case models.ContractStatusCompleted:
		return contract, nil
	case models.ContractStatusFullySigned:
		return s.finalize(ctx, contract)
	default:
		return nil, apperr.InvalidState("contract is %s, not fully signed", contract.Status)
	}
}

func (s *CompletionService) finalize(ctx context.Context, contract *models.Contract) (*models.Contract, error) {
	ctx, span := tracer.Start(ctx, "CompletionService.finalize")
	defer span.End()
	span.SetAttributes(attribute.String("contract.id", contract.ID.String()))

	url, digest, err := s.assemble(ctx, contract)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "assembly failed")
		return nil, s.recordFailure(ctx, contract, err)
	}

	completedNow := false
	updated, err := s.repo.Mutate(ctx, contract.TenantID, contract.ID, func(m *repository.Mutation) error {
		c := m.Contract
		if c.Status == models.ContractStatusCompleted {
			return repository.ErrUnchanged
		}
		if c.Status != models.ContractStatusFullySigned {
			return apperr.InvalidState("contract is %s, not fully signed", c.Status)
		}
		if url == "" {
			return apperr.Upstream(nil, "document store returned an empty url")
		}

		now := m.Now
		c.FinalDocumentURL = url
		c.FinalDocumentSHA256 = digest
		c.CompletedAt = &now
		c.LastAssemblyError = ""
		m.Transition(models.ContractStatusCompleted)
		m.Emit(models.EventContractCompleted, nil, url)
		completedNow = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if completedNow {
		logrus.WithFields(logrus.Fields{
			"contract_id": updated.ID,
			"tenant_id":   updated.TenantID,
			"document":    updated.FinalDocumentURL,
		}).Info("Contract completed")
		s.notifyCompleted(ctx, updated)
	}
	return updated, nil
}

func (s *CompletionService) assemble(ctx context.Context, contract *models.Contract) (string, string, error) {
	baseURL := contract.DigitizedDocumentURL
	if baseURL == "" {
		baseURL = contract.OriginalDocumentURL
	}
	base, err := s.store.Get(ctx, baseURL)
	if err != nil {
		return "", "", err
	}

	stamps, err := s.buildStamps(ctx, contract)
	if err != nil {
		return "", "", err
	}

	pdf, err := s.assembler.Assemble(ctx, base, stamps)
	if err != nil {
		return "", "", err
	}

	path := fmt.Sprintf("contracts/%s/%s/final-%s.pdf", contract.TenantID, contract.ID, uuid.NewString()[:8])
	url, err := s.store.Put(ctx, pdf, "application/pdf", path)
	if err != nil {
		return "", "", err
	}
	return url, utils.SHA256Hex(pdf), nil
}

// buildStamps pairs every field with the signed entry of its role. Signature
// images are fetched concurrently.
func (s *CompletionService) buildStamps(ctx context.Context, contract *models.Contract) ([]Stamp, error) {
	signedByRole := map[models.SignerRole]*models.Signature{}
	for i := range contract.Signatures {
		sig := &contract.Signatures[i]
		if sig.Status != models.SignatureStatusSigned {
			continue
		}
		if prev, ok := signedByRole[sig.Role]; !ok || sig.Position > prev.Position {
			signedByRole[sig.Role] = sig
		}
	}

	var (
		mu     sync.Mutex
		images = map[uuid.UUID][]byte{}
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(imageLoadConcurrency)
	for _, sig := range signedByRole {
		sig := sig
		if sig.SignatureData == "" {
			continue
		}
		g.Go(func() error {
			data, err := s.store.Get(gctx, sig.SignatureData)
			if err != nil {
				return err
			}
			mu.Lock()
			images[sig.ID] = data
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	stamps := make([]Stamp, 0, len(contract.Digitization.ExtractedFields))
	for _, f := range contract.Digitization.ExtractedFields {
		sig, ok := signedByRole[f.AssignedRole]
		if !ok {
			continue
		}
		stamp := Stamp{Page: f.Page, X: f.X, Y: f.Y, Width: f.Width, Height: f.Height}
		switch f.Type {
		case models.FieldTypeSignature, models.FieldTypeInitial:
			img, ok := images[sig.ID]
			if !ok {
				continue
			}
			stamp.Image = img
		case models.FieldTypeDate:
			if sig.SignedAt == nil {
				continue
			}
			stamp.Text = sig.SignedAt.Format("2006-01-02")
		case models.FieldTypeText:
			stamp.Text = sig.SignerName
		}
		stamps = append(stamps, stamp)
	}
	return stamps, nil
}

func (s *CompletionService) recordFailure(ctx context.Context, contract *models.Contract, cause error) error {
	logrus.WithError(cause).WithField("contract_id", contract.ID).Error("Final document assembly failed")

	_, err := s.repo.Mutate(context.WithoutCancel(ctx), contract.TenantID, contract.ID, func(m *repository.Mutation) error {
		c := m.Contract
		if c.Status != models.ContractStatusFullySigned {
			return repository.ErrUnchanged
		}
		c.AssemblyAttempts++
		c.LastAssemblyError = cause.Error()
		m.Emit(models.EventAssemblyFailed, nil, cause.Error())
		return nil
	})
	if err != nil {
		logrus.WithError(err).WithField("contract_id", contract.ID).Error("Failed to record assembly failure")
	}
	return apperr.Upstream(cause, "assemble final document")
}

func (s *CompletionService) notifyCompleted(ctx context.Context, contract *models.Contract) {
	if s.dispatcher == nil {
		return
	}
	for i := range contract.Signatures {
		sig := contract.Signatures[i]
		if sig.Status != models.SignatureStatusSigned {
			continue
		}
		payload := ContractCompleted{
			SignerName:     sig.SignerName,
			ContractName:   contract.Name,
			DealershipName: s.dealershipName,
			DocumentURL:    contract.FinalDocumentURL,
			CompletedAt:    *contract.CompletedAt,
		}
		for _, msg := range messagesFor(contract, &sig, payload) {
			if err := s.dispatcher.Enqueue(context.WithoutCancel(ctx), msg); err != nil {
				logrus.WithError(err).WithFields(logrus.Fields{
					"contract_id":  contract.ID,
					"signature_id": sig.ID,
				}).Warn("Failed to queue completion notice")
			}
		}
	}
}

// messagesFor fans a payload out over the signer's channels. Email is the default.
func messagesFor(contract *models.Contract, sig *models.Signature, payload NotificationPayload) []Message {
	channels := sig.Channels
	if len(channels) == 0 {
		channels = []string{string(models.DeliveryChannelEmail)}
	}

	sigID := sig.ID
	msgs := make([]Message, 0, len(channels))
	for _, ch := range channels {
		channel := models.DeliveryChannel(ch)
		recipient := sig.SignerEmail
		if channel != models.DeliveryChannelEmail {
			recipient = sig.SignerPhone
		}
		if strings.TrimSpace(recipient) == "" {
			continue
		}
		msgs = append(msgs, Message{
			TenantID:    contract.TenantID,
			ContractID:  contract.ID,
			SignatureID: &sigID,
			Recipient:   recipient,
			Channel:     channel,
			Payload:     payload,
		})
	}
	return msgs
}
