// internal/services/signature_service.go
package services

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/javajoker/dealer-contracts/internal/apperr"
	"github.com/javajoker/dealer-contracts/internal/config"
	"github.com/javajoker/dealer-contracts/internal/models"
	"github.com/javajoker/dealer-contracts/internal/repository"
	"github.com/javajoker/dealer-contracts/internal/utils"
)

const (
	expireBatchSize        = 500
	maxSignatureImageBytes = 2 << 20
)

// CompletionTrigger is notified whenever a signature reaches a terminal state.
type CompletionTrigger interface {
	OnSignatureChange(ctx context.Context, tenantID, contractID uuid.UUID) (*models.Contract, error)
}

type SignatureService struct {
	repo       *repository.ContractRepository
	store      DocumentStore
	dispatcher Dispatcher
	completion CompletionTrigger
	config     config.SigningConfig
}

type InviteRequest struct {
	SignatureID   *uuid.UUID               `json:"signature_id,omitempty"`
	Role          models.SignerRole        `json:"role" validate:"required,signer_role"`
	SignerName    string                   `json:"signer_name" validate:"required,max=255"`
	SignerEmail   string                   `json:"signer_email" validate:"omitempty,email,max=255"`
	SignerPhone   string                   `json:"signer_phone" validate:"omitempty,e164"`
	SignatureType models.SignatureType     `json:"signature_type" validate:"omitempty,oneof=in_person remote"`
	Channels      []models.DeliveryChannel `json:"channels" validate:"omitempty,dive,delivery_channel"`
	ExpiresInDays int                      `json:"expires_in_days" validate:"omitempty,min=1"`
}

type AddSignerRequest struct {
	Role          models.SignerRole    `json:"role" validate:"required,signer_role"`
	SignerName    string               `json:"signer_name" validate:"required,max=255"`
	SignerEmail   string               `json:"signer_email" validate:"omitempty,email,max=255"`
	SignerPhone   string               `json:"signer_phone" validate:"omitempty,e164"`
	SignatureType models.SignatureType `json:"signature_type" validate:"omitempty,oneof=in_person remote"`
}

type CompleteRequest struct {
	SignatureData string `json:"signature_data" validate:"required"`
	IPAddress     string `json:"-"`
	UserAgent     string `json:"-"`
}

type DeclineRequest struct {
	Reason    string `json:"reason" validate:"max=1000"`
	IPAddress string `json:"-"`
	UserAgent string `json:"-"`
}

// Invitation is returned once to the inviting staff member. The raw token is
// never stored.
type Invitation struct {
	Token     string            `json:"token"`
	URL       string            `json:"url"`
	ExpiresAt time.Time         `json:"expires_at"`
	Signature *models.Signature `json:"signature"`
}

// ContractSummary is the part of a contract a signer is allowed to see.
type ContractSummary struct {
	ID          uuid.UUID             `json:"id"`
	Name        string                `json:"name"`
	Type        models.ContractType   `json:"type"`
	Status      models.ContractStatus `json:"status"`
	DocumentURL string                `json:"document_url"`
	FinalURL    string                `json:"final_document_url,omitempty"`
}

type SigningSession struct {
	Contract  ContractSummary         `json:"contract"`
	Signature *models.Signature       `json:"signature"`
	Fields    []models.SignatureField `json:"fields"`
	ExpiresAt *time.Time              `json:"expires_at,omitempty"`
}

// SigningOutcome is the state after a complete or decline.
type SigningOutcome struct {
	Contract  *models.Contract
	Signature *models.Signature
}

func (o *SigningOutcome) Summary() ContractSummary {
	return summarize(o.Contract)
}

func NewSignatureService(repo *repository.ContractRepository, store DocumentStore, dispatcher Dispatcher, completion CompletionTrigger, cfg config.SigningConfig) *SignatureService {
	return &SignatureService{
		repo:       repo,
		store:      store,
		dispatcher: dispatcher,
		completion: completion,
		config:     cfg,
	}
}

// Invite issues a fresh signing link for a role. A still-open entry for the role
// is reused and its previous link stops working; a declined or expired entry is
// kept for the record and a new one is appended.
func (s *SignatureService) Invite(ctx context.Context, actor *Actor, contractID uuid.UUID, req InviteRequest) (*Invitation, error) {
	if !actor.CanManageContracts() {
		return nil, apperr.Forbidden("role %s cannot invite signers", actor.Role)
	}
	if err := utils.ValidateStruct(&req); err != nil {
		return nil, apperr.ValidationFields(err, utils.ValidationSummary(err))
	}
	channels, err := normalizeChannels(req)
	if err != nil {
		return nil, err
	}

	days := req.ExpiresInDays
	if days == 0 {
		days = s.config.DefaultExpiryDays
	}
	if s.config.MaxExpiryDays > 0 && days > s.config.MaxExpiryDays {
		return nil, apperr.Validation("expires_in_days may not exceed %d", s.config.MaxExpiryDays)
	}

	token, err := utils.GenerateSigningToken()
	if err != nil {
		return nil, fmt.Errorf("failed to generate signing token: %w", err)
	}
	hash := utils.HashToken(token)

	var signatureID uuid.UUID
	var expiresAt time.Time
	contract, err := s.repo.Mutate(ctx, actor.TenantID, contractID, func(m *repository.Mutation) error {
		c := m.Contract
		if c.Status.IsTerminal() {
			return apperr.InvalidState("cannot invite signers to a %s contract", c.Status)
		}
		if !c.HasSignatureField() {
			return apperr.InvalidState("contract has no signature fields")
		}

		sig, err := inviteTarget(c, req)
		if err != nil {
			return err
		}
		if sig == nil {
			sig = m.AddSignature(models.Signature{Role: req.Role})
			m.Emit(models.EventSignerAdded, sig, string(sig.Role))
		}

		sig.SignerName = strings.TrimSpace(req.SignerName)
		sig.SignerEmail = strings.TrimSpace(req.SignerEmail)
		sig.SignerPhone = req.SignerPhone
		sig.SignatureType = req.SignatureType
		if sig.SignatureType == "" {
			sig.SignatureType = models.SignatureTypeRemote
		}
		sig.Channels = channels

		expiresAt = m.Now.Add(time.Duration(days) * 24 * time.Hour)
		sig.IssueToken(hash, expiresAt, m.Now)
		m.Emit(models.EventSignerInvited, sig, strings.Join(channels, ","))

		signatureID = sig.ID
		return nil
	}, repository.WithActor(actor.UserID))
	if err != nil {
		return nil, err
	}

	sig := contract.FindSignature(signatureID)
	invitation := &Invitation{
		Token:     token,
		URL:       s.signingURL(token),
		ExpiresAt: expiresAt,
		Signature: sig,
	}

	logrus.WithFields(logrus.Fields{
		"contract_id":  contract.ID,
		"signature_id": signatureID,
		"role":         sig.Role,
		"expires_at":   expiresAt,
	}).Info("Signer invited")

	s.dispatchInvitation(ctx, contract, sig, invitation)
	return invitation, nil
}

func inviteTarget(c *models.Contract, req InviteRequest) (*models.Signature, error) {
	var sig *models.Signature
	if req.SignatureID != nil {
		sig = c.FindSignature(*req.SignatureID)
		if sig == nil {
			return nil, apperr.NotFound("signature %s", *req.SignatureID)
		}
		if sig.Role != req.Role {
			return nil, apperr.Validation("signature %s belongs to role %s", sig.ID, sig.Role)
		}
	} else {
		sig = c.LatestSignatureForRole(req.Role)
	}
	if sig == nil {
		return nil, nil
	}

	switch sig.Status {
	case models.SignatureStatusSigned:
		return nil, apperr.InvalidState("role %s has already signed", sig.Role)
	case models.SignatureStatusDeclined, models.SignatureStatusExpired:
		return nil, nil
	}
	return sig, nil
}

func normalizeChannels(req InviteRequest) (models.ChannelList, error) {
	if len(req.Channels) == 0 {
		if req.SignerEmail == "" {
			if req.SignerPhone == "" {
				return nil, apperr.Validation("signer email or phone is required")
			}
			return models.ChannelList{string(models.DeliveryChannelSMS)}, nil
		}
		return models.ChannelList{string(models.DeliveryChannelEmail)}, nil
	}

	seen := map[models.DeliveryChannel]bool{}
	out := models.ChannelList{}
	for _, ch := range req.Channels {
		if seen[ch] {
			continue
		}
		seen[ch] = true
		if ch == models.DeliveryChannelEmail && req.SignerEmail == "" {
			return nil, apperr.Validation("signer email is required for the email channel")
		}
		if ch != models.DeliveryChannelEmail && req.SignerPhone == "" {
			return nil, apperr.Validation("signer phone is required for the %s channel", ch)
		}
		out = append(out, string(ch))
	}
	return out, nil
}

func (s *SignatureService) signingURL(token string) string {
	return strings.TrimRight(s.config.BaseURL, "/") + "/contracts/" + token
}

// dispatchInvitation queues delivery. Queue errors are logged; the link is
// already valid.
func (s *SignatureService) dispatchInvitation(ctx context.Context, contract *models.Contract, sig *models.Signature, inv *Invitation) {
	if s.dispatcher == nil || sig.SignatureType == models.SignatureTypeInPerson {
		return
	}
	payload := SigningInvitation{
		SignerName:     sig.SignerName,
		Role:           sig.Role,
		ContractName:   contract.Name,
		DealershipName: s.config.DealershipName,
		SigningURL:     inv.URL,
		ExpiresAt:      inv.ExpiresAt,
	}
	for _, msg := range messagesFor(contract, sig, payload) {
		if err := s.dispatcher.Enqueue(context.WithoutCancel(ctx), msg); err != nil {
			logrus.WithError(err).WithFields(logrus.Fields{
				"contract_id":  contract.ID,
				"signature_id": sig.ID,
				"channel":      msg.Channel,
			}).Warn("Failed to queue signing invitation")
		}
	}
}

// AddSigner records a signer without issuing a link, typically for in-person signing.
func (s *SignatureService) AddSigner(ctx context.Context, actor *Actor, contractID uuid.UUID, req AddSignerRequest) (*models.Contract, *models.Signature, error) {
	if !actor.CanManageContracts() {
		return nil, nil, apperr.Forbidden("role %s cannot add signers", actor.Role)
	}
	if err := utils.ValidateStruct(&req); err != nil {
		return nil, nil, apperr.ValidationFields(err, utils.ValidationSummary(err))
	}
	sigType := req.SignatureType
	if sigType == "" {
		sigType = models.SignatureTypeInPerson
	}
	return s.repo.AddSignature(ctx, actor.TenantID, contractID, models.Signature{
		Role:          req.Role,
		SignerName:    strings.TrimSpace(req.SignerName),
		SignerEmail:   strings.TrimSpace(req.SignerEmail),
		SignerPhone:   req.SignerPhone,
		SignatureType: sigType,
		Status:        models.SignatureStatusPending,
		Channels:      models.ChannelList{},
	}, repository.WithActor(actor.UserID))
}

// Resolve opens the signing session behind a link. The first resolve marks the
// entry viewed; an expired link is recorded as expired and rejected.
func (s *SignatureService) Resolve(ctx context.Context, token, ipAddress, userAgent string) (*SigningSession, error) {
	hash := utils.HashToken(token)
	loc, err := s.repo.FindByTokenHash(ctx, hash)
	if err != nil {
		return nil, err
	}

	contract, err := s.repo.Mutate(ctx, loc.TenantID, loc.ContractID, func(m *repository.Mutation) error {
		sig, err := signatureForToken(m.Contract, loc.SignatureID, hash)
		if err != nil {
			return err
		}
		if m.Contract.Status.IsTerminal() {
			return apperr.InvalidState("contract is %s", m.Contract.Status)
		}
		if expireIfLapsed(m, sig) {
			return nil
		}
		if sig.Status == models.SignatureStatusExpired {
			return apperr.TokenExpired("signing link expired")
		}
		if !sig.IsLive() {
			return apperr.InvalidState("signature is already %s", sig.Status)
		}
		if !sig.MarkViewed(m.Now, ipAddress, userAgent) {
			return repository.ErrUnchanged
		}
		m.Emit(models.EventSignerViewed, sig, "")
		return nil
	})
	if err != nil {
		return nil, err
	}

	sig := contract.FindSignature(loc.SignatureID)
	fields := contract.FieldsForRole(sig.Role)
	if fields == nil {
		fields = []models.SignatureField{}
	}
	return &SigningSession{
		Contract:  summarize(contract),
		Signature: sig,
		Fields:    fields,
		ExpiresAt: sig.ExpiresAt,
	}, nil
}

// CompleteByToken signs through a signing link.
func (s *SignatureService) CompleteByToken(ctx context.Context, token string, req CompleteRequest) (*SigningOutcome, error) {
	if err := utils.ValidateStruct(&req); err != nil {
		return nil, apperr.ValidationFields(err, utils.ValidationSummary(err))
	}
	hash := utils.HashToken(token)
	loc, err := s.repo.FindByTokenHash(ctx, hash)
	if err != nil {
		return nil, err
	}
	return s.complete(ctx, loc.TenantID, loc.ContractID, loc.SignatureID, hash, nil, req)
}

// Complete signs on behalf of a signer. Staff may complete an in-person entry
// that never received a link.
func (s *SignatureService) Complete(ctx context.Context, actor *Actor, contractID, signatureID uuid.UUID, req CompleteRequest) (*SigningOutcome, error) {
	if !actor.CanManageContracts() {
		return nil, apperr.Forbidden("role %s cannot record signatures", actor.Role)
	}
	if err := utils.ValidateStruct(&req); err != nil {
		return nil, apperr.ValidationFields(err, utils.ValidationSummary(err))
	}
	return s.complete(ctx, actor.TenantID, contractID, signatureID, "", actor, req)
}

func (s *SignatureService) complete(ctx context.Context, tenantID, contractID, signatureID uuid.UUID, hash string, actor *Actor, req CompleteRequest) (*SigningOutcome, error) {
	// Reject obvious replays before storing the image.
	current, err := s.repo.Get(ctx, tenantID, contractID)
	if err != nil {
		return nil, err
	}
	if sig := current.FindSignature(signatureID); sig != nil && sig.IsTerminal() {
		if sig.Status == models.SignatureStatusExpired {
			return nil, apperr.TokenExpired("signing link expired")
		}
		return nil, apperr.InvalidState("signature is already %s", sig.Status)
	}

	data, err := s.storeSignatureData(ctx, current, signatureID, req.SignatureData)
	if err != nil {
		return nil, err
	}

	var opts []repository.MutateOption
	if actor != nil {
		opts = append(opts, repository.WithActor(actor.UserID))
	}
	contract, err := s.repo.Mutate(ctx, tenantID, contractID, func(m *repository.Mutation) error {
		sig, err := s.signableEntry(m, signatureID, hash, actor)
		if err != nil || sig == nil {
			return err
		}
		sig.MarkSigned(data, m.Now, req.IPAddress, req.UserAgent)
		m.Emit(models.EventSignerSigned, sig, "")
		return nil
	}, opts...)
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"contract_id":  contract.ID,
		"signature_id": signatureID,
		"status":       contract.Status,
	}).Info("Signature completed")

	contract = s.afterTerminal(ctx, contract)
	return &SigningOutcome{Contract: contract, Signature: contract.FindSignature(signatureID)}, nil
}

// DeclineByToken declines through a signing link.
func (s *SignatureService) DeclineByToken(ctx context.Context, token string, req DeclineRequest) (*SigningOutcome, error) {
	if err := utils.ValidateStruct(&req); err != nil {
		return nil, apperr.ValidationFields(err, utils.ValidationSummary(err))
	}
	hash := utils.HashToken(token)
	loc, err := s.repo.FindByTokenHash(ctx, hash)
	if err != nil {
		return nil, err
	}
	return s.decline(ctx, loc.TenantID, loc.ContractID, loc.SignatureID, hash, nil, req)
}

func (s *SignatureService) Decline(ctx context.Context, actor *Actor, contractID, signatureID uuid.UUID, req DeclineRequest) (*SigningOutcome, error) {
	if !actor.CanManageContracts() {
		return nil, apperr.Forbidden("role %s cannot record declines", actor.Role)
	}
	if err := utils.ValidateStruct(&req); err != nil {
		return nil, apperr.ValidationFields(err, utils.ValidationSummary(err))
	}
	return s.decline(ctx, actor.TenantID, contractID, signatureID, "", actor, req)
}

func (s *SignatureService) decline(ctx context.Context, tenantID, contractID, signatureID uuid.UUID, hash string, actor *Actor, req DeclineRequest) (*SigningOutcome, error) {
	var opts []repository.MutateOption
	if actor != nil {
		opts = append(opts, repository.WithActor(actor.UserID))
	}
	reason := strings.TrimSpace(req.Reason)
	contract, err := s.repo.Mutate(ctx, tenantID, contractID, func(m *repository.Mutation) error {
		sig, err := s.signableEntry(m, signatureID, hash, actor)
		if err != nil || sig == nil {
			return err
		}
		sig.MarkDeclined(reason, m.Now, req.IPAddress, req.UserAgent)
		m.Emit(models.EventSignerDeclined, sig, reason)
		return nil
	}, opts...)
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"contract_id":  contract.ID,
		"signature_id": signatureID,
	}).Info("Signature declined")

	contract = s.afterTerminal(ctx, contract)
	return &SigningOutcome{Contract: contract, Signature: contract.FindSignature(signatureID)}, nil
}

// signableEntry returns the entry a complete or decline applies to. It returns
// nil with a nil error after recording an expiry, which the caller must commit.
func (s *SignatureService) signableEntry(m *repository.Mutation, signatureID uuid.UUID, hash string, actor *Actor) (*models.Signature, error) {
	c := m.Contract
	if c.Status.IsTerminal() {
		return nil, apperr.InvalidState("contract is %s", c.Status)
	}

	var sig *models.Signature
	if hash != "" {
		var err error
		if sig, err = signatureForToken(c, signatureID, hash); err != nil {
			return nil, err
		}
	} else if sig = c.FindSignature(signatureID); sig == nil {
		return nil, apperr.NotFound("signature %s", signatureID)
	}

	switch sig.Status {
	case models.SignatureStatusSent, models.SignatureStatusViewed:
		if expireIfLapsed(m, sig) {
			return nil, nil
		}
		return sig, nil
	case models.SignatureStatusPending:
		if actor != nil && sig.SignatureType == models.SignatureTypeInPerson {
			return sig, nil
		}
		return nil, apperr.InvalidState("signer has not been invited")
	case models.SignatureStatusExpired:
		return nil, apperr.TokenExpired("signing link expired")
	default:
		return nil, apperr.InvalidState("signature is already %s", sig.Status)
	}
}

func signatureForToken(c *models.Contract, signatureID uuid.UUID, hash string) (*models.Signature, error) {
	sig := c.FindSignature(signatureID)
	if sig == nil || sig.TokenHash == "" || sig.TokenHash != hash {
		return nil, apperr.NotFound("signing link")
	}
	return sig, nil
}

// expireIfLapsed marks a live entry expired when its link has lapsed and makes
// the mutation commit before reporting TokenExpired.
func expireIfLapsed(m *repository.Mutation, sig *models.Signature) bool {
	if !sig.IsLive() || !sig.IsExpired(m.Now) {
		return false
	}
	sig.MarkExpired(m.Now)
	m.Emit(models.EventSignerExpired, sig, "")
	m.FailAfterCommit(apperr.TokenExpired("signing link expired"))
	return true
}

// storeSignatureData moves an inline image into the document store. A
// reference is only accepted when it points into the store itself, and either
// way the bytes must decode as a PNG or JPEG before the entry can be signed.
func (s *SignatureService) storeSignatureData(ctx context.Context, contract *models.Contract, signatureID uuid.UUID, data string) (string, error) {
	data = strings.TrimSpace(data)
	if !strings.HasPrefix(data, "data:") {
		if data == "" || !s.store.Owns(data) {
			return "", apperr.Validation("signature_data must be an image data url or a document store url")
		}
		raw, err := s.store.Get(ctx, data)
		if err != nil {
			return "", err
		}
		if _, err := signatureImageFormat(raw); err != nil {
			return "", err
		}
		return data, nil
	}

	raw, err := decodeDataURL(data)
	if err != nil {
		return "", apperr.Validation("invalid signature image: %v", err)
	}
	contentType := DataURLContentType(data)
	switch contentType {
	case "image/png", "image/jpeg", "image/jpg":
	default:
		return "", apperr.Validation("unsupported signature image type %q", contentType)
	}
	format, err := signatureImageFormat(raw)
	if err != nil {
		return "", err
	}
	ext := "png"
	contentType = "image/png"
	if format == "jpeg" {
		ext = "jpg"
		contentType = "image/jpeg"
	}

	path := fmt.Sprintf("contracts/%s/%s/signatures/%s-%s.%s",
		contract.TenantID, contract.ID, signatureID, uuid.NewString()[:8], ext)
	url, err := s.store.Put(ctx, raw, contentType, path)
	if err != nil {
		return "", apperr.Upstream(err, "store signature image")
	}
	return url, nil
}

// signatureImageFormat checks the image header so assembly never meets an
// image it cannot place.
func signatureImageFormat(raw []byte) (string, error) {
	if len(raw) > maxSignatureImageBytes {
		return "", apperr.Validation("signature image exceeds %d bytes", maxSignatureImageBytes)
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		return "", apperr.Validation("signature image is not a readable png or jpeg")
	}
	if format != "png" && format != "jpeg" {
		return "", apperr.Validation("unsupported signature image format %q", format)
	}
	if cfg.Width == 0 || cfg.Height == 0 {
		return "", apperr.Validation("signature image is empty")
	}
	return format, nil
}

// afterTerminal hands a fully signed contract to the completion service.
func (s *SignatureService) afterTerminal(ctx context.Context, contract *models.Contract) *models.Contract {
	if s.completion == nil || contract.Status != models.ContractStatusFullySigned {
		return contract
	}

	if s.config.AsyncCompletion {
		go func(tenantID, contractID uuid.UUID) {
			bg := context.WithoutCancel(ctx)
			if _, err := s.completion.OnSignatureChange(bg, tenantID, contractID); err != nil {
				logrus.WithError(err).WithField("contract_id", contractID).Warn("Contract completion deferred")
			}
		}(contract.TenantID, contract.ID)
		return contract
	}

	updated, err := s.completion.OnSignatureChange(ctx, contract.TenantID, contract.ID)
	if err != nil {
		logrus.WithError(err).WithField("contract_id", contract.ID).Warn("Contract completion deferred")
		if refreshed, getErr := s.repo.Get(ctx, contract.TenantID, contract.ID); getErr == nil {
			return refreshed
		}
		return contract
	}
	return updated
}

// ExpireStale records lapsed links as expired. Each contract is updated through
// the same locked path as signing, so it never races a signer.
func (s *SignatureService) ExpireStale(ctx context.Context) (int, error) {
	now := s.repo.Now()
	locations, err := s.repo.ListExpiring(ctx, now, expireBatchSize)
	if err != nil {
		return 0, err
	}

	type contractKey struct{ tenant, contract uuid.UUID }
	grouped := map[contractKey]bool{}
	var order []contractKey
	for _, loc := range locations {
		key := contractKey{loc.TenantID, loc.ContractID}
		if !grouped[key] {
			grouped[key] = true
			order = append(order, key)
		}
	}

	expired := 0
	for _, key := range order {
		count := 0
		_, err := s.repo.Mutate(ctx, key.tenant, key.contract, func(m *repository.Mutation) error {
			count = 0
			for i := range m.Contract.Signatures {
				sig := &m.Contract.Signatures[i]
				if sig.IsLive() && sig.IsExpired(m.Now) {
					sig.MarkExpired(m.Now)
					m.Emit(models.EventSignerExpired, sig, "sweep")
					count++
				}
			}
			if count == 0 {
				return repository.ErrUnchanged
			}
			return nil
		})
		if err != nil {
			logrus.WithError(err).WithField("contract_id", key.contract).Warn("Failed to expire signing links")
			continue
		}
		expired += count
	}
	return expired, nil
}

// StartSweeper runs ExpireStale on an interval until ctx is cancelled.
func (s *SignatureService) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := s.ExpireStale(ctx)
				if err != nil {
					logrus.WithError(err).Error("Signing link sweep failed")
					continue
				}
				if n > 0 {
					logrus.WithField("expired", n).Info("Expired stale signing links")
				}
			}
		}
	}()
}

func summarize(c *models.Contract) ContractSummary {
	doc := c.DigitizedDocumentURL
	if doc == "" {
		doc = c.OriginalDocumentURL
	}
	return ContractSummary{
		ID:          c.ID,
		Name:        c.Name,
		Type:        c.Type,
		Status:      c.Status,
		DocumentURL: doc,
		FinalURL:    c.FinalDocumentURL,
	}
}
