package services

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"

	"github.com/javajoker/dealer-contracts/internal/apperr"
	"github.com/javajoker/dealer-contracts/internal/models"
	"github.com/javajoker/dealer-contracts/internal/utils"
)

type SignatureServiceSuite struct {
	suite.Suite
	h   *harness
	ctx context.Context
}

func (s *SignatureServiceSuite) SetupTest() {
	s.h = newHarness(s.T(), signingConfig())
	s.ctx = context.Background()
}

func (s *SignatureServiceSuite) complete(token string) (*SigningOutcome, error) {
	return s.h.signatures.CompleteByToken(s.ctx, token, CompleteRequest{
		SignatureData: signatureImage,
		IPAddress:     "203.0.113.7",
		UserAgent:     "Mobile Safari",
	})
}

func (s *SignatureServiceSuite) TestHappyPathCompletesContract() {
	contract := s.h.contractWithFields(s.T(), models.SignerRoleBuyer, models.SignerRoleDealer)
	buyer := s.h.invite(s.T(), contract.ID, models.SignerRoleBuyer)
	dealer := s.h.invite(s.T(), contract.ID, models.SignerRoleDealer)

	s.Equal(models.ContractStatusPendingSignatures, s.h.reload(s.T(), contract.ID).Status)

	out, err := s.complete(buyer.Token)
	s.Require().NoError(err)
	s.Equal(models.ContractStatusPartiallySigned, out.Contract.Status)
	s.Equal(models.SignatureStatusSigned, out.Signature.Status)
	s.Equal("203.0.113.7", out.Signature.IPAddress)
	s.True(strings.HasPrefix(out.Signature.SignatureData, "mem://contracts/"), out.Signature.SignatureData)

	out, err = s.complete(dealer.Token)
	s.Require().NoError(err)
	final := out.Contract
	s.Equal(models.ContractStatusCompleted, final.Status)
	s.NotEmpty(final.FinalDocumentURL)
	s.Require().NotNil(final.CompletedAt)

	pdf, ok := s.h.store.object(final.FinalDocumentURL)
	s.Require().True(ok)
	s.Equal(utils.SHA256Hex(pdf), final.FinalDocumentSHA256)

	// buyer signature, buyer date, dealer signature
	stamps := s.h.assembler.stamps()
	s.Len(stamps, 3)
	var dates []string
	for _, st := range stamps {
		if st.Text != "" {
			dates = append(dates, st.Text)
		}
	}
	s.Equal([]string{"2025-06-02"}, dates)

	events := s.h.events(s.T(), contract.ID)
	s.Equal(1, countEvents(events, models.EventStatusChanged, string(models.ContractStatusPartiallySigned)))
	s.Equal(1, countEvents(events, models.EventStatusChanged, string(models.ContractStatusFullySigned)))
	s.Equal(1, countEvents(events, models.EventStatusChanged, string(models.ContractStatusCompleted)))
	s.Equal(1, countEvents(events, models.EventContractCompleted, ""))
	s.Equal(2, countEvents(events, models.EventSignerSigned, ""))

	s.Len(s.h.dispatcher.byKind(NotificationSigningInvitation), 2)
	notices := s.h.dispatcher.byKind(NotificationContractCompleted)
	s.Len(notices, 2)
	for _, n := range notices {
		payload := n.Payload.(ContractCompleted)
		s.Equal(final.FinalDocumentURL, payload.DocumentURL)
		s.Equal("Test Motors", payload.DealershipName)
	}

	verification, err := s.h.contracts.VerifyDigest(s.ctx, contract.ID, strings.ToUpper(final.FinalDocumentSHA256))
	s.Require().NoError(err)
	s.True(verification.Verified)

	verification, err = s.h.contracts.VerifyDocument(s.ctx, contract.ID, []byte("tampered"))
	s.Require().NoError(err)
	s.False(verification.Verified)
}

func (s *SignatureServiceSuite) TestExpiredLinkNeverSigns() {
	contract := s.h.contractWithFields(s.T(), models.SignerRoleBuyer)
	inv, err := s.h.signatures.Invite(s.ctx, s.h.staff, contract.ID, InviteRequest{
		Role:          models.SignerRoleBuyer,
		SignerName:    "Ana",
		SignerEmail:   "ana@example.com",
		ExpiresInDays: 1,
	})
	s.Require().NoError(err)

	s.h.clock.Advance(48 * time.Hour)

	_, err = s.h.signatures.Resolve(s.ctx, inv.Token, "", "")
	s.ErrorIs(err, apperr.ErrTokenExpired)

	reloaded := s.h.reload(s.T(), contract.ID)
	s.Equal(models.SignatureStatusExpired, reloaded.Signatures[0].Status)
	s.NotNil(reloaded.Signatures[0].ExpiredAt)

	_, err = s.complete(inv.Token)
	s.Error(err)
	s.True(errors.Is(err, apperr.ErrTokenExpired) || errors.Is(err, apperr.ErrInvalidState), err)

	_, err = s.h.signatures.Resolve(s.ctx, inv.Token, "", "")
	s.ErrorIs(err, apperr.ErrTokenExpired)

	reloaded = s.h.reload(s.T(), contract.ID)
	s.Equal(models.ContractStatusPendingSignatures, reloaded.Status)
	s.Equal(1, countEvents(s.h.events(s.T(), contract.ID), models.EventSignerExpired, ""))
}

func (s *SignatureServiceSuite) TestCompleteAfterExpiryWithoutResolve() {
	contract := s.h.contractWithFields(s.T(), models.SignerRoleBuyer)
	inv := s.h.invite(s.T(), contract.ID, models.SignerRoleBuyer)

	s.h.clock.Advance(8 * 24 * time.Hour)

	_, err := s.complete(inv.Token)
	s.ErrorIs(err, apperr.ErrTokenExpired)
	s.Equal(models.SignatureStatusExpired, s.h.reload(s.T(), contract.ID).Signatures[0].Status)
	s.Zero(s.h.assembler.callCount())
}

func (s *SignatureServiceSuite) TestConcurrentFinalSignaturesCompleteOnce() {
	contract := s.h.contractWithFields(s.T(), models.SignerRoleBuyer, models.SignerRoleDealer)
	tokens := []string{
		s.h.invite(s.T(), contract.ID, models.SignerRoleBuyer).Token,
		s.h.invite(s.T(), contract.ID, models.SignerRoleDealer).Token,
	}

	start := make(chan struct{})
	errs := make(chan error, len(tokens))
	var wg sync.WaitGroup
	for _, token := range tokens {
		wg.Add(1)
		go func(token string) {
			defer wg.Done()
			<-start
			_, err := s.complete(token)
			errs <- err
		}(token)
	}
	close(start)
	wg.Wait()
	close(errs)
	for err := range errs {
		s.NoError(err)
	}

	final := s.h.reload(s.T(), contract.ID)
	s.Equal(models.ContractStatusCompleted, final.Status)

	events := s.h.events(s.T(), contract.ID)
	s.Equal(1, countEvents(events, models.EventStatusChanged, string(models.ContractStatusFullySigned)))
	s.Equal(1, countEvents(events, models.EventContractCompleted, ""))
	s.Equal(1, s.h.assembler.callCount())
}

func (s *SignatureServiceSuite) TestAssemblyFailureLeavesFullySigned() {
	contract := s.h.contractWithFields(s.T(), models.SignerRoleBuyer, models.SignerRoleDealer)
	buyer := s.h.invite(s.T(), contract.ID, models.SignerRoleBuyer)
	dealer := s.h.invite(s.T(), contract.ID, models.SignerRoleDealer)

	s.h.assembler.setFail(true)
	_, err := s.complete(buyer.Token)
	s.Require().NoError(err)
	out, err := s.complete(dealer.Token)
	s.Require().NoError(err, "signing succeeds even when assembly fails")

	s.Equal(models.ContractStatusFullySigned, out.Contract.Status)
	s.Empty(out.Contract.FinalDocumentURL)
	s.Equal(1, out.Contract.AssemblyAttempts)
	s.Contains(out.Contract.LastAssemblyError, "renderer crashed")
	s.Equal(1, countEvents(s.h.events(s.T(), contract.ID), models.EventAssemblyFailed, ""))

	_, err = s.h.completion.Finalize(s.ctx, s.h.staff, contract.ID)
	s.ErrorIs(err, apperr.ErrUpstream)
	s.Equal(2, s.h.reload(s.T(), contract.ID).AssemblyAttempts)

	s.h.assembler.setFail(false)
	completed, err := s.h.completion.Finalize(s.ctx, s.h.staff, contract.ID)
	s.Require().NoError(err)
	s.Equal(models.ContractStatusCompleted, completed.Status)
	s.NotEmpty(completed.FinalDocumentURL)
	s.Empty(completed.LastAssemblyError)

	calls := s.h.assembler.callCount()
	again, err := s.h.completion.Finalize(s.ctx, s.h.staff, contract.ID)
	s.Require().NoError(err)
	s.Equal(completed.FinalDocumentURL, again.FinalDocumentURL)
	s.Equal(calls, s.h.assembler.callCount())
}

func (s *SignatureServiceSuite) TestStoreFailureIsRetryable() {
	contract := s.h.contractWithFields(s.T(), models.SignerRoleBuyer)
	inv := s.h.invite(s.T(), contract.ID, models.SignerRoleBuyer)

	// The signature image upload fails before anything is recorded.
	s.h.store.mu.Lock()
	s.h.store.failPut = true
	s.h.store.mu.Unlock()

	_, err := s.complete(inv.Token)
	s.ErrorIs(err, apperr.ErrUpstream)
	s.Equal(models.SignatureStatusSent, s.h.reload(s.T(), contract.ID).Signatures[0].Status)

	s.h.store.mu.Lock()
	s.h.store.failPut = false
	s.h.store.mu.Unlock()

	out, err := s.complete(inv.Token)
	s.Require().NoError(err)
	s.Equal(models.ContractStatusCompleted, out.Contract.Status)
}

func (s *SignatureServiceSuite) TestReinviteRotatesLink() {
	contract := s.h.contractWithFields(s.T(), models.SignerRoleBuyer)
	first := s.h.invite(s.T(), contract.ID, models.SignerRoleBuyer)
	second := s.h.invite(s.T(), contract.ID, models.SignerRoleBuyer)

	s.NotEqual(first.Token, second.Token)
	s.Equal(first.Signature.ID, second.Signature.ID)

	_, err := s.h.signatures.Resolve(s.ctx, first.Token, "", "")
	s.ErrorIs(err, apperr.ErrNotFound)
	_, err = s.complete(first.Token)
	s.ErrorIs(err, apperr.ErrNotFound)

	session, err := s.h.signatures.Resolve(s.ctx, second.Token, "", "")
	s.Require().NoError(err)
	s.Equal(models.SignatureStatusViewed, session.Signature.Status)

	s.Len(s.h.reload(s.T(), contract.ID).Signatures, 1)
	s.Equal(2, countEvents(s.h.events(s.T(), contract.ID), models.EventSignerInvited, ""))
}

func (s *SignatureServiceSuite) TestReinviteAfterDeclineAppendsEntry() {
	contract := s.h.contractWithFields(s.T(), models.SignerRoleBuyer)
	first := s.h.invite(s.T(), contract.ID, models.SignerRoleBuyer)

	out, err := s.h.signatures.DeclineByToken(s.ctx, first.Token, DeclineRequest{Reason: " wrong price "})
	s.Require().NoError(err)
	s.Equal(models.SignatureStatusDeclined, out.Signature.Status)
	s.Equal("wrong price", out.Signature.DeclineReason)
	s.Equal(models.ContractStatusPendingSignatures, out.Contract.Status)

	_, err = s.h.signatures.Resolve(s.ctx, first.Token, "", "")
	s.ErrorIs(err, apperr.ErrInvalidState)

	second := s.h.invite(s.T(), contract.ID, models.SignerRoleBuyer)
	s.NotEqual(first.Signature.ID, second.Signature.ID)
	s.Equal(2, second.Signature.Position)

	reloaded := s.h.reload(s.T(), contract.ID)
	s.Require().Len(reloaded.Signatures, 2)
	s.Equal(models.SignatureStatusDeclined, reloaded.Signatures[0].Status)
	s.Equal(models.SignatureStatusSent, reloaded.Signatures[1].Status)
}

func (s *SignatureServiceSuite) TestInviteSignedRoleIsRejected() {
	contract := s.h.contractWithFields(s.T(), models.SignerRoleBuyer, models.SignerRoleDealer)
	inv := s.h.invite(s.T(), contract.ID, models.SignerRoleBuyer)
	_, err := s.complete(inv.Token)
	s.Require().NoError(err)

	_, err = s.h.signatures.Invite(s.ctx, s.h.staff, contract.ID, InviteRequest{
		Role: models.SignerRoleBuyer, SignerName: "Ana", SignerEmail: "ana@example.com",
	})
	s.ErrorIs(err, apperr.ErrInvalidState)
}

func (s *SignatureServiceSuite) TestResolveMarksViewedOnce() {
	contract := s.h.contractWithFields(s.T(), models.SignerRoleBuyer, models.SignerRoleDealer)
	inv := s.h.invite(s.T(), contract.ID, models.SignerRoleBuyer)

	session, err := s.h.signatures.Resolve(s.ctx, inv.Token, "198.51.100.1", "Firefox")
	s.Require().NoError(err)
	s.Equal(models.SignatureStatusViewed, session.Signature.Status)
	s.Equal(contract.ID, session.Contract.ID)
	s.Equal(templateURL, session.Contract.DocumentURL)
	s.Len(session.Fields, 2, "buyer signature and date")
	s.Require().NotNil(session.ExpiresAt)
	s.Equal(inv.ExpiresAt.Unix(), session.ExpiresAt.Unix())

	_, err = s.h.signatures.Resolve(s.ctx, inv.Token, "198.51.100.1", "Firefox")
	s.Require().NoError(err)
	s.Equal(1, countEvents(s.h.events(s.T(), contract.ID), models.EventSignerViewed, ""))
}

func (s *SignatureServiceSuite) TestConsumedLinkCannotBeReused() {
	contract := s.h.contractWithFields(s.T(), models.SignerRoleBuyer, models.SignerRoleDealer)
	inv := s.h.invite(s.T(), contract.ID, models.SignerRoleBuyer)

	_, err := s.complete(inv.Token)
	s.Require().NoError(err)

	_, err = s.complete(inv.Token)
	s.ErrorIs(err, apperr.ErrInvalidState)
	_, err = s.h.signatures.DeclineByToken(s.ctx, inv.Token, DeclineRequest{})
	s.ErrorIs(err, apperr.ErrInvalidState)
	_, err = s.h.signatures.Resolve(s.ctx, inv.Token, "", "")
	s.ErrorIs(err, apperr.ErrInvalidState)
	s.Equal(1, countEvents(s.h.events(s.T(), contract.ID), models.EventSignerSigned, ""))
}

func (s *SignatureServiceSuite) TestUnknownToken() {
	_, err := s.h.signatures.Resolve(s.ctx, "not-a-real-token", "", "")
	s.ErrorIs(err, apperr.ErrNotFound)
	_, err = s.complete("not-a-real-token")
	s.ErrorIs(err, apperr.ErrNotFound)
}

func (s *SignatureServiceSuite) TestInviteValidation() {
	contract := s.h.contractWithFields(s.T(), models.SignerRoleBuyer)
	bare := s.h.contractWithFields(s.T())

	cases := []struct {
		name  string
		actor *Actor
		id    uuid.UUID
		req   InviteRequest
		want  error
	}{
		{"viewer", s.h.viewer, contract.ID, InviteRequest{Role: models.SignerRoleBuyer, SignerName: "Ana", SignerEmail: "ana@example.com"}, apperr.ErrForbidden},
		{"no contact", s.h.staff, contract.ID, InviteRequest{Role: models.SignerRoleBuyer, SignerName: "Ana"}, apperr.ErrValidation},
		{"unknown role", s.h.staff, contract.ID, InviteRequest{Role: "notary", SignerName: "Ana", SignerEmail: "ana@example.com"}, apperr.ErrValidation},
		{"sms without phone", s.h.staff, contract.ID, InviteRequest{Role: models.SignerRoleBuyer, SignerName: "Ana", SignerEmail: "ana@example.com", Channels: []models.DeliveryChannel{models.DeliveryChannelSMS}}, apperr.ErrValidation},
		{"bad phone", s.h.staff, contract.ID, InviteRequest{Role: models.SignerRoleBuyer, SignerName: "Ana", SignerPhone: "555-0100"}, apperr.ErrValidation},
		{"expiry too long", s.h.staff, contract.ID, InviteRequest{Role: models.SignerRoleBuyer, SignerName: "Ana", SignerEmail: "ana@example.com", ExpiresInDays: 90}, apperr.ErrValidation},
		{"no signature fields", s.h.staff, bare.ID, InviteRequest{Role: models.SignerRoleBuyer, SignerName: "Ana", SignerEmail: "ana@example.com"}, apperr.ErrInvalidState},
		{"other tenant", &Actor{UserID: uuid.New(), TenantID: uuid.New(), Role: StaffRoleAdmin}, contract.ID, InviteRequest{Role: models.SignerRoleBuyer, SignerName: "Ana", SignerEmail: "ana@example.com"}, apperr.ErrNotFound},
	}
	for _, tc := range cases {
		s.Run(tc.name, func() {
			_, err := s.h.signatures.Invite(s.ctx, tc.actor, tc.id, tc.req)
			s.ErrorIs(err, tc.want)
		})
	}
	s.Empty(s.h.reload(s.T(), contract.ID).Signatures)
}

func (s *SignatureServiceSuite) TestInviteDeliversOverChannels() {
	contract := s.h.contractWithFields(s.T(), models.SignerRoleBuyer)
	inv, err := s.h.signatures.Invite(s.ctx, s.h.staff, contract.ID, InviteRequest{
		Role:        models.SignerRoleBuyer,
		SignerName:  "Ana",
		SignerEmail: "ana@example.com",
		SignerPhone: "+15555550100",
		Channels:    []models.DeliveryChannel{models.DeliveryChannelEmail, models.DeliveryChannelSMS, models.DeliveryChannelEmail},
	})
	s.Require().NoError(err)

	s.Equal("https://sign.example.com/contracts/"+inv.Token, inv.URL)
	s.Equal(s.h.clock.Now().Add(7*24*time.Hour), inv.ExpiresAt)
	s.Equal(models.ChannelList{"email", "sms"}, inv.Signature.Channels)

	msgs := s.h.dispatcher.byKind(NotificationSigningInvitation)
	s.Require().Len(msgs, 2)
	recipients := []string{msgs[0].Recipient, msgs[1].Recipient}
	s.ElementsMatch([]string{"ana@example.com", "+15555550100"}, recipients)
	payload := msgs[0].Payload.(SigningInvitation)
	s.Equal(inv.URL, payload.SigningURL)
	s.Equal("Purchase agreement", payload.ContractName)

	stored := s.h.reload(s.T(), contract.ID).Signatures[0]
	s.Equal(utils.HashToken(inv.Token), stored.TokenHash)
	s.NotContains(stored.TokenHash, inv.Token)
}

func (s *SignatureServiceSuite) TestInPersonSignerCompletedByStaff() {
	contract := s.h.contractWithFields(s.T(), models.SignerRoleBuyer)

	_, sig, err := s.h.signatures.AddSigner(s.ctx, s.h.staff, contract.ID, AddSignerRequest{
		Role:       models.SignerRoleBuyer,
		SignerName: "Walk-in Buyer",
	})
	s.Require().NoError(err)
	s.Equal(models.SignatureTypeInPerson, sig.SignatureType)
	s.Equal(models.SignatureStatusPending, sig.Status)

	_, err = s.h.signatures.Complete(s.ctx, s.h.viewer, contract.ID, sig.ID, CompleteRequest{SignatureData: signatureImage})
	s.ErrorIs(err, apperr.ErrForbidden)

	out, err := s.h.signatures.Complete(s.ctx, s.h.staff, contract.ID, sig.ID, CompleteRequest{SignatureData: signatureImage})
	s.Require().NoError(err)
	s.Equal(models.SignatureStatusSigned, out.Signature.Status)
	s.Equal(models.ContractStatusCompleted, out.Contract.Status)

	events := s.h.events(s.T(), contract.ID)
	for _, e := range events {
		if e.Type == models.EventSignerSigned {
			s.Require().NotNil(e.ActorID)
			s.Equal(s.h.staff.UserID, *e.ActorID)
		}
	}
	s.Empty(s.h.dispatcher.byKind(NotificationSigningInvitation))
}

func (s *SignatureServiceSuite) TestRemotePendingSignerNeedsInvite() {
	contract := s.h.contractWithFields(s.T(), models.SignerRoleBuyer)
	_, sig, err := s.h.signatures.AddSigner(s.ctx, s.h.staff, contract.ID, AddSignerRequest{
		Role:          models.SignerRoleBuyer,
		SignerName:    "Remote Buyer",
		SignerEmail:   "remote@example.com",
		SignatureType: models.SignatureTypeRemote,
	})
	s.Require().NoError(err)

	_, err = s.h.signatures.Complete(s.ctx, s.h.staff, contract.ID, sig.ID, CompleteRequest{SignatureData: signatureImage})
	s.ErrorIs(err, apperr.ErrInvalidState)

	_, err = s.h.signatures.Complete(s.ctx, s.h.staff, contract.ID, uuid.New(), CompleteRequest{SignatureData: signatureImage})
	s.ErrorIs(err, apperr.ErrNotFound)
}

func (s *SignatureServiceSuite) TestSignatureDataValidation() {
	contract := s.h.contractWithFields(s.T(), models.SignerRoleBuyer)
	inv := s.h.invite(s.T(), contract.ID, models.SignerRoleBuyer)

	notAnImage := "data:image/png;base64," + base64.StdEncoding.EncodeToString([]byte("not-a-png"))
	for _, data := range []string{"", "just text", "data:image/gif;base64,R0lGOD", "data:image/png,raw", notAnImage} {
		_, err := s.h.signatures.CompleteByToken(s.ctx, inv.Token, CompleteRequest{SignatureData: data})
		s.ErrorIs(err, apperr.ErrValidation, data)
	}

	stored, err := s.h.store.Put(s.ctx, signaturePNG, "image/png", "uploads/buyer.png")
	s.Require().NoError(err)
	out, err := s.h.signatures.CompleteByToken(s.ctx, inv.Token, CompleteRequest{SignatureData: stored})
	s.Require().NoError(err)
	s.Equal(stored, out.Signature.SignatureData)
}

func (s *SignatureServiceSuite) TestForeignSignatureURLIsRejected() {
	contract := s.h.contractWithFields(s.T(), models.SignerRoleBuyer)
	inv := s.h.invite(s.T(), contract.ID, models.SignerRoleBuyer)

	for _, data := range []string{
		"http://169.254.169.254/latest/meta-data/",
		"https://cdn.example.com/sig.png",
	} {
		_, err := s.h.signatures.CompleteByToken(s.ctx, inv.Token, CompleteRequest{SignatureData: data})
		s.ErrorIs(err, apperr.ErrValidation, data)
	}

	reloaded := s.h.reload(s.T(), contract.ID)
	s.Equal(models.ContractStatusPendingSignatures, reloaded.Status)
	s.Equal(models.SignatureStatusSent, reloaded.Signatures[0].Status)

	// The same link still signs with a real image, and the contract completes.
	out, err := s.complete(inv.Token)
	s.Require().NoError(err)
	s.Equal(models.ContractStatusCompleted, out.Contract.Status)
	s.NotEmpty(out.Contract.FinalDocumentURL)
}

func (s *SignatureServiceSuite) TestCancelRevokesOutstandingLinks() {
	contract := s.h.contractWithFields(s.T(), models.SignerRoleBuyer)
	inv := s.h.invite(s.T(), contract.ID, models.SignerRoleBuyer)

	_, err := s.h.contracts.Cancel(s.ctx, s.h.viewer, contract.ID, CancelContractRequest{})
	s.ErrorIs(err, apperr.ErrForbidden)

	cancelled, err := s.h.contracts.Cancel(s.ctx, s.h.staff, contract.ID, CancelContractRequest{Reason: "deal fell through"})
	s.Require().NoError(err)
	s.Equal(models.ContractStatusCancelled, cancelled.Status)

	_, err = s.h.signatures.Resolve(s.ctx, inv.Token, "", "")
	s.ErrorIs(err, apperr.ErrNotFound)

	_, err = s.h.signatures.Complete(s.ctx, s.h.staff, contract.ID, inv.Signature.ID, CompleteRequest{SignatureData: signatureImage})
	s.ErrorIs(err, apperr.ErrInvalidState)

	_, err = s.h.signatures.Invite(s.ctx, s.h.staff, contract.ID, InviteRequest{
		Role: models.SignerRoleBuyer, SignerName: "Ana", SignerEmail: "ana@example.com",
	})
	s.ErrorIs(err, apperr.ErrInvalidState)
}

func (s *SignatureServiceSuite) TestExpireStale() {
	contract := s.h.contractWithFields(s.T(), models.SignerRoleBuyer, models.SignerRoleDealer)
	s.h.invite(s.T(), contract.ID, models.SignerRoleBuyer)
	_, err := s.h.signatures.Invite(s.ctx, s.h.staff, contract.ID, InviteRequest{
		Role: models.SignerRoleDealer, SignerName: "Dan", SignerEmail: "dan@example.com", ExpiresInDays: 30,
	})
	s.Require().NoError(err)

	n, err := s.h.signatures.ExpireStale(s.ctx)
	s.Require().NoError(err)
	s.Zero(n)

	s.h.clock.Advance(8 * 24 * time.Hour)
	n, err = s.h.signatures.ExpireStale(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, n)

	n, err = s.h.signatures.ExpireStale(s.ctx)
	s.Require().NoError(err)
	s.Zero(n)

	reloaded := s.h.reload(s.T(), contract.ID)
	statuses := map[models.SignerRole]models.SignatureStatus{}
	for _, sig := range reloaded.Signatures {
		statuses[sig.Role] = sig.Status
	}
	s.Equal(models.SignatureStatusExpired, statuses[models.SignerRoleBuyer])
	s.Equal(models.SignatureStatusSent, statuses[models.SignerRoleDealer])
	s.Equal(models.ContractStatusPendingSignatures, reloaded.Status)
}

func (s *SignatureServiceSuite) TestFinalizeRequiresFullySigned() {
	contract := s.h.contractWithFields(s.T(), models.SignerRoleBuyer)

	_, err := s.h.completion.Finalize(s.ctx, s.h.staff, contract.ID)
	s.ErrorIs(err, apperr.ErrInvalidState)
	_, err = s.h.completion.Finalize(s.ctx, s.h.viewer, contract.ID)
	s.ErrorIs(err, apperr.ErrForbidden)
}

func TestSignatureServiceSuite(t *testing.T) {
	suite.Run(t, new(SignatureServiceSuite))
}

func TestAsyncCompletion(t *testing.T) {
	cfg := signingConfig()
	cfg.AsyncCompletion = true
	h := newHarness(t, cfg)
	ctx := context.Background()

	contract := h.contractWithFields(t, models.SignerRoleBuyer)
	inv := h.invite(t, contract.ID, models.SignerRoleBuyer)

	out, err := h.signatures.CompleteByToken(ctx, inv.Token, CompleteRequest{SignatureData: signatureImage})
	assert.NoError(t, err)
	assert.Equal(t, models.ContractStatusFullySigned, out.Contract.Status)

	assert.Eventually(t, func() bool {
		c, err := h.contracts.Get(ctx, h.staff, contract.ID)
		return err == nil && c.Status == models.ContractStatusCompleted
	}, 5*time.Second, 20*time.Millisecond)
}

func TestNormalizeChannels(t *testing.T) {
	tests := []struct {
		name    string
		req     InviteRequest
		want    models.ChannelList
		wantErr bool
	}{
		{"email default", InviteRequest{SignerEmail: "a@example.com"}, models.ChannelList{"email"}, false},
		{"sms default", InviteRequest{SignerPhone: "+15555550100"}, models.ChannelList{"sms"}, false},
		{"no contact", InviteRequest{}, nil, true},
		{"whatsapp", InviteRequest{SignerPhone: "+15555550100", Channels: []models.DeliveryChannel{"whatsapp"}}, models.ChannelList{"whatsapp"}, false},
		{"email without address", InviteRequest{SignerPhone: "+15555550100", Channels: []models.DeliveryChannel{"email"}}, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := normalizeChannels(tt.req)
			if tt.wantErr {
				assert.ErrorIs(t, err, apperr.ErrValidation)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
