// internal/repository/mutation.go
package repository

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/javajoker/dealer-contracts/internal/models"
)

// ErrUnchanged lets a mutation bail out without writing anything.
var ErrUnchanged = errors.New("contract unchanged")

// Mutation is handed to Mutate callbacks. Callers edit Contract in place and
// record history through Emit; persistence happens after the callback returns.
type Mutation struct {
	Contract *models.Contract
	Now      time.Time

	actorID     *uuid.UUID
	events      []models.ContractEvent
	deferredErr error
}

// Emit appends an event that is written in the same transaction as the change.
func (m *Mutation) Emit(eventType models.EventType, sig *models.Signature, detail string) {
	ev := models.ContractEvent{
		TenantID:   m.Contract.TenantID,
		ContractID: m.Contract.ID,
		Type:       eventType,
		ActorID:    m.actorID,
		Detail:     detail,
	}
	if sig != nil {
		id := sig.ID
		ev.SignatureID = &id
		ev.IPAddress = sig.IPAddress
		ev.UserAgent = sig.UserAgent
		ev.ToStatus = string(sig.Status)
	}
	m.events = append(m.events, ev)
}

func (m *Mutation) emitStatusChange(from, to models.ContractStatus) {
	m.events = append(m.events, models.ContractEvent{
		TenantID:   m.Contract.TenantID,
		ContractID: m.Contract.ID,
		Type:       models.EventStatusChanged,
		FromStatus: string(from),
		ToStatus:   string(to),
		ActorID:    m.actorID,
	})
}

// Transition moves the contract to a status that is not derived from its
// signatures, such as completed or cancelled.
func (m *Mutation) Transition(to models.ContractStatus) {
	from := m.Contract.Status
	if from == to {
		return
	}
	m.Contract.Status = to
	m.emitStatusChange(from, to)
}

// FailAfterCommit persists the mutation and then reports err to the caller.
// Used when a rejected request still changes state, such as an expired link.
func (m *Mutation) FailAfterCommit(err error) {
	m.deferredErr = err
}

func (m *Mutation) Events() []models.ContractEvent {
	return m.events
}

// AddSignature appends a new signer entry with the next position.
func (m *Mutation) AddSignature(entry models.Signature) *models.Signature {
	entry.ID = uuid.New()
	entry.ContractID = m.Contract.ID
	entry.TenantID = m.Contract.TenantID
	entry.Position = m.Contract.NextSignaturePosition()
	if entry.Status == "" {
		entry.Status = models.SignatureStatusPending
	}
	m.Contract.Signatures = append(m.Contract.Signatures, entry)
	return &m.Contract.Signatures[len(m.Contract.Signatures)-1]
}
