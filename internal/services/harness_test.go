package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/png"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/javajoker/dealer-contracts/internal/config"
	"github.com/javajoker/dealer-contracts/internal/models"
	"github.com/javajoker/dealer-contracts/internal/repository"
	"github.com/javajoker/dealer-contracts/internal/testutil"
)

const templateURL = "mem://templates/purchase.pdf"

var (
	signaturePNG   = pngBytes(40, 16)
	signatureImage = "data:image/png;base64," + base64.StdEncoding.EncodeToString(signaturePNG)
)

func pngBytes(w, h int) []byte {
	img := image.NewGray(image.Rect(0, 0, w, h))
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type memoryStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	failPut bool
}

func newMemoryStore() *memoryStore {
	return &memoryStore{objects: map[string][]byte{}}
}

func (s *memoryStore) Put(_ context.Context, data []byte, _ string, path string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failPut {
		return "", errors.New("store offline")
	}
	url := "mem://" + strings.TrimLeft(path, "/")
	s.objects[url] = append([]byte(nil), data...)
	return url, nil
}

func (s *memoryStore) Get(_ context.Context, ref string) ([]byte, error) {
	if strings.HasPrefix(ref, "data:") {
		return decodeDataURL(ref)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[ref]
	if !ok {
		return nil, fmt.Errorf("no object at %s", ref)
	}
	return data, nil
}

func (s *memoryStore) Owns(ref string) bool {
	return strings.HasPrefix(ref, "mem://")
}

func (s *memoryStore) object(ref string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[ref]
	return data, ok
}

type stubAssembler struct {
	mu         sync.Mutex
	fail       bool
	calls      int
	lastStamps []Stamp
}

func (a *stubAssembler) Assemble(_ context.Context, base []byte, stamps []Stamp) ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls++
	a.lastStamps = stamps
	if a.fail {
		return nil, errors.New("renderer crashed")
	}
	out := append([]byte(nil), base...)
	return append(out, []byte(fmt.Sprintf("|%d stamps", len(stamps)))...), nil
}

func (a *stubAssembler) setFail(fail bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.fail = fail
}

func (a *stubAssembler) callCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

func (a *stubAssembler) stamps() []Stamp {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastStamps
}

type recordingDispatcher struct {
	mu       sync.Mutex
	messages []Message
}

func (d *recordingDispatcher) Enqueue(_ context.Context, msg Message) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.messages = append(d.messages, msg)
	return nil
}

func (d *recordingDispatcher) Start(context.Context) {}
func (d *recordingDispatcher) Stop()                 {}

func (d *recordingDispatcher) byKind(kind NotificationKind) []Message {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []Message
	for _, m := range d.messages {
		if m.Payload.Kind() == kind {
			out = append(out, m)
		}
	}
	return out
}

// harness wires the services against sqlite and in-memory collaborators.
type harness struct {
	db           *gorm.DB
	repo         *repository.ContractRepository
	clock        *testClock
	store        *memoryStore
	assembler    *stubAssembler
	dispatcher   *recordingDispatcher
	contracts    *ContractService
	signatures   *SignatureService
	completion   *CompletionService
	digitization *DigitizationService
	staff        *Actor
	viewer       *Actor
}

func signingConfig() config.SigningConfig {
	return config.SigningConfig{
		BaseURL:           "https://sign.example.com/",
		DefaultExpiryDays: 7,
		MaxExpiryDays:     30,
		DealershipName:    "Test Motors",
	}
}

func newHarness(t *testing.T, cfg config.SigningConfig) *harness {
	t.Helper()

	db := testutil.NewDB(t)
	repo := repository.NewContractRepository(db, 5)
	clock := &testClock{now: time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)}
	repo.SetClock(clock.Now)

	store := newMemoryStore()
	store.objects[templateURL] = []byte("%PDF-1.7 template")
	assembler := &stubAssembler{}
	dispatcher := &recordingDispatcher{}

	completion := NewCompletionService(repo, store, assembler, dispatcher, cfg.DealershipName)
	tenant := uuid.New()
	return &harness{
		db:           db,
		repo:         repo,
		clock:        clock,
		store:        store,
		assembler:    assembler,
		dispatcher:   dispatcher,
		contracts:    NewContractService(repo),
		signatures:   NewSignatureService(repo, store, dispatcher, completion, cfg),
		completion:   completion,
		digitization: NewDigitizationService(repo, nil, "callback-seed"),
		staff:        &Actor{UserID: uuid.New(), TenantID: tenant, Role: StaffRoleDealer, Name: "Dana"},
		viewer:       &Actor{UserID: uuid.New(), TenantID: tenant, Role: StaffRoleViewer, Name: "Vic"},
	}
}

func signatureField(role models.SignerRole, index int) models.SignatureField {
	return models.SignatureField{
		ID:           string(role) + "-signature",
		Type:         models.FieldTypeSignature,
		Page:         1,
		X:            0.1,
		Y:            0.1 + 0.1*float64(index),
		Width:        0.3,
		Height:       0.05,
		Required:     true,
		AssignedRole: role,
	}
}

// contractWithFields creates a contract with one required signature field per
// role. The first role also gets a date field.
func (h *harness) contractWithFields(t *testing.T, roles ...models.SignerRole) *models.Contract {
	t.Helper()
	ctx := context.Background()

	contract, err := h.contracts.Create(ctx, h.staff, CreateContractRequest{
		Name:                "Purchase agreement",
		Type:                models.ContractTypePurchase,
		OriginalDocumentURL: templateURL,
	})
	require.NoError(t, err)

	var fields []models.SignatureField
	for i, role := range roles {
		fields = append(fields, signatureField(role, i))
	}
	if len(roles) > 0 {
		fields = append(fields, models.SignatureField{
			ID: string(roles[0]) + "-date", Type: models.FieldTypeDate, Page: 1,
			X: 0.5, Y: 0.1, Width: 0.2, Height: 0.04, AssignedRole: roles[0],
		})
	}
	if len(fields) == 0 {
		return contract
	}

	contract, err = h.digitization.DefineFields(ctx, h.staff, contract.ID, DefineFieldsRequest{Fields: fields})
	require.NoError(t, err)
	return contract
}

func (h *harness) invite(t *testing.T, contractID uuid.UUID, role models.SignerRole) *Invitation {
	t.Helper()
	inv, err := h.signatures.Invite(context.Background(), h.staff, contractID, InviteRequest{
		Role:        role,
		SignerName:  strings.ToUpper(string(role[:1])) + string(role[1:]),
		SignerEmail: string(role) + "@example.com",
	})
	require.NoError(t, err)
	return inv
}

func (h *harness) reload(t *testing.T, contractID uuid.UUID) *models.Contract {
	t.Helper()
	contract, err := h.contracts.Get(context.Background(), h.staff, contractID)
	require.NoError(t, err)
	return contract
}

func (h *harness) events(t *testing.T, contractID uuid.UUID) []models.ContractEvent {
	t.Helper()
	events, err := h.contracts.Events(context.Background(), h.staff, contractID)
	require.NoError(t, err)
	return events
}

func countEvents(events []models.ContractEvent, eventType models.EventType, toStatus string) int {
	n := 0
	for _, e := range events {
		if e.Type == eventType && (toStatus == "" || e.ToStatus == toStatus) {
			n++
		}
	}
	return n
}
