// internal/services/extraction_engine.go
package services

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/javajoker/dealer-contracts/internal/apperr"
	"github.com/javajoker/dealer-contracts/internal/config"
	"github.com/javajoker/dealer-contracts/internal/models"
	"github.com/javajoker/dealer-contracts/internal/utils"
)

const (
	EngineManual     = "manual"
	EngineDocumentAI = "documentai"
	EngineWebhook    = "webhook"
)

type ExtractionRequest struct {
	TenantID    uuid.UUID
	ContractID  uuid.UUID
	DocumentURL string
}

// ExtractionResult is what an engine reports once a template has been analysed.
type ExtractionResult struct {
	TenantID   uuid.UUID
	ContractID uuid.UUID
	TaskID     string
	Engine     string
	Fields     []models.SignatureField
	Error      string
}

func (r ExtractionResult) Failed() bool {
	return r.Error != ""
}

// ResultCallback receives results from engines that finish in-process.
type ResultCallback func(ctx context.Context, result ExtractionResult) error

// ExtractionEngine analyses a template document for fillable fields. Engines
// that complete asynchronously call done; remote engines report through the
// digitization callback endpoint instead.
type ExtractionEngine interface {
	Name() string
	Submit(ctx context.Context, req ExtractionRequest, done ResultCallback) (string, error)
}

// ManualEngine leaves the contract in processing until staff define fields.
type ManualEngine struct{}

func (ManualEngine) Name() string { return EngineManual }

func (ManualEngine) Submit(_ context.Context, _ ExtractionRequest, _ ResultCallback) (string, error) {
	return "", nil
}

// WebhookEngine hands the template to an external extraction API which calls back when done.
type WebhookEngine struct {
	cfg        config.ExtractionConfig
	httpClient *http.Client
}

type webhookTaskRequest struct {
	DataID      string `json:"data_id"`
	DocumentURL string `json:"document_url"`
	CallbackURL string `json:"callback_url"`
}

type webhookTaskResponse struct {
	TaskID string `json:"task_id"`
}

// WebhookCallback is the body posted back by the extraction API. Content is a
// JSON document whose integrity is covered by Checksum.
type WebhookCallback struct {
	DataID   string `json:"data_id" validate:"required"`
	TaskID   string `json:"task_id"`
	Content  string `json:"content" validate:"required"`
	Checksum string `json:"checksum" validate:"required"`
}

type webhookContent struct {
	Status string                  `json:"status"`
	Fields []models.SignatureField `json:"fields"`
	Error  string                  `json:"error"`
}

func NewWebhookEngine(cfg config.ExtractionConfig) *WebhookEngine {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &WebhookEngine{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (e *WebhookEngine) Name() string { return EngineWebhook }

func (e *WebhookEngine) Submit(ctx context.Context, req ExtractionRequest, _ ResultCallback) (string, error) {
	body, err := json.Marshal(webhookTaskRequest{
		DataID:      WebhookDataID(req.TenantID, req.ContractID),
		DocumentURL: req.DocumentURL,
		CallbackURL: e.cfg.WebhookCallbackURL,
	})
	if err != nil {
		return "", err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.cfg.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if e.cfg.WebhookToken != "" {
		httpReq.Header.Set("Authorization", "Bearer "+e.cfg.WebhookToken)
	}

	resp, err := e.httpClient.Do(httpReq)
	if err != nil {
		return "", apperr.Upstream(err, "submit extraction task")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", apperr.Upstream(err, "read extraction response")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", apperr.Upstream(nil, "extraction api http %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var out webhookTaskResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", apperr.Upstream(err, "decode extraction response")
	}
	return out.TaskID, nil
}

// WebhookDataID binds a task to its tenant and contract.
func WebhookDataID(tenantID, contractID uuid.UUID) string {
	return tenantID.String() + ":" + contractID.String()
}

func WebhookChecksum(dataID, seed, content string) string {
	return utils.HashString(dataID + seed + content)
}

// ParseWebhookCallback verifies the checksum and decodes the reported result.
func ParseWebhookCallback(cb WebhookCallback, seed string) (*ExtractionResult, error) {
	expected := WebhookChecksum(cb.DataID, seed, cb.Content)
	if subtle.ConstantTimeCompare([]byte(expected), []byte(strings.ToLower(cb.Checksum))) != 1 {
		return nil, apperr.Validation("callback checksum mismatch")
	}

	tenantPart, contractPart, ok := strings.Cut(cb.DataID, ":")
	if !ok {
		return nil, apperr.Validation("malformed data id")
	}
	tenantID, err := uuid.Parse(tenantPart)
	if err != nil {
		return nil, apperr.Validation("malformed data id")
	}
	contractID, err := uuid.Parse(contractPart)
	if err != nil {
		return nil, apperr.Validation("malformed data id")
	}

	var content webhookContent
	if err := json.Unmarshal([]byte(cb.Content), &content); err != nil {
		return nil, apperr.Validation("malformed callback content: %v", err)
	}

	result := &ExtractionResult{
		TenantID:   tenantID,
		ContractID: contractID,
		TaskID:     cb.TaskID,
		Engine:     EngineWebhook,
		Fields:     content.Fields,
		Error:      content.Error,
	}
	if content.Status != "" && content.Status != "completed" && result.Error == "" {
		result.Error = "extraction " + content.Status
	}
	return result, nil
}
