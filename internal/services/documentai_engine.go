// internal/services/documentai_engine.go
package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	documentai "cloud.google.com/go/documentai/apiv1"
	"cloud.google.com/go/documentai/apiv1/documentaipb"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"google.golang.org/api/option"

	"github.com/javajoker/dealer-contracts/internal/config"
	"github.com/javajoker/dealer-contracts/internal/models"
)

// DocumentAIEngine runs the Document AI form parser over a template and maps
// detected form fields onto signature fields.
type DocumentAIEngine struct {
	client    *documentai.DocumentProcessorClient
	store     DocumentStore
	processor string
	timeout   time.Duration
}

func NewDocumentAIEngine(ctx context.Context, cfg *config.Config, store DocumentStore) (*DocumentAIEngine, error) {
	location := cfg.Extraction.DocumentAILocation
	if location == "" {
		location = "us"
	}
	endpoint := fmt.Sprintf("%s-documentai.googleapis.com:443", location)

	opts := []option.ClientOption{option.WithEndpoint(endpoint)}
	if cfg.GCS.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.GCS.CredentialsFile))
	}
	client, err := documentai.NewDocumentProcessorClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("documentai client: %w", err)
	}

	timeout := time.Duration(cfg.Extraction.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 3 * time.Minute
	}

	logrus.WithField("endpoint", endpoint).Info("Document AI extraction engine initialized")
	return &DocumentAIEngine{
		client:    client,
		store:     store,
		processor: processorName(cfg.Extraction.DocumentAIProject, location, cfg.Extraction.DocumentAIProcessor),
		timeout:   timeout,
	}, nil
}

func (e *DocumentAIEngine) Name() string { return EngineDocumentAI }

func (e *DocumentAIEngine) Close() error {
	return e.client.Close()
}

func (e *DocumentAIEngine) Submit(ctx context.Context, req ExtractionRequest, done ResultCallback) (string, error) {
	taskID := "docai-" + uuid.NewString()

	go func() {
		runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.timeout)
		defer cancel()

		result := ExtractionResult{
			TenantID:   req.TenantID,
			ContractID: req.ContractID,
			TaskID:     taskID,
			Engine:     EngineDocumentAI,
		}
		fields, err := e.extract(runCtx, req.DocumentURL)
		if err != nil {
			result.Error = err.Error()
		} else {
			result.Fields = fields
		}

		if err := done(runCtx, result); err != nil {
			logrus.WithError(err).WithFields(logrus.Fields{
				"contract_id": req.ContractID,
				"task_id":     taskID,
			}).Error("Failed to apply extraction result")
		}
	}()

	return taskID, nil
}

func (e *DocumentAIEngine) extract(ctx context.Context, documentURL string) ([]models.SignatureField, error) {
	data, err := e.store.Get(ctx, documentURL)
	if err != nil {
		return nil, err
	}

	resp, err := e.client.ProcessDocument(ctx, &documentaipb.ProcessRequest{
		Name: e.processor,
		Source: &documentaipb.ProcessRequest_RawDocument{
			RawDocument: &documentaipb.RawDocument{
				Content:  data,
				MimeType: "application/pdf",
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("documentai ProcessDocument: %w", err)
	}
	if resp == nil || resp.Document == nil {
		return []models.SignatureField{}, nil
	}
	return fieldsFromDocument(resp.Document), nil
}

// fieldsFromDocument converts form fields into signature fields using their labels.
func fieldsFromDocument(doc *documentaipb.Document) []models.SignatureField {
	fields := []models.SignatureField{}
	for _, p := range doc.Pages {
		if p == nil {
			continue
		}
		for i, ff := range p.FormFields {
			if ff == nil {
				continue
			}
			label := ""
			if ff.FieldName != nil {
				label = strings.TrimSpace(textFromAnchor(doc.Text, ff.FieldName.TextAnchor))
			}

			var box *documentaipb.BoundingPoly
			if ff.FieldValue != nil && ff.FieldValue.BoundingPoly != nil {
				box = ff.FieldValue.BoundingPoly
			} else if ff.FieldName != nil {
				box = ff.FieldName.BoundingPoly
			}
			x, y, w, h, ok := normalizedBox(box)
			if !ok {
				continue
			}

			fieldType := fieldTypeFromLabel(label)
			fields = append(fields, models.SignatureField{
				ID:           fmt.Sprintf("p%d-f%d", p.PageNumber, i+1),
				Type:         fieldType,
				Page:         int(p.PageNumber),
				X:            x,
				Y:            y,
				Width:        w,
				Height:       h,
				Required:     fieldType == models.FieldTypeSignature,
				AssignedRole: roleFromLabel(label),
				Label:        label,
			})
		}
	}
	return fields
}

func normalizedBox(poly *documentaipb.BoundingPoly) (x, y, w, h float64, ok bool) {
	if poly == nil || len(poly.NormalizedVertices) == 0 {
		return 0, 0, 0, 0, false
	}
	minX, minY := 1.0, 1.0
	maxX, maxY := 0.0, 0.0
	for _, v := range poly.NormalizedVertices {
		vx, vy := float64(v.X), float64(v.Y)
		minX, maxX = min(minX, vx), max(maxX, vx)
		minY, maxY = min(minY, vy), max(maxY, vy)
	}
	if maxX <= minX || maxY <= minY {
		return 0, 0, 0, 0, false
	}
	return minX, minY, maxX - minX, maxY - minY, true
}

func fieldTypeFromLabel(label string) models.FieldType {
	l := strings.ToLower(label)
	switch {
	case strings.Contains(l, "initial"):
		return models.FieldTypeInitial
	case strings.Contains(l, "signature") || strings.Contains(l, "sign here") || strings.HasPrefix(l, "signed"):
		return models.FieldTypeSignature
	case strings.Contains(l, "date"):
		return models.FieldTypeDate
	default:
		return models.FieldTypeText
	}
}

func roleFromLabel(label string) models.SignerRole {
	l := strings.ToLower(label)
	switch {
	case strings.Contains(l, "co-buyer"), strings.Contains(l, "cobuyer"), strings.Contains(l, "co-signer"), strings.Contains(l, "cosigner"):
		return models.SignerRoleCosigner
	case strings.Contains(l, "witness"):
		return models.SignerRoleWitness
	case strings.Contains(l, "dealer"), strings.Contains(l, "authorized representative"):
		return models.SignerRoleDealer
	case strings.Contains(l, "seller"):
		return models.SignerRoleSeller
	default:
		return models.SignerRoleBuyer
	}
}

func textFromAnchor(full string, anchor *documentaipb.Document_TextAnchor) string {
	if anchor == nil || len(anchor.TextSegments) == 0 || full == "" {
		return ""
	}
	var b strings.Builder
	for _, seg := range anchor.TextSegments {
		if seg == nil {
			continue
		}
		start := int(seg.StartIndex)
		end := int(seg.EndIndex)
		if start < 0 {
			start = 0
		}
		if end > len(full) {
			end = len(full)
		}
		if start >= end {
			continue
		}
		b.WriteString(full[start:end])
	}
	return b.String()
}

func processorName(project, location, processorID string) string {
	project = strings.TrimSpace(project)
	location = strings.TrimSpace(location)
	processorID = strings.TrimSpace(processorID)
	if project == "" || location == "" || processorID == "" {
		return ""
	}
	return fmt.Sprintf("projects/%s/locations/%s/processors/%s", project, location, processorID)
}
