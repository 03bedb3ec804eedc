// internal/middleware/logging.go
package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/javajoker/dealer-contracts/internal/models"
)

const maxAuditBody = 64 << 10

// Body fields never copied into the audit trail.
var redactedFields = []string{"signature_data", "password", "token", "checksum"}

// AuditLogMiddleware logs every request and persists mutating ones. Signing
// links are bearer credentials, so their token segment is masked.
func AuditLogMiddleware(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		path := redactPath(c.Request.URL.Path)

		// Skip auditing for reads and health checks
		if c.Request.Method == "GET" || c.Request.Method == "OPTIONS" || path == "/health" {
			start := time.Now()
			c.Next()
			logrus.WithFields(logrus.Fields{
				"method":     c.Request.Method,
				"path":       path,
				"status":     c.Writer.Status(),
				"duration":   time.Since(start).Milliseconds(),
				"request_id": c.GetString("request_id"),
			}).Debug("Request processed")
			return
		}

		// Read request body
		var requestBody []byte
		if c.Request.Body != nil && c.Request.ContentLength <= maxAuditBody && isJSON(c) {
			requestBody, _ = io.ReadAll(c.Request.Body)
			c.Request.Body = io.NopCloser(bytes.NewBuffer(requestBody))
		}

		start := time.Now()
		c.Next()
		duration := time.Since(start)

		userID, _ := c.Get("user_id")
		auditLog := &models.AuditLog{
			UserID:       parseContextUUID(c, "user_id"),
			TenantID:     parseContextUUID(c, "tenant_id"),
			RequestID:    c.GetString("request_id"),
			Action:       c.Request.Method + " " + path,
			ResourceType: extractResourceType(path),
			StatusCode:   c.Writer.Status(),
			IPAddress:    c.ClientIP(),
			UserAgent:    c.Request.UserAgent(),
			NewValues:    auditValues(requestBody),
		}

		// Extract resource ID from URL if present
		if resourceID := extractResourceID(path); resourceID != "" {
			if parsed, err := uuid.Parse(resourceID); err == nil {
				auditLog.ResourceID = &parsed
			}
		}

		// Save audit log asynchronously
		go func() {
			if err := db.Create(auditLog).Error; err != nil {
				logrus.WithError(err).Error("Failed to create audit log")
			}
		}()

		logrus.WithFields(logrus.Fields{
			"method":     c.Request.Method,
			"path":       path,
			"status":     c.Writer.Status(),
			"duration":   duration.Milliseconds(),
			"ip":         c.ClientIP(),
			"user_agent": c.Request.UserAgent(),
			"user_id":    userID,
			"request_id": auditLog.RequestID,
			"trace_id":   traceID(c),
		}).Info("Request processed")
	}
}

func traceID(c *gin.Context) string {
	sc := trace.SpanContextFromContext(c.Request.Context())
	if !sc.HasTraceID() {
		return ""
	}
	return sc.TraceID().String()
}

func isJSON(c *gin.Context) bool {
	return strings.HasPrefix(c.ContentType(), "application/json")
}

func parseContextUUID(c *gin.Context, key string) *uuid.UUID {
	raw := c.GetString(key)
	if raw == "" {
		return nil
	}
	parsed, err := uuid.Parse(raw)
	if err != nil {
		return nil
	}
	return &parsed
}

func auditValues(body []byte) datatypes.JSON {
	if len(body) == 0 {
		return nil
	}
	var data map[string]interface{}
	if err := json.Unmarshal(body, &data); err != nil {
		return nil
	}
	for _, field := range redactedFields {
		if _, ok := data[field]; ok {
			data[field] = "[redacted]"
		}
	}
	out, err := json.Marshal(data)
	if err != nil {
		return nil
	}
	return datatypes.JSON(out)
}

// redactPath masks the token in /v1/sign/{token}/... paths.
func redactPath(path string) string {
	parts := strings.Split(path, "/")
	for i := 0; i+1 < len(parts); i++ {
		if parts[i] == "sign" && parts[i+1] != "" {
			parts[i+1] = ":token"
			break
		}
	}
	return strings.Join(parts, "/")
}

func extractResourceType(path string) string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) >= 2 && parts[0] == "v1" {
		return parts[1]
	}
	if len(parts) >= 1 {
		return parts[0]
	}
	return "unknown"
}

func extractResourceID(path string) string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	for _, part := range parts {
		if _, err := uuid.Parse(part); err == nil {
			return part
		}
	}
	return ""
}
