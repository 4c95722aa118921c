// audit.go provides Gin middleware that records authenticated operations to the audit
// log, with optional shipping to the broker.
package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/msgcore/msgcore-sub001/internal/audit"
	"github.com/msgcore/msgcore-sub001/internal/config"
)

// AuditRecorder accepts entries for asynchronous persistence
type AuditRecorder interface {
	Record(entry *audit.LogEntry)
}

// resourceIDParams are the route parameters that identify the affected resource, most specific first
var resourceIDParams = []string{"aliasId", "identityId", "keyId", "platformId", "webhookId", "messageId", "userId"}

// AuditMiddleware records the request after the handler ran.
//
// Without config only successful writes are recorded. LogReadOperations adds GET requests
// and LogFailedRequests adds writes that ended in 4xx/5xx.
func AuditMiddleware(recorder AuditRecorder, auditCfg *config.AuditConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Request.Method == http.MethodOptions {
			return
		}

		ac := GetAuthContext(c)
		if ac == nil {
			return
		}

		isReadOp := c.Request.Method == http.MethodGet
		isFailed := c.Writer.Status() >= 400

		logReadOps := auditCfg != nil && auditCfg.LogReadOperations
		logFailedReqs := auditCfg != nil && auditCfg.LogFailedRequests
		if isReadOp && !logReadOps {
			return
		}
		if isFailed && !logFailedReqs {
			return
		}

		route := c.FullPath()
		entry := &audit.LogEntry{
			Timestamp:    time.Now(),
			Action:       c.Request.Method + " " + route,
			Operation:    c.GetString(OperationKey),
			UserID:       ac.UserID(),
			ProjectID:    c.Param(ProjectParam),
			ResourceType: resourceType(route),
			ResourceID:   resourceID(c),
			IPAddress:    c.ClientIP(),
			AuthMethod:   string(ac.AuthType),
			RequestID:    c.GetString(RequestIDKey),
			StatusCode:   c.Writer.Status(),
		}
		if ac.APIKey != nil {
			entry.APIKeyID = ac.APIKey.ID
		}

		recorder.Record(entry)
	}
}

// resourceType returns the collection segment of a route template, e.g. "keys" for
// /api/v1/projects/:projectId/keys/:keyId/roll and "projects" for /api/v1/projects.
func resourceType(route string) string {
	segments := strings.Split(strings.Trim(route, "/"), "/")
	for i, seg := range segments {
		if seg == ":"+ProjectParam {
			if i+1 < len(segments) {
				return segments[i+1]
			}
			return "projects"
		}
	}
	for i := len(segments) - 1; i >= 0; i-- {
		if segments[i] != "" && !strings.HasPrefix(segments[i], ":") {
			return segments[i]
		}
	}
	return ""
}

func resourceID(c *gin.Context) string {
	for _, p := range resourceIDParams {
		if v := c.Param(p); v != "" {
			return v
		}
	}
	return ""
}
