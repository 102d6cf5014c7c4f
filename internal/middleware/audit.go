// audit.go records API calls through the audit recorder after the handler has run.
package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lanehq/lanehq/internal/audit"
	"github.com/lanehq/lanehq/internal/config"
	"github.com/lanehq/lanehq/internal/safego"
)

// AuditRecorder is the subset of audit.Recorder the middleware needs.
type AuditRecorder interface {
	Record(ctx context.Context, entry *audit.Entry) error
}

// AuditMiddleware records write requests, and reads or failures when configured.
// Recording happens off the request path.
func AuditMiddleware(recorder AuditRecorder, cfg config.AuditConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if !cfg.Enabled || recorder == nil || c.Request.Method == http.MethodOptions {
			return
		}
		isRead := c.Request.Method == http.MethodGet || c.Request.Method == http.MethodHead
		isFailed := c.Writer.Status() >= 400
		if isRead && !cfg.LogReadOperations {
			return
		}
		if isFailed && !cfg.LogFailedRequests {
			return
		}

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		entry := &audit.Entry{
			Timestamp:    time.Now().UTC(),
			Action:       c.Request.Method + " " + route,
			ResourceType: resourceType(route),
			ResourceID:   resourceID(c),
			IPAddress:    c.ClientIP(),
			StatusCode:   c.Writer.Status(),
		}
		if p := PrincipalFrom(c); p != nil {
			entry.UserID = p.Subject
			entry.AuthMethod = p.Method
		}
		if org := OrganizationFrom(c); org != nil {
			entry.OrganizationID = org.ID
		}
		if id, ok := c.Get(RequestIDKey); ok {
			entry.Metadata = map[string]interface{}{"request_id": id}
		}

		safego.Go("audit", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = recorder.Record(ctx, entry)
		})
	}
}

// resourceType derives the resource from the route template, most specific segment first.
func resourceType(route string) string {
	switch {
	case strings.Contains(route, "/attachments"):
		return "attachment"
	case strings.Contains(route, "/feedback"):
		return "feedback"
	case strings.Contains(route, "/roadmap"):
		return "roadmap"
	case strings.Contains(route, "/releases"):
		return "release"
	case strings.Contains(route, "/boards"):
		return "board"
	case strings.Contains(route, "/orgs"):
		return "organization"
	default:
		return ""
	}
}

func resourceID(c *gin.Context) string {
	for _, name := range []string{"attachment", "item", "release"} {
		if v := c.Param(name); v != "" {
			return v
		}
	}
	if b := BoardFrom(c); b != nil {
		return b.ID
	}
	return ""
}
