// This file answers the RPC-style read the surrounding HTTP layer uses to
// render the dashboard (spec §2 "the HTTP layer consults the Registry
// indirectly via RPC-style requests to the hub"): a plain snapshot of the
// caller's own Clients, no socket handles.
//
// It also renders that snapshot as the HTML front itself (SPEC_FULL.md
// SUPPLEMENTED FEATURES #4), grounded on the teacher's own inline
// html/template usage in api/internal/handlers/notifications.go
// (template.New(...).Parse(...) against a Go string literal, no on-disk
// .tmpl files or LoadHTMLGlob). Client-declared Hostname/Project is already
// bluemonday-stripped at registration time (hub.go's metadataSanitizer),
// but this render path runs its own UGCPolicy pass first — the dashboard is
// the one place that text reaches a browser as markup, and a future
// metadata field added upstream of the Registry shouldn't have to
// remember to sanitize for this specific consumer.
package httpapi

import (
	"html/template"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/microcosm-cc/bluemonday"

	"github.com/relaybridge/hub/internal/auth"
	appErrors "github.com/relaybridge/hub/internal/errors"
	"github.com/relaybridge/hub/internal/hub"
)

type DashboardHandler struct {
	manager *hub.Manager
	tmpl    *template.Template
	render  *bluemonday.Policy
}

func NewDashboardHandler(manager *hub.Manager) *DashboardHandler {
	return &DashboardHandler{
		manager: manager,
		tmpl:    template.Must(template.New("dashboard").Parse(dashboardTemplate)),
		render:  bluemonday.UGCPolicy(),
	}
}

// Clients returns the caller's current Registry snapshot as JSON, for
// initial page render before the browser's own WebSocket takes over.
func (d *DashboardHandler) Clients(c *gin.Context) {
	h, err := d.hubFor(c)
	if err != nil {
		return
	}
	c.JSON(http.StatusOK, gin.H{"clients": h.Snapshot()})
}

// dashboardRow is the sanitized, template-safe view of one Client row.
type dashboardRow struct {
	ID       string
	Status   string
	Hostname string
	Project  string
}

// Dashboard renders the caller's current Registry snapshot as an HTML page,
// the stateless front spec §1 names as an external collaborator whose
// interface boundary this hub must satisfy.
func (d *DashboardHandler) Dashboard(c *gin.Context) {
	h, err := d.hubFor(c)
	if err != nil {
		return
	}

	snapshot := h.Snapshot()
	rows := make([]dashboardRow, 0, len(snapshot))
	for _, client := range snapshot {
		rows = append(rows, dashboardRow{
			ID:       d.render.Sanitize(client.ID),
			Status:   d.render.Sanitize(string(client.Metadata.Status)),
			Hostname: d.render.Sanitize(client.Metadata.Hostname),
			Project:  d.render.Sanitize(client.Metadata.Project),
		})
	}

	c.Header("Content-Type", "text/html; charset=utf-8")
	c.Status(http.StatusOK)
	if err := d.tmpl.Execute(c.Writer, dashboardView{Rows: rows}); err != nil {
		appErrors.AbortWithError(c, appErrors.InternalServer("failed to render dashboard"))
	}
}

func (d *DashboardHandler) hubFor(c *gin.Context) (*hub.Hub, error) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		err := appErrors.Unauthorized("session required")
		appErrors.AbortWithError(c, err)
		return nil, err
	}

	h, err := d.manager.GetOrCreate(userID)
	if err != nil {
		wrapped := appErrors.InternalServer("hub unavailable")
		appErrors.AbortWithError(c, wrapped)
		return nil, wrapped
	}
	return h, nil
}

type dashboardView struct {
	Rows []dashboardRow
}

const dashboardTemplate = `<!DOCTYPE html>
<html>
<head>
	<meta charset="utf-8">
	<title>Connected Clients</title>
	<style>
		body { font-family: Arial, sans-serif; color: #333; margin: 2rem; }
		table { border-collapse: collapse; width: 100%; }
		th, td { text-align: left; padding: 8px; border-bottom: 1px solid #ddd; }
		th { background-color: #4CAF50; color: white; }
	</style>
</head>
<body>
	<h1>Connected Clients</h1>
	<table>
		<tr><th>ID</th><th>Status</th><th>Hostname</th><th>Project</th></tr>
		{{range .Rows}}
		<tr><td>{{.ID}}</td><td>{{.Status}}</td><td>{{.Hostname}}</td><td>{{.Project}}</td></tr>
		{{end}}
	</table>
</body>
</html>
`
