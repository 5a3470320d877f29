package handlers

import (
	"html/template"
	"net/http"

	"roshamble/internal/logger"
)

type apiRoute struct {
	Method      string
	Path        string
	Auth        bool
	Description string
}

var apiRoutes = []apiRoute{
	{"POST", "/matchmaking/{mode}/{player_id}", true, "Join the queue for ranked, casual or tournament."},
	{"DELETE", "/matchmaking/{mode}/{player_id}", true, "Leave the queue. POST .../leave does the same."},
	{"GET", "/matchmaking/ready/{player_id}", true, "Poll: waiting, found, ready_confirmed or expired."},
	{"POST", "/matchmaking/ready/{player_id}/{match_id}", true, "Acknowledge the ready-check of a found match."},
	{"GET", "/matchmaking/{mode}/count", false, "Players currently in the mode."},
	{"GET", "/matchmaking/{mode}/queue", false, "Waiting players, oldest first."},
	{"GET", "/matchmaking/history/{player_id}", true, "Recently resolved matches (needs MongoDB)."},
	{"GET", "/ws/matchmaking/{player_id}", true, "Websocket with pushed match status."},
	{"GET", "/health", false, "Liveness."},
}

var apiDocsTemplate = template.Must(template.New("docs").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <title>Roshamble Matchmaking API</title>
    <style>
        body { font-family: -apple-system, 'Segoe UI', Roboto, Arial, sans-serif; margin: 40px; color: #222; }
        table { border-collapse: collapse; }
        td, th { padding: 6px 12px; border-bottom: 1px solid #ddd; text-align: left; }
        code { background: #f4f4f4; padding: 2px 4px; }
    </style>
</head>
<body>
    <h1>Roshamble Matchmaking API</h1>
    <p>Authenticated routes take <code>Authorization: Bearer &lt;token&gt;</code> or the <code>token</code> cookie.</p>
    <table>
        <tr><th>Method</th><th>Path</th><th>Auth</th><th></th></tr>
        {{range .}}<tr><td>{{.Method}}</td><td><code>{{.Path}}</code></td><td>{{if .Auth}}yes{{end}}</td><td>{{.Description}}</td></tr>
        {{end}}
    </table>
</body>
</html>`))

func ServeAPIDocs(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := apiDocsTemplate.Execute(w, apiRoutes); err != nil {
		logger.Error("failed to render api docs", "error", err)
	}
}
