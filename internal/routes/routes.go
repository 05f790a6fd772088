// Package routes defines HTTP route constants for the application.
package routes

const (
	// SSE
	SSEPath = "/sse"

	HealthPath = "/healthz"

	// Content lists
	APIContent     = "/api/content/{kind}"
	APIContentItem = "/api/content/{kind}/{id}"

	// Editing sessions
	APIContentSessions = "/api/content/{kind}/{id}/sessions"
	APISession         = "/api/sessions/{sid}"
	APISessionFields   = "/api/sessions/{sid}/fields"
	APISessionImages   = "/api/sessions/{sid}/images"
	APISessionCommit   = "/api/sessions/{sid}/commit"

	// Staged and stored files
	Previews = "/previews/{handle}"
	Media    = "/media/{key...}"
)

// NewRecordID in APIContentSessions opens a session for a record that does not exist yet.
const NewRecordID = "new"

func Method(method, pattern string) string {
	return method + " " + pattern
}
