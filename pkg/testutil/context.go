package testutil

import (
	"net/http"

	"brigade/pkg/requestcontext"
)

// WithPrincipal puts an authenticated principal on the request, as the auth
// middleware would.
func WithPrincipal(req *http.Request, userID, organizationID string, securityLevel int) *http.Request {
	ctx := requestcontext.WithPrincipal(req.Context(), requestcontext.Principal{
		UserID:         userID,
		OrganizationID: organizationID,
		SecurityLevel:  securityLevel,
	})
	return req.WithContext(ctx)
}
