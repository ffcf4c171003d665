package auth

import (
	"context"
	"net/http"

	"github.com/fileverse/ddocs-stack/common/httputil"
)

type contextKey string

const portalKey contextKey = "portal_address"

// WithPortal returns ctx carrying the resolved portal address.
func WithPortal(ctx context.Context, portal string) context.Context {
	return context.WithValue(ctx, portalKey, portal)
}

// PortalFromContext returns the portal stored by WithPortal.
func PortalFromContext(ctx context.Context) (string, bool) {
	portal, ok := ctx.Value(portalKey).(string)
	return portal, ok && portal != ""
}

// Middleware rejects requests whose credential does not resolve and puts
// the portal of the others in the request context.
func (r *Resolver) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		portal, err := r.Resolve(req.Context(), httputil.Credential(req))
		if err != nil {
			httputil.WriteMessage(w, http.StatusUnauthorized, "Invalid or missing API key")
			return
		}
		next.ServeHTTP(w, req.WithContext(WithPortal(req.Context(), portal)))
	})
}
