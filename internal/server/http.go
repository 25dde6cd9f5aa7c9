package server

import (
	"encoding/json"
	"net/http"
	"time"

	"forumguard/internal/conf"
	"forumguard/internal/service"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-kratos/kratos/v2/middleware/logging"
	"github.com/go-kratos/kratos/v2/middleware/recovery"
	khttp "github.com/go-kratos/kratos/v2/transport/http"
)

// NewHTTPServer creates the HTTP server and mounts the public moderation
// surface and the guarded admin surface.
func NewHTTPServer(
	c *conf.Server,
	ac *conf.Admin,
	moderation *service.ModerationService,
	admin *service.AdminService,
	logger log.Logger,
) *khttp.Server {
	opts := []khttp.ServerOption{
		khttp.Address(c.HTTP.Addr),
		khttp.Timeout(time.Duration(c.HTTP.TimeoutSeconds) * time.Second),
		khttp.Middleware(
			recovery.Recovery(),
			logging.Server(logger),
		),
	}
	srv := khttp.NewServer(opts...)

	moderation.RegisterRoutes(srv.Route("/"))
	admin.RegisterRoutes(srv.Route("/admin", adminAuthFilter(ac, logger)))

	return srv
}

// adminAuthFilter authorizes admin calls against the configured UID
// allowlist. The identity header is stamped by the fronting auth gateway,
// never by the end user.
func adminAuthFilter(ac *conf.Admin, logger log.Logger) khttp.FilterFunc {
	helper := log.NewHelper(logger)
	allowed := make(map[string]struct{}, len(ac.UIDs))
	for _, uid := range ac.UIDs {
		allowed[uid] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			uid := r.Header.Get(service.AdminUIDHeader)
			if _, ok := allowed[uid]; uid == "" || !ok {
				helper.Warnf("admin call to %s rejected for uid %q", r.URL.Path, uid)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusForbidden)
				json.NewEncoder(w).Encode(map[string]string{
					"code":    "PERMISSION_DENIED",
					"message": "caller is not an administrator",
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
