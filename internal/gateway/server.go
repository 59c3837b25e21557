package gateway

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/flemzord/recall/internal/security"
)

// buildRouter constructs the chi mux with all routes wired.
func (g *Gateway) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	if g.metrics != nil {
		r.Use(g.metrics.middleware)
	}

	// Public.
	r.Get("/health", g.handleHealth)
	if g.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(g.gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(g.authenticate)
		r.Get("/status", g.handleStatus)
		r.Post("/answer", g.limit(security.BucketAnswer, g.handleAnswer))

		r.Route("/conversations/{id}/turns", func(r chi.Router) {
			r.Post("/", g.limit(security.BucketWrite, g.handleRecordTurn))
			r.Get("/", g.handleHistory)
			r.Delete("/", g.limit(security.BucketWrite, g.handleClearConversation))
		})

		r.Post("/memories", g.limit(security.BucketWrite, g.handleRemember))
		r.Route("/memories/{id}", func(r chi.Router) {
			r.Get("/", g.handleRecall)
			r.Put("/", g.limit(security.BucketWrite, g.handleUpdate))
			r.Delete("/", g.limit(security.BucketWrite, g.handleForget))
		})
	})

	return r
}

// authenticate guards the API with the auth settings current at request
// time. Without credentials configured the API is open.
func (g *Gateway) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s := g.live.Load()
		if !s.auth.IsConfigured() {
			next.ServeHTTP(w, r)
			return
		}
		authMiddleware(s.auth, g.audit, s.limiter)(next).ServeHTTP(w, r)
	})
}
