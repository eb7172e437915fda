package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"battle-server/internal/store"
)

// Routes assembles the public HTTP surface. The websocket endpoint is
// injected so this package stays transport-agnostic.
func Routes(gateway store.Gateway, rankings Rankings, wsHandler http.HandlerFunc, corsOrigin string, log *zap.Logger) http.Handler {
	log = log.Named("httpapi")
	r := chi.NewRouter()

	r.Post("/battles", CreateBattle(gateway, log))
	r.Get("/battles/{battleID}", GetBattle(gateway, log))
	r.Get("/players/{username}/battles", ListPlayerBattles(gateway, log))
	r.Get("/players/{username}/statistics", GetPlayerStats(gateway, log))
	r.Get("/rankings", GetRankings(rankings, log))
	r.Get("/healthz", Healthz)
	r.Get("/ws", wsHandler)

	c := cors.New(cors.Options{
		AllowedOrigins: []string{corsOrigin},
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	})
	return c.Handler(r)
}
