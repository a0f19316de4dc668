package handler

import (
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	chathandler "github.com/Miningpickery/knowledge-explorer-frontend-sub001/internal/handler/chat"
	streamhandler "github.com/Miningpickery/knowledge-explorer-frontend-sub001/internal/handler/stream"
	watchhandler "github.com/Miningpickery/knowledge-explorer-frontend-sub001/internal/handler/watch"
	middlewarePkg "github.com/Miningpickery/knowledge-explorer-frontend-sub001/internal/middleware"
	chatservice "github.com/Miningpickery/knowledge-explorer-frontend-sub001/internal/service/chat"
	"github.com/Miningpickery/knowledge-explorer-frontend-sub001/internal/service/turn"
	"github.com/Miningpickery/knowledge-explorer-frontend-sub001/pkg/utils"
)

// NewRouter wires HTTP routes to core services. runner may be nil when the
// AI backend is unconfigured; message submission degrades to 503.
func NewRouter(chatSvc *chatservice.Service, runner *turn.Runner) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	chatHandler := chathandler.New(chatSvc, runner)
	watchHandler := watchhandler.New(chatSvc)
	streamHandler := streamhandler.New(chatSvc)

	r.Route("/api", func(api chi.Router) {
		chatHandler.RegisterRoutes(api)
		watchHandler.RegisterRoutes(api)

		// SSE fallback for clients without websocket support.
		api.Get("/stream/{sessionID}", func(w http.ResponseWriter, r *http.Request) {
			sessionID := chi.URLParam(r, "sessionID")

			if err := streamHandler.HandleStreamRequest(r.Context(), w, sessionID); err != nil {
				log.Printf("[stream] error handling request: %v", err)
				utils.RespondError(w, http.StatusNotFound, "streaming failed")
			}
		})
	})

	return r
}
