package api

import (
	"context"
	"log"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/pregram/pregram/api/rest"
	"github.com/pregram/pregram/api/ws"
	"github.com/pregram/pregram/cache"
	"github.com/pregram/pregram/mq"
	"github.com/pregram/pregram/service"
	"github.com/pregram/pregram/store"
	"github.com/pregram/pregram/worker"
	"golang.org/x/oauth2"
)

// Snapshots settle for 500ms before they are written
const layoutFlushMilliseconds = 500

type PregramAPI struct {
	restHandler *rest.Handler
	wsHandler   *ws.Handler
	wsUpgrader  websocket.Upgrader
	shutdownCtx context.Context
}

func NewPregramAPI(
	pregramStore store.PregramStore,
	purgeAccountQueue mq.MessageQueue,
	pregramCache cache.PregramCache,
	feed service.FeedProvider,
	oauthConfigs map[string]*oauth2.Config,
	jwtSecret []byte,
	shutdownCtx context.Context,
) (*PregramAPI, error) {
	wsHub := ws.NewHub(pregramCache)
	go wsHub.Run()

	layoutFlusher := worker.NewLayoutFlusher(pregramStore, layoutFlushMilliseconds)
	go layoutFlusher.Run(shutdownCtx)

	mqConsumer := worker.NewMQConsumer(purgeAccountQueue, pregramStore, pregramCache)
	go mqConsumer.Run(shutdownCtx)

	svc, err := service.NewService(
		pregramStore,
		pregramCache,
		purgeAccountQueue,
		layoutFlusher,
		feed,
		oauthConfigs,
		jwtSecret,
	)
	if err != nil {
		log.Printf("Failed to create service: %v", err)
		return &PregramAPI{}, err
	}

	restHandler := rest.NewHandler(svc)
	wsHandler := ws.NewHandler(svc, wsHub)

	return &PregramAPI{
		restHandler: restHandler,
		wsHandler:   wsHandler,
		shutdownCtx: shutdownCtx,
	}, nil
}

func (pregramAPI *PregramAPI) RegisterRoutes(mux *http.ServeMux, requiredOrigin string) {
	// Health check endpoint (no auth required)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	mux.HandleFunc("/login", pregramAPI.restHandler.HandleLogin)
	mux.HandleFunc("/me", pregramAPI.restHandler.HandleMe)
	mux.HandleFunc("/accounts", pregramAPI.restHandler.HandleAccounts)
	mux.HandleFunc("/accounts/slots", pregramAPI.restHandler.HandleAccountSlots)
	mux.HandleFunc("/accounts/current", pregramAPI.restHandler.HandleCurrentAccount)
	mux.HandleFunc("/projects", pregramAPI.restHandler.HandleProjects)
	mux.HandleFunc("/projects/duplicate", pregramAPI.restHandler.HandleDuplicateProject)
	mux.HandleFunc("/projects/images", pregramAPI.restHandler.HandleProjectImages)
	mux.HandleFunc("/editor", pregramAPI.restHandler.HandleEditor)
	mux.HandleFunc("/editor/boards", pregramAPI.restHandler.HandleBoards)
	mux.HandleFunc("/editor/boards/images", pregramAPI.restHandler.HandleBoardImages)
	mux.HandleFunc("/upload", pregramAPI.restHandler.HandleUpload)
	mux.HandleFunc("/feed", pregramAPI.restHandler.HandleFeed)

	wsUpgrader := pregramAPI.wsHandler.NewWsUpgrader(requiredOrigin)
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		pregramAPI.wsHandler.ServeWS(wsUpgrader, w, r, pregramAPI.shutdownCtx)
	})
}
