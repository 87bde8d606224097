package service

import (
	"errors"
	"sync"

	"github.com/pregram/pregram/cache"
	"github.com/pregram/pregram/mq"
	"github.com/pregram/pregram/store"
	"github.com/pregram/pregram/worker"
	"golang.org/x/oauth2"
)

// Custom error types for clarity
var (
	ErrQuotaExceeded = errors.New("account slot quota exceeded")
	ErrLastAccount   = errors.New("cannot delete the only account")
	ErrLastBoard     = errors.New("cannot delete the only layout")
	ErrNotUploaded   = errors.New("only uploaded images can be removed")
)

type Service struct {
	Store         store.PregramStore
	Cache         cache.PregramCache
	MQ            mq.MessageQueue
	LayoutFlusher *worker.LayoutFlusher
	Feed          FeedProvider
	OAuthConfigs  map[string]*oauth2.Config
	JWTSecret     []byte

	sessionsMu sync.Mutex
	sessions   map[string]*EditorSession
}

func NewService(
	store store.PregramStore,
	cache cache.PregramCache,
	mq mq.MessageQueue,
	layoutFlusher *worker.LayoutFlusher,
	feed FeedProvider,
	oauthConfigs map[string]*oauth2.Config,
	jwtSecret []byte,
) (*Service, error) {
	oauthConfigs, err := addOauthEndpointsAndScopes(oauthConfigs)
	if err != nil {
		return nil, err
	}

	return &Service{
		Store:         store,
		Cache:         cache,
		MQ:            mq,
		LayoutFlusher: layoutFlusher,
		Feed:          feed,
		OAuthConfigs:  oauthConfigs,
		JWTSecret:     jwtSecret,
		sessions:      make(map[string]*EditorSession),
	}, nil
}
