package ws

import (
	"context"
	"log"

	"github.com/pregram/pregram/cache"
)

type subscription struct {
	client    *Client
	accountId string
}

// Hub maintains the set of active clients and fans board-change events
// out to the clients previewing each account.
type Hub struct {
	pregramCache              cache.PregramCache
	OpenCh                    chan *Client
	CloseCh                   chan *Client
	SubscribeCh               chan subscription
	UnsubscribeCh             chan subscription
	userToClients             map[string]map[*Client]struct{}
	accountToClients          map[string]map[*Client]struct{}
	accountToSubscriberCancel map[string]context.CancelFunc
}

func NewHub(pregramCache cache.PregramCache) *Hub {
	return &Hub{
		pregramCache:              pregramCache,
		OpenCh:                    make(chan *Client, 256),
		CloseCh:                   make(chan *Client, 256),
		SubscribeCh:               make(chan subscription, 1024),
		UnsubscribeCh:             make(chan subscription, 1024),
		userToClients:             make(map[string]map[*Client]struct{}),
		accountToClients:          make(map[string]map[*Client]struct{}),
		accountToSubscriberCancel: make(map[string]context.CancelFunc),
	}
}

const (
	maxConnectionsPerUser         = 3
	maxSubscriptionsPerConnection = 10
)

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.OpenCh:
			if _, ok := h.userToClients[client.user.Id]; !ok {
				h.userToClients[client.user.Id] = make(map[*Client]struct{})
			}

			if len(h.userToClients[client.user.Id]) >= maxConnectionsPerUser {
				log.Printf("User %s reached max connections (%d)", client.user.Id, maxConnectionsPerUser)
				close(client.Send)
				continue
			}

			h.userToClients[client.user.Id][client] = struct{}{}

		case client := <-h.CloseCh:
			for accountId := range client.subscribedAccounts {
				delete(h.accountToClients[accountId], client)
				if len(h.accountToClients[accountId]) == 0 {
					if cancel, ok := h.accountToSubscriberCancel[accountId]; ok {
						cancel()
						delete(h.accountToSubscriberCancel, accountId)
					}
					delete(h.accountToClients, accountId)
				}
			}
			delete(h.userToClients[client.user.Id], client)
			if len(h.userToClients[client.user.Id]) == 0 {
				delete(h.userToClients, client.user.Id)
			}

		case sub := <-h.SubscribeCh:
			if len(sub.client.subscribedAccounts) >= maxSubscriptionsPerConnection {
				log.Printf("Connection by user %s reached max subscriptions (%d)", sub.client.user.Id, maxSubscriptionsPerConnection)
				continue
			}
			if h.accountToClients[sub.accountId] == nil {
				log.Printf("Subscriber does not exist, creating for account: %s", sub.accountId)

				ctx, cancel := context.WithCancel(context.Background())
				accountId := sub.accountId
				channel := "account:" + accountId

				err := h.pregramCache.Subscribe(ctx, channel, func(messageBytes []byte) {
					for client := range h.accountToClients[accountId] {
						client.Send <- messageBytes
					}
				})
				if err != nil {
					log.Printf("Failed to create redis sub for channel %s: %v", channel, err)
					cancel()
					continue
				}

				h.accountToClients[sub.accountId] = make(map[*Client]struct{})
				h.accountToSubscriberCancel[sub.accountId] = cancel
			}
			h.accountToClients[sub.accountId][sub.client] = struct{}{}
			sub.client.subscribedAccounts[sub.accountId] = struct{}{}

		case unsub := <-h.UnsubscribeCh:
			delete(h.accountToClients[unsub.accountId], unsub.client)
			delete(unsub.client.subscribedAccounts, unsub.accountId)
			if len(h.accountToClients[unsub.accountId]) == 0 {
				if cancel, ok := h.accountToSubscriberCancel[unsub.accountId]; ok {
					cancel()
					delete(h.accountToSubscriberCancel, unsub.accountId)
				}
				delete(h.accountToClients, unsub.accountId)
			}
		}
	}
}
