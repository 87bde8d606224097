package ws

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/pregram/pregram/service"
)

type Handler struct {
	Service *service.Service
	Hub     *Hub
}

func NewHandler(svc *service.Service, hub *Hub) *Handler {
	return &Handler{
		Service: svc,
		Hub:     hub,
	}
}

func (h *Handler) NewWsUpgrader(requiredOrigin string) websocket.Upgrader {
	return websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == requiredOrigin
		},
		Subprotocols: []string{"pregram-v1"},
	}
}

// ServeWS handles websocket requests from the peer.
func (h *Handler) ServeWS(wsUpgrader websocket.Upgrader, w http.ResponseWriter, r *http.Request, shutdownCtx context.Context) {
	protocols := r.Header.Get("Sec-WebSocket-Protocol")
	protocolsSplit := strings.Split(protocols, ",")

	if len(protocolsSplit) != 2 {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	token := strings.TrimSpace(protocolsSplit[1])

	user, authErr := h.Service.AuthenticateToken(r.Context(), token)

	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("Failed to upgrade ws connection: %v", err)
		return
	}

	// Must upgrade the connection in order to be able to send custom close message
	if authErr != nil {
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "Unauthenticated"),
		)
		conn.Close()
		return
	}

	client := NewClient(h.Hub, conn, user, h.HandleWsMessage)

	h.Hub.OpenCh <- client

	// Start pumps
	go client.ReadPump()
	go client.WritePump(shutdownCtx)
}

// Websocket message structs
type message struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type accountMessage struct {
	AccountId string `json:"accountId"`
}

type responseMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

func (h *Handler) HandleWsMessage(client *Client, messageType int, messageBytes []byte) {
	var msg message
	if err := json.Unmarshal(messageBytes, &msg); err != nil {
		log.Printf("Invalid JSON: %v", err)
		return
	}

	var resp responseMessage

	switch msg.Type {
	case "subscribe":
		var accountMsg accountMessage
		if err := json.Unmarshal(msg.Data, &accountMsg); err != nil {
			log.Printf("Invalid subscribe data: %v", err)
			return
		}
		resp = h.handleSubscribe(client, accountMsg)

	case "unsubscribe":
		var accountMsg accountMessage
		if err := json.Unmarshal(msg.Data, &accountMsg); err != nil {
			log.Printf("Invalid unsubscribe data: %v", err)
			return
		}
		resp = h.handleUnsubscribe(client, accountMsg)

	default:
		log.Printf("Unknown message type: %v", msg.Type)
	}

	if resp.Type != "" {
		respBytes, err := json.Marshal(resp)
		if err != nil {
			log.Printf("Error marshaling response JSON: %v", err)
			return
		}
		client.Send <- respBytes
	}
}

// ownsAccount stops clients from subscribing to other users' preview
// channels.
func (h *Handler) ownsAccount(client *Client, accountId string) bool {
	accounts, err := h.Service.ListAccounts(context.Background(), client.user)
	if err != nil {
		log.Printf("Failed to list accounts for user %s: %v", client.user.Id, err)
		return false
	}
	for _, account := range accounts {
		if account.Id == accountId {
			return true
		}
	}
	return false
}

func (h *Handler) handleSubscribe(client *Client, accountMsg accountMessage) responseMessage {
	resp := responseMessage{
		Type: "subscribe_response",
	}

	if !h.ownsAccount(client, accountMsg.AccountId) {
		resp.Data = map[string]any{"success": false, "accountId": accountMsg.AccountId}
		return resp
	}

	sub := subscription{client: client, accountId: accountMsg.AccountId}
	h.Hub.SubscribeCh <- sub
	resp.Data = map[string]any{"success": true, "accountId": accountMsg.AccountId}

	return resp
}

func (h *Handler) handleUnsubscribe(client *Client, accountMsg accountMessage) responseMessage {
	resp := responseMessage{
		Type: "unsubscribe_response",
	}

	sub := subscription{client: client, accountId: accountMsg.AccountId}
	h.Hub.UnsubscribeCh <- sub
	resp.Data = map[string]any{"success": true, "accountId": accountMsg.AccountId}

	return resp
}
