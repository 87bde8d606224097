package rest

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/pregram/pregram/models"
	"github.com/pregram/pregram/service"
	"github.com/pregram/pregram/store"
)

type Handler struct {
	Service *service.Service
}

func NewHandler(svc *service.Service) *Handler {
	return &Handler{Service: svc}
}

type loginRequest struct {
	Provider string `json:"provider"`
	Code     string `json:"code"`
}

type loginResponse struct {
	Username        string `json:"username"`
	Id              string `json:"id"`
	Provider        string `json:"provider"`
	Token           string `json:"token"`
	MaxAccountSlots int    `json:"maxAccountSlots"`
}

func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	user, token, err := h.Service.Login(r.Context(), req.Provider, req.Code)
	if err != nil {
		log.Printf("Login failed: %v", err)
		http.Error(w, "login failed", http.StatusInternalServerError)
		return
	}

	resp := loginResponse{
		Username:        user.Username,
		Id:              user.Id,
		Provider:        user.Provider,
		Token:           token,
		MaxAccountSlots: user.MaxAccountSlots,
	}
	h.sendResponse(w, resp)
}

type getUserResponse struct {
	Username        string `json:"username"`
	Id              string `json:"id"`
	Provider        string `json:"provider"`
	MaxAccountSlots int    `json:"maxAccountSlots"`
}

func (h *Handler) HandleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	user, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	resp := getUserResponse{
		Username:        user.Username,
		Id:              user.Id,
		Provider:        user.Provider,
		MaxAccountSlots: user.MaxAccountSlots,
	}
	h.sendResponse(w, resp)
}

type addAccountRequest struct {
	Username string `json:"username"`
}

type deleteAccountRequest struct {
	AccountId string `json:"accountId"`
}

func (h *Handler) HandleAccounts(w http.ResponseWriter, r *http.Request) {
	user, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	switch r.Method {
	case http.MethodGet:
		accounts, err := h.Service.ListAccounts(r.Context(), user)
		if err != nil {
			h.sendServiceError(w, err)
			return
		}
		h.sendResponse(w, accounts)

	case http.MethodPost:
		var req addAccountRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		account, err := h.Service.AddAccount(r.Context(), user, req.Username)
		if err != nil {
			h.sendServiceError(w, err)
			return
		}
		h.sendResponse(w, account)

	case http.MethodDelete:
		var req deleteAccountRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		if err := h.Service.RemoveAccount(r.Context(), user, req.AccountId); err != nil {
			h.sendServiceError(w, err)
			return
		}
		h.sendResponse(w, successResponse{Success: true})

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

type purchaseSlotResponse struct {
	MaxAccountSlots int `json:"maxAccountSlots"`
}

func (h *Handler) HandleAccountSlots(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	user, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	slots, err := h.Service.PurchaseSlot(r.Context(), user)
	if err != nil {
		h.sendServiceError(w, err)
		return
	}
	h.sendResponse(w, purchaseSlotResponse{MaxAccountSlots: slots})
}

type setCurrentAccountRequest struct {
	AccountId string `json:"accountId"`
}

func (h *Handler) HandleCurrentAccount(w http.ResponseWriter, r *http.Request) {
	user, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	switch r.Method {
	case http.MethodGet:
		account, err := h.Service.CurrentAccount(r.Context(), user)
		if err != nil {
			h.sendServiceError(w, err)
			return
		}
		h.sendResponse(w, account)

	case http.MethodPut:
		var req setCurrentAccountRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		if err := h.Service.SetCurrentAccount(r.Context(), user, req.AccountId); err != nil {
			h.sendServiceError(w, err)
			return
		}
		h.sendResponse(w, successResponse{Success: true})

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

type createProjectRequest struct {
	Name string `json:"name"`
	Kind string `json:"kind"`
}

func (h *Handler) HandleProjects(w http.ResponseWriter, r *http.Request) {
	user, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	switch r.Method {
	case http.MethodGet:
		if projectId := r.URL.Query().Get("projectId"); projectId != "" {
			project, err := h.Service.GetProject(r.Context(), user, projectId)
			if err != nil {
				h.sendServiceError(w, err)
				return
			}
			h.sendResponse(w, project)
			return
		}
		projects, err := h.Service.ListProjects(r.Context(), user)
		if err != nil {
			h.sendServiceError(w, err)
			return
		}
		h.sendResponse(w, projects)

	case http.MethodPost:
		var req createProjectRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		kind := models.KindFeed
		if req.Kind == models.KindReels.String() {
			kind = models.KindReels
		}
		project, err := h.Service.CreateProject(r.Context(), user, req.Name, kind)
		if err != nil {
			h.sendServiceError(w, err)
			return
		}
		h.sendResponse(w, project)

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

type duplicateProjectRequest struct {
	ProjectId string `json:"projectId"`
}

func (h *Handler) HandleDuplicateProject(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	user, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	var req duplicateProjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	project, err := h.Service.DuplicateProject(r.Context(), user, req.ProjectId)
	if err != nil {
		h.sendServiceError(w, err)
		return
	}
	h.sendResponse(w, project)
}

type projectImagesRequest struct {
	ProjectId string               `json:"projectId"`
	ImageId   string               `json:"imageId"`
	Images    []models.ImageRecord `json:"images"`
}

type projectImagesResponse struct {
	Project  models.Project `json:"project"`
	Rejected []string       `json:"rejected,omitempty"`
}

func (h *Handler) HandleProjectImages(w http.ResponseWriter, r *http.Request) {
	user, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	var req projectImagesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	switch r.Method {
	case http.MethodPost:
		project, rejected, err := h.Service.AddImages(r.Context(), user, req.ProjectId, req.Images)
		if err != nil {
			h.sendServiceError(w, err)
			return
		}
		h.sendResponse(w, projectImagesResponse{Project: project, Rejected: rejected})

	case http.MethodPut:
		project, err := h.Service.ReorderImages(r.Context(), user, req.ProjectId, req.Images)
		if err != nil {
			h.sendServiceError(w, err)
			return
		}
		h.sendResponse(w, projectImagesResponse{Project: project})

	case http.MethodDelete:
		project, err := h.Service.RemoveImage(r.Context(), user, req.ProjectId, req.ImageId)
		if err != nil {
			h.sendServiceError(w, err)
			return
		}
		h.sendResponse(w, projectImagesResponse{Project: project})

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

type openEditorRequest struct {
	AccountId string `json:"accountId"`
	ProjectId string `json:"projectId"`
}

func (h *Handler) HandleEditor(w http.ResponseWriter, r *http.Request) {
	user, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	switch r.Method {
	case http.MethodPost:
		var req openEditorRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		boardSet, err := h.Service.OpenEditor(r.Context(), user, req.AccountId, req.ProjectId)
		if err != nil {
			h.sendServiceError(w, err)
			return
		}
		h.sendResponse(w, boardSet)

	case http.MethodDelete:
		h.Service.CloseEditor(user)
		h.sendResponse(w, successResponse{Success: true})

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

type boardRequest struct {
	AccountId string `json:"accountId"`
	BoardId   string `json:"boardId"`
}

func (h *Handler) HandleBoards(w http.ResponseWriter, r *http.Request) {
	user, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	var req boardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	switch r.Method {
	case http.MethodPost:
		boardSet, err := h.Service.DuplicateBoard(r.Context(), user, req.AccountId, req.BoardId)
		if err != nil {
			h.sendServiceError(w, err)
			return
		}
		h.sendResponse(w, boardSet)

	case http.MethodDelete:
		boardSet, err := h.Service.DeleteBoard(r.Context(), user, req.AccountId, req.BoardId)
		if err != nil {
			h.sendServiceError(w, err)
			return
		}
		h.sendResponse(w, boardSet)

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

type boardImagesRequest struct {
	AccountId string               `json:"accountId"`
	BoardId   string               `json:"boardId"`
	ImageId   string               `json:"imageId"`
	Images    []models.ImageRecord `json:"images"`
}

type boardImagesResponse struct {
	BoardSet models.BoardSet `json:"boardSet"`
	Rejected []string        `json:"rejected,omitempty"`
}

func (h *Handler) HandleBoardImages(w http.ResponseWriter, r *http.Request) {
	user, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	var req boardImagesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	switch r.Method {
	case http.MethodPost:
		boardSet, rejected, err := h.Service.AddImagesToBoard(r.Context(), user, req.AccountId, req.BoardId, req.Images)
		if err != nil {
			h.sendServiceError(w, err)
			return
		}
		h.sendResponse(w, boardImagesResponse{BoardSet: boardSet, Rejected: rejected})

	case http.MethodPut:
		boardSet, err := h.Service.ReorderBoard(r.Context(), user, req.AccountId, req.BoardId, req.Images)
		if err != nil {
			h.sendServiceError(w, err)
			return
		}
		h.sendResponse(w, boardImagesResponse{BoardSet: boardSet})

	case http.MethodDelete:
		boardSet, err := h.Service.RemoveImageFromBoard(r.Context(), user, req.AccountId, req.BoardId, req.ImageId)
		if err != nil {
			h.sendServiceError(w, err)
			return
		}
		h.sendResponse(w, boardImagesResponse{BoardSet: boardSet})

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// Uploads are bounded: at most 10 files, 10 MB each
const (
	maxUploadFiles    = 10
	maxUploadFileSize = 10 << 20
)

type uploadResponse struct {
	Images     []models.ImageRecord      `json:"images"`
	Rejections []service.UploadRejection `json:"rejections,omitempty"`
}

func (h *Handler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	_, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	if err := r.ParseMultipartForm(maxUploadFileSize); err != nil {
		http.Error(w, "invalid multipart form", http.StatusBadRequest)
		return
	}

	fileHeaders := r.MultipartForm.File["files"]
	if len(fileHeaders) == 0 {
		http.Error(w, "no files provided", http.StatusBadRequest)
		return
	}
	if len(fileHeaders) > maxUploadFiles {
		http.Error(w, "too many files", http.StatusBadRequest)
		return
	}

	files := make([]service.UploadFile, 0, len(fileHeaders))
	for _, fh := range fileHeaders {
		f, err := fh.Open()
		if err != nil {
			http.Error(w, "failed to read file", http.StatusBadRequest)
			return
		}
		data, err := io.ReadAll(io.LimitReader(f, maxUploadFileSize+1))
		f.Close()
		if err != nil {
			http.Error(w, "failed to read file", http.StatusBadRequest)
			return
		}
		if len(data) > maxUploadFileSize {
			http.Error(w, "file too large", http.StatusBadRequest)
			return
		}
		files = append(files, service.UploadFile{
			Name:        fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Data:        data,
		})
	}

	images, rejections := h.Service.IngestUploads(r.Context(), files)
	h.sendResponse(w, uploadResponse{Images: images, Rejections: rejections})
}

type connectFeedRequest struct {
	AccountId string `json:"accountId"`
	Code      string `json:"code"`
}

type connectFeedResponse struct {
	Images []models.ImageRecord `json:"images"`
}

func (h *Handler) HandleFeed(w http.ResponseWriter, r *http.Request) {
	user, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	switch r.Method {
	case http.MethodGet:
		accountId := r.URL.Query().Get("accountId")
		if accountId == "" {
			http.Error(w, "missing accountId", http.StatusBadRequest)
			return
		}
		feed, err := h.Service.AccountFeed(r.Context(), user, accountId, "")
		if err != nil {
			h.sendServiceError(w, err)
			return
		}
		h.sendResponse(w, connectFeedResponse{Images: feed})

	case http.MethodPost:
		var req connectFeedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		accessToken, err := h.Service.Feed.ExchangeAuthCode(r.Context(), req.Code)
		if err != nil {
			log.Printf("Feed auth code exchange failed: %v", err)
			http.Error(w, "feed connection failed", http.StatusBadGateway)
			return
		}
		feed, err := h.Service.AccountFeed(r.Context(), user, req.AccountId, accessToken)
		if err != nil {
			h.sendServiceError(w, err)
			return
		}
		h.sendResponse(w, connectFeedResponse{Images: feed})

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

type successResponse struct {
	Success bool `json:"success"`
}

func (h *Handler) authenticate(w http.ResponseWriter, r *http.Request) (models.User, bool) {
	token := h.getTokenFromAuthHeader(r)
	user, err := h.Service.AuthenticateToken(r.Context(), token)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return models.User{}, false
	}
	return user, true
}

func (h *Handler) sendServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrItemNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	case errors.Is(err, service.ErrQuotaExceeded):
		http.Error(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, service.ErrLastAccount), errors.Is(err, service.ErrLastBoard), errors.Is(err, service.ErrNotUploaded):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, store.ErrConditionFailed):
		http.Error(w, "condition not met", http.StatusConflict)
	default:
		log.Printf("Request failed: %v", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func (h *Handler) sendResponse(w http.ResponseWriter, resp any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		http.Error(w, "failed to encode response", http.StatusInternalServerError)
	}
}

func (h *Handler) getTokenFromAuthHeader(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(authHeader, prefix) {
		return ""
	}
	return strings.TrimPrefix(authHeader, prefix)
}
