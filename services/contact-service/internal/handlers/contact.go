package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"net/mail"
	"strings"

	"github.com/tonyphoesis/phoesis-website/libs/httpx"
	"github.com/tonyphoesis/phoesis-website/services/contact-service/internal/storage"
)

type ContactStore interface {
	Save(ctx context.Context, c *storage.Contact) error
}

type ContactHandler struct {
	store  ContactStore
	logger *slog.Logger
}

func NewContactHandler(store ContactStore, logger *slog.Logger) *ContactHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ContactHandler{store: store, logger: logger}
}

type contactRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Company  string `json:"company"`
	Interest string `json:"interest"`
	Message  string `json:"message"`
}

const (
	errMissingFields = "Missing required fields"
	errSendFailed    = "Failed to send message. Please try again."
	maxMessageLen    = 10000
)

// Submit answers POST /api/v1/contact.
func (h *ContactHandler) Submit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		httpx.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req contactRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	c := &storage.Contact{
		Name:     strings.TrimSpace(req.Name),
		Email:    strings.TrimSpace(req.Email),
		Company:  strings.TrimSpace(req.Company),
		Interest: strings.TrimSpace(req.Interest),
		Message:  strings.TrimSpace(req.Message),
		Source:   storage.SourceWebsite,
	}
	if c.Name == "" || c.Email == "" || c.Message == "" {
		httpx.WriteError(w, http.StatusBadRequest, errMissingFields)
		return
	}
	if _, err := mail.ParseAddress(c.Email); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid email")
		return
	}
	if len(c.Message) > maxMessageLen {
		httpx.WriteError(w, http.StatusBadRequest, "message too long")
		return
	}

	if err := h.store.Save(r.Context(), c); err != nil {
		h.logger.Error("contact submission failed", "err", err, "request_id", httpx.RequestIDFromContext(r.Context()))
		httpx.WriteError(w, http.StatusInternalServerError, errSendFailed)
		return
	}
	h.logger.Info("contact submission stored", "contact_id", c.ID, "interest", c.Interest)
	httpx.WriteJSON(w, http.StatusOK, map[string]bool{"success": true})
}
