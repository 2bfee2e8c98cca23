package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/chenjf2025/BookQuoteApp/internal/auth"
	"github.com/chenjf2025/BookQuoteApp/internal/handler/dto"
	"github.com/chenjf2025/BookQuoteApp/internal/middleware"
	"github.com/chenjf2025/BookQuoteApp/internal/model"
	"github.com/chenjf2025/BookQuoteApp/internal/quota"
	"github.com/chenjf2025/BookQuoteApp/internal/service"
)

// AccountService manages accounts, sessions and payments.
type AccountService interface {
	Register(ctx context.Context, username, password string) (*service.Session, error)
	Login(ctx context.Context, username, password string) (*service.Session, error)
	Logout(ctx context.Context, token string, authCtx *model.AuthContext) error
	Me(ctx context.Context, accountID, identity string) (*service.Profile, error)
	Pay(ctx context.Context, accountID string, amountRMB int) (int, error)
	Package() model.PaymentPackage
}

// GenerationSubmitter runs a quota-gated generation.
type GenerationSubmitter interface {
	Submit(ctx context.Context, identity, accountID, subject string) (service.Result, error)
}

// H5Handler handles the /api/h5 endpoints.
type H5Handler struct {
	accounts AccountService
	workflow GenerationSubmitter
	logger   *slog.Logger
}

// NewH5Handler creates a new H5Handler.
func NewH5Handler(accounts AccountService, workflow GenerationSubmitter, logger *slog.Logger) *H5Handler {
	return &H5Handler{
		accounts: accounts,
		workflow: workflow,
		logger:   logger,
	}
}

// Register handles POST /api/h5/register.
func (h *H5Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req dto.CredentialsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "Invalid request body")
		return
	}

	session, err := h.accounts.Register(r.Context(), req.Username, req.Password)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	h.logger.Info("account_registered", "account_id", session.Account.ID, "username", session.Account.Username)

	writeJSON(w, http.StatusOK, dto.TokenResponse{
		AccessToken: session.Token,
		TokenType:   "bearer",
		Message:     "Registered successfully",
	})
}

// Login handles POST /api/h5/login.
func (h *H5Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req dto.CredentialsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "Invalid request body")
		return
	}

	session, err := h.accounts.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.TokenResponse{
		AccessToken: session.Token,
		TokenType:   "bearer",
		Message:     "Logged in successfully",
	})
}

// Logout handles POST /api/h5/logout.
func (h *H5Handler) Logout(w http.ResponseWriter, r *http.Request) {
	authCtx := auth.AuthFromContext(r.Context())
	if err := h.accounts.Logout(r.Context(), middleware.BearerToken(r), authCtx); err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Me handles GET /api/h5/me.
func (h *H5Handler) Me(w http.ResponseWriter, r *http.Request) {
	accountID := auth.AccountIDFromContext(r.Context())
	profile, err := h.accounts.Me(r.Context(), accountID, auth.IdentityFromContext(r.Context()))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.ProfileResponse{
		Username:       profile.Username,
		GenerateQuota:  profile.GenerateQuota,
		DailyFreeUsed:  profile.DailyFreeUsed,
		DailyFreeTotal: profile.DailyFreeTotal,
	})
}

// Pay handles POST /api/h5/pay.
func (h *H5Handler) Pay(w http.ResponseWriter, r *http.Request) {
	var req dto.PayRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "Invalid request body")
		return
	}

	balance, err := h.accounts.Pay(r.Context(), auth.AccountIDFromContext(r.Context()), req.AmountRMB)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.PayResponse{
		Message:  fmt.Sprintf("Payment successful. Added %d to quota.", h.accounts.Package().Quota),
		NewQuota: balance,
	})
}

// GenerateMindmap handles POST /api/h5/generate_mindmap. One unit of quota
// is charged up front and refunded if the generation fails.
func (h *H5Handler) GenerateMindmap(w http.ResponseWriter, r *http.Request) {
	var req dto.BookTitleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "Invalid request body")
		return
	}
	title, err := middleware.NormalizeBookTitle(req.BookTitle)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_book_title", err.Error())
		return
	}

	ctx := r.Context()
	result, err := h.workflow.Submit(ctx, auth.IdentityFromContext(ctx), auth.AccountIDFromContext(ctx), title)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.GatedMindmapResponse{
		PDFURL:    result.ArtifactURL,
		Message:   dto.MessageSuccess,
		QuotaUsed: result.ChargedFrom.Label(),
	})
}

// handleServiceError maps service errors to HTTP responses.
func (h *H5Handler) handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, model.ErrInvalidUsername):
		writeError(w, http.StatusBadRequest, "invalid_username", err.Error())
	case errors.Is(err, model.ErrInvalidPassword):
		writeError(w, http.StatusBadRequest, "invalid_password", err.Error())
	case errors.Is(err, service.ErrUsernameTaken):
		writeError(w, http.StatusBadRequest, "username_taken", "Username already registered")
	case errors.Is(err, service.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "invalid_credentials", "Incorrect username or password")
	case errors.Is(err, service.ErrInvalidSession), errors.Is(err, service.ErrAccountNotFound):
		writeError(w, http.StatusUnauthorized, "unauthorized", "Could not validate credentials")
	case errors.Is(err, service.ErrUnsupportedPackage):
		pkg := h.accounts.Package()
		writeError(w, http.StatusBadRequest, "unsupported_package",
			fmt.Sprintf("Only the %d RMB package is available", pkg.AmountRMB))
	case errors.Is(err, quota.ErrQuotaExhausted):
		writeError(w, http.StatusForbidden, "quota_exhausted",
			"Exhausted daily free quota and paid quota. Please recharge.")
	case errors.Is(err, service.ErrGenerationFailed):
		h.logger.Warn("generation_failed",
			"request_id", middleware.GetRequestID(r.Context()),
			"error", err,
		)
		writeError(w, http.StatusInternalServerError, "generation_failed", "Generation failed, your quota has been refunded")
	default:
		h.logger.Error("internal_error",
			"request_id", middleware.GetRequestID(r.Context()),
			"error", err,
		)
		writeError(w, http.StatusInternalServerError, "internal_error", "An internal error occurred")
	}
}
