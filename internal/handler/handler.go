package handler

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/alexlazarev/shopcore/internal/infrastructure/auth"
	"github.com/alexlazarev/shopcore/internal/models"
	service "github.com/alexlazarev/shopcore/internal/services"
	pkgerrors "github.com/alexlazarev/shopcore/pkg/errors"
)

type Handler struct {
	auth       service.AuthService
	register   service.RegisterService
	refreshTTL time.Duration
}

func NewHandler(authSvc service.AuthService, registerSvc service.RegisterService, refreshTTL time.Duration) *Handler {
	return &Handler{
		auth:       authSvc,
		register:   registerSvc,
		refreshTTL: refreshTTL,
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusFor(err))
	json.NewEncoder(w).Encode(errorResponse{Error: err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, pkgerrors.ErrInvalidToken),
		errors.Is(err, pkgerrors.ErrMalformedClaims),
		errors.Is(err, pkgerrors.ErrInvalidCredentials),
		errors.Is(err, pkgerrors.ErrUnauthenticated),
		errors.Is(err, pkgerrors.ErrNoPendingRegister),
		errors.Is(err, pkgerrors.ErrVerificationExpired),
		errors.Is(err, pkgerrors.ErrTooManyAttempts):
		return http.StatusUnauthorized
	case errors.Is(err, pkgerrors.ErrSessionRevoked),
		errors.Is(err, pkgerrors.ErrForbidden),
		errors.Is(err, pkgerrors.ErrActiveOrders):
		return http.StatusForbidden
	case errors.Is(err, pkgerrors.ErrUserExists),
		errors.Is(err, pkgerrors.ErrWrongCode):
		return http.StatusConflict
	case errors.Is(err, pkgerrors.ErrTooManyRequests):
		return http.StatusTooManyRequests
	case errors.Is(err, pkgerrors.ErrServiceUnavailable),
		errors.Is(err, pkgerrors.ErrDispatchFailed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) RegisterPublicRoutes(r *mux.Router) {
	r.HandleFunc("/users/register", h.InitiateRegistration).Methods("POST")
	r.HandleFunc("/users/verify_code", h.ConfirmRegistration).Methods("POST")
	r.HandleFunc("/users/login", h.Login).Methods("POST")
	r.HandleFunc("/users/logout", h.Logout).Methods("POST")
}

func (h *Handler) RegisterProtectedRoutes(r *mux.Router) {
	r.HandleFunc("/users/me", h.Me).Methods("GET")
	r.HandleFunc("/users/delete", h.DeleteAccount).Methods("POST")
}

type registerRequest struct {
	Email         string `json:"email,omitempty"`
	Phone         string `json:"phone,omitempty"`
	Password      string `json:"password"`
	City          string `json:"city,omitempty"`
	HomeAddress   string `json:"home_address,omitempty"`
	PickupStoreID int64  `json:"pickup_store_id,omitempty"`
}

// target validates the mutually exclusive email/phone pair and picks the
// notification channel once, here.
func (r registerRequest) target() (models.RegistrationTarget, error) {
	switch {
	case r.Email != "" && r.Phone != "":
		return models.RegistrationTarget{}, errors.New("email and phone are mutually exclusive")
	case r.Email != "":
		return models.EmailTarget(r.Email), nil
	case r.Phone != "":
		return models.PhoneTarget(r.Phone), nil
	default:
		return models.RegistrationTarget{}, errors.New("email or phone is required")
	}
}

func (h *Handler) InitiateRegistration(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	if req.Password == "" {
		http.Error(w, "password is required", http.StatusBadRequest)
		return
	}
	target, err := req.target()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	verifyToken, err := h.register.Initiate(r.Context(), service.RegistrationRequest{
		Target:        target,
		Password:      req.Password,
		City:          req.City,
		HomeAddress:   req.HomeAddress,
		PickupStoreID: req.PickupStoreID,
	}, clientIP(r))
	if err != nil {
		h.writeError(w, err)
		return
	}

	auth.SetVerifyCookie(w, verifyToken)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]string{"status": "code sent"})
}

func (h *Handler) ConfirmRegistration(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code string `json:"code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	verifyToken := auth.ReadCookie(r, auth.VerifyCookie)
	if verifyToken == "" {
		h.writeError(w, pkgerrors.ErrNoPendingRegister)
		return
	}

	user, err := h.register.Confirm(r.Context(), verifyToken, req.Code)
	if err != nil {
		// Exhausted attempts end this verification; the cookie goes with it.
		if errors.Is(err, pkgerrors.ErrTooManyAttempts) {
			auth.ClearVerifyCookie(w)
		}
		h.writeError(w, err)
		return
	}

	auth.ClearVerifyCookie(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]int64{"user_id": user.ID})
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email,omitempty"`
		Phone    string `json:"phone,omitempty"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	access, refresh, err := h.auth.Login(r.Context(), req.Email, req.Phone, req.Password)
	if err != nil {
		h.writeError(w, err)
		return
	}

	auth.SetAccessCookie(w, access)
	auth.SetRefreshCookie(w, refresh, h.refreshTTL)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	auth.ClearSessionCookies(w)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		h.writeError(w, pkgerrors.ErrUnauthenticated)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(user)
}

func (h *Handler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		h.writeError(w, pkgerrors.ErrUnauthenticated)
		return
	}

	if err := h.auth.DeleteAccount(r.Context(), user.ID); err != nil {
		h.writeError(w, err)
		return
	}

	// Deletion logs the session out in the same response.
	auth.ClearSessionCookies(w)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "deleted"})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
