package handler

import (
	"net/http"

	"clouddrive/internal/service"
)

type AuthHandler struct {
	auth   *service.AuthService
	tokens *service.TokenService
}

func NewAuthHandler(auth *service.AuthService, tokens *service.TokenService) *AuthHandler {
	return &AuthHandler{auth: auth, tokens: tokens}
}

type signUpRequest struct {
	Username        string `json:"username"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
}

func (req signUpRequest) validate() error {
	return firstError(
		validateUsername(req.Username),
		validateEmail(req.Email),
		validatePassword("password", req.Password),
		validateRequired("confirmPassword", req.ConfirmPassword),
	)
}

type signInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type emailRequest struct {
	Email string `json:"email"`
}

type resetPasswordRequest struct {
	Token           string `json:"token"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
}

func (h *AuthHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	var req signUpRequest
	if err := decodeJSON(r, &req); err != nil {
		WriteError(w, r, err)
		return
	}
	if err := req.validate(); err != nil {
		WriteError(w, r, err)
		return
	}

	user, err := h.auth.SignUp(r.Context(), service.SignUpInput{
		Username:        req.Username,
		Email:           req.Email,
		Password:        req.Password,
		ConfirmPassword: req.ConfirmPassword,
	})
	if err != nil {
		WriteError(w, r, err)
		return
	}
	respond(w, http.StatusCreated, "User register successfully", user)
}

func (h *AuthHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	var req signInRequest
	if err := decodeJSON(r, &req); err != nil {
		WriteError(w, r, err)
		return
	}
	if err := firstError(validateEmail(req.Email), validateRequired("password", req.Password)); err != nil {
		WriteError(w, r, err)
		return
	}

	user, err := h.auth.ValidateUser(r.Context(), req.Email, req.Password)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	tokens, err := h.auth.SignIn(r.Context(), user)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	respond(w, http.StatusOK, "User logged in successfully", tokens)
}

func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	tokens, err := h.auth.RefreshToken(r.Context(), p.UserID, p.RefreshToken)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	respond(w, http.StatusOK, "Token refreshed", tokens)
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.auth.Logout(r.Context(), principal(r).UserID); err != nil {
		WriteError(w, r, err)
		return
	}
	respond(w, http.StatusOK, "User logged out successfully", nil)
}

func (h *AuthHandler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	redirect, err := h.tokens.VerifyEmail(r.Context(), r.URL.Query().Get("token"))
	if err != nil {
		WriteError(w, r, err)
		return
	}
	respond(w, http.StatusOK, "Email successfully verified", map[string]string{"redirect": redirect})
}

func (h *AuthHandler) ResendVerification(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if err := decodeJSON(r, &req); err != nil {
		WriteError(w, r, err)
		return
	}
	if err := validateEmail(req.Email); err != nil {
		WriteError(w, r, err)
		return
	}

	if err := h.tokens.ResendVerification(r.Context(), req.Email); err != nil {
		WriteError(w, r, err)
		return
	}
	respond(w, http.StatusOK, "Verification email sent successfully.", nil)
}

func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if err := decodeJSON(r, &req); err != nil {
		WriteError(w, r, err)
		return
	}
	if err := validateEmail(req.Email); err != nil {
		WriteError(w, r, err)
		return
	}

	if err := h.tokens.ForgotPassword(r.Context(), req.Email); err != nil {
		WriteError(w, r, err)
		return
	}
	respond(w, http.StatusOK, "A password reset link has been sent to your email address.", nil)
}

func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		WriteError(w, r, err)
		return
	}
	err := firstError(
		validateRequired("token", req.Token),
		validatePassword("password", req.Password),
		validatePassword("confirmPassword", req.ConfirmPassword),
	)
	if err != nil {
		WriteError(w, r, err)
		return
	}

	if err := h.tokens.ResetPassword(r.Context(), req.Token, req.Password, req.ConfirmPassword); err != nil {
		WriteError(w, r, err)
		return
	}
	respond(w, http.StatusOK, "Password successfully updated.", nil)
}
