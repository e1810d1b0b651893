package httpapi

import (
	"net/http"
	"strings"

	"github.com/dmitrijs2005/studyctl/internal/client/models"
)

const resetSentMessage = "If an account with that email exists, a password reset link has been sent"

type authPayload struct {
	User         models.User `json:"user"`
	AccessToken  string      `json:"accessToken"`
	RefreshToken string      `json:"refreshToken"`
}

func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	var req models.Credentials
	if err := decodeJSON(r, &req, false); err != nil {
		writeServiceError(w, err)
		return
	}

	s.log.Info(r.Context(), "Registration request")

	user, verifyToken, err := s.users.Register(r.Context(), req.Email, req.Name, req.Password)
	if err != nil {
		if writeServiceError(w, err) {
			s.log.Error(r.Context(), "registration failed", "err", err)
		}
		return
	}

	// There is no mailer; the token is logged for whoever runs the server.
	s.log.Info(r.Context(), "Registered", "email", user.Email, "verification_token", verifyToken)
	writeOK(w, http.StatusCreated, map[string]any{
		"user":      user.Public(),
		"emailSent": false,
	}, "Registration successful")
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req models.Credentials
	if err := decodeJSON(r, &req, false); err != nil {
		writeServiceError(w, err)
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, CodeValidation, "Email and password are required")
		return
	}

	user, tokens, err := s.users.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if writeServiceError(w, err) {
			s.log.Error(r.Context(), "login failed", "err", err)
		}
		return
	}

	writeOK(w, http.StatusOK, authPayload{
		User:         user.Public(),
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
	}, "Login successful")
}

func (s *Server) refreshToken(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := decodeJSON(r, &req, false); err != nil {
		writeServiceError(w, err)
		return
	}

	user, tokens, err := s.users.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		writeError(w, http.StatusUnauthorized, CodeUnauthorized, "Invalid refresh token")
		return
	}
	writeOK(w, http.StatusOK, authPayload{
		User:         user.Public(),
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
	}, "")
}

func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	s.users.Logout(r.Context(), userFromContext(r.Context()).ID)
	http.SetCookie(w, &http.Cookie{
		Name:     s.cfg.CookieName,
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	writeOK(w, http.StatusOK, nil, "Logged out successfully")
}

func (s *Server) me(w http.ResponseWriter, r *http.Request) {
	writeOK(w, http.StatusOK, map[string]any{"user": userFromContext(r.Context()).Public()}, "")
}

// createSession turns a bearer token into the session cookie.
func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token string `json:"token"`
	}
	if err := decodeJSON(r, &req, false); err != nil {
		writeServiceError(w, err)
		return
	}
	if req.Token == "" {
		req.Token = bearerToken(r, s.cfg.CookieName)
	}

	if _, err := s.users.Authenticate(r.Context(), req.Token); err != nil {
		writeError(w, http.StatusUnauthorized, CodeUnauthorized, "Invalid token")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     s.cfg.CookieName,
		Value:    req.Token,
		Path:     "/",
		MaxAge:   int(s.cfg.AccessTokenValidityDuration.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	writeOK(w, http.StatusOK, nil, "Session created")
}

func (s *Server) forgotPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := decodeJSON(r, &req, false); err != nil {
		writeServiceError(w, err)
		return
	}

	token, err := s.users.RequestPasswordReset(r.Context(), req.Email)
	if err != nil {
		if writeServiceError(w, err) {
			s.log.Error(r.Context(), "password reset request failed", "err", err)
		}
		return
	}
	if token != "" {
		s.log.Info(r.Context(), "password reset requested", "email", req.Email, "reset_token", token)
	}
	writeOK(w, http.StatusOK, nil, resetSentMessage)
}

func (s *Server) resetPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token    string `json:"token"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r, &req, false); err != nil {
		writeServiceError(w, err)
		return
	}
	if req.Token == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, CodeValidation, "Token and password are required")
		return
	}

	if err := s.users.ResetPassword(r.Context(), req.Token, req.Password); err != nil {
		if writeServiceError(w, err) {
			s.log.Error(r.Context(), "password reset failed", "err", err)
		}
		return
	}
	writeOK(w, http.StatusOK, nil, "Password reset successful")
}

func (s *Server) verifyEmail(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token string `json:"token"`
	}
	if err := decodeJSON(r, &req, false); err != nil {
		writeServiceError(w, err)
		return
	}

	user, err := s.users.VerifyEmail(r.Context(), req.Token)
	if err != nil {
		if writeServiceError(w, err) {
			s.log.Error(r.Context(), "email verification failed", "err", err)
		}
		return
	}
	writeOK(w, http.StatusOK, map[string]any{"user": user.Public()}, "Email verified successfully")
}
