package server

import (
	"net/http"

	"github.com/bobmcallan/fintrack/internal/models"
)

type loginRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
}

type loginResponse struct {
	Token string       `json:"token"`
	User  *models.User `json:"user"`
}

// handleAuthLogin handles POST /api/auth/login. Unknown emails are registered.
func (s *Server) handleAuthLogin(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	var req loginRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	sess, token, err := s.app.Sessions.SignIn(r.Context(), req.Email, req.Password, req.DisplayName)
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, loginResponse{Token: token, User: sess.User})
}

// handleAuthLogout handles POST /api/auth/logout. The caller's token is
// revoked and its session closed.
func (s *Server) handleAuthLogout(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	sess, ok := requireSession(w, r)
	if !ok {
		return
	}
	if err := s.app.Sessions.SignOut(r.Context(), bearerToken(r)); err != nil {
		s.logger.Warn().Err(err).Str("user_id", sess.User.ID).Msg("Sign-out failed")
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleMe handles GET /api/me.
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	sess, ok := requireSession(w, r)
	if !ok {
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"user":  sess.User,
		"ready": sess.Ledger.Ready(),
	})
}
