package api

import (
	"net/http"

	"github.com/rs/zerolog/log"

	"shaneshark.com/portfolio/internal/apperr"
	"shaneshark.com/portfolio/internal/session"
)

// AdminLoginHandler checks the shared admin password
func (s *Server) AdminLoginHandler(w http.ResponseWriter, r *http.Request) {
	var req AdminLoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	sess := currentSession(r)
	wasAdmin := sess.Admin
	ok, err := s.Admin.Login(r.Context(), sess, req.Password, clientIP(r, s.TrustedProxies))
	if err != nil {
		writeError(w, r, err)
		return
	}
	switch {
	case ok:
		if !s.renew(w, r, sess) {
			return
		}
	case wasAdmin:
		// persist the cleared flag
		if !s.commit(w, r, sess) {
			return
		}
	}
	writeOK(w, ok)
}

// CheckEmailHandler reports whether the e-mail is registered, sending a code when it is not
func (s *Server) CheckEmailHandler(w http.ResponseWriter, r *http.Request) {
	exists, err := s.Admin.CheckEmailOrSend(r.Context(), r.FormValue("email"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, exists)
}

// EmailLoginHandler registers or logs in an e-mail account
func (s *Server) EmailLoginHandler(w http.ResponseWriter, r *http.Request) {
	var req EmailLoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	sess := currentSession(r)
	if err := s.Admin.RegisterOrLogin(r.Context(), sess, req.Email, req.Password, req.Code); err != nil {
		writeError(w, r, err)
		return
	}
	if !s.renew(w, r, sess) {
		return
	}
	writeOK(w, true)
}

func (s *Server) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	sess := currentSession(r)
	s.Admin.Logout(sess)
	if err := s.Sessions.Destroy(r.Context(), w, sess); err != nil {
		log.Warn().Err(err).Msg("Failed to delete session on logout")
	}
	writeOK(w, true)
}

// SessionHandler reports whether the caller holds the admin flag
func (s *Server) SessionHandler(w http.ResponseWriter, r *http.Request) {
	writeOK(w, currentSession(r).Admin)
}

// renew moves a freshly authenticated session to a new id
func (s *Server) renew(w http.ResponseWriter, r *http.Request, sess *session.Session) bool {
	if _, err := s.Sessions.Renew(r.Context(), w, sess); err != nil {
		writeError(w, r, apperr.Wrap(apperr.SystemError, ErrSessionSaveFail, err))
		return false
	}
	return true
}

// commit persists the session, writing the error envelope on failure
func (s *Server) commit(w http.ResponseWriter, r *http.Request, sess *session.Session) bool {
	if err := s.Sessions.Commit(r.Context(), w, sess); err != nil {
		writeError(w, r, apperr.Wrap(apperr.SystemError, ErrSessionSaveFail, err))
		return false
	}
	return true
}
