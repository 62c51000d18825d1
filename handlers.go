package main

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

type creds struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// HandleRegister creates an account. Registration never issues a
// token; login is a separate explicit step.
func (a *App) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var c creds
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body")
		return
	}
	if c.Username == "" || c.Email == "" || c.Password == "" {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Username, email and password are required")
		return
	}

	hashed, err := hashPassword(c.Password)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to process password")
		return
	}
	user, err := a.Store.CreateUser(c.Username, c.Email, hashed)
	if err == ErrDuplicate {
		writeError(w, http.StatusConflict, "USER_EXISTS", "Username or email already taken")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to create user")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"user": map[string]interface{}{
			"id":       user.ID,
			"username": user.Username,
			"email":    user.Email,
		},
	})
}

// HandleLogin verifies credentials and issues a bearer token. A
// missing user and a wrong password produce the same response so
// usernames cannot be enumerated.
func (a *App) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var c creds
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body")
		return
	}
	user, err := a.Store.GetUserByUsername(c.Username)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to look up user")
		return
	}
	if user == nil || !comparePassword(user.Password, c.Password) {
		writeError(w, http.StatusBadRequest, "INVALID_CREDENTIALS", "Invalid username or password")
		return
	}

	token, err := a.Tokens.Issue(user.ID, user.Role)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to issue token")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"token": token,
		"user": map[string]interface{}{
			"id":       user.ID,
			"username": user.Username,
			"role":     user.Role,
		},
	})
}

// HandleGetProfile returns the caller's own record, password omitted.
func (a *App) HandleGetProfile(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	user, err := a.Store.GetUserByID(principal.UserID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to load profile")
		return
	}
	if user == nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "User not found")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// HandleUpdateProfile updates the caller's own username/email. The
// token subject is the only record this route can touch.
func (a *App) HandleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	var in struct {
		Username string `json:"username"`
		Email    string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body")
		return
	}
	if in.Username == "" || in.Email == "" {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Username and email are required")
		return
	}
	user, err := a.Store.UpdateUser(principal.UserID, in.Username, in.Email)
	if err == ErrDuplicate {
		writeError(w, http.StatusConflict, "USER_EXISTS", "Username or email already taken")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to update profile")
		return
	}
	if user == nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "User not found")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// HandleGetUser returns another user's public profile.
func (a *App) HandleGetUser(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "User not found")
		return
	}
	user, err := a.Store.GetUserByID(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to load user")
		return
	}
	if user == nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "User not found")
		return
	}
	writeJSON(w, http.StatusOK, user.PublicProfile())
}

// HandleUpdateUser mutates a user record by id. Gated on ownership:
// only the user themselves or an admin may do this.
func (a *App) HandleUpdateUser(w http.ResponseWriter, r *http.Request) {
	id, ok := a.authorizeOwned(w, r, "id", func(id int64) (int64, bool, error) {
		u, err := a.Store.GetUserByID(id)
		if err != nil || u == nil {
			return 0, false, err
		}
		return u.ID, true, nil
	})
	if !ok {
		return
	}
	var in struct {
		Username string `json:"username"`
		Email    string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body")
		return
	}
	if in.Username == "" || in.Email == "" {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Username and email are required")
		return
	}
	user, err := a.Store.UpdateUser(id, in.Username, in.Email)
	if err == ErrDuplicate {
		writeError(w, http.StatusConflict, "USER_EXISTS", "Username or email already taken")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to update user")
		return
	}
	if user == nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "User not found")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// HandleLinkYouTubeVideo records a YouTube video id on the caller's
// profile.
func (a *App) HandleLinkYouTubeVideo(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	var in struct {
		VideoID string `json:"video_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.VideoID == "" {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Video id is required")
		return
	}
	if err := a.Store.AddYouTubeVideo(principal.UserID, in.VideoID); err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to link video")
		return
	}
	writeSuccess(w, http.StatusOK, map[string]string{"video_id": in.VideoID})
}

// HandleAdminDashboard reports platform counts. Reached only through
// RequireRole(RoleAdmin).
func (a *App) HandleAdminDashboard(w http.ResponseWriter, r *http.Request) {
	users, err := a.Store.CountUsers()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to load stats")
		return
	}
	projects, _ := a.Store.CountProjects()
	comments, _ := a.Store.CountComments()
	writeJSON(w, http.StatusOK, map[string]int64{
		"users":    users,
		"projects": projects,
		"comments": comments,
	})
}

// HandleSetUserRole promotes or demotes a user. Admin only.
func (a *App) HandleSetUserRole(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "User not found")
		return
	}
	var in struct {
		Role string `json:"role"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || (in.Role != RoleUser && in.Role != RoleAdmin) {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Role must be user or admin")
		return
	}
	user, err := a.Store.GetUserByID(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to load user")
		return
	}
	if user == nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "User not found")
		return
	}
	if err := a.Store.SetUserRole(id, in.Role); err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to update role")
		return
	}
	logrus.WithFields(logrus.Fields{"user_id": id, "role": in.Role}).Info("role changed")
	writeSuccess(w, http.StatusOK, map[string]interface{}{"id": id, "role": in.Role})
}

// pathID parses the named mux path variable as an id.
func pathID(r *http.Request, name string) (int64, error) {
	return strconv.ParseInt(mux.Vars(r)[name], 10, 64)
}

// authorizeOwned is the shared ownership gate for mutating routes. It
// resolves the named path id, loads the resource's owner, and admits
// the owner or an admin. The existence check runs before the ownership
// comparison, so callers always see 404 for a missing resource.
func (a *App) authorizeOwned(w http.ResponseWriter, r *http.Request, param string, loadOwner func(id int64) (ownerID int64, found bool, err error)) (int64, bool) {
	id, err := pathID(r, param)
	if err != nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Resource not found")
		return 0, false
	}
	principal, ok := PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "UNAUTHENTICATED", "Access denied. No token provided")
		return 0, false
	}
	ownerID, found, err := loadOwner(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to load resource")
		return 0, false
	}
	if !found {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Resource not found")
		return 0, false
	}
	if !canModify(principal, ownerID) {
		writeError(w, http.StatusForbidden, "FORBIDDEN", "Access denied. Insufficient permissions")
		return 0, false
	}
	return id, true
}
