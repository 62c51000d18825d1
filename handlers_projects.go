package main

import (
	"encoding/json"
	"net/http"
	"strings"
)

// projectResponse decorates a project with its like state.
type projectResponse struct {
	*Project
	LikeCount   int64 `json:"like_count"`
	LikedByUser *bool `json:"liked_by_user,omitempty"`
}

func (a *App) projectWithLikes(p *Project, principal *Principal) (*projectResponse, error) {
	count, err := a.Store.CountLikes(p.ID)
	if err != nil {
		return nil, err
	}
	resp := &projectResponse{Project: p, LikeCount: count}
	if principal != nil {
		liked, err := a.Store.HasLiked(p.ID, principal.UserID)
		if err != nil {
			return nil, err
		}
		resp.LikedByUser = &liked
	}
	return resp, nil
}

// optionalPrincipal resolves a principal on public routes that vary
// their response for authenticated callers. An absent or invalid token
// just means anonymous here; the gates on mutating routes stay strict.
func (a *App) optionalPrincipal(r *http.Request) *Principal {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return nil
	}
	principal, err := a.Tokens.Verify(strings.TrimPrefix(header, "Bearer "))
	if err != nil {
		return nil
	}
	return &principal
}

type projectInput struct {
	Title       string     `json:"title"`
	Category    string     `json:"category"`
	Difficulty  string     `json:"difficulty"`
	Duration    string     `json:"duration"`
	Cost        string     `json:"cost"`
	Description string     `json:"description"`
	Materials   []Material `json:"materials"`
	Tools       []string   `json:"tools"`
	Images      []string   `json:"images"`
}

func (in *projectInput) validate() string {
	if in.Title == "" {
		return "Title is required"
	}
	if len(in.Images) > maxProjectImages {
		return "Too many images"
	}
	return ""
}

func (a *App) HandleListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := a.Store.ListProjects()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list projects")
		return
	}
	out := make([]*projectResponse, 0, len(projects))
	for _, p := range projects {
		resp, err := a.projectWithLikes(p, nil)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list projects")
			return
		}
		out = append(out, resp)
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *App) HandleGetProject(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Project not found")
		return
	}
	p, err := a.Store.GetProjectByID(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to load project")
		return
	}
	if p == nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Project not found")
		return
	}
	resp, err := a.projectWithLikes(p, a.optionalPrincipal(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to load project")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *App) HandleCreateProject(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	var in projectInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body")
		return
	}
	if msg := in.validate(); msg != "" {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", msg)
		return
	}
	p, err := a.Store.CreateProject(&Project{
		OwnerID:     principal.UserID,
		Title:       in.Title,
		Category:    in.Category,
		Difficulty:  in.Difficulty,
		Duration:    in.Duration,
		Cost:        in.Cost,
		Description: in.Description,
		Materials:   in.Materials,
		Tools:       in.Tools,
		Images:      in.Images,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to create project")
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (a *App) loadProjectOwner(id int64) (int64, bool, error) {
	p, err := a.Store.GetProjectByID(id)
	if err != nil || p == nil {
		return 0, false, err
	}
	return p.OwnerID, true, nil
}

func (a *App) HandleUpdateProject(w http.ResponseWriter, r *http.Request) {
	id, ok := a.authorizeOwned(w, r, "id", a.loadProjectOwner)
	if !ok {
		return
	}
	var in projectInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body")
		return
	}
	if msg := in.validate(); msg != "" {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", msg)
		return
	}
	if err := a.Store.UpdateProject(&Project{
		ID:          id,
		Title:       in.Title,
		Category:    in.Category,
		Difficulty:  in.Difficulty,
		Duration:    in.Duration,
		Cost:        in.Cost,
		Description: in.Description,
		Materials:   in.Materials,
		Tools:       in.Tools,
		Images:      in.Images,
	}); err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to update project")
		return
	}
	p, err := a.Store.GetProjectByID(id)
	if err != nil || p == nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to load project")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (a *App) HandleDeleteProject(w http.ResponseWriter, r *http.Request) {
	id, ok := a.authorizeOwned(w, r, "id", a.loadProjectOwner)
	if !ok {
		return
	}
	if err := a.Store.DeleteProject(id); err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to delete project")
		return
	}
	writeSuccess(w, http.StatusOK, map[string]int64{"deleted": id})
}

func (a *App) HandleListComments(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Project not found")
		return
	}
	p, err := a.Store.GetProjectByID(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to load project")
		return
	}
	if p == nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Project not found")
		return
	}
	comments, err := a.Store.ListComments(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list comments")
		return
	}
	if comments == nil {
		comments = []*Comment{}
	}
	writeJSON(w, http.StatusOK, comments)
}

func (a *App) HandleCreateComment(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Project not found")
		return
	}
	p, err := a.Store.GetProjectByID(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to load project")
		return
	}
	if p == nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Project not found")
		return
	}
	var in struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || strings.TrimSpace(in.Text) == "" {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Comment text is required")
		return
	}
	c, err := a.Store.CreateComment(id, principal.UserID, in.Text)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to create comment")
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

// HandleDeleteComment removes a comment. Ownership gate on the comment
// author; the comment must also belong to the project in the path.
func (a *App) HandleDeleteComment(w http.ResponseWriter, r *http.Request) {
	projectID, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Comment not found")
		return
	}
	commentID, ok := a.authorizeOwned(w, r, "commentID", func(id int64) (int64, bool, error) {
		c, err := a.Store.GetCommentByID(id)
		if err != nil || c == nil || c.ProjectID != projectID {
			return 0, false, err
		}
		return c.AuthorID, true, nil
	})
	if !ok {
		return
	}
	if err := a.Store.DeleteComment(commentID); err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to delete comment")
		return
	}
	writeSuccess(w, http.StatusOK, map[string]int64{"deleted": commentID})
}

// HandleLike records a like; liking twice is a no-op.
func (a *App) HandleLike(w http.ResponseWriter, r *http.Request) {
	a.handleLikeChange(w, r, a.Store.AddLike)
}

func (a *App) HandleUnlike(w http.ResponseWriter, r *http.Request) {
	a.handleLikeChange(w, r, a.Store.RemoveLike)
}

func (a *App) handleLikeChange(w http.ResponseWriter, r *http.Request, change func(projectID, userID int64) error) {
	principal, _ := PrincipalFromContext(r.Context())
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Project not found")
		return
	}
	p, err := a.Store.GetProjectByID(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to load project")
		return
	}
	if p == nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Project not found")
		return
	}
	if err := change(id, principal.UserID); err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to update like")
		return
	}
	count, err := a.Store.CountLikes(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to update like")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"like_count": count})
}
