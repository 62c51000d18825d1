package main

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createProject(t *testing.T, a *App, token string, title string) int64 {
	t.Helper()
	rec := doJSON(t, a.Router(), "POST", "/api/projects", token, projectInput{
		Title:       title,
		Category:    "woodworking",
		Difficulty:  "medium",
		Description: "<p>build a bench</p>",
		Materials:   []Material{{Name: "oak board", Amount: "2"}},
		Tools:       []string{"saw"},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return int64(decodeBody(t, rec)["id"].(float64))
}

func TestProjectCRUDOwnership(t *testing.T) {
	a := newTestApp(t)
	r := a.Router()
	registerUser(t, r, "alice", "alice@x.com", "pw1")
	registerUser(t, r, "bob", "bob@x.com", "pw2")
	aliceToken := loginUser(t, r, "alice", "pw1")
	bobToken := loginUser(t, r, "bob", "pw2")

	// creation requires a token
	rec := doJSON(t, r, "POST", "/api/projects", "", projectInput{Title: "x"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	id := createProject(t, a, aliceToken, "Garden bench")

	// public read
	rec = doJSON(t, r, "GET", idPath("/api/projects/%d", id), "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "Garden bench", body["title"])
	assert.Equal(t, float64(0), body["like_count"])

	// non-owner cannot mutate
	update := projectInput{Title: "Stolen bench"}
	rec = doJSON(t, r, "PUT", idPath("/api/projects/%d", id), bobToken, update)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = doJSON(t, r, "DELETE", idPath("/api/projects/%d", id), bobToken, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// owner can
	rec = doJSON(t, r, "PUT", idPath("/api/projects/%d", id), aliceToken, projectInput{Title: "Garden bench v2"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Garden bench v2", decodeBody(t, rec)["title"])

	// unknown id is 404, not 403, regardless of caller
	rec = doJSON(t, r, "PUT", "/api/projects/99999", bobToken, update)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// admin can delete someone else's project
	adminToken := makeAdmin(t, a, r, "root", "root@x.com")
	rec = doJSON(t, r, "DELETE", idPath("/api/projects/%d", id), adminToken, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, r, "GET", idPath("/api/projects/%d", id), "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestProjectValidation(t *testing.T) {
	a := newTestApp(t)
	r := a.Router()
	registerUser(t, r, "alice", "alice@x.com", "pw1")
	token := loginUser(t, r, "alice", "pw1")

	rec := doJSON(t, r, "POST", "/api/projects", token, projectInput{Title: ""})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	images := make([]string, maxProjectImages+1)
	for i := range images {
		images[i] = "/uploads/img.png"
	}
	rec = doJSON(t, r, "POST", "/api/projects", token, projectInput{Title: "x", Images: images})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestProjectList(t *testing.T) {
	a := newTestApp(t)
	r := a.Router()
	registerUser(t, r, "alice", "alice@x.com", "pw1")
	token := loginUser(t, r, "alice", "pw1")
	createProject(t, a, token, "First")
	createProject(t, a, token, "Second")

	rec := doJSON(t, r, "GET", "/api/projects", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	// newest first
	first := strings.Index(rec.Body.String(), "Second")
	second := strings.Index(rec.Body.String(), "First")
	assert.Less(t, first, second)
}

func TestComments(t *testing.T) {
	a := newTestApp(t)
	r := a.Router()
	registerUser(t, r, "alice", "alice@x.com", "pw1")
	registerUser(t, r, "bob", "bob@x.com", "pw2")
	aliceToken := loginUser(t, r, "alice", "pw1")
	bobToken := loginUser(t, r, "bob", "pw2")
	id := createProject(t, a, aliceToken, "Bench")

	// commenting requires auth
	rec := doJSON(t, r, "POST", idPath("/api/projects/%d/comments", id), "", map[string]string{"text": "nice"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doJSON(t, r, "POST", idPath("/api/projects/%d/comments", id), bobToken, map[string]string{"text": "nice build"})
	require.Equal(t, http.StatusCreated, rec.Code)
	commentID := int64(decodeBody(t, rec)["id"].(float64))

	// commenting on a missing project
	rec = doJSON(t, r, "POST", "/api/projects/99999/comments", bobToken, map[string]string{"text": "hello"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// public list
	rec = doJSON(t, r, "GET", idPath("/api/projects/%d/comments", id), "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "nice build")

	// alice did not write bob's comment
	path := idPath("/api/projects/%d/comments/", id) + idPath("%d", commentID)
	rec = doJSON(t, r, "DELETE", path, aliceToken, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// the author can delete it
	rec = doJSON(t, r, "DELETE", path, bobToken, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	// and it is gone
	rec = doJSON(t, r, "DELETE", path, bobToken, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestLikes(t *testing.T) {
	a := newTestApp(t)
	r := a.Router()
	registerUser(t, r, "alice", "alice@x.com", "pw1")
	registerUser(t, r, "bob", "bob@x.com", "pw2")
	aliceToken := loginUser(t, r, "alice", "pw1")
	bobToken := loginUser(t, r, "bob", "pw2")
	id := createProject(t, a, aliceToken, "Bench")

	rec := doJSON(t, r, "POST", idPath("/api/projects/%d/like", id), bobToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), decodeBody(t, rec)["like_count"])

	// liking twice is a no-op
	rec = doJSON(t, r, "POST", idPath("/api/projects/%d/like", id), bobToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), decodeBody(t, rec)["like_count"])

	// detail reflects the caller's like state
	rec = doJSON(t, r, "GET", idPath("/api/projects/%d", id), bobToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decodeBody(t, rec)["liked_by_user"])

	rec = doJSON(t, r, "GET", idPath("/api/projects/%d", id), aliceToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, decodeBody(t, rec)["liked_by_user"])

	// anonymous detail has no like state at all
	rec = doJSON(t, r, "GET", idPath("/api/projects/%d", id), "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "liked_by_user")

	rec = doJSON(t, r, "DELETE", idPath("/api/projects/%d/like", id), bobToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(0), decodeBody(t, rec)["like_count"])

	// liking a missing project
	rec = doJSON(t, r, "POST", "/api/projects/99999/like", bobToken, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUploadProfilePic(t *testing.T) {
	a := newTestApp(t)
	r := a.Router()
	aliceID := registerUser(t, r, "alice", "alice@x.com", "pw1")
	token := loginUser(t, r, "alice", "pw1")

	rec := uploadFile(t, r, token, "me.png", []byte("pngbytes"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	path := decodeBody(t, rec)["file_path"].(string)
	assert.True(t, strings.HasPrefix(path, "/uploads/"))
	assert.Contains(t, path, idPath("%d-", aliceID))

	// the file really landed in the upload dir
	entries, err := os.ReadDir(a.UploadDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, filepath.Base(path), entries[0].Name())

	// avatar path recorded on the profile
	rec = doJSON(t, r, "GET", "/api/profile", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, path, decodeBody(t, rec)["avatar_path"])

	// unsupported extension
	rec = uploadFile(t, r, token, "notes.txt", []byte("hello"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// anonymous upload
	rec = uploadFile(t, r, "", "me.png", []byte("pngbytes"))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func uploadFile(t *testing.T, r http.Handler, token, filename string, content []byte) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("profilePic", filename)
	require.NoError(t, err)
	_, err = fw.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest("POST", "/api/upload-profile-pic", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}
