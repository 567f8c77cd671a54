// Package githubtest provides an in-memory fake of the GitHub REST API
// endpoints used by ghprofile, for tests.
package githubtest

import (
	"crypto/sha1" //nolint:gosec // git blob ids are SHA-1
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

type file struct {
	content string
	sha     string

	// withheld files are listed with encoding "none" and no content, the
	// way the API answers for files over 1 MB.
	withheld bool
}

// Server is a fake GitHub API for a single authenticated user.
type Server struct {
	srv *httptest.Server

	mu       sync.Mutex
	token    string
	login    string
	bio      string
	repos    map[string]bool
	files    map[string]file
	calls    []string
	failures map[string]int
}

// NewServer starts a fake API that accepts token for login. It is closed
// when the test ends.
func NewServer(t testing.TB, login, token string) *Server {
	t.Helper()

	s := &Server{
		token:    token,
		login:    login,
		repos:    make(map[string]bool),
		files:    make(map[string]file),
		failures: make(map[string]int),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleRoot)
	mux.HandleFunc("GET /user", s.authed(s.handleGetUser))
	mux.HandleFunc("PATCH /user", s.authed(s.handleEditUser))
	mux.HandleFunc("GET /repos/{owner}/{repo}", s.authed(s.handleGetRepo))
	mux.HandleFunc("GET /repos/{owner}/{repo}/contents/{path...}", s.authed(s.handleGetContents))
	mux.HandleFunc("PUT /repos/{owner}/{repo}/contents/{path...}", s.authed(s.handlePutContents))

	s.srv = httptest.NewServer(s.record(mux))
	t.Cleanup(s.srv.Close)
	return s
}

// URL returns the API root, ending in "/".
func (s *Server) URL() string {
	return s.srv.URL + "/"
}

// AddRepository makes owner/repo exist.
func (s *Server) AddRepository(owner, repo string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.repos[owner+"/"+repo] = true
}

// PutFile stores a file, creating the repository if needed.
func (s *Server) PutFile(owner, repo, path, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.repos[owner+"/"+repo] = true
	s.files[fileKey(owner, repo, path)] = file{content: content, sha: blobSHA(content)}
}

// WithholdContent makes the contents endpoint answer for path with
// encoding "none" and no content. A later write clears it.
func (s *Server) WithholdContent(owner, repo, path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := fileKey(owner, repo, path)
	if f, ok := s.files[key]; ok {
		f.withheld = true
		s.files[key] = f
	}
}

// File returns the stored content of a file.
func (s *Server) File(owner, repo, path string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.files[fileKey(owner, repo, path)]
	return f.content, ok
}

// FileSHA returns the current blob SHA of a file, or "".
func (s *Server) FileSHA(owner, repo, path string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.files[fileKey(owner, repo, path)].sha
}

// Bio returns the stored bio.
func (s *Server) Bio() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bio
}

// SetBio sets the stored bio.
func (s *Server) SetBio(bio string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bio = bio
}

// FailWith makes every request matching method and the exact path answer
// with status.
func (s *Server) FailWith(method, path string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[method+" "+path] = status
}

// Calls returns every request received, as "METHOD /path".
func (s *Server) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

// CallCount counts requests whose "METHOD /path" starts with prefix.
func (s *Server) CallCount(prefix string) int {
	n := 0
	for _, c := range s.Calls() {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

func (s *Server) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Method + " " + r.URL.Path

		s.mu.Lock()
		s.calls = append(s.calls, key)
		status, fail := s.failures[key]
		s.mu.Unlock()

		if fail {
			writeError(w, status, http.StatusText(status))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) authed(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+s.token {
			writeError(w, http.StatusUnauthorized, "Bad credentials")
			return
		}
		next(w, r)
	}
}

func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"current_user_url": s.URL() + "user",
	})
}

func (s *Server) handleGetUser(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]string{"login": s.login, "bio": s.bio})
}

func (s *Server) handleEditUser(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Bio *string `json:"bio"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Problems parsing JSON")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if body.Bio != nil {
		if len(*body.Bio) > 160 {
			writeError(w, http.StatusUnprocessableEntity, "bio is too long (maximum is 160 characters)")
			return
		}
		s.bio = *body.Bio
	}
	writeJSON(w, http.StatusOK, map[string]string{"login": s.login, "bio": s.bio})
}

func (s *Server) handleGetRepo(w http.ResponseWriter, r *http.Request) {
	owner, repo := r.PathValue("owner"), r.PathValue("repo")

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.repos[owner+"/"+repo] {
		writeError(w, http.StatusNotFound, "Not Found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"name":      repo,
		"full_name": owner + "/" + repo,
		"owner":     map[string]string{"login": owner},
	})
}

func (s *Server) handleGetContents(w http.ResponseWriter, r *http.Request) {
	owner, repo, path := r.PathValue("owner"), r.PathValue("repo"), r.PathValue("path")

	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.files[fileKey(owner, repo, path)]
	if !s.repos[owner+"/"+repo] || !ok {
		writeError(w, http.StatusNotFound, "Not Found")
		return
	}
	writeJSON(w, http.StatusOK, contentJSON(path, f))
}

func (s *Server) handlePutContents(w http.ResponseWriter, r *http.Request) {
	owner, repo, path := r.PathValue("owner"), r.PathValue("repo"), r.PathValue("path")

	var body struct {
		Message string  `json:"message"`
		Content string  `json:"content"`
		SHA     *string `json:"sha"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Problems parsing JSON")
		return
	}
	if body.Message == "" {
		writeError(w, http.StatusUnprocessableEntity, "Invalid request: message is missing")
		return
	}
	raw, err := base64.StdEncoding.DecodeString(body.Content)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "content is not valid Base64")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.repos[owner+"/"+repo] {
		writeError(w, http.StatusNotFound, "Not Found")
		return
	}

	key := fileKey(owner, repo, path)
	existing, exists := s.files[key]
	switch {
	case exists && body.SHA == nil:
		writeError(w, http.StatusUnprocessableEntity, `Invalid request. "sha" wasn't supplied.`)
		return
	case exists && *body.SHA != existing.sha:
		writeError(w, http.StatusConflict, fmt.Sprintf("%s does not match %s", path, *body.SHA))
		return
	case !exists && body.SHA != nil:
		writeError(w, http.StatusNotFound, "Not Found")
		return
	}

	f := file{content: string(raw), sha: blobSHA(string(raw))}
	s.files[key] = f

	status := http.StatusOK
	if !exists {
		status = http.StatusCreated
	}
	writeJSON(w, status, map[string]any{
		"content": contentJSON(path, f),
		"commit":  map[string]string{"sha": f.sha, "message": body.Message},
	})
}

func contentJSON(path string, f file) map[string]any {
	name := path
	if i := strings.LastIndex(path, "/"); i >= 0 {
		name = path[i+1:]
	}
	body := map[string]any{
		"type":     "file",
		"encoding": "base64",
		"name":     name,
		"path":     path,
		"size":     len(f.content),
		"sha":      f.sha,
		"content":  base64.StdEncoding.EncodeToString([]byte(f.content)),
	}
	if f.withheld {
		body["encoding"] = "none"
		body["content"] = ""
	}
	return body
}

func fileKey(owner, repo, path string) string {
	return owner + "/" + repo + ":" + path
}

// blobSHA computes the git blob id of content.
func blobSHA(content string) string {
	h := sha1.New() //nolint:gosec // git blob ids are SHA-1
	fmt.Fprintf(h, "blob %d\x00", len(content))
	h.Write([]byte(content))
	return hex.EncodeToString(h.Sum(nil))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{
		"message":           message,
		"documentation_url": "https://docs.github.com/rest",
	})
}
