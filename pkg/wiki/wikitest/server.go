// Package wikitest provides an in-memory fake of the wiki HTTP API for
// tests: token handshake, cookie-free login, page and file storage,
// token rotation and injectable failures.
package wikitest

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
)

// LoginToken is the fixed login-purpose token the fake hands out.
const LoginToken = "fake-login-token"

// Server is a fake wiki. All exported state access is safe for
// concurrent use.
type Server struct {
	*httptest.Server

	Username string
	Password string

	mu           sync.Mutex
	pages        map[string]string
	files        map[string][]byte
	currentToken string
	tokenSerial  int

	editCalls    int
	editsByTitle map[string]int
	uploadCalls  int
	tokenCalls   int
	loginCalls   int

	// failures maps an operation key ("edit:<title>", "upload:<name>",
	// "revisions:<title>", "imageinfo:<name>", "csrf", "login") to the
	// number of remaining injected 500 responses.
	failures map[string]int
}

// New starts a fake wiki accepting the given credentials.
func New(username, password string) *Server {
	s := &Server{
		Username:     username,
		Password:     password,
		pages:        map[string]string{},
		files:        map[string][]byte{},
		editsByTitle: map[string]int{},
		failures:     map[string]int{},
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	return s
}

// SetPage seeds remote page content.
func (s *Server) SetPage(title, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pages[title] = content
}

// Page returns remote page content.
func (s *Server) Page(title string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	content, ok := s.pages[title]
	return content, ok
}

// SetFile seeds a remote file.
func (s *Server) SetFile(name string, content []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[name] = content
}

// File returns remote file content.
func (s *Server) File(name string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	content, ok := s.files[name]
	return content, ok
}

// FailNext makes the next n calls matching key respond with HTTP 500.
func (s *Server) FailNext(key string, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[key] = n
}

// InvalidateToken discards the current write token so the next write
// with a previously issued token is rejected with badtoken.
func (s *Server) InvalidateToken() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.currentToken = ""
}

func (s *Server) EditCalls() int { s.mu.Lock(); defer s.mu.Unlock(); return s.editCalls }

// EditCallsFor counts successful edits of one title.
func (s *Server) EditCallsFor(title string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.editsByTitle[title]
}

func (s *Server) UploadCalls() int { s.mu.Lock(); defer s.mu.Unlock(); return s.uploadCalls }
func (s *Server) TokenCalls() int  { s.mu.Lock(); defer s.mu.Unlock(); return s.tokenCalls }
func (s *Server) LoginCalls() int  { s.mu.Lock(); defer s.mu.Unlock(); return s.loginCalls }

func (s *Server) failing(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failures[key] > 0 {
		s.failures[key]--
		return true
	}
	return false
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	} else if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	switch r.Form.Get("action") {
	case "query":
		s.handleQuery(w, r)
	case "login":
		s.handleLogin(w, r)
	case "edit":
		s.handleEdit(w, r)
	case "upload":
		s.handleUpload(w, r)
	default:
		writeJSON(w, apiErr("badaction", "unknown action"))
	}
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.Form.Get("meta") == "tokens" && r.Form.Get("type") == "login":
		writeJSON(w, map[string]any{
			"query": map[string]any{"tokens": map[string]any{"logintoken": LoginToken}},
		})

	case r.Form.Get("meta") == "tokens":
		if s.failing("csrf") {
			http.Error(w, "server fault", http.StatusInternalServerError)
			return
		}
		s.mu.Lock()
		s.tokenCalls++
		s.tokenSerial++
		s.currentToken = fmt.Sprintf("csrf-%d", s.tokenSerial)
		token := s.currentToken
		s.mu.Unlock()
		writeJSON(w, map[string]any{
			"query": map[string]any{"tokens": map[string]any{"csrftoken": token}},
		})

	case r.Form.Get("prop") == "revisions":
		title := r.Form.Get("titles")
		if s.failing("revisions:" + title) {
			http.Error(w, "server fault", http.StatusInternalServerError)
			return
		}
		content, ok := s.Page(title)
		if !ok {
			writeJSON(w, missingPage())
			return
		}
		writeJSON(w, map[string]any{
			"query": map[string]any{"pages": []any{map[string]any{
				"revisions": []any{map[string]any{
					"slots": map[string]any{"main": map[string]any{"content": content}},
				}},
			}}},
		})

	case r.Form.Get("prop") == "imageinfo":
		name := strings.TrimPrefix(r.Form.Get("titles"), "File:")
		if s.failing("imageinfo:" + name) {
			http.Error(w, "server fault", http.StatusInternalServerError)
			return
		}
		content, ok := s.File(name)
		if !ok {
			writeJSON(w, missingPage())
			return
		}
		digest := sha1.Sum(content)
		writeJSON(w, map[string]any{
			"query": map[string]any{"pages": []any{map[string]any{
				"imageinfo": []any{map[string]any{
					"sha1": hex.EncodeToString(digest[:]),
					"size": len(content),
				}},
			}}},
		})

	default:
		writeJSON(w, apiErr("badquery", "unknown query"))
	}
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if s.failing("login") {
		http.Error(w, "server fault", http.StatusInternalServerError)
		return
	}
	s.mu.Lock()
	s.loginCalls++
	s.mu.Unlock()

	if r.Form.Get("lgtoken") != LoginToken {
		writeJSON(w, map[string]any{"login": map[string]any{"result": "WrongToken"}})
		return
	}
	if r.Form.Get("lgname") != s.Username || r.Form.Get("lgpassword") != s.Password {
		writeJSON(w, map[string]any{"login": map[string]any{
			"result": "Failed",
			"reason": "Incorrect username or password entered",
		}})
		return
	}
	writeJSON(w, map[string]any{"login": map[string]any{"result": "Success"}})
}

func (s *Server) validToken(token string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return token != "" && token == s.currentToken
}

func (s *Server) handleEdit(w http.ResponseWriter, r *http.Request) {
	title := r.Form.Get("title")
	if s.failing("edit:" + title) {
		http.Error(w, "server fault", http.StatusInternalServerError)
		return
	}
	if !s.validToken(r.Form.Get("token")) {
		writeJSON(w, apiErr("badtoken", "Invalid CSRF token."))
		return
	}
	s.mu.Lock()
	s.editCalls++
	s.editsByTitle[title]++
	s.pages[title] = r.Form.Get("text")
	s.mu.Unlock()
	writeJSON(w, map[string]any{"edit": map[string]any{"result": "Success"}})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	name := r.Form.Get("filename")
	if s.failing("upload:" + name) {
		http.Error(w, "server fault", http.StatusInternalServerError)
		return
	}
	if !s.validToken(r.Form.Get("token")) {
		writeJSON(w, apiErr("badtoken", "Invalid CSRF token."))
		return
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, apiErr("missingparam", "no file part"))
		return
	}
	defer file.Close()
	content, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	s.mu.Lock()
	s.uploadCalls++
	s.files[name] = content
	s.mu.Unlock()
	writeJSON(w, map[string]any{"upload": map[string]any{"result": "Success"}})
}

func missingPage() map[string]any {
	return map[string]any{
		"query": map[string]any{"pages": []any{map[string]any{"missing": true}}},
	}
}

func apiErr(code, info string) map[string]any {
	return map[string]any{"error": map[string]any{"code": code, "info": info}}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
