package main

import (
	"embed"
	"encoding/base64"
	"encoding/json"
	"errors"
	"html/template"
	"image"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"imagestudio/config"
	"imagestudio/metrics"
	"imagestudio/middleware"
	"imagestudio/prompt"
	"imagestudio/providers"
	"imagestudio/studio"
)

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

const maxUploadBytes = providers.MaxDownloadBytes

// server holds the handlers' dependencies.
type server struct {
	cfg    *config.Config
	studio *studio.Studio
}

// routes registers every endpoint on a new mux.
func (s *server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.Handle("GET /{$}", middleware.WebAuthMiddleware(http.HandlerFunc(s.serveIndex)))
	mux.HandleFunc("GET /login", s.serveLogin)
	mux.HandleFunc("POST /login", s.handleLogin)
	mux.HandleFunc("GET /logout", s.handleLogout)

	api := func(h http.HandlerFunc) http.Handler { return middleware.APIAuthMiddleware(h) }
	mux.Handle("POST /api/generate", api(s.handleGenerate))
	mux.Handle("POST /api/analyze", api(s.handleAnalyze))
	mux.Handle("POST /api/fetch", api(s.handleFetch))
	mux.Handle("POST /api/ghibli", api(s.handleGhibli))
	mux.Handle("GET /api/styles", api(s.handleStyles))
	mux.Handle("GET /api/models", api(s.handleModels))

	mux.Handle("GET /metrics", metrics.Handler())

	return middleware.RequestLogger(mux)
}

type indexData struct {
	Styles     []string
	NeedsToken bool
	HasGhibli  bool
	LoginUsed  bool
}

func (s *server) serveIndex(w http.ResponseWriter, r *http.Request) {
	data := indexData{
		Styles:     prompt.Styles,
		NeedsToken: s.cfg.APIKeys.HuggingFace == "",
		HasGhibli:  s.cfg.APIKeys.Stability != "",
		LoginUsed:  s.cfg.Settings.WebPassword != "",
	}
	if err := templates.ExecuteTemplate(w, "index.html", data); err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("could not render index")
	}
}

func (s *server) serveLogin(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Settings.WebPassword == "" || middleware.Authenticated(r) {
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}
	s.renderLogin(w, r, "")
}

func (s *server) renderLogin(w http.ResponseWriter, r *http.Request, msg string) {
	if err := templates.ExecuteTemplate(w, "login.html", map[string]string{"Error": msg}); err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("could not render login")
	}
}

func (s *server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Could not parse form", http.StatusBadRequest)
		return
	}
	if !middleware.Login(w, r, r.PostFormValue("password")) {
		zerolog.Ctx(r.Context()).Warn().Str("remote", r.RemoteAddr).Msg("failed login attempt")
		w.WriteHeader(http.StatusUnauthorized)
		s.renderLogin(w, r, "Invalid password")
		return
	}
	http.Redirect(w, r, "/", http.StatusFound)
}

func (s *server) handleLogout(w http.ResponseWriter, r *http.Request) {
	middleware.Logout(w, r)
	http.Redirect(w, r, "/login", http.StatusFound)
}

// apiRequest is the union of the fields the API endpoints read. Each endpoint
// accepts it as JSON or as form values.
type apiRequest struct {
	Token  string `json:"token"`
	Prompt string `json:"prompt"`
	Style  string `json:"style"`
	URL    string `json:"url"`
}

// apiResponse is the JSON shape of every API answer.
type apiResponse struct {
	Success bool   `json:"success"`
	Status  string `json:"status"`
	Image   string `json:"image,omitempty"` // data URL
	Model   string `json:"model,omitempty"`
	Prompt  string `json:"prompt,omitempty"`
	Caption string `json:"caption,omitempty"`
	Source  string `json:"source,omitempty"`
	URL     string `json:"url,omitempty"`
}

func readRequest(r *http.Request) (apiRequest, error) {
	var req apiRequest
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req)
		return req, err
	}
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		return req, err
	}
	req.Token = r.FormValue("token")
	req.Prompt = r.FormValue("prompt")
	req.Style = r.FormValue("style")
	req.URL = r.FormValue("url")
	return req, nil
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps the error kind onto an HTTP status and reports the status line.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, studio.ErrInvalidInput), errors.Is(err, studio.ErrMissingCredential):
		code = http.StatusBadRequest
	case errors.Is(err, studio.ErrRateLimited):
		code = http.StatusTooManyRequests
	case errors.Is(err, studio.ErrProvidersExhausted), errors.Is(err, studio.ErrRemoteFailure),
		errors.Is(err, studio.ErrDownloadFailure):
		code = http.StatusBadGateway
	}
	zerolog.Ctx(r.Context()).Warn().Err(err).Int("code", code).Msg("request failed")
	writeJSON(w, code, apiResponse{Success: false, Status: studio.Status(err)})
}

func dataURL(contentType string, data []byte) string {
	if contentType == "" {
		contentType = "image/png"
	}
	return "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

func (s *server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	req, err := readRequest(r)
	if err != nil {
		http.Error(w, "Could not parse request", http.StatusBadRequest)
		return
	}
	res, err := s.studio.Generate(r.Context(), studio.GenerateRequest{Token: req.Token, Prompt: req.Prompt, Style: req.Style})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, apiResponse{
		Success: true,
		Status:  res.Status,
		Image:   dataURL(res.ContentType, res.Image),
		Model:   res.Model,
		Prompt:  res.Prompt,
		URL:     res.URL,
	})
}

func (s *server) handleGhibli(w http.ResponseWriter, r *http.Request) {
	req, err := readRequest(r)
	if err != nil {
		http.Error(w, "Could not parse request", http.StatusBadRequest)
		return
	}
	res, err := s.studio.GenerateGhibli(r.Context(), req.Prompt)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, apiResponse{
		Success: true,
		Status:  res.Status,
		Image:   dataURL(res.ContentType, res.Image),
		Model:   res.Model,
		Prompt:  res.Prompt,
		URL:     res.URL,
	})
}

// handleAnalyze reads an uploaded "image" file, or downloads "url" when no file
// was sent, and returns a prompt for it.
func (s *server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	req, err := readRequest(r)
	if err != nil {
		http.Error(w, "Could not parse request", http.StatusBadRequest)
		return
	}

	if err := s.studio.CheckToken(req.Token); err != nil {
		writeError(w, r, err)
		return
	}

	img, err := uploadedImage(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, apiResponse{Status: "Error: " + err.Error()})
		return
	}
	if img == nil && strings.TrimSpace(req.URL) != "" {
		fetched, err := s.studio.Fetch(r.Context(), req.URL)
		if err != nil {
			writeError(w, r, err)
			return
		}
		img = fetched.Image
	}
	if img == nil {
		writeJSON(w, http.StatusBadRequest, apiResponse{Status: "Please upload an image or fetch from URL first"})
		return
	}

	res, err := s.studio.Analyze(r.Context(), req.Token, img)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, apiResponse{
		Success: true,
		Status:  res.Status,
		Prompt:  res.Prompt,
		Caption: res.Caption,
		Source:  string(res.Source),
		Model:   res.Model,
	})
}

// uploadedImage returns the decoded "image" form file, or nil if none was sent.
func uploadedImage(r *http.Request) (image.Image, error) {
	if r.MultipartForm == nil {
		return nil, nil
	}
	file, _, err := r.FormFile("image")
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes))
	if err != nil {
		return nil, err
	}
	img, format, err := providers.DecodeImage(data)
	if err != nil {
		return nil, err
	}
	zerolog.Ctx(r.Context()).Debug().Str("format", format).Int("bytes", len(data)).Msg("decoded upload")
	return img, nil
}

func (s *server) handleFetch(w http.ResponseWriter, r *http.Request) {
	req, err := readRequest(r)
	if err != nil {
		http.Error(w, "Could not parse request", http.StatusBadRequest)
		return
	}
	res, err := s.studio.Fetch(r.Context(), req.URL)
	if err != nil {
		writeError(w, r, err)
		return
	}
	preview, err := providers.EncodeJPEG(res.Image)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, apiResponse{Success: true, Status: res.Status, Image: dataURL("image/jpeg", preview)})
}

func (s *server) handleStyles(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"styles": prompt.Styles})
}

func (s *server) handleModels(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]providers.ModelEndpoint{"models": s.studio.Models()})
}
