package main

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"imagestudio/config"
	"imagestudio/middleware"
	"imagestudio/prompt"
	"imagestudio/providers"
	"imagestudio/studio"
)

func whitePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.White)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// fakeHF answers like the inference API: generation models return an image,
// captioning models the caption configured for the test.
func fakeHF(t *testing.T, caption string, status int) *httptest.Server {
	t.Helper()
	img := whitePNG(t, 8, 8)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if status != http.StatusOK {
			w.WriteHeader(status)
			return
		}
		if strings.Contains(r.URL.Path, "captioning") {
			_, _ = w.Write([]byte(caption))
			return
		}
		_, _ = w.Write(img)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestServer(t *testing.T, hfStatus int) (*server, *httptest.Server) {
	t.Helper()
	hf := fakeHF(t, `[{"generated_text":"a white square"}]`, hfStatus)
	files := fakeHF(t, "", http.StatusOK)

	cfg := config.Default()
	cfg.APIKeys.HuggingFace = ""
	cfg.Settings.SaveLocalCopy = false
	cfg.Settings.SessionSecret = "test-secret-test-secret-test-sec"
	prev := config.AppConfig
	config.AppConfig = cfg
	t.Cleanup(func() { config.AppConfig = prev })
	middleware.InitSessionStore()

	provider := providers.NewHuggingFaceProvider(hf.URL, "", hf.Client(), nil)
	st := studio.New(cfg, studio.Deps{
		Generator:   provider,
		Captioner:   provider,
		Synthesizer: prompt.NewSeeded(3),
		HTTPClient:  files.Client(),
		Sleep:       func(context.Context, time.Duration) error { return nil },
	})
	return &server{cfg: cfg, studio: st}, files
}

func postJSON(h http.Handler, path string, body any) (*httptest.ResponseRecorder, apiResponse) {
	data, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	var resp apiResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	return rec, resp
}

func TestGenerateEndpoint(t *testing.T) {
	s, _ := newTestServer(t, http.StatusOK)
	h := s.routes()

	rec, resp := postJSON(h, "/api/generate", apiRequest{Token: "tok", Prompt: "a square", Style: "anime"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, resp.Success)
	assert.Equal(t, "Success! Image generated using stabilityai/stable-diffusion-xl-base-1.0", resp.Status)
	assert.True(t, strings.HasPrefix(resp.Image, "data:image/png;base64,"))
	assert.Contains(t, resp.Prompt, "anime style")
	assert.NotEmpty(t, rec.Header().Get(middleware.RequestIDHeader))

	rec, resp = postJSON(h, "/api/generate", apiRequest{Token: "tok"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.False(t, resp.Success)
	assert.Equal(t, studio.MsgMissingPrompt, resp.Status)

	rec, resp = postJSON(h, "/api/generate", apiRequest{Prompt: "a square"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, studio.MsgMissingToken, resp.Status)
}

func TestGenerateEndpointAllModelsFail(t *testing.T) {
	s, _ := newTestServer(t, http.StatusInternalServerError)
	rec, resp := postJSON(s.routes(), "/api/generate", apiRequest{Token: "tok", Prompt: "a square"})
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, studio.MsgGenerationFailed, resp.Status)
	assert.Empty(t, resp.Image)
}

func TestGenerateEndpointRateLimited(t *testing.T) {
	s, _ := newTestServer(t, http.StatusTooManyRequests)
	rec, resp := postJSON(s.routes(), "/api/generate", apiRequest{Token: "tok", Prompt: "a square"})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, studio.MsgGenerationFailed, resp.Status)
}

func TestGenerateEndpointForm(t *testing.T) {
	s, _ := newTestServer(t, http.StatusOK)
	req := httptest.NewRequest(http.MethodPost, "/api/generate", strings.NewReader("token=tok&prompt=a+square"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	s.routes().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func multipartAnalyze(t *testing.T, token string, image []byte, url string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("token", token))
	require.NoError(t, mw.WriteField("url", url))
	if image != nil {
		part, err := mw.CreateFormFile("image", "upload.png")
		require.NoError(t, err)
		_, _ = part.Write(image)
	}
	require.NoError(t, mw.Close())
	req := httptest.NewRequest(http.MethodPost, "/api/analyze", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) apiResponse {
	t.Helper()
	var resp apiResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	return resp
}

func TestAnalyzeEndpointUpload(t *testing.T) {
	s, _ := newTestServer(t, http.StatusOK)
	rec := httptest.NewRecorder()
	s.routes().ServeHTTP(rec, multipartAnalyze(t, "tok", whitePNG(t, 20, 20), ""))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode(t, rec)
	assert.Equal(t, "caption", resp.Source)
	assert.Equal(t, "a white square", resp.Caption)
	assert.True(t, strings.HasPrefix(resp.Prompt, "a white square, "))
}

func TestAnalyzeEndpointFallback(t *testing.T) {
	s, _ := newTestServer(t, http.StatusServiceUnavailable)
	rec := httptest.NewRecorder()
	s.routes().ServeHTTP(rec, multipartAnalyze(t, "tok", whitePNG(t, 20, 10), ""))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode(t, rec)
	assert.Equal(t, "fallback", resp.Source)
	assert.Contains(t, resp.Prompt, "bright landscape with white elements")
}

func TestAnalyzeEndpointFromURL(t *testing.T) {
	s, files := newTestServer(t, http.StatusOK)
	rec := httptest.NewRecorder()
	s.routes().ServeHTTP(rec, multipartAnalyze(t, "tok", nil, files.URL+"/img.png"))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "a white square", decode(t, rec).Caption)
}

func TestAnalyzeEndpointErrors(t *testing.T) {
	s, _ := newTestServer(t, http.StatusOK)
	h := s.routes()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, multipartAnalyze(t, "tok", nil, ""))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Please upload an image or fetch from URL first", decode(t, rec).Status)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, multipartAnalyze(t, "tok", []byte("not an image"), ""))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, multipartAnalyze(t, "", whitePNG(t, 4, 4), ""))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, studio.MsgMissingToken, decode(t, rec).Status)
}

func TestAnalyzeEndpointChecksTokenBeforeDownload(t *testing.T) {
	s, _ := newTestServer(t, http.StatusOK)
	var hits atomic.Int32
	files := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write(whitePNG(t, 4, 4))
	}))
	defer files.Close()

	rec, resp := postJSON(s.routes(), "/api/analyze", apiRequest{URL: files.URL + "/cat.png"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, studio.MsgMissingToken, resp.Status)
	assert.Zero(t, hits.Load())
}

func TestFetchEndpoint(t *testing.T) {
	s, files := newTestServer(t, http.StatusOK)
	h := s.routes()

	rec, resp := postJSON(h, "/api/fetch", apiRequest{URL: files.URL + "/cat.png"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, studio.MsgFetched, resp.Status)
	assert.True(t, strings.HasPrefix(resp.Image, "data:image/jpeg;base64,"))

	rec, resp = postJSON(h, "/api/fetch", apiRequest{URL: ""})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, studio.MsgInvalidURL, resp.Status)
}

func TestGhibliEndpointWithoutKey(t *testing.T) {
	s, _ := newTestServer(t, http.StatusOK)
	rec, resp := postJSON(s.routes(), "/api/ghibli", apiRequest{Prompt: "a castle"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, studio.MsgMissingStability, resp.Status)
}

func TestStylesAndModels(t *testing.T) {
	s, _ := newTestServer(t, http.StatusOK)
	h := s.routes()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/styles", nil))
	var styles map[string][]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &styles))
	assert.Equal(t, prompt.Styles, styles["styles"])

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/models", nil))
	var models map[string][]providers.ModelEndpoint
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &models))
	assert.Len(t, models["models"], 5)
}

func TestIndexAndLogin(t *testing.T) {
	s, _ := newTestServer(t, http.StatusOK)
	h := s.routes()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Text to Image")
	assert.Contains(t, rec.Body.String(), `<option value="cinematic">`)

	s.cfg.Settings.WebPassword = "pw"

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusFound, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/login", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	login := func(password string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader("password="+password))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}
	assert.Equal(t, http.StatusUnauthorized, login("nope").Code)

	rec = login("pw")
	require.Equal(t, http.StatusFound, rec.Code)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, c := range rec.Result().Cookies() {
		req.AddCookie(c)
	}
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "/logout")
}

func TestMetricsEndpoint(t *testing.T) {
	s, _ := newTestServer(t, http.StatusOK)
	h := s.routes()
	postJSON(h, "/api/generate", apiRequest{Token: "tok", Prompt: "a square"})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "imagestudio_provider_requests_total")
}
