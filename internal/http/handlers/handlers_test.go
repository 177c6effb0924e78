package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"

	"studio/internal/imagegen"
	"studio/internal/infra"
	"studio/internal/infra/credentials"
	"studio/internal/studio"
)

var pngBytes = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 13, 'I', 'H', 'D', 'R'}

type stubRunner struct {
	mu     sync.Mutex
	calls  int
	mode   imagegen.Mode
	prompt string
	names  []string
	result imagegen.Result
}

func (s *stubRunner) Run(_ context.Context, mode imagegen.Mode, prompt string, atts []imagegen.Attachment) imagegen.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.mode = mode
	s.prompt = prompt
	s.names = nil
	for _, a := range atts {
		s.names = append(s.names, a.Name)
	}
	return s.result
}

func newTestApp(t *testing.T, runner *stubRunner) (*App, http.Handler) {
	t.Helper()
	store := credentials.NewMemoryStore()
	app := NewApp(runner, store, studio.NewSessions(runner, 4), nil, *infra.DiscardLogger())

	r := chi.NewRouter()
	r.Get("/healthz", app.Health)
	r.Post("/images/generate", app.ImagesGenerate)
	r.Post("/images/edit", app.ImagesEdit)
	r.Post("/images/compose", app.ImagesCompose)
	r.Get("/credentials", app.CredentialStatus)
	r.Put("/credentials", app.CredentialSet)
	r.Delete("/credentials", app.CredentialClear)
	r.Post("/surfaces", app.SurfaceCreate)
	r.Get("/surfaces/{id}", app.SurfaceGet)
	r.Delete("/surfaces/{id}", app.SurfaceClose)
	r.Put("/surfaces/{id}/prompt", app.SurfacePrompt)
	r.Put("/surfaces/{id}/slots/{slot}", app.SurfaceAttach)
	r.Delete("/surfaces/{id}/slots/{slot}", app.SurfaceDetach)
	r.Post("/surfaces/{id}/submit", app.SurfaceSubmit)
	r.Post("/surfaces/{id}/reset", app.SurfaceReset)
	r.Get("/surfaces/{id}/image", app.SurfaceImage)
	r.Get("/previews/{handle}", app.Preview)
	r.Get("/openapi.json", app.OpenAPIJSON)
	r.Get("/metrics", app.ServeMetrics)
	return app, r
}

type upload struct {
	field, name, contentType string
	data                     []byte
}

func multipartBody(t *testing.T, fields map[string]string, files ...upload) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	for _, f := range files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="`+f.field+`"; filename="`+f.name+`"`)
		h.Set("Content-Type", f.contentType)
		part, err := mw.CreatePart(h)
		if err != nil {
			t.Fatalf("create part: %v", err)
		}
		_, _ = part.Write(f.data)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return &buf, mw.FormDataContentType()
}

func do(t *testing.T, h http.Handler, method, path, contentType string, body *bytes.Buffer) *httptest.ResponseRecorder {
	t.Helper()
	if body == nil {
		body = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, out any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

func TestImagesGenerateSuccess(t *testing.T) {
	runner := &stubRunner{result: imagegen.Success("data:image/png;base64,QUJD")}
	_, h := newTestApp(t, runner)

	rec := do(t, h, http.MethodPost, "/images/generate", "application/json", bytes.NewBufferString(`{"prompt":"a red fox"}`))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var got successResponse
	decode(t, rec, &got)
	if got.Status != "succeeded" || got.Image != "data:image/png;base64,QUJD" {
		t.Fatalf("unexpected body: %+v", got)
	}
	if runner.mode != imagegen.ModeText || runner.prompt != "a red fox" {
		t.Fatalf("runner got mode=%s prompt=%q", runner.mode, runner.prompt)
	}
}

func TestImagesGenerateFailureStatuses(t *testing.T) {
	cases := []struct {
		kind imagegen.Kind
		want int
	}{
		{imagegen.KindValidation, http.StatusUnprocessableEntity},
		{imagegen.KindMissingCredential, http.StatusPreconditionFailed},
		{imagegen.KindRateLimited, http.StatusTooManyRequests},
		{imagegen.KindUnavailable, http.StatusServiceUnavailable},
		{imagegen.KindNetwork, http.StatusGatewayTimeout},
		{imagegen.KindCanceled, http.StatusRequestTimeout},
		{imagegen.KindTextualRefusal, http.StatusUnprocessableEntity},
		{imagegen.KindServerError, http.StatusBadGateway},
		{imagegen.KindInvalidResponse, http.StatusBadGateway},
	}
	for _, tc := range cases {
		runner := &stubRunner{result: imagegen.Failure(tc.kind, "nope")}
		_, h := newTestApp(t, runner)
		rec := do(t, h, http.MethodPost, "/images/generate", "application/json", bytes.NewBufferString(`{"prompt":"a red fox"}`))
		if rec.Code != tc.want {
			t.Fatalf("%s: expected %d, got %d", tc.kind, tc.want, rec.Code)
		}
		var got failureResponse
		decode(t, rec, &got)
		if got.Status != "failed" || got.Error.Kind != string(tc.kind) || got.Error.Message != "nope" {
			t.Fatalf("%s: unexpected body %+v", tc.kind, got)
		}
		if got.Error.Title != tc.kind.Title() {
			t.Fatalf("%s: title %q", tc.kind, got.Error.Title)
		}
	}
}

func TestImagesGenerateBadJSON(t *testing.T) {
	runner := &stubRunner{}
	_, h := newTestApp(t, runner)
	rec := do(t, h, http.MethodPost, "/images/generate", "application/json", bytes.NewBufferString(`{`))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if runner.calls != 0 {
		t.Fatalf("runner must not be called")
	}
}

func TestImagesComposeCollectsFilesInOrder(t *testing.T) {
	runner := &stubRunner{result: imagegen.Success("data:image/png;base64,QUJD")}
	_, h := newTestApp(t, runner)

	body, ct := multipartBody(t, map[string]string{"prompt": "merge these"},
		upload{"images", "a.png", "image/png", pngBytes},
		upload{"images", "b.png", "image/png", pngBytes},
		upload{"image", "c.png", "image/png", pngBytes},
	)
	rec := do(t, h, http.MethodPost, "/images/compose", ct, body)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if runner.mode != imagegen.ModeCompose || strings.Join(runner.names, ",") != "a.png,b.png,c.png" {
		t.Fatalf("runner got mode=%s names=%v", runner.mode, runner.names)
	}
}

func TestImagesEditRequiresMultipart(t *testing.T) {
	runner := &stubRunner{}
	_, h := newTestApp(t, runner)
	rec := do(t, h, http.MethodPost, "/images/edit", "application/json", bytes.NewBufferString(`{}`))
	if rec.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("expected 415, got %d", rec.Code)
	}
}

func TestImagesEditUploadTooLarge(t *testing.T) {
	runner := &stubRunner{}
	app, h := newTestApp(t, runner)
	app.MaxUploadBytes = 64

	body, ct := multipartBody(t, map[string]string{"prompt": "make it blue"},
		upload{"image", "a.png", "image/png", bytes.Repeat([]byte{1}, 1024)})
	rec := do(t, h, http.MethodPost, "/images/edit", ct, body)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", rec.Code)
	}
}

func TestCredentialLifecycle(t *testing.T) {
	_, h := newTestApp(t, &stubRunner{})

	status := func() bool {
		rec := do(t, h, http.MethodGet, "/credentials", "", nil)
		var body struct {
			Configured bool `json:"configured"`
		}
		decode(t, rec, &body)
		return body.Configured
	}
	if status() {
		t.Fatalf("expected no key")
	}
	if rec := do(t, h, http.MethodPut, "/credentials", "application/json", bytes.NewBufferString(`{"api_key":"   "}`)); rec.Code != http.StatusBadRequest {
		t.Fatalf("blank key: expected 400, got %d", rec.Code)
	}
	if rec := do(t, h, http.MethodPut, "/credentials", "application/json", bytes.NewBufferString(`{"api_key":" AIza-test "}`)); rec.Code != http.StatusNoContent {
		t.Fatalf("set: expected 204, got %d", rec.Code)
	}
	if !status() {
		t.Fatalf("expected key after set")
	}
	rec := do(t, h, http.MethodGet, "/healthz", "", nil)
	if !strings.Contains(rec.Body.String(), `"credential_configured":true`) {
		t.Fatalf("health body: %s", rec.Body.String())
	}
	if rec := do(t, h, http.MethodDelete, "/credentials", "", nil); rec.Code != http.StatusNoContent {
		t.Fatalf("clear: expected 204, got %d", rec.Code)
	}
	if status() {
		t.Fatalf("expected no key after clear")
	}
}

func TestSurfaceFlow(t *testing.T) {
	runner := &stubRunner{result: imagegen.Success("data:image/png;base64,iVBORw0KGgo=")}
	_, h := newTestApp(t, runner)

	rec := do(t, h, http.MethodPost, "/surfaces", "application/json", bytes.NewBufferString(`{"mode":"edit"}`))
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d", rec.Code)
	}
	var view studio.View
	decode(t, rec, &view)
	if view.Mode != imagegen.ModeEdit || len(view.Slots) != 1 {
		t.Fatalf("unexpected view: %+v", view)
	}
	base := "/surfaces/" + view.ID

	if rec := do(t, h, http.MethodGet, base+"/image", "", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("image before submit: expected 404, got %d", rec.Code)
	}

	rec = do(t, h, http.MethodPut, base+"/prompt", "application/json", bytes.NewBufferString(`{"prompt":"make it blue"}`))
	if rec.Code != http.StatusOK {
		t.Fatalf("prompt: expected 200, got %d", rec.Code)
	}

	body, ct := multipartBody(t, nil, upload{"image", "cat.png", "image/png", pngBytes})
	rec = do(t, h, http.MethodPut, base+"/slots/0", ct, body)
	if rec.Code != http.StatusOK {
		t.Fatalf("attach: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	decode(t, rec, &view)
	if !view.Slots[0].Filled || view.Slots[0].Preview == "" {
		t.Fatalf("slot not filled: %+v", view.Slots[0])
	}

	rec = do(t, h, http.MethodGet, "/previews/"+view.Slots[0].Preview, "", nil)
	if rec.Code != http.StatusOK || !bytes.Equal(rec.Body.Bytes(), pngBytes) {
		t.Fatalf("preview: %d", rec.Code)
	}

	rec = do(t, h, http.MethodPost, base+"/submit", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("submit: expected 200, got %d", rec.Code)
	}
	decode(t, rec, &view)
	if view.Image == "" || view.Error != nil || view.Loading {
		t.Fatalf("unexpected submit view: %+v", view)
	}
	if runner.prompt != "make it blue" || strings.Join(runner.names, ",") != "cat.png" {
		t.Fatalf("runner got prompt=%q names=%v", runner.prompt, runner.names)
	}

	rec = do(t, h, http.MethodGet, base+"/image", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("image: expected 200, got %d", rec.Code)
	}
	if got := rec.Header().Get("Content-Disposition"); got != "attachment; filename=generated-image.png" {
		t.Fatalf("content disposition %q", got)
	}
	if rec.Header().Get("Content-Type") != "image/png" {
		t.Fatalf("content type %q", rec.Header().Get("Content-Type"))
	}

	rec = do(t, h, http.MethodPost, base+"/reset", "", nil)
	decode(t, rec, &view)
	if view.Image != "" || view.Prompt != "" || view.Slots[0].Filled {
		t.Fatalf("reset did not clear: %+v", view)
	}

	if rec := do(t, h, http.MethodDelete, base, "", nil); rec.Code != http.StatusNoContent {
		t.Fatalf("close: expected 204, got %d", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, base, "", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("get after close: expected 404, got %d", rec.Code)
	}
}

func TestSurfaceErrors(t *testing.T) {
	_, h := newTestApp(t, &stubRunner{})

	if rec := do(t, h, http.MethodPost, "/surfaces", "application/json", bytes.NewBufferString(`{"mode":"video"}`)); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad mode: expected 400, got %d", rec.Code)
	}

	rec := do(t, h, http.MethodPost, "/surfaces", "application/json", bytes.NewBufferString(`{"mode":"compose"}`))
	var view studio.View
	decode(t, rec, &view)
	base := "/surfaces/" + view.ID

	if rec := do(t, h, http.MethodDelete, base+"/slots/7", "", nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("slot range: expected 400, got %d", rec.Code)
	}
	if rec := do(t, h, http.MethodDelete, base+"/slots/x", "", nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("slot parse: expected 400, got %d", rec.Code)
	}

	body, ct := multipartBody(t, nil, upload{"image", "notes.txt", "text/plain", []byte("hello")})
	rec = do(t, h, http.MethodPut, base+"/slots/0", ct, body)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("non-image: expected 422, got %d", rec.Code)
	}
	var failure failureResponse
	decode(t, rec, &failure)
	if failure.Error.Kind != string(imagegen.KindValidation) {
		t.Fatalf("unexpected kind %q", failure.Error.Kind)
	}

	if rec := do(t, h, http.MethodGet, "/surfaces/missing", "", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown surface: expected 404, got %d", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/previews/missing", "", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown preview: expected 404, got %d", rec.Code)
	}
}

func TestOpenAPIJSONIsValid(t *testing.T) {
	_, h := newTestApp(t, &stubRunner{})
	rec := do(t, h, http.MethodGet, "/openapi.json", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var doc struct {
		OpenAPI string                     `json:"openapi"`
		Paths   map[string]json.RawMessage `json:"paths"`
	}
	decode(t, rec, &doc)
	if doc.OpenAPI == "" || doc.Paths["/v1/images/generate"] == nil {
		t.Fatalf("unexpected document: %+v", doc)
	}
}

func TestServeMetricsWithoutCollector(t *testing.T) {
	_, h := newTestApp(t, &stubRunner{})
	if rec := do(t, h, http.MethodGet, "/metrics", "", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}
