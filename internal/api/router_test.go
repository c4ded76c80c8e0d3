package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	fastws "github.com/fasthttp/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dahimi/File-Search-POC/internal/chat"
	"github.com/Dahimi/File-Search-POC/internal/dealroom"
	"github.com/Dahimi/File-Search-POC/internal/ingestion"
	"github.com/Dahimi/File-Search-POC/internal/middleware/ratelimit"
	"github.com/Dahimi/File-Search-POC/internal/provider"
	"github.com/Dahimi/File-Search-POC/internal/provider/providertest"
	"github.com/Dahimi/File-Search-POC/internal/session"
	"github.com/Dahimi/File-Search-POC/internal/storage/sqlite"
	"github.com/Dahimi/File-Search-POC/internal/stores"
	"github.com/Dahimi/File-Search-POC/pkg/circuitbreaker"
)

func newTestApp(t *testing.T, opts Options) (*fiber.App, *providertest.Fake) {
	t.Helper()

	audit, err := sqlite.NewClient(filepath.Join(t.TempDir(), "audit.db"))
	require.NoError(t, err)
	require.NoError(t, audit.InitSchema())
	t.Cleanup(func() { audit.Close() })

	fake := providertest.NewFake()
	service := dealroom.NewService(
		stores.NewRegistry(fake),
		ingestion.NewIngestor(fake, ingestion.Config{TempDir: t.TempDir(), PollInterval: time.Millisecond, MaxWait: time.Second, MaxFileSize: 1024}),
		chat.NewOrchestrator(fake, chat.Config{ThinkingBudget: chat.DynamicThinking}),
		session.NewMemoryStore(),
		audit,
		dealroom.Config{},
	)

	app := fiber.New()
	Register(app, service, opts)
	return app, fake
}

func doJSON(t *testing.T, app *fiber.App, method, path string, body any) (*http.Response, map[string]any) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp, decode(t, resp)
}

func decode(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	out := map[string]any{}
	if len(data) > 0 {
		require.NoError(t, json.Unmarshal(data, &out), string(data))
	}
	return out
}

func TestHealth(t *testing.T) {
	app, _ := newTestApp(t, Options{})

	resp, body := doJSON(t, app, http.MethodGet, "/api/v1/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "healthy", body["status"])
}

func TestReadyReportsDependencyFailure(t *testing.T) {
	app, _ := newTestApp(t, Options{Ready: func() error { return errors.New("redis down") }})

	resp, body := doJSON(t, app, http.MethodGet, "/api/v1/ready", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "redis down", body["error"])
}

func TestStoreLifecycle(t *testing.T) {
	app, fake := newTestApp(t, Options{})

	resp, body := doJSON(t, app, http.MethodPost, "/api/v1/stores", map[string]string{"display_name": "Project Falcon"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	id := body["id"].(string)
	assert.True(t, strings.HasPrefix(id, "fileSearchStores/"))
	assert.Equal(t, "Project Falcon", body["display_name"])

	resp, body = doJSON(t, app, http.MethodGet, "/api/v1/stores", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 1, body["count"])

	short := stores.ShortID(id)
	resp, body = doJSON(t, app, http.MethodGet, "/api/v1/stores/"+short, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, id, body["id"])

	resp, _ = doJSON(t, app, http.MethodDelete, "/api/v1/stores/"+short, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, fake.Stores)

	resp, _ = doJSON(t, app, http.MethodGet, "/api/v1/stores/"+short, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCreateStoreRequiresDisplayName(t *testing.T) {
	app, fake := newTestApp(t, Options{})

	resp, body := doJSON(t, app, http.MethodPost, "/api/v1/stores", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "display_name is required", body["error"])
	assert.Empty(t, fake.Stores)
}

func TestListStoresProviderFailure(t *testing.T) {
	app, fake := newTestApp(t, Options{})
	fake.ListErr = &provider.APIError{StatusCode: http.StatusInternalServerError, Message: "backend"}

	resp, _ := doJSON(t, app, http.MethodGet, "/api/v1/stores", nil)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)

	fake.ListErr = circuitbreaker.ErrCircuitOpen
	resp, _ = doJSON(t, app, http.MethodGet, "/api/v1/stores", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestUploadDocument(t *testing.T) {
	app, fake := newTestApp(t, Options{})
	fake.AddStore(provider.FileSearchStore{Name: "fileSearchStores/falcon"})

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", "cim.txt")
	require.NoError(t, err)
	_, err = part.Write([]byte("Revenue: $15.2M"))
	require.NoError(t, err)
	require.NoError(t, w.WriteField("display_name", "Falcon CIM.txt"))
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/stores/falcon/documents", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	body := decode(t, resp)

	require.Equal(t, http.StatusCreated, resp.StatusCode, body)
	assert.Equal(t, "Falcon CIM.txt", body["display_name"])
	require.Equal(t, 1, fake.UploadCount())
	assert.Equal(t, "Falcon CIM.txt", fake.Uploads[0].Meta.DisplayName)
}

func TestUploadDocumentErrors(t *testing.T) {
	app, fake := newTestApp(t, Options{})
	fake.AddStore(provider.FileSearchStore{Name: "fileSearchStores/falcon"})

	upload := func(content []byte) *http.Response {
		var buf bytes.Buffer
		w := multipart.NewWriter(&buf)
		part, err := w.CreateFormFile("file", "data.txt")
		require.NoError(t, err)
		_, err = part.Write(content)
		require.NoError(t, err)
		require.NoError(t, w.Close())

		req := httptest.NewRequest(http.MethodPost, "/api/v1/stores/falcon/documents", &buf)
		req.Header.Set("Content-Type", w.FormDataContentType())
		resp, err := app.Test(req, -1)
		require.NoError(t, err)
		return resp
	}

	assert.Equal(t, http.StatusBadRequest, upload(nil).StatusCode)
	assert.Equal(t, http.StatusRequestEntityTooLarge, upload(bytes.Repeat([]byte("x"), 2048)).StatusCode)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/stores/falcon/documents", strings.NewReader("{}"))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Zero(t, fake.UploadCount())
}

func TestImportURLValidatesScheme(t *testing.T) {
	app, _ := newTestApp(t, Options{})

	resp, body := doJSON(t, app, http.MethodPost, "/api/v1/stores/falcon/documents/url", map[string]string{"url": "ftp://example.com/a"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "url must be a valid http(s) URL", body["error"])
}

func TestChatAndHistory(t *testing.T) {
	app, fake := newTestApp(t, Options{})
	title := "Falcon CIM.pdf"
	fake.Generate = func(*provider.GenerateRequest) (*provider.GenerateResponse, error) {
		return &provider.GenerateResponse{
			Fragments: []provider.Part{{Text: "Revenue was $15.2M."}},
			Grounding: &provider.GroundingMetadata{
				GroundingChunks: []provider.GroundingChunk{{RetrievedContext: &provider.RetrievedContext{Title: &title}}},
			},
		}, nil
	}

	resp, body := doJSON(t, app, http.MethodPost, "/api/v1/stores/falcon/chat", map[string]any{
		"message":         "What is revenue?",
		"thinking_budget": 0,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.Equal(t, "Revenue was $15.2M.", body["text"])
	assert.Equal(t, []any{title}, body["citations"])
	assert.Equal(t, false, body["degraded"])

	require.Len(t, fake.Requests, 1)
	assert.Equal(t, 0, fake.Requests[0].ThinkingBudget)

	resp, body = doJSON(t, app, http.MethodGet, "/api/v1/stores/falcon/history", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 2, body["count"])

	resp, _ = doJSON(t, app, http.MethodDelete, "/api/v1/stores/falcon/history", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	_, body = doJSON(t, app, http.MethodGet, "/api/v1/stores/falcon/history", nil)
	assert.EqualValues(t, 0, body["count"])
	assert.Equal(t, []any{}, body["history"])
}

func TestChatPassesNegativeThinkingBudget(t *testing.T) {
	app, fake := newTestApp(t, Options{})

	resp, body := doJSON(t, app, http.MethodPost, "/api/v1/stores/falcon/chat", map[string]any{
		"message":         "Summarize the CIM",
		"thinking_budget": -5,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	require.Len(t, fake.Requests, 1)
	assert.Equal(t, -5, fake.Requests[0].ThinkingBudget)
}

func TestChatDegradedStillReturnsOK(t *testing.T) {
	app, fake := newTestApp(t, Options{})
	fake.Generate = func(*provider.GenerateRequest) (*provider.GenerateResponse, error) {
		return nil, errors.New("connection reset")
	}

	resp, body := doJSON(t, app, http.MethodPost, "/api/v1/stores/falcon/chat", map[string]any{"message": "Summarize"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["degraded"])
	assert.True(t, strings.HasPrefix(body["text"].(string), "Error: "))
	assert.Equal(t, []any{}, body["citations"])
}

func TestChatRejectsEmptyMessage(t *testing.T) {
	app, fake := newTestApp(t, Options{})

	resp, body := doJSON(t, app, http.MethodPost, "/api/v1/stores/falcon/chat", map[string]any{"message": ""})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "message is required", body["error"])
	assert.Empty(t, fake.Requests)
}

func TestActivityListsAuditedChats(t *testing.T) {
	app, _ := newTestApp(t, Options{})

	doJSON(t, app, http.MethodPost, "/api/v1/stores/falcon/chat", map[string]any{"message": "Hi"})

	resp, body := doJSON(t, app, http.MethodGet, "/api/v1/stores/falcon/activity?limit=5", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["chats"], 1)

	resp, _ = doJSON(t, app, http.MethodGet, "/api/v1/stores/falcon/activity?limit=0", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestUnsupportedContentType(t *testing.T) {
	app, _ := newTestApp(t, Options{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/stores", strings.NewReader("display_name=x"))
	req.Header.Set("Content-Type", "text/plain")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnsupportedMediaType, resp.StatusCode)
}

func TestRateLimitOnStoreRoutes(t *testing.T) {
	limiter := ratelimit.New(ratelimit.Config{MaxRequestsPerMinute: 2})
	app, _ := newTestApp(t, Options{Limiter: limiter})

	for i := 0; i < 2; i++ {
		resp, _ := doJSON(t, app, http.MethodGet, "/api/v1/stores", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}

	resp, _ := doJSON(t, app, http.MethodGet, "/api/v1/stores", nil)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("Retry-After"))

	resp, _ = doJSON(t, app, http.MethodGet, "/api/v1/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestWebSocketRouteRequiresUpgrade(t *testing.T) {
	app, _ := newTestApp(t, Options{})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/ws/stores/falcon/chat", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUpgradeRequired, resp.StatusCode)
}

func dialChat(t *testing.T, app *fiber.App, storeID string) *fastws.Conn {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go app.Listener(ln)
	t.Cleanup(func() { app.Shutdown() })

	conn, _, err := fastws.DefaultDialer.Dial("ws://"+ln.Addr().String()+"/ws/stores/"+storeID+"/chat", nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	return conn
}

func readFrame(t *testing.T, conn *fastws.Conn) map[string]any {
	t.Helper()
	frame := map[string]any{}
	require.NoError(t, conn.ReadJSON(&frame))
	return frame
}

func TestWebSocketChatStreamsAnswer(t *testing.T) {
	app, fake := newTestApp(t, Options{})
	answer := "## Revenue\n\n- FY23: $15.2M\n  - nested  item\n"
	title := "Falcon CIM.pdf"
	fake.Generate = func(*provider.GenerateRequest) (*provider.GenerateResponse, error) {
		return &provider.GenerateResponse{
			Fragments: []provider.Part{
				{Text: "Looking at the CIM.", Thought: true},
				{Text: answer},
			},
			Grounding: &provider.GroundingMetadata{
				GroundingChunks: []provider.GroundingChunk{{RetrievedContext: &provider.RetrievedContext{Title: &title}}},
			},
		}, nil
	}

	conn := dialChat(t, app, "falcon")
	require.NoError(t, conn.WriteJSON(map[string]any{"type": "chat", "message": "What is revenue?"}))

	frame := readFrame(t, conn)
	assert.Equal(t, "status", frame["type"])

	frame = readFrame(t, conn)
	assert.Equal(t, "reasoning", frame["type"])
	assert.Equal(t, "Looking at the CIM.", frame["content"])

	var streamed strings.Builder
	for {
		frame = readFrame(t, conn)
		if frame["type"] != "chunk" {
			break
		}
		streamed.WriteString(frame["content"].(string))
	}

	assert.Equal(t, "complete", frame["type"])
	assert.Equal(t, answer, streamed.String())
	assert.Equal(t, answer, frame["text"])
	assert.Equal(t, []any{title}, frame["citations"])
	assert.Equal(t, false, frame["degraded"])

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "clear"}))
	frame = readFrame(t, conn)
	assert.Equal(t, "cleared", frame["type"])

	_, body := doJSON(t, app, http.MethodGet, "/api/v1/stores/falcon/history", nil)
	assert.EqualValues(t, 0, body["count"])
}

func TestWebSocketChatValidationError(t *testing.T) {
	app, fake := newTestApp(t, Options{})

	conn := dialChat(t, app, "falcon")
	require.NoError(t, conn.WriteJSON(map[string]any{"type": "chat", "message": ""}))

	frame := readFrame(t, conn)
	assert.Equal(t, "error", frame["type"])
	assert.Equal(t, "message is required", frame["error"])
	assert.Empty(t, fake.Requests)
}
