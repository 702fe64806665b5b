package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Martian-dev/brain-connectors/internal/auth"
	"github.com/Martian-dev/brain-connectors/internal/emails"
	"github.com/Martian-dev/brain-connectors/internal/events"
	"github.com/Martian-dev/brain-connectors/internal/models"
	"github.com/Martian-dev/brain-connectors/internal/sharepoint"
	"github.com/Martian-dev/brain-connectors/internal/storage"
	"github.com/Martian-dev/brain-connectors/internal/store/sqlite"
	"github.com/Martian-dev/brain-connectors/internal/sync"
)

type emptyRemote struct{}

func (emptyRemote) ListFolder(ctx context.Context, endpoint, driveID, itemID string) ([]sharepoint.RemoteFile, error) {
	return nil, nil
}

func (emptyRemote) DownloadFile(ctx context.Context, endpoint, driveID, itemID string) (*sharepoint.DownloadedFile, error) {
	return nil, sharepoint.ErrDownloadFailed
}

// blockingRemote holds a run in its listing until release is closed
type blockingRemote struct {
	emptyRemote
	listed  chan struct{}
	release chan struct{}
}

func newBlockingRemote() *blockingRemote {
	return &blockingRemote{listed: make(chan struct{}, 1), release: make(chan struct{})}
}

func (b *blockingRemote) ListFolder(ctx context.Context, endpoint, driveID, itemID string) ([]sharepoint.RemoteFile, error) {
	b.listed <- struct{}{}
	select {
	case <-b.release:
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type testEnv struct {
	server *Server
	router *gin.Engine
	store  *sqlite.Store
	syncs  *sync.Manager
	remote sync.Remote

	admin      *models.User
	adminToken string
	other      *models.User
	otherToken string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx := context.Background()

	st, err := sqlite.Open("sqlite", filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	uploads, err := storage.NewLocal(filepath.Join(t.TempDir(), "uploads"))
	require.NoError(t, err)

	runner := sync.NewRunner(st, st, st, uploads)
	var env *testEnv
	runner.Connect = func(string) sync.Remote { return env.remote }
	manager := sync.NewManager(runner)
	t.Cleanup(manager.StopAll)

	authService := auth.NewAuthService(st)
	signer := auth.NewHMACSigner("test-secret", time.Hour)
	emitter := events.NewEmitter(st)

	env = &testEnv{
		remote: emptyRemote{},
		server: &Server{
			Store:         st,
			Auth:          authService,
			Verifier:      signer,
			Signer:        signer,
			Syncs:         manager,
			Emails:        emails.NewService(st, emitter, nil),
			Emitter:       emitter,
			PublicBaseURL: "https://brain.example.com",
		},
		store: st,
		syncs: manager,
	}
	env.router = env.server.Router()

	env.admin, err = authService.CreateUser(ctx, "admin@example.com", "Admin", "pw")
	require.NoError(t, err)
	env.adminToken, err = signer.Issue(env.admin)
	require.NoError(t, err)
	env.other, err = authService.CreateUser(ctx, "other@example.com", "Other", "pw")
	require.NoError(t, err)
	env.otherToken, err = signer.Issue(env.other)
	require.NoError(t, err)

	return env
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAuthRequired(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodGet, "/api/v1/sharepoint/", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Not authenticated", decode[map[string]string](t, w)["detail"])
}

func TestSignUpAndSignIn(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/v1/auths/signup", "", map[string]string{
		"email": "new@example.com", "name": "New", "password": "secret",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode[struct {
		Token string      `json:"token"`
		User  models.User `json:"user"`
	}](t, w)
	assert.Equal(t, models.RoleUser, created.User.Role)

	w = env.do(t, http.MethodGet, "/api/v1/auths", created.Token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, created.User.ID, decode[models.User](t, w).ID)

	w = env.do(t, http.MethodPost, "/api/v1/auths/signin", "", map[string]string{
		"email": "new@example.com", "password": "wrong",
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.do(t, http.MethodPost, "/api/v1/auths/signin", "", map[string]string{
		"email": "new@example.com", "password": "secret",
	})
	assert.Equal(t, http.StatusOK, w.Code)
}
