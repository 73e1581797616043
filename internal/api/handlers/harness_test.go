package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/hugh/agencydesk/internal/api"
	"github.com/hugh/agencydesk/internal/api/handlers"
	"github.com/hugh/agencydesk/internal/auth"
	"github.com/hugh/agencydesk/internal/realtime"
	"github.com/hugh/agencydesk/internal/repository"
	"github.com/hugh/agencydesk/internal/session"
	"github.com/hugh/agencydesk/internal/storage"
	"github.com/hugh/agencydesk/internal/testutil"
	"github.com/hugh/agencydesk/pkg/crypto"
	"github.com/stretchr/testify/require"
)

// envelope mirrors the API response wrapper with a typed payload.
type envelope[T any] struct {
	OK      bool              `json:"ok"`
	Data    T                 `json:"data"`
	Error   string            `json:"error"`
	Details map[string]string `json:"details"`
}

type fakeQueue struct {
	mu    sync.Mutex
	tasks []*asynq.Task
}

func (q *fakeQueue) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.tasks = append(q.tasks, task)
	return &asynq.TaskInfo{Type: task.Type()}, nil
}

func (q *fakeQueue) enqueued() []*asynq.Task {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]*asynq.Task(nil), q.tasks...)
}

type stubProvider struct {
	info *auth.UserInfo
	err  error
}

func (p *stubProvider) Name() string { return "stub" }

func (p *stubProvider) AuthCodeURL(state string) string {
	return "https://idp.example.com/authorize?state=" + state
}

func (p *stubProvider) Exchange(_ context.Context, code string) (*auth.UserInfo, error) {
	if p.err != nil {
		return nil, p.err
	}
	return p.info, nil
}

type harness struct {
	*testutil.TestSetup
	router     http.Handler
	repo       *repository.Repository
	broker     *realtime.MemoryBroker
	hub        *realtime.Hub
	objects    *storage.Memory
	queue      *fakeQueue
	identities *realtime.MemoryPersister
	provider   *stubProvider
	enc        *crypto.Encryptor
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	ts := testutil.NewTestContext(t)
	t.Cleanup(ts.Cleanup)
	logger := testutil.DiscardLogger()

	broker := realtime.NewMemoryBroker()
	t.Cleanup(func() { _ = broker.Close() })
	loader := realtime.NewTableLoader(nil)
	repository.RegisterTables(loader, ts.DB)
	hub := realtime.NewHub(broker, loader, logger)
	t.Cleanup(hub.Close)

	enc, err := crypto.NewEncryptor("")
	require.NoError(t, err)

	h := &harness{
		TestSetup:  ts,
		repo:       repository.New(ts.DB, broker, logger),
		broker:     broker,
		hub:        hub,
		objects:    storage.NewMemory(),
		queue:      &fakeQueue{},
		identities: realtime.NewMemoryPersister(),
		provider:   &stubProvider{},
		enc:        enc,
	}

	h.router = api.NewRouter(api.RouterConfig{
		DB:       ts.DB,
		Logger:   logger,
		Tokens:   ts.JWTService,
		Resolver: session.NewResolver(ts.DB),
		Repo:     h.repo,
		Auth: handlers.AuthHandlerConfig{
			Provider:      h.provider,
			State:         auth.NewStateStore("", "", false),
			Authenticator: auth.NewService(ts.DB, ts.JWTService),
			Identities:    h.identities,
			TokenTTL:      time.Hour,
		},
		Encryptor:     enc,
		Queue:         h.queue,
		Objects:       h.objects,
		Hub:           hub,
		Identities:    h.identities,
		Backoff:       realtime.Backoff{Initial: 10 * time.Millisecond, Max: 50 * time.Millisecond},
		BrokerName:    "memory",
		InvitationTTL: 24 * time.Hour,
		BaseURL:       "https://desk.example.com",
	})

	return h
}

func (h *harness) do(t *testing.T, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := testutil.AuthenticatedRequest(t, method, path, body, token)
	rr := httptest.NewRecorder()
	h.router.ServeHTTP(rr, req)
	return rr
}

func (h *harness) serve(req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	h.router.ServeHTTP(rr, req)
	return rr
}

func decodeEnvelope[T any](t *testing.T, rr *httptest.ResponseRecorder) envelope[T] {
	t.Helper()
	var env envelope[T]
	require.NoError(t, json.NewDecoder(bytes.NewReader(rr.Body.Bytes())).Decode(&env), rr.Body.String())
	return env
}
