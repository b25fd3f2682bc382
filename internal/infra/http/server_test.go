package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"
	"time"

	"github.com/bcromer77/prooftimelines/internal/config"
	"github.com/bcromer77/prooftimelines/internal/domain"
	"github.com/bcromer77/prooftimelines/internal/infra/auth"
	"github.com/bcromer77/prooftimelines/internal/infra/blob"
	"github.com/bcromer77/prooftimelines/internal/infra/bundles"
	"github.com/bcromer77/prooftimelines/internal/infra/db"
	"github.com/bcromer77/prooftimelines/internal/infra/db/testdb"
	"github.com/bcromer77/prooftimelines/internal/ledger"
	"github.com/bcromer77/prooftimelines/internal/logging"
	"github.com/bcromer77/prooftimelines/internal/usecase"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	userA = "user-a"
	userB = "user-b"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00")

func init() {
	gin.SetMode(gin.TestMode)
}

type testServer struct {
	*Server
	store *db.Store
	blobs *blob.MemoryStore
}

func newTestServer(t *testing.T, mutate func(*config.Config)) testServer {
	t.Helper()
	cfg := config.Default()
	cfg.BlobBackend = config.BlobBackendMemory
	if mutate != nil {
		mutate(&cfg)
	}
	store := testdb.Open(t)
	blobs := blob.NewMemoryStore()
	srv, err := NewServer(context.Background(), cfg, store, blobs, logging.Nop())
	require.NoError(t, err)
	return testServer{Server: srv, store: store, blobs: blobs}
}

func (s testServer) do(t *testing.T, method, path, user string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if user != "" {
		req.Header.Set(auth.DevUserHeader, user)
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

type uploadFile struct {
	filename    string
	contentType string
	data        []byte
	eventID     string
}

func (s testServer) upload(t *testing.T, user, caseID string, file uploadFile) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if file.eventID != "" {
		require.NoError(t, mw.WriteField("event_id", file.eventID))
	}
	if file.filename != "" {
		header := textproto.MIMEHeader{}
		header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, file.filename))
		if file.contentType != "" {
			header.Set("Content-Type", file.contentType)
		}
		part, err := mw.CreatePart(header)
		require.NoError(t, err)
		_, err = part.Write(file.data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/v1/cases/"+caseID+"/evidence", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set(auth.DevUserHeader, user)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func (s testServer) createCase(t *testing.T, user, title string) string {
	t.Helper()
	w := s.do(t, http.MethodPost, "/v1/cases", user, map[string]string{"title": title})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decode[map[string]string](t, w)["case_id"]
}

func (s testServer) createEvent(t *testing.T, user, caseID, date, title string) string {
	t.Helper()
	w := s.do(t, http.MethodPost, "/v1/cases/"+caseID+"/events", user, map[string]string{"date": date, "title": title})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decode[map[string]string](t, w)["event_id"]
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t, nil)
	w := s.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get(requestIDHeader))
}

func TestRequestsWithoutIdentityAreRejected(t *testing.T) {
	s := newTestServer(t, nil)
	w := s.do(t, http.MethodGet, "/v1/cases", "", nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "UNAUTHORIZED", decode[errorResponse](t, w).Code)
}

func TestIngestTimelineAndExport(t *testing.T) {
	s := newTestServer(t, nil)
	caseID := s.createCase(t, userA, "deposit dispute")
	march := s.createEvent(t, userA, caseID, "2024-03-01", "inspection")
	jan := s.createEvent(t, userA, caseID, "2024-01-15", "move out")

	first := s.upload(t, userA, caseID, uploadFile{filename: "lease.pdf", contentType: "application/pdf", data: []byte("%PDF-1.4 lease"), eventID: jan})
	require.Equal(t, http.StatusCreated, first.Code, first.Body.String())
	firstBody := decode[ingestResponse](t, first)
	assert.Equal(t, int64(1), firstBody.Ledger.SequenceNumber)
	assert.Equal(t, ledger.Genesis, firstBody.Ledger.PrevHash)
	assert.Equal(t, ledger.Digest([]byte("%PDF-1.4 lease")), firstBody.SHA256)
	require.NotNil(t, firstBody.EventID)
	assert.Equal(t, jan, *firstBody.EventID)
	assert.Equal(t, "mem:"+ledger.StorageKey(caseID, firstBody.SHA256, "lease.pdf"), firstBody.StorageRef)

	second := s.upload(t, userA, caseID, uploadFile{filename: "photo.png", data: pngHeader})
	require.Equal(t, http.StatusCreated, second.Code, second.Body.String())
	secondBody := decode[ingestResponse](t, second)
	assert.Equal(t, int64(2), secondBody.Ledger.SequenceNumber)
	assert.Equal(t, firstBody.Ledger.Hash, secondBody.Ledger.PrevHash)
	assert.Equal(t, "image/png", secondBody.MimeType)
	assert.Nil(t, secondBody.EventID)

	dup := s.upload(t, userA, caseID, uploadFile{filename: "copy.pdf", contentType: "application/pdf", data: []byte("%PDF-1.4 lease")})
	require.Equal(t, http.StatusConflict, dup.Code)
	dupBody := decode[errorResponse](t, dup)
	assert.Equal(t, "DUPLICATE_EVIDENCE", dupBody.Code)
	assert.Equal(t, firstBody.EvidenceID, dupBody.Details["evidence_id"])

	w := s.do(t, http.MethodGet, "/v1/cases/"+caseID+"/timeline", userA, nil)
	require.Equal(t, http.StatusOK, w.Code)
	timeline := decode[bundles.TimelineView](t, w)
	require.Len(t, timeline.Events, 2)
	assert.Equal(t, jan, timeline.Events[0].ID)
	assert.Equal(t, march, timeline.Events[1].ID)
	require.Len(t, timeline.Evidence, 2)
	assert.Equal(t, int64(1), timeline.Evidence[0].Ledger.SequenceNumber)
	require.Len(t, timeline.EvidenceByEvent[jan], 1)
	assert.NotNil(t, timeline.EvidenceByEvent[march])
	assert.Empty(t, timeline.EvidenceByEvent[march])

	w = s.do(t, http.MethodGet, "/v1/cases/"+caseID+"/evidence/"+firstBody.EvidenceID+"/content", userA, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "%PDF-1.4 lease", w.Body.String())
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.Equal(t, firstBody.SHA256, w.Header().Get("X-Content-SHA256"))

	w = s.do(t, http.MethodGet, "/v1/cases/"+caseID+"/export", userA, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), "attachment")
	report, err := bundles.VerifyJSON(w.Body.Bytes())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Entries)
	assert.Equal(t, secondBody.Ledger.Hash, report.HeadHash)
	assert.Equal(t, w.Header().Get("X-Export-Digest"), report.Digest)

	w = s.do(t, http.MethodGet, "/v1/cases/"+caseID+"/summary", userA, nil)
	require.Equal(t, http.StatusOK, w.Code)
	summary := decode[summaryResponse](t, w)
	assert.Equal(t, 2, summary.EventCount)
	assert.Equal(t, 2, summary.EvidenceCount)
	assert.Equal(t, int64(2), summary.HeadSequence)
	require.NotNil(t, summary.FirstEventDate)
	assert.Equal(t, "2024-01-15T00:00:00Z", *summary.FirstEventDate)

	w = s.do(t, http.MethodGet, "/v1/cases/"+caseID+"/ledger/verify", userA, nil)
	require.Equal(t, http.StatusOK, w.Code)
	chain := decode[chainResponse](t, w)
	assert.True(t, chain.Valid)
	assert.Equal(t, 2, chain.Entries)
}

func TestIdenticalBytesInTwoCasesStartTwoChains(t *testing.T) {
	s := newTestServer(t, nil)
	caseOne := s.createCase(t, userA, "one")
	caseTwo := s.createCase(t, userA, "two")

	for _, caseID := range []string{caseOne, caseTwo} {
		w := s.upload(t, userA, caseID, uploadFile{filename: "same.txt", contentType: "text/plain", data: []byte("same bytes")})
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		body := decode[ingestResponse](t, w)
		assert.Equal(t, int64(1), body.Ledger.SequenceNumber)
		assert.Equal(t, ledger.Genesis, body.Ledger.PrevHash)
	}
}

func TestForeignCasesLookAbsent(t *testing.T) {
	s := newTestServer(t, nil)
	caseID := s.createCase(t, userA, "private")

	paths := []string{
		"/v1/cases/" + caseID,
		"/v1/cases/" + caseID + "/timeline",
		"/v1/cases/" + caseID + "/export",
		"/v1/cases/" + caseID + "/summary",
	}
	for _, path := range paths {
		foreign := s.do(t, http.MethodGet, path, userB, nil)
		missing := s.do(t, http.MethodGet, "/v1/cases/00000000-0000-4000-8000-000000000000"+path[len("/v1/cases/")+len(caseID):], userB, nil)
		require.Equal(t, http.StatusNotFound, foreign.Code, path)
		require.Equal(t, http.StatusNotFound, missing.Code, path)
		assert.Equal(t, missing.Body.String(), foreign.Body.String(), path)
	}

	w := s.upload(t, userB, caseID, uploadFile{filename: "x.txt", contentType: "text/plain", data: []byte("x")})
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "CASE_NOT_FOUND", decode[errorResponse](t, w).Code)
	assert.Equal(t, 0, s.blobs.Len())

	w = s.do(t, http.MethodGet, "/v1/cases", userB, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode[map[string][]bundles.CaseView](t, w)["cases"])
}

func TestInvalidInputs(t *testing.T) {
	s := newTestServer(t, func(c *config.Config) { c.MaxUploadBytes = 8 })
	caseID := s.createCase(t, userA, "validation")

	tests := []struct {
		name   string
		do     func() *httptest.ResponseRecorder
		status int
		code   string
	}{
		{
			name:   "malformed case id",
			do:     func() *httptest.ResponseRecorder { return s.do(t, http.MethodGet, "/v1/cases/not-a-uuid/timeline", userA, nil) },
			status: http.StatusBadRequest,
			code:   "INVALID_CASE_ID",
		},
		{
			name: "blank title",
			do: func() *httptest.ResponseRecorder {
				return s.do(t, http.MethodPost, "/v1/cases", userA, map[string]string{"title": "  "})
			},
			status: http.StatusBadRequest,
			code:   "INVALID_TITLE",
		},
		{
			name: "malformed event date",
			do: func() *httptest.ResponseRecorder {
				return s.do(t, http.MethodPost, "/v1/cases/"+caseID+"/events", userA, map[string]string{"date": "15/01/2024", "title": "x"})
			},
			status: http.StatusBadRequest,
			code:   "INVALID_DATE",
		},
		{
			name:   "malformed from",
			do:     func() *httptest.ResponseRecorder { return s.do(t, http.MethodGet, "/v1/cases/"+caseID+"/timeline?from=soon", userA, nil) },
			status: http.StatusBadRequest,
			code:   "INVALID_FROM",
		},
		{
			name: "inverted range",
			do: func() *httptest.ResponseRecorder {
				return s.do(t, http.MethodGet, "/v1/cases/"+caseID+"/timeline?from=2024-02-01&to=2024-01-01", userA, nil)
			},
			status: http.StatusBadRequest,
			code:   "INVALID_RANGE",
		},
		{
			name:   "missing file",
			do:     func() *httptest.ResponseRecorder { return s.upload(t, userA, caseID, uploadFile{}) },
			status: http.StatusBadRequest,
			code:   "INVALID_UPLOAD",
		},
		{
			name: "empty file",
			do: func() *httptest.ResponseRecorder {
				return s.upload(t, userA, caseID, uploadFile{filename: "empty.txt", contentType: "text/plain"})
			},
			status: http.StatusBadRequest,
			code:   "INVALID_UPLOAD",
		},
		{
			name: "file over limit",
			do: func() *httptest.ResponseRecorder {
				return s.upload(t, userA, caseID, uploadFile{filename: "big.txt", contentType: "text/plain", data: []byte("123456789")})
			},
			status: http.StatusBadRequest,
			code:   "INVALID_UPLOAD",
		},
		{
			name: "malformed event id",
			do: func() *httptest.ResponseRecorder {
				return s.upload(t, userA, caseID, uploadFile{filename: "a.txt", contentType: "text/plain", data: []byte("a"), eventID: "nope"})
			},
			status: http.StatusBadRequest,
			code:   "INVALID_EVENT_ID",
		},
		{
			name: "unknown event",
			do: func() *httptest.ResponseRecorder {
				return s.upload(t, userA, caseID, uploadFile{filename: "a.txt", contentType: "text/plain", data: []byte("a"), eventID: "00000000-0000-4000-8000-000000000000"})
			},
			status: http.StatusNotFound,
			code:   "EVENT_NOT_FOUND",
		},
		{
			name: "invalid json",
			do: func() *httptest.ResponseRecorder {
				req := httptest.NewRequest(http.MethodPost, "/v1/cases", bytes.NewBufferString("{"))
				req.Header.Set(auth.DevUserHeader, userA)
				w := httptest.NewRecorder()
				s.Handler().ServeHTTP(w, req)
				return w
			},
			status: http.StatusBadRequest,
			code:   "INVALID_JSON",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := tt.do()
			require.Equal(t, tt.status, w.Code, w.Body.String())
			assert.Equal(t, tt.code, decode[errorResponse](t, w).Code)
		})
	}

	w := s.do(t, http.MethodGet, "/v1/cases/"+caseID+"/ledger/verify", userA, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0, decode[chainResponse](t, w).Entries)
	assert.Equal(t, 0, s.blobs.Len())
}

func TestUploadPolicyViolationsAreListed(t *testing.T) {
	s := newTestServer(t, func(c *config.Config) { c.AllowedMimeTypes = []string{"application/pdf"} })
	caseID := s.createCase(t, userA, "mime")

	w := s.upload(t, userA, caseID, uploadFile{filename: "photo.png", contentType: "application/octet-stream", data: pngHeader})
	require.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
	body := decode[errorResponse](t, w)
	assert.Equal(t, "INVALID_UPLOAD", body.Code)
	violations, ok := body.Details["violations"].([]any)
	require.True(t, ok, "violations: %#v", body.Details)
	require.Len(t, violations, 1)
	assert.Equal(t, "MIME_NOT_ALLOWED", violations[0].(map[string]any)["code"])
}

func TestWriteRoutesAreRateLimited(t *testing.T) {
	s := newTestServer(t, func(c *config.Config) { c.RateLimitRequests = 1 })

	w := s.do(t, http.MethodPost, "/v1/cases", userA, map[string]string{"title": "first"})
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "1", w.Header().Get("RateLimit-Limit"))
	assert.Equal(t, "0", w.Header().Get("RateLimit-Remaining"))

	w = s.do(t, http.MethodPost, "/v1/cases", userA, map[string]string{"title": "second"})
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "RATE_LIMITED", decode[errorResponse](t, w).Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	w = s.do(t, http.MethodPost, "/v1/cases", userB, map[string]string{"title": "other user"})
	assert.Equal(t, http.StatusCreated, w.Code)

	w = s.do(t, http.MethodGet, "/v1/cases", userA, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

type failingBlobs struct{}

func (failingBlobs) Put(context.Context, string, []byte, string, map[string]string) (string, error) {
	return "", errors.New("bucket unreachable")
}

func (failingBlobs) Get(context.Context, string) ([]byte, error) {
	return nil, errors.New("bucket unreachable")
}

func TestStorageFailureLeavesNoLedgerEntry(t *testing.T) {
	store := testdb.Open(t)
	cfg := config.Default()
	cases := db.NewCaseRepository(store.DB)
	events := db.NewEventRepository(store.DB)
	evidence := db.NewEvidenceRepository(store.DB)
	ledgerRepo := db.NewLedgerRepository(store.DB)
	s := testServer{
		Server: NewServerWithDeps(cfg, ServerDeps{
			Cases: usecase.NewCaseService(cases, events),
			Writer: &usecase.LedgerWriter{
				Cases:          cases,
				Events:         events,
				Evidence:       evidence,
				Blobs:          failingBlobs{},
				Clock:          time.Now,
				MaxUploadBytes: cfg.MaxUploadBytes,
			},
			Reader:        usecase.NewTimelineReader(cases, events, evidence, ledgerRepo, failingBlobs{}),
			Authenticator: auth.NewHeaderAuthenticator(""),
			Health:        store,
		}),
		store: store,
	}
	caseID := s.createCase(t, userA, "storage")

	w := s.upload(t, userA, caseID, uploadFile{filename: "a.txt", contentType: "text/plain", data: []byte("a")})
	require.Equal(t, http.StatusServiceUnavailable, w.Code, w.Body.String())
	assert.Equal(t, "STORAGE_WRITE_FAILED", decode[errorResponse](t, w).Code)

	entries, err := ledgerRepo.ListByCase(context.Background(), caseID, userA)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestJWTIdentity(t *testing.T) {
	secret := "integration-secret"
	s := newTestServer(t, func(c *config.Config) {
		c.AuthMode = config.AuthModeJWT
		c.JWTSecret = secret
	})
	token, err := auth.IssueToken([]byte(secret), "", userA, time.Hour, time.Now())
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/v1/cases", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	// the dev header means nothing under jwt
	w = s.do(t, http.MethodGet, "/v1/cases", userA, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestWriteErrorMapping(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{err: domain.ErrUnauthorized, status: http.StatusUnauthorized, code: "UNAUTHORIZED"},
		{err: domain.ErrCaseNotFound, status: http.StatusNotFound, code: "CASE_NOT_FOUND"},
		{err: domain.ErrEventNotFound, status: http.StatusNotFound, code: "EVENT_NOT_FOUND"},
		{err: domain.ErrEvidenceNotFound, status: http.StatusNotFound, code: "EVIDENCE_NOT_FOUND"},
		{err: &domain.DuplicateEvidenceError{EvidenceID: "e1"}, status: http.StatusConflict, code: "DUPLICATE_EVIDENCE"},
		{err: domain.InvalidInput("INVALID_FROM", "bad"), status: http.StatusBadRequest, code: "INVALID_FROM"},
		{err: fmt.Errorf("put: %w: %w", domain.ErrStorage, errors.New("down")), status: http.StatusServiceUnavailable, code: "STORAGE_WRITE_FAILED"},
		{err: fmt.Errorf("commit: %w: %w", domain.ErrTransaction, errors.New("deadlock")), status: http.StatusInternalServerError, code: "TRANSACTION_ABORTED"},
		{err: errors.New("boom"), status: http.StatusInternalServerError, code: "INTERNAL"},
	}
	for _, tt := range tests {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Request = httptest.NewRequest(http.MethodPost, "/", nil)
		WriteError(c, tt.err)
		assert.Equal(t, tt.status, w.Code, tt.err.Error())
		assert.Equal(t, tt.code, decode[errorResponse](t, w).Code, tt.err.Error())
	}
}

func TestUploadMimeType(t *testing.T) {
	assert.Equal(t, "application/pdf", uploadMimeType("application/pdf", pngHeader))
	assert.Equal(t, "image/png", uploadMimeType("", pngHeader))
	assert.Equal(t, "image/png", uploadMimeType(domain.DefaultMimeType, pngHeader))
	assert.Equal(t, "text/plain", uploadMimeType("", []byte("plain words")))
	assert.Equal(t, domain.DefaultMimeType, uploadMimeType("", nil))
}
