package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	sqlite "github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/quillstone/backend/internal/audit"
	"github.com/quillstone/backend/internal/auth"
	"github.com/quillstone/backend/internal/documents"
	"github.com/quillstone/backend/internal/events"
	"github.com/quillstone/backend/internal/groups"
	"github.com/quillstone/backend/internal/ids"
	"github.com/quillstone/backend/internal/sharing"
	"github.com/quillstone/backend/internal/users"
	"github.com/quillstone/backend/internal/versions"
)

type apiFixture struct {
	handler http.Handler
	issuer  *auth.TokenIssuer
	bus     *events.Bus
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	path := filepath.Join(t.TempDir(), "api.db")
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&documents.Document{}, &documents.Comment{},
		&versions.Version{},
		&sharing.AccessGrant{}, &sharing.GroupShare{},
		&groups.Group{}, &groups.Membership{},
		&events.Notification{},
		&audit.Record{},
		&users.Identity{},
	))

	provider := ids.NewUUIDProvider()
	store, err := versions.NewStore(versions.StoreConfig{Database: db, IDProvider: provider})
	require.NoError(t, err)
	registry, err := sharing.NewRegistry(sharing.RegistryConfig{Database: db, IDProvider: provider})
	require.NoError(t, err)
	recorder, err := audit.NewRecorder(audit.RecorderConfig{IDProvider: provider})
	require.NoError(t, err)
	identitySvc, err := users.NewService(users.ServiceConfig{Database: db})
	require.NoError(t, err)
	groupSvc, err := groups.NewService(groups.ServiceConfig{Database: db, IDProvider: provider})
	require.NoError(t, err)

	bus, err := events.NewBus(events.BusConfig{
		Database:   db,
		Resolver:   registry,
		Sink:       events.NewNopSink(nil),
		IDProvider: provider,
		Workers:    2,
		QueueSize:  16,
	})
	require.NoError(t, err)
	t.Cleanup(bus.Close)

	documentSvc, err := documents.NewService(documents.ServiceConfig{
		Database:   db,
		Versions:   store,
		Registry:   registry,
		Audit:      recorder,
		Users:      identitySvc,
		Publisher:  bus,
		IDProvider: provider,
	})
	require.NoError(t, err)

	issuer := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte("router-test-secret"),
		Issuer:        "quillstone-test",
		Audience:      "quillstone-api",
	})

	handler, err := NewHTTPHandler(Dependencies{
		Tokens:    issuer,
		Documents: documentSvc,
		Groups:    groupSvc,
		Users:     identitySvc,
	})
	require.NoError(t, err)

	return &apiFixture{handler: handler, issuer: issuer, bus: bus}
}

func (f *apiFixture) token(t *testing.T, userID string) string {
	t.Helper()
	token, _, err := f.issuer.IssueToken(context.Background(), auth.Principal{
		ID:    userID,
		Email: userID + "@example.com",
		Name:  userID,
	})
	require.NoError(t, err)
	return token
}

func (f *apiFixture) request(t *testing.T, method, target, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}
	request := httptest.NewRequest(method, target, reader)
	request.Header.Set("Content-Type", "application/json")
	if token != "" {
		request.Header.Set("Authorization", "Bearer "+token)
	}
	recorder := httptest.NewRecorder()
	f.handler.ServeHTTP(recorder, request)
	return recorder
}

func decodeDocument(t *testing.T, recorder *httptest.ResponseRecorder) documentPayload {
	t.Helper()
	var payload documentPayload
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &payload))
	return payload
}

func TestHealthEndpoint(t *testing.T) {
	f := newAPIFixture(t)
	recorder := f.request(t, http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, recorder.Code)
}

func TestAuthenticationIsRequired(t *testing.T) {
	f := newAPIFixture(t)

	recorder := f.request(t, http.MethodPost, "/documents", "", map[string]string{"title": "x"})
	require.Equal(t, http.StatusUnauthorized, recorder.Code)

	recorder = f.request(t, http.MethodPost, "/documents", "not-a-token", map[string]string{"title": "x"})
	require.Equal(t, http.StatusUnauthorized, recorder.Code)
}

func TestDocumentLifecycleOverHTTP(t *testing.T) {
	f := newAPIFixture(t)
	alice := f.token(t, "alice")
	bob := f.token(t, "bob")

	// Bob authenticates once so he is a known share target.
	recorder := f.request(t, http.MethodGet, "/documents", bob, nil)
	require.Equal(t, http.StatusOK, recorder.Code)

	recorder = f.request(t, http.MethodPost, "/documents", alice, map[string]string{
		"title":   "Meeting Notes",
		"content": "hello world",
	})
	require.Equal(t, http.StatusCreated, recorder.Code)
	created := decodeDocument(t, recorder)
	require.Equal(t, "draft", created.Status)
	require.Equal(t, int64(1), created.CurrentVersion)

	// Private: invisible to Bob and to anonymous readers.
	recorder = f.request(t, http.MethodGet, "/documents/"+created.ID, bob, nil)
	require.Equal(t, http.StatusNotFound, recorder.Code)
	recorder = f.request(t, http.MethodGet, "/documents/"+created.ID, "", nil)
	require.Equal(t, http.StatusNotFound, recorder.Code)

	// Share at view level: Bob can read but not edit.
	recorder = f.request(t, http.MethodPost, "/documents/"+created.ID+"/share", alice, map[string]string{
		"user_id": "bob", "level": "view",
	})
	require.Equal(t, http.StatusOK, recorder.Code)
	recorder = f.request(t, http.MethodGet, "/documents/"+created.ID, bob, nil)
	require.Equal(t, http.StatusOK, recorder.Code)
	recorder = f.request(t, http.MethodPatch, "/documents/"+created.ID, bob, map[string]string{"content": "edited"})
	require.Equal(t, http.StatusForbidden, recorder.Code)

	// Raise to edit: the update commits a new version.
	recorder = f.request(t, http.MethodPost, "/documents/"+created.ID+"/share", alice, map[string]string{
		"user_id": "bob", "level": "edit",
	})
	require.Equal(t, http.StatusOK, recorder.Code)
	recorder = f.request(t, http.MethodPatch, "/documents/"+created.ID, bob, map[string]string{"content": "hello world again"})
	require.Equal(t, http.StatusOK, recorder.Code)
	updated := decodeDocument(t, recorder)
	require.Equal(t, int64(2), updated.CurrentVersion)

	recorder = f.request(t, http.MethodGet, "/documents/"+created.ID+"/versions", bob, nil)
	require.Equal(t, http.StatusOK, recorder.Code)
	var versionList struct {
		Versions []versionPayload `json:"versions"`
	}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &versionList))
	require.Len(t, versionList.Versions, 2)
	require.Equal(t, int64(3), versionList.Versions[0].WordsAdded)
	require.Equal(t, int64(2), versionList.Versions[0].WordsRemoved)

	// Publish and go public: anonymous reads now succeed.
	recorder = f.request(t, http.MethodPost, "/documents/"+created.ID+"/publish", alice, nil)
	require.Equal(t, http.StatusOK, recorder.Code)
	recorder = f.request(t, http.MethodPatch, "/documents/"+created.ID, alice, map[string]string{"visibility": "public"})
	require.Equal(t, http.StatusOK, recorder.Code)
	recorder = f.request(t, http.MethodGet, "/documents/"+created.ID, "", nil)
	require.Equal(t, http.StatusOK, recorder.Code)
	public := decodeDocument(t, recorder)
	require.Equal(t, "view", public.AccessLevel)

	// Double publish conflicts.
	recorder = f.request(t, http.MethodPost, "/documents/"+created.ID+"/publish", alice, nil)
	require.Equal(t, http.StatusConflict, recorder.Code)

	// Restore of a missing version is indistinguishable from absent.
	recorder = f.request(t, http.MethodPost, "/documents/"+created.ID+"/restore", alice, map[string]int{"version": 99})
	require.Equal(t, http.StatusNotFound, recorder.Code)

	// Only the author deletes.
	recorder = f.request(t, http.MethodDelete, "/documents/"+created.ID, bob, nil)
	require.Equal(t, http.StatusForbidden, recorder.Code)
	recorder = f.request(t, http.MethodDelete, "/documents/"+created.ID, alice, nil)
	require.Equal(t, http.StatusNoContent, recorder.Code)
	recorder = f.request(t, http.MethodGet, "/documents/"+created.ID, alice, nil)
	require.Equal(t, http.StatusNotFound, recorder.Code)
}

func TestGroupSharingOverHTTP(t *testing.T) {
	f := newAPIFixture(t)
	alice := f.token(t, "alice")
	carol := f.token(t, "carol")

	// Carol registers herself.
	recorder := f.request(t, http.MethodGet, "/documents", carol, nil)
	require.Equal(t, http.StatusOK, recorder.Code)

	recorder = f.request(t, http.MethodPost, "/groups", alice, map[string]string{
		"name": "writers", "default_level": "view",
	})
	require.Equal(t, http.StatusCreated, recorder.Code)
	var group groupPayload
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &group))

	recorder = f.request(t, http.MethodPost, "/groups/"+group.ID+"/members", alice, map[string]string{
		"user_id": "carol", "level": "comment",
	})
	require.Equal(t, http.StatusCreated, recorder.Code)

	recorder = f.request(t, http.MethodPost, "/documents", alice, map[string]string{
		"title": "Shared via group", "content": "body",
	})
	require.Equal(t, http.StatusCreated, recorder.Code)
	created := decodeDocument(t, recorder)

	recorder = f.request(t, http.MethodPost, "/documents/"+created.ID+"/share-group", alice, map[string]string{
		"group_id": group.ID, "level": "edit",
	})
	require.Equal(t, http.StatusOK, recorder.Code)

	// min(edit link, comment membership) = comment.
	recorder = f.request(t, http.MethodGet, "/documents/"+created.ID, carol, nil)
	require.Equal(t, http.StatusOK, recorder.Code)
	payload := decodeDocument(t, recorder)
	require.Equal(t, "comment", payload.AccessLevel)

	recorder = f.request(t, http.MethodPost, "/documents/"+created.ID+"/comments", carol, map[string]string{
		"content": "through the group",
	})
	require.Equal(t, http.StatusCreated, recorder.Code)
	recorder = f.request(t, http.MethodPatch, "/documents/"+created.ID, carol, map[string]string{"content": "nope"})
	require.Equal(t, http.StatusForbidden, recorder.Code)

	// The shared listing includes the group-shared document.
	recorder = f.request(t, http.MethodGet, "/documents/shared", carol, nil)
	require.Equal(t, http.StatusOK, recorder.Code)
	var shared struct {
		Documents []documentPayload `json:"documents"`
	}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &shared))
	require.Len(t, shared.Documents, 1)
	require.Equal(t, created.ID, shared.Documents[0].ID)
}

func TestShareWithUnknownUserOverHTTP(t *testing.T) {
	f := newAPIFixture(t)
	alice := f.token(t, "alice")

	recorder := f.request(t, http.MethodPost, "/documents", alice, map[string]string{"title": "x"})
	require.Equal(t, http.StatusCreated, recorder.Code)
	created := decodeDocument(t, recorder)

	recorder = f.request(t, http.MethodPost, "/documents/"+created.ID+"/share", alice, map[string]string{
		"user_id": "ghost", "level": "view",
	})
	require.Equal(t, http.StatusNotFound, recorder.Code)

	recorder = f.request(t, http.MethodPost, "/documents/"+created.ID+"/share", alice, map[string]string{
		"user_id": "alice", "level": "sudo",
	})
	require.Equal(t, http.StatusBadRequest, recorder.Code)
}
