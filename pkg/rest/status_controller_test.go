package rest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/inbucket/aliasrelay/pkg/config"
	"github.com/inbucket/aliasrelay/pkg/extension"
	"github.com/inbucket/aliasrelay/pkg/extension/event"
	"github.com/inbucket/aliasrelay/pkg/msghub"
	"github.com/inbucket/aliasrelay/pkg/relay"
	"github.com/inbucket/aliasrelay/pkg/rest/model"
	"github.com/inbucket/aliasrelay/pkg/server/web"
	"github.com/inbucket/aliasrelay/pkg/storage"
	"github.com/inbucket/aliasrelay/pkg/storage/mem"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedBacklog storage.Backlog

func (b fixedBacklog) Last() storage.Backlog {
	return storage.Backlog(b)
}

func testRestGet(t *testing.T, url string) *httptest.ResponseRecorder {
	t.Helper()
	req, err := http.NewRequest("GET", url, nil)
	require.NoError(t, err)
	req.Header.Add("Accept", "application/json")
	w := httptest.NewRecorder()
	web.Router.ServeHTTP(w, req)
	return w
}

// setupWebServer stages one healthy and one quarantined message, and records a disposition.
func setupWebServer(t *testing.T) (storage.Store, *msghub.Hub) {
	t.Helper()
	store, err := mem.New(config.Staging{})
	require.NoError(t, err)

	_, err = store.Write(store.Path("aaa"), strings.NewReader("Subject: staged\r\n\r\nbody"))
	require.NoError(t, err)
	path := store.Path("bbb")
	_, err = store.Write(path, strings.NewReader("Subject: broken\r\n\r\nbody"))
	require.NoError(t, err)
	marker := &relay.Marker{
		Envelope: relay.Envelope{AliasID: "shop", RawAddress: "shop@relay.example.com"},
		Stage:    relay.StageResolve,
		Reason:   "alias not found",
		Time:     time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	b, err := marker.Encode()
	require.NoError(t, err)
	require.NoError(t, store.MarkError(path, b))

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	hub := msghub.New(5, extension.NewHost())
	go hub.Start(ctx)
	hub.Dispatch(event.Disposition{ID: "old", AliasID: "shop", Outcome: relay.OutcomeForwarded})
	hub.Dispatch(event.Disposition{ID: "new", AliasID: "shop", Outcome: relay.OutcomeRetained,
		Stage: relay.StageForward, Error: "relay down"})
	hub.Sync()

	backlog := fixedBacklog{Staged: 2, Quarantined: 1}
	web.NewServer(config.Web{}, make(chan bool), store, hub, backlog)
	SetupRoutes(web.Router)

	return store, hub
}

func TestStatusV1(t *testing.T) {
	setupWebServer(t)

	w := testRestGet(t, "/status")
	require.Equal(t, http.StatusOK, w.Code)
	var got model.JSONStatusV1
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))

	assert.Equal(t, 2, got.Backlog.Staged)
	assert.Equal(t, 1, got.Backlog.Quarantined)
	require.Len(t, got.Recent, 2)
	assert.Equal(t, "new", got.Recent[0].ID)
	assert.Equal(t, relay.OutcomeRetained, got.Recent[0].Outcome)
	assert.Equal(t, relay.StageForward, got.Recent[0].Stage)
	assert.Equal(t, "relay down", got.Recent[0].Error)
	assert.Equal(t, "old", got.Recent[1].ID)
}

func TestStagedListV1(t *testing.T) {
	setupWebServer(t)

	tcs := []struct {
		query string
		want  []string
	}{
		{"", []string{"aaa", "bbb"}},
		{"?quarantined=true", []string{"bbb"}},
		{"?quarantined=false", []string{"aaa"}},
	}
	for _, tc := range tcs {
		t.Run(tc.query, func(t *testing.T) {
			w := testRestGet(t, "/status/staged"+tc.query)
			require.Equal(t, http.StatusOK, w.Code)
			var got []*model.JSONEntryV1
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
			ids := make([]string, 0, len(got))
			for _, e := range got {
				ids = append(ids, e.ID)
			}
			assert.Equal(t, tc.want, ids)
		})
	}
}

func TestStagedListV1BadQuery(t *testing.T) {
	setupWebServer(t)

	w := testRestGet(t, "/status/staged?quarantined=maybe")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStagedShowV1(t *testing.T) {
	setupWebServer(t)

	w := testRestGet(t, "/status/staged/bbb")
	require.Equal(t, http.StatusOK, w.Code)
	var got model.JSONEntryV1
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "bbb", got.ID)
	assert.True(t, got.Quarantined)
	require.NotNil(t, got.Marker)
	assert.Equal(t, "shop", got.Marker.AliasID)
	assert.Equal(t, "shop@relay.example.com", got.Marker.RawAddress)
	assert.Equal(t, relay.StageResolve, got.Marker.Stage)
	assert.Equal(t, "alias not found", got.Marker.Reason)

	w = testRestGet(t, "/status/staged/aaa")
	require.Equal(t, http.StatusOK, w.Code)
	got = model.JSONEntryV1{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.False(t, got.Quarantined)
	assert.Nil(t, got.Marker)
}

func TestStagedShowV1NotFound(t *testing.T) {
	setupWebServer(t)

	w := testRestGet(t, "/status/staged/zzz")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestStagedListV1StoreError(t *testing.T) {
	ms := &storage.MockStore{}
	ms.On("Visit").Return(nil, storage.ErrNotExist)
	web.NewServer(config.Web{}, make(chan bool), ms, nil, nil)
	SetupRoutes(web.Router)

	w := testRestGet(t, "/status/staged")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
