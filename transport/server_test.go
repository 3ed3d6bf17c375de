package transport

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/stretchr/testify/require"

	"github.com/lox/holdemroom/config"
	"github.com/lox/holdemroom/room"
	"github.com/lox/holdemroom/store"
)

func testLogger() *log.Logger {
	return log.NewWithOptions(io.Discard, log.Options{Level: log.ErrorLevel})
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	st := store.NewMemory()
	coord := room.NewCoordinator(quartz.NewMock(t), st, testLogger(), 30*time.Second, 60*time.Second, 1000)
	registry := room.NewRegistry(coord, st, config.Default().Rooms)
	srv := New(registry, testLogger())
	return httptest.NewServer(srv.Engine())
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(raw))
	require.NoError(t, err)
	return resp
}

func TestCreateAndJoinAndListRooms(t *testing.T) {
	ts := newTestServer(t)
	defer ts.Close()

	resp := postJSON(t, ts.URL+"/rooms", createRoomRequest{Name: "table-1", CreatorID: "alice"})
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var view room.View
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&view))
	require.NotEmpty(t, view.ID)

	joinResp := postJSON(t, ts.URL+"/rooms/"+view.ID+"/join", playerRequest{PlayerID: "bob", Username: "Bob"})
	defer joinResp.Body.Close()
	require.Equal(t, http.StatusOK, joinResp.StatusCode)

	listResp, err := http.Get(ts.URL + "/rooms")
	require.NoError(t, err)
	defer listResp.Body.Close()
	require.Equal(t, http.StatusOK, listResp.StatusCode)
	var summaries []room.Summary
	require.NoError(t, json.NewDecoder(listResp.Body).Decode(&summaries))
	require.Len(t, summaries, 1)
	require.Equal(t, 1, summaries[0].CurrentPlayers)
}

func TestJoinUnknownRoomReturnsNotFound(t *testing.T) {
	ts := newTestServer(t)
	defer ts.Close()

	resp := postJSON(t, ts.URL+"/rooms/does-not-exist/join", playerRequest{PlayerID: "bob"})
	defer resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestActWithoutASeatIsRejected(t *testing.T) {
	ts := newTestServer(t)
	defer ts.Close()

	resp := postJSON(t, ts.URL+"/rooms", createRoomRequest{Name: "table-1", CreatorID: "alice"})
	defer resp.Body.Close()
	var view room.View
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&view))

	actResp := postJSON(t, ts.URL+"/rooms/"+view.ID+"/act", actRequest{PlayerID: "ghost", Action: "fold"})
	defer actResp.Body.Close()
	require.Equal(t, http.StatusBadRequest, actResp.StatusCode)
}
