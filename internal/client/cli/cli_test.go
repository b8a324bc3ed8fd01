package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/docopt/docopt-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/meetsync/internal/client/api"
	"github.com/iudanet/meetsync/internal/client/app"
	"github.com/iudanet/meetsync/internal/client/datastore"
	"github.com/iudanet/meetsync/internal/client/iocli"
	"github.com/iudanet/meetsync/internal/client/notify"
	"github.com/iudanet/meetsync/internal/config"
	"github.com/iudanet/meetsync/internal/models"
	pkgapi "github.com/iudanet/meetsync/pkg/api"
)

type testCli struct {
	cli    *Cli
	app    *app.App
	out    *bytes.Buffer
	errOut *bytes.Buffer
}

// newTestCli собирает приложение на временной базе. serverURL может
// указывать на httptest сервер или на недоступный адрес.
func newTestCli(t *testing.T, serverURL, input string) *testCli {
	t.Helper()

	cfg := config.DefaultConfig().Client
	cfg.ServerURL = serverURL
	cfg.DBPath = filepath.Join(t.TempDir(), "client.db")

	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	term := iocli.New(strings.NewReader(input), out, errOut)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	a, err := app.New(context.Background(), cfg, NewNavigator(term), logger)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, a.Close()) })

	return &testCli{cli: New(a, term), app: a, out: out, errOut: errOut}
}

func (tc *testCli) run(t *testing.T, argv ...string) error {
	t.Helper()
	opts, err := docopt.ParseArgs(Usage, argv, "test")
	require.NoError(t, err)
	return tc.cli.Run(context.Background(), opts)
}

func seedUsers(t *testing.T, a *app.App) {
	t.Helper()
	err := a.Store.Set(context.Background(), 12,
		models.MustElement("users/user", map[string]any{"id": 1, "username": "admin", "is_active": true}),
		models.MustElement("users/user", map[string]any{"id": 2, "username": "guest", "is_active": false}),
		models.MustElement("users/user", map[string]any{"id": 3, "username": "chair", "is_active": true}),
		models.MustElement("motions/motion", map[string]any{"id": 7, "title": "Budget"}),
	)
	require.NoError(t, err)
}

func TestCli_List(t *testing.T) {
	tc := newTestCli(t, "http://127.0.0.1:1", "")
	seedUsers(t, tc.app)

	require.NoError(t, tc.run(t, "list", "users/user", "--where=is_active"))

	output := tc.out.String()
	assert.Contains(t, output, "=== users/user ===")
	assert.Contains(t, output, `"username":"admin"`)
	assert.Contains(t, output, `"username":"chair"`)
	assert.NotContains(t, output, `"username":"guest"`)
	assert.Contains(t, output, "Total: 2")
}

func TestCli_List_Empty(t *testing.T) {
	tc := newTestCli(t, "http://127.0.0.1:1", "")

	require.NoError(t, tc.run(t, "list", "agenda/item"))
	assert.Contains(t, tc.out.String(), "No objects found.")
}

func TestCli_List_Errors(t *testing.T) {
	tc := newTestCli(t, "http://127.0.0.1:1", "")
	seedUsers(t, tc.app)

	assert.Error(t, tc.run(t, "list", "Users"))
	assert.Error(t, tc.run(t, "list", "users/user", "--where=id +"))
	assert.Error(t, tc.run(t, "list", "users/user", "--where=id"))
}

func TestCli_Status(t *testing.T) {
	tc := newTestCli(t, "http://127.0.0.1:1", "")

	require.NoError(t, tc.run(t, "status"))
	assert.Contains(t, tc.out.String(), "Session: not authenticated")
	assert.Contains(t, tc.out.String(), "Local data: empty")

	tc.out.Reset()
	seedUsers(t, tc.app)
	require.NoError(t, tc.run(t, "status"))
	output := tc.out.String()
	assert.Contains(t, output, "Local data: change id 12")
	assert.Contains(t, output, "users/user")
	assert.Contains(t, output, "motions/motion")
}

func TestCli_Logout_NotLoggedIn(t *testing.T) {
	tc := newTestCli(t, "http://127.0.0.1:1", "")

	require.NoError(t, tc.run(t, "logout"))
	assert.Contains(t, tc.out.String(), "Not logged in.")
}

func TestCli_Login(t *testing.T) {
	userID := 5
	mux := http.NewServeMux()
	mux.HandleFunc(api.PathLogin, func(w http.ResponseWriter, r *http.Request) {
		var req pkgapi.LoginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Password != "password123" {
			http.Error(w, `{"error":"invalid credentials"}`, http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(pkgapi.LoginResponse{
			WhoAmI:      models.WhoAmI{UserID: &userID, Permissions: []string{}},
			AccessToken: "token-5",
			ExpiresIn:   3600,
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	tc := newTestCli(t, srv.URL, "password123\n")
	require.NoError(t, tc.run(t, "login", "--username=chair"))

	output := tc.out.String()
	assert.Contains(t, output, "Login successful")
	assert.Contains(t, output, "User ID: 5")

	authData, err := tc.app.Auth.Current(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "chair", authData.Username)
	assert.Equal(t, 5, authData.UserID)
	assert.Equal(t, 5, tc.app.Operator.UserID())
}

func TestCli_Login_InvalidUsername(t *testing.T) {
	tc := newTestCli(t, "http://127.0.0.1:1", "password123\n")

	err := tc.run(t, "login", "--username=a b")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid username")
}

func TestCli_HistoryPoints(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc(api.PathHistoryInformation, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]models.History{
			{Timestamp: 1700000000, Information: "Motion created"},
			{Timestamp: 1700000100, Information: "Object updated"},
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	tc := newTestCli(t, srv.URL, "")
	require.NoError(t, tc.run(t, "history"))

	output := tc.out.String()
	assert.Contains(t, output, "1700000000\t2023-11-14T22:13:20Z\tMotion created")
	assert.Contains(t, output, "Object updated")
}

func TestCli_History_InvalidTimestamp(t *testing.T) {
	tc := newTestCli(t, "http://127.0.0.1:1", "")

	assert.Error(t, tc.run(t, "history", "yesterday"))
	assert.Error(t, tc.run(t, "history", "1700000000", "Users"))
}

func TestCli_WriteAndDelete(t *testing.T) {
	var (
		mu       sync.Mutex
		requests []pkgapi.WriteRequest
	)
	mux := http.NewServeMux()
	mux.HandleFunc(api.PathElements, func(w http.ResponseWriter, r *http.Request) {
		var req pkgapi.WriteRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		mu.Lock()
		requests = append(requests, req)
		changeID := int64(40 + len(requests))
		mu.Unlock()
		_ = json.NewEncoder(w).Encode(pkgapi.WriteResponse{ChangeID: changeID})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	tc := newTestCli(t, srv.URL, "")

	require.NoError(t, tc.run(t, "write", "motions/motion", `{"id":7,"title":"Budget"}`, "--info=Motion created"))
	require.NoError(t, tc.run(t, "delete", "motions/motion:7"))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, requests, 2)
	require.Len(t, requests[0].Changed, 1)
	assert.Equal(t, "motions/motion", requests[0].Changed[0].Collection)
	assert.JSONEq(t, `{"id":7,"title":"Budget"}`, string(requests[0].Changed[0].Data))
	assert.Equal(t, []string{"Motion created"}, requests[0].Information)
	assert.Equal(t, []string{"motions/motion:7"}, requests[1].Deleted)

	output := tc.out.String()
	assert.Contains(t, output, "motions/motion:7 written, change id 41")
	assert.Contains(t, output, "motions/motion:7 deleted, change id 42")
}

func TestCli_Write_InvalidInput(t *testing.T) {
	tc := newTestCli(t, "http://127.0.0.1:1", "")

	assert.Error(t, tc.run(t, "write", "motions/motion", `{"title":"no id"}`))
	assert.Error(t, tc.run(t, "write", "motions/motion", `not json`))
	assert.Error(t, tc.run(t, "delete", "motions/motion"))
}

func TestCli_Notify_NoRecipients(t *testing.T) {
	tc := newTestCli(t, "http://127.0.0.1:1", "")

	err := tc.run(t, "notify", "ping")
	assert.ErrorIs(t, err, notify.ErrNoRecipients)

	err = tc.run(t, "notify", "ping", "--users=1,x")
	assert.Error(t, err)
}

func TestNavigator_Navigate(t *testing.T) {
	var messages []string
	mockIO := &iocli.IOMock{
		ErrorfFunc: func(format string, a ...any) {
			messages = append(messages, fmt.Sprintf(format, a...))
		},
	}

	NewNavigator(mockIO).Navigate("/login")

	require.Len(t, mockIO.ErrorfCalls(), 1)
	assert.Contains(t, messages[0], "Login required (/login)")
}

func TestFormatUpdate(t *testing.T) {
	tests := []struct {
		name   string
		update datastore.Update
		want   string
	}{
		{
			name: "changed and deleted",
			update: datastore.Update{
				ChangeID: 14,
				Changed:  map[string][]int{"users/user": {3, 1}, "motions/motion": {7}},
				Deleted:  map[string][]int{"agenda/item": {2}},
			},
			want: "change id 14 changed motions/motion[7] changed users/user[1 3] deleted agenda/item[2]",
		},
		{
			name:   "reset",
			update: datastore.Update{ChangeID: 20, Reset: true, Changed: map[string][]int{"users/user": {}}},
			want:   "change id 20 reset",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, formatUpdate(tt.update))
		})
	}
}

func TestParseUserIDs(t *testing.T) {
	ids, err := parseUserIDs("1, 2,3")
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, ids)

	ids, err = parseUserIDs("")
	require.NoError(t, err)
	assert.Nil(t, ids)

	_, err = parseUserIDs("1,0")
	assert.Error(t, err)
}

func TestNotifyContent(t *testing.T) {
	assert.Nil(t, notifyContent(""))
	assert.Equal(t, json.RawMessage(`{"a":1}`), notifyContent(`{"a":1}`))
	assert.Equal(t, "hello there", notifyContent("hello there"))
}
