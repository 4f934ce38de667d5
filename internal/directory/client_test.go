package directory

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leavebot/internal/model"
)

func newGraph(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /users/{id}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") != "alice@x.mn" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`{"id":"u-1","displayName":"Alice","mail":"alice@x.mn"}`))
	})
	mux.HandleFunc("GET /users/{id}/manager", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") != "alice@x.mn" {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":{"code":"Request_ResourceNotFound"}}`))
			return
		}
		_, _ = w.Write([]byte(`{"id":"u-2","displayName":"Bob","mail":"","userPrincipalName":"bob@x.mn"}`))
	})
	mux.HandleFunc("GET /users/{id}/planner/tasks", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"value":[
			{"title":"Q1 report","dueDateTime":"2024-01-25T10:00:00Z","priority":1,"percentComplete":50},
			{"title":"Done thing","priority":5,"percentComplete":100},
			{"title":"Backlog","priority":9,"percentComplete":0}
		]}`))
	})
	mux.HandleFunc("GET /users/{id}/todo/lists", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"value":[{"id":"l-1","displayName":"Tasks"}]}`))
	})
	mux.HandleFunc("GET /users/{id}/todo/lists/{list}/tasks", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "status ne 'completed'", r.URL.Query().Get("$filter"))
		_, _ = w.Write([]byte(`{"value":[
			{"title":"Book flights","status":"notStarted","importance":"high","dueDateTime":{"dateTime":"2024-01-19T00:00:00.0000000","timeZone":"UTC"}},
			{"title":"Old","status":"completed","importance":"normal"}
		]}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestGetUser(t *testing.T) {
	srv := newGraph(t)
	c := NewClient(srv.URL, srv.Client())

	u, err := c.GetUser(context.Background(), "alice@x.mn")
	require.NoError(t, err)
	assert.Equal(t, &model.User{ID: "u-1", DisplayName: "Alice", Email: "alice@x.mn"}, u)

	_, err = c.GetUser(context.Background(), "nobody@x.mn")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetManager(t *testing.T) {
	srv := newGraph(t)
	c := NewClient(srv.URL, srv.Client())

	m, err := c.GetManager(context.Background(), "alice@x.mn")
	require.NoError(t, err)
	assert.Equal(t, "Bob", m.DisplayName)
	assert.Equal(t, "bob@x.mn", m.Email)

	_, err = c.GetManager(context.Background(), "ceo@x.mn")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListOpenTasks(t *testing.T) {
	srv := newGraph(t)
	tasks, err := NewClient(srv.URL, srv.Client()).ListOpenTasks(context.Background(), "alice@x.mn")
	require.NoError(t, err)

	assert.Equal(t, []model.Task{
		{Title: "Q1 report", DueDate: "2024-01-25", Priority: "urgent", PercentComplete: 50, Status: "inProgress", Source: model.TaskSourceAssigned},
		{Title: "Backlog", Priority: "low", Status: "notStarted", Source: model.TaskSourceAssigned},
	}, tasks.Assigned)
	assert.Equal(t, []model.Task{
		{Title: "Book flights", DueDate: "2024-01-19", Priority: "high", Status: "notStarted", Source: model.TaskSourceTodo},
	}, tasks.Todo)
	assert.Equal(t, 3, tasks.Len())
}

func TestListOpenTasksServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, srv.Client()).ListOpenTasks(context.Background(), "alice@x.mn")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestPlannerPriority(t *testing.T) {
	assert.Equal(t, "urgent", plannerPriority(0))
	assert.Equal(t, "important", plannerPriority(3))
	assert.Equal(t, "medium", plannerPriority(5))
	assert.Equal(t, "low", plannerPriority(9))
}

func TestAuthenticatedClientSendsBearerToken(t *testing.T) {
	var tokenCalls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("POST /token", func(w http.ResponseWriter, r *http.Request) {
		tokenCalls.Add(1)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, graphScope, r.PostForm.Get("scope"))
		assert.Equal(t, "graph-client", r.PostForm.Get("client_id"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"g-tok","token_type":"Bearer","expires_in":3600}`))
	})
	mux.HandleFunc("GET /users/{id}", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer g-tok", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"id":"u-1","displayName":"Alice","mail":"alice@x.mn"}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := NewAuthenticatedClient(context.Background(), srv.URL, Credentials{
		TenantID:     "t-1",
		ClientID:     "graph-client",
		ClientSecret: "s",
		TokenURL:     srv.URL + "/token",
	}, 5*time.Second)

	for range 3 {
		_, err := c.GetUser(context.Background(), "alice@x.mn")
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), tokenCalls.Load())
}
