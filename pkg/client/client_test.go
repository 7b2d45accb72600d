package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pigletlang/core/pkg/emit"
)

func TestNotifyPostsPayload(t *testing.T) {
	var received Notification
	var authHeader string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(Config{URL: srv.URL, Auth: NewBearerTokenAuth("tok")})
	err := c.Notify(context.Background(), Notification{
		Artifact: "job-1",
		Status:   emit.ArtifactStatus{Phase: "Succeeded"},
	})
	require.NoError(t, err)
	require.Equal(t, "job-1", received.Artifact)
	require.Equal(t, "Succeeded", received.Status.Phase)
	require.Equal(t, "Bearer tok", authHeader)
}

func TestNotifyNoURLIsNoOp(t *testing.T) {
	c := New(Config{})
	require.NoError(t, c.Notify(context.Background(), Notification{Artifact: "x"}))
}

func TestNotifyNonOKStatusErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(Config{URL: srv.URL})
	err := c.Notify(context.Background(), Notification{Artifact: "x"})
	require.Error(t, err)
}
