//go:build integration

package common

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/RealZimboGuy/approvalflow/internal/auth"
	"github.com/RealZimboGuy/approvalflow/internal/repository"
	"github.com/RealZimboGuy/approvalflow/pkg/approvalflow"
	"github.com/RealZimboGuy/approvalflow/pkg/approvalflow/core"
	"github.com/RealZimboGuy/approvalflow/pkg/approvalflow/models"
)

const Tenant = "acme"

var portBase int32 = 9180

func nextPort() int {
	return int(atomic.AddInt32(&portBase, 1))
}

// Harness is a running engine with its HTTP API on a local port.
type Harness struct {
	App      *approvalflow.App
	BaseURL  string
	AdminKey string
	client   *http.Client
}

// Boot opens the database, starts the full engine and waits for /healthz.
func Boot(t *testing.T, settings repository.DatabaseSettings) *Harness {
	t.Helper()
	db, err := repository.Open(settings)
	require.NoError(t, err)
	app := approvalflow.New(db, nil)

	port := nextPort()
	t.Setenv("HTTP_ADDR", fmt.Sprintf("127.0.0.1:%d", port))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx, nil) }()
	t.Cleanup(func() {
		cancel()
		<-done
		_ = app.Close()
	})

	h := &Harness{
		App:     app,
		BaseURL: fmt.Sprintf("http://127.0.0.1:%d", port),
		client:  &http.Client{Timeout: 10 * time.Second},
	}
	require.Eventually(t, func() bool {
		resp, err := h.client.Get(h.BaseURL + "/healthz")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 20*time.Second, 100*time.Millisecond, "server did not become healthy")

	h.AdminKey = h.CreateUser(t, "admin", "", core.RoleAdmin)
	return h
}

// CreateUser adds a user to the tenant and returns its API key.
func (h *Harness) CreateUser(t *testing.T, username string, manager string, roles ...string) string {
	t.Helper()
	out, err := auth.CreateUser(context.Background(), h.App.Store.Users, Tenant, models.CreateUserRequest{
		Username: username,
		Manager:  manager,
		Roles:    roles,
	})
	require.NoError(t, err)
	return out.ApiKey
}

// Do sends a JSON request as the owner of apiKey and decodes the response
// body into out when out is not nil. It returns the status code.
func (h *Harness) Do(t *testing.T, method string, path string, apiKey string, body any, out any) int {
	t.Helper()
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, h.BaseURL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", apiKey)

	resp, err := h.client.Do(req)
	require.NoError(t, err, "%s %s", method, path)
	defer resp.Body.Close()
	if out != nil && resp.StatusCode != http.StatusNoContent {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out), "%s %s", method, path)
	}
	return resp.StatusCode
}
