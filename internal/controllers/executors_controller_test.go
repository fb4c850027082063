package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RealZimboGuy/approvalflow/pkg/approvalflow/domain"
)

type MockExecutorRepo struct {
	GetExecutorsByLastActiveFunc func(limit int) ([]*domain.Executor, error)
}

func (m *MockExecutorRepo) GetExecutorsByLastActive(ctx context.Context, limit int) ([]*domain.Executor, error) {
	if m.GetExecutorsByLastActiveFunc != nil {
		return m.GetExecutorsByLastActiveFunc(limit)
	}
	return nil, nil
}

func TestExecutorsController_GetExecutors(t *testing.T) {
	mockExecutorRepo := &MockExecutorRepo{
		GetExecutorsByLastActiveFunc: func(limit int) ([]*domain.Executor, error) {
			assert.Equal(t, 20, limit)
			return []*domain.Executor{{ID: 1, Name: "executor1"}}, nil
		},
	}
	c := NewExecutorsController(mockExecutorRepo, NewBaseController(&MockUserRepo{}, nil))

	req := httptest.NewRequest("GET", "/api/executors", nil)
	w := httptest.NewRecorder()
	c.handleGetExecutors(w, withCaller(req, "alice"))

	require.Equal(t, http.StatusOK, w.Code)
	var executors []domain.Executor
	require.NoError(t, json.NewDecoder(w.Body).Decode(&executors))
	assert.Len(t, executors, 1)
}

func TestExecutorsController_GetExecutors_Empty(t *testing.T) {
	c := NewExecutorsController(&MockExecutorRepo{}, NewBaseController(&MockUserRepo{}, nil))

	req := httptest.NewRequest("GET", "/api/executors", nil)
	w := httptest.NewRecorder()
	c.handleGetExecutors(w, withCaller(req, "alice"))

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, "[]", w.Body.String())
}
