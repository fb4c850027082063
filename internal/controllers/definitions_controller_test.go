package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RealZimboGuy/approvalflow/pkg/approvalflow/core"
	"github.com/RealZimboGuy/approvalflow/pkg/approvalflow/domain"
	"github.com/RealZimboGuy/approvalflow/pkg/approvalflow/models"
)

type MockDefinitionService struct {
	CreateFunc func(p core.Principal, def *domain.WorkflowDefinition) (*domain.WorkflowDefinition, error)
	GetFunc    func(p core.Principal, id string) (*domain.WorkflowDefinition, error)
	ListFunc   func(p core.Principal, f models.DefinitionFilter) ([]domain.WorkflowDefinition, error)
	UpdateFunc func(p core.Principal, id string, in *domain.WorkflowDefinition) (*domain.WorkflowDefinition, error)
	DeleteFunc func(p core.Principal, id string) error
}

func (m *MockDefinitionService) Create(ctx context.Context, p core.Principal, def *domain.WorkflowDefinition) (*domain.WorkflowDefinition, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(p, def)
	}
	return def, nil
}
func (m *MockDefinitionService) Get(ctx context.Context, p core.Principal, id string) (*domain.WorkflowDefinition, error) {
	if m.GetFunc != nil {
		return m.GetFunc(p, id)
	}
	return nil, core.NotFoundf("definition %s not found", id)
}
func (m *MockDefinitionService) List(ctx context.Context, p core.Principal, f models.DefinitionFilter) ([]domain.WorkflowDefinition, error) {
	if m.ListFunc != nil {
		return m.ListFunc(p, f)
	}
	return []domain.WorkflowDefinition{}, nil
}
func (m *MockDefinitionService) Update(ctx context.Context, p core.Principal, id string, in *domain.WorkflowDefinition) (*domain.WorkflowDefinition, error) {
	if m.UpdateFunc != nil {
		return m.UpdateFunc(p, id, in)
	}
	return in, nil
}
func (m *MockDefinitionService) Delete(ctx context.Context, p core.Principal, id string) error {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(p, id)
	}
	return nil
}

func TestDefinitionsController_Create(t *testing.T) {
	svc := &MockDefinitionService{
		CreateFunc: func(p core.Principal, def *domain.WorkflowDefinition) (*domain.WorkflowDefinition, error) {
			if !p.IsAdmin() {
				return nil, core.Forbiddenf("only administrators may manage definitions")
			}
			def.ID = "def-1"
			def.Version = 1
			return def, nil
		},
	}
	c := NewDefinitionsController(svc, NewBaseController(&MockUserRepo{}, nil))
	def := domain.WorkflowDefinition{Name: "Purchase", Steps: domain.Steps{{Name: "Manager"}}}

	req := httptest.NewRequest("POST", "/api/definitions", jsonBody(t, def))
	w := httptest.NewRecorder()
	c.handleCreateDefinition(w, withCaller(req, "root", core.RoleAdmin))
	require.Equal(t, http.StatusCreated, w.Code)
	var out domain.WorkflowDefinition
	require.NoError(t, json.NewDecoder(w.Body).Decode(&out))
	assert.Equal(t, "def-1", out.ID)

	req = httptest.NewRequest("POST", "/api/definitions", jsonBody(t, def))
	w = httptest.NewRecorder()
	c.handleCreateDefinition(w, withCaller(req, "alice"))
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestDefinitionsController_GetNotFound(t *testing.T) {
	c := NewDefinitionsController(&MockDefinitionService{}, NewBaseController(&MockUserRepo{}, nil))

	req := httptest.NewRequest("GET", "/api/definitions/missing", nil)
	req.SetPathValue("id", "missing")
	w := httptest.NewRecorder()
	c.handleGetDefinition(w, withCaller(req, "alice"))

	assert.Equal(t, http.StatusNotFound, w.Code)
	var body models.ErrorResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, "not_found", body.Kind)
}

func TestDefinitionsController_ListFilters(t *testing.T) {
	var got models.DefinitionFilter
	svc := &MockDefinitionService{
		ListFunc: func(p core.Principal, f models.DefinitionFilter) ([]domain.WorkflowDefinition, error) {
			got = f
			return []domain.WorkflowDefinition{{ID: "d1", Name: "Purchase"}}, nil
		},
	}
	c := NewDefinitionsController(svc, NewBaseController(&MockUserRepo{}, nil))

	req := httptest.NewRequest("GET", "/api/definitions?name=Purch&activeOnly=true&limit=3", nil)
	w := httptest.NewRecorder()
	c.handleListDefinitions(w, withCaller(req, "alice"))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Purch", got.Name)
	assert.True(t, got.ActiveOnly)
	assert.Equal(t, 3, got.Limit)
}

func TestDefinitionsController_DeleteInUse(t *testing.T) {
	svc := &MockDefinitionService{
		DeleteFunc: func(p core.Principal, id string) error {
			return core.Conflictf("definition %s has instances", id)
		},
	}
	c := NewDefinitionsController(svc, NewBaseController(&MockUserRepo{}, nil))

	req := httptest.NewRequest("DELETE", "/api/definitions/d1", nil)
	req.SetPathValue("id", "d1")
	w := httptest.NewRecorder()
	c.handleDeleteDefinition(w, withCaller(req, "root", core.RoleAdmin))
	assert.Equal(t, http.StatusConflict, w.Code)

	svc.DeleteFunc = nil
	w = httptest.NewRecorder()
	c.handleDeleteDefinition(w, withCaller(req, "root", core.RoleAdmin))
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestDefinitionsController_UpdateValidation(t *testing.T) {
	svc := &MockDefinitionService{
		UpdateFunc: func(p core.Principal, id string, in *domain.WorkflowDefinition) (*domain.WorkflowDefinition, error) {
			return nil, core.Validationf("steps must not be empty")
		},
	}
	c := NewDefinitionsController(svc, NewBaseController(&MockUserRepo{}, nil))

	req := httptest.NewRequest("PUT", "/api/definitions/d1", jsonBody(t, domain.WorkflowDefinition{Name: "x"}))
	req.SetPathValue("id", "d1")
	w := httptest.NewRecorder()
	c.handleUpdateDefinition(w, withCaller(req, "root", core.RoleAdmin))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
