package util

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type payload struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestDecodeJSONBody(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"po","count":2}`))
	got, err := DecodeJSONBody[payload](req)
	require.NoError(t, err)
	assert.Equal(t, payload{Name: "po", Count: 2}, got)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":`))
	got, err = DecodeJSONBody[payload](req)
	assert.Error(t, err)
	assert.Zero(t, got)
}

func TestWriteJSONResponse(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteJSONResponse(rec, http.StatusCreated, payload{Name: "po"})

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"name":"po","count":0}`, rec.Body.String())
}
