package validators

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/lifecart/orderflow-backend/pkg/errors"
)

type samplePayload struct {
	Email    string `json:"email" validate:"required,email"`
	Quantity int    `json:"quantity" validate:"required,gt=0"`
}

func TestDecodeJSONBody(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/", strings.NewReader(`{"email":"a@b.com","quantity":2}`))
		var dest samplePayload
		require.NoError(t, DecodeJSONBody(req, &dest))
		assert.Equal(t, "a@b.com", dest.Email)
		assert.Equal(t, 2, dest.Quantity)
	})

	t.Run("malformed json", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/", strings.NewReader(`{"email":`))
		var dest samplePayload
		err := DecodeJSONBody(req, &dest)
		require.Error(t, err)
		assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code())
	})

	t.Run("unknown field", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/", strings.NewReader(`{"email":"a@b.com","quantity":1,"admin":true}`))
		var dest samplePayload
		err := DecodeJSONBody(req, &dest)
		require.Error(t, err)
		assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code())
	})

	t.Run("field messages", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/", strings.NewReader(`{"email":"nope","quantity":0}`))
		var dest samplePayload
		err := DecodeJSONBody(req, &dest)
		require.Error(t, err)

		typed := pkgerrors.As(err)
		require.NotNil(t, typed)
		details, ok := typed.Details().(map[string]string)
		require.True(t, ok)
		assert.Equal(t, "must be a valid email", details["email"])
		assert.Contains(t, details, "quantity")
	})
}

func TestParseQueryInt(t *testing.T) {
	req := httptest.NewRequest("GET", "/?limit=10&bad=abc&big=999", nil)

	value, err := ParseQueryInt(req, "limit", 50, 1, 200)
	require.NoError(t, err)
	assert.Equal(t, 10, value)

	value, err = ParseQueryInt(req, "missing", 50, 1, 200)
	require.NoError(t, err)
	assert.Equal(t, 50, value)

	_, err = ParseQueryInt(req, "bad", 50, 1, 200)
	require.Error(t, err)

	_, err = ParseQueryInt(req, "big", 50, 1, 200)
	require.Error(t, err)
}
