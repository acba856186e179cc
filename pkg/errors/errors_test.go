package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

var errNotFound = WithCode(http.StatusNotFound, "SOS not found")

func TestWrapKeepsUnderlyingMessage(t *testing.T) {
	base := stderrors.New("connection reset by peer")
	err := Wrap(base, "resolve stale sessions")

	assert.Equal(t, "resolve stale sessions: connection reset by peer", err.Error())
	assert.Equal(t, base, stderrors.Unwrap(err))
	assert.Nil(t, Wrap(nil, "ignored"))
}

func TestHTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, HTTPStatus(errNotFound))
	assert.Equal(t, http.StatusNotFound, HTTPStatus(Wrap(errNotFound, "update position")))
	assert.Equal(t, http.StatusNotFound, HTTPStatus(fmt.Errorf("outer: %w", errNotFound)))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(stderrors.New("boom")))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(New("no code")))
}

func TestIs(t *testing.T) {
	assert.True(t, Is(errNotFound, errNotFound))
	assert.True(t, Is(Wrap(errNotFound, "ctx"), errNotFound))
	assert.True(t, Is(fmt.Errorf("outer: %w", errNotFound), errNotFound))
	assert.False(t, Is(WithCode(http.StatusBadRequest, "Missing fields"), errNotFound))
	assert.False(t, Is(stderrors.New("SOS not found"), errNotFound))
}

func TestFormatWithStack(t *testing.T) {
	err := Wrapf(New("no such table"), "sweep %d", 3)
	assert.Equal(t, "sweep 3: no such table", fmt.Sprintf("%v", err))
	assert.NotEmpty(t, err.Stack)
	assert.Contains(t, fmt.Sprintf("%+v", err), err.Stack)
}
