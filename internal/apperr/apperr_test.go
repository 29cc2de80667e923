package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		kind Kind
		want int
	}{
		{Unauthorized, http.StatusUnauthorized},
		{UnsupportedFormat, http.StatusBadRequest},
		{EmptyDocument, http.StatusBadRequest},
		{BadInput, http.StatusBadRequest},
		{ExtractionFailed, http.StatusUnprocessableEntity},
		{EmbeddingFailed, http.StatusBadGateway},
		{StorageWriteFailed, http.StatusInternalServerError},
		{StorageReadFailed, http.StatusInternalServerError},
		{Internal, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatus(New(tt.kind, "x")))
		})
	}

	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(errors.New("plain")))
}

func TestKindSurvivesWrapping(t *testing.T) {
	cause := errors.New("connection refused")
	err := fmt.Errorf("saving chunk 3: %w", Wrap(StorageWriteFailed, cause, "写入向量库失败"))

	assert.Equal(t, StorageWriteFailed, KindOf(err))
	assert.True(t, IsKind(err, StorageWriteFailed))
	assert.False(t, IsKind(err, StorageReadFailed))
	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, err, New(StorageWriteFailed, ""))
	assert.NotErrorIs(t, err, New(EmbeddingFailed, ""))
	assert.Equal(t, "写入向量库失败", Message(err))
}

func TestWrapNil(t *testing.T) {
	assert.NoError(t, Wrap(Internal, nil, "nothing"))
}

func TestMessageFallback(t *testing.T) {
	assert.Equal(t, "服务内部错误", Message(errors.New("boom")))
}
