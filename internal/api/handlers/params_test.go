package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/andresuchdata/autopo-py/forecast/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"A", "B", "C"}, splitList([]string{"A,B", " C ", "A", ""}))
	assert.Nil(t, splitList(nil))
}

func TestStatusForError(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{&domain.SchemaError{Missing: []string{"date"}}, http.StatusUnprocessableEntity},
		{fmt.Errorf("validation failed: %w", &domain.DataError{ProductID: "A"}), http.StatusUnprocessableEntity},
		{&domain.ModelFitError{Model: "SARIMA", Err: errors.New("diverged")}, http.StatusUnprocessableEntity},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{errors.New("disk full"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusForError(tt.err), tt.err.Error())
	}
}
