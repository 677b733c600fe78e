package events

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToggleReadsStreamedBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewHandler(nil, nil, Options{}, nil)

	var got *bool
	set := func(_ context.Context, _ uuid.UUID, v bool) error {
		got = &v
		return nil
	}
	r := gin.New()
	r.POST("/events/:id/archive", func(c *gin.Context) { h.toggle(c, "archived", set) })

	cases := []struct {
		name string
		body io.Reader
		want bool
		code int
	}{
		{"streamed false", io.NopCloser(strings.NewReader(`{"archived": false}`)), false, http.StatusOK},
		{"sized false", strings.NewReader(`{"archived": false}`), false, http.StatusOK},
		{"empty body", nil, true, http.StatusOK},
		{"empty streamed body", io.NopCloser(strings.NewReader("")), true, http.StatusOK},
		{"other field", strings.NewReader(`{"closed": false}`), true, http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got = nil
			req := httptest.NewRequest(http.MethodPost, "/events/"+uuid.NewString()+"/archive", tc.body)
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			require.Equal(t, tc.code, w.Code, w.Body.String())
			require.NotNil(t, got)
			assert.Equal(t, tc.want, *got)
		})
	}

	t.Run("malformed", func(t *testing.T) {
		got = nil
		req := httptest.NewRequest(http.MethodPost, "/events/"+uuid.NewString()+"/archive", io.NopCloser(strings.NewReader(`{"archived":`)))
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Nil(t, got)
	})
}
