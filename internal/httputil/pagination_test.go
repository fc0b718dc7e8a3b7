package httputil_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/allisson/propflow/internal/httputil"
)

func TestParsePagination(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name       string
		query      string
		wantOffset int
		wantLimit  int
		wantErr    string
	}{
		{name: "defaults", query: "", wantOffset: 0, wantLimit: httputil.DefaultPageLimit},
		{name: "dead letter page two", query: "offset=50&limit=50", wantOffset: 50, wantLimit: 50},
		{name: "max limit", query: "limit=100", wantLimit: 100},
		{name: "negative offset", query: "offset=-1", wantErr: "invalid offset parameter"},
		{name: "non numeric offset", query: "offset=ten", wantErr: "invalid offset parameter"},
		{name: "empty limit", query: "limit=", wantErr: "invalid limit parameter"},
		{name: "zero limit", query: "limit=0", wantErr: "invalid limit parameter"},
		{name: "limit above max", query: "limit=101", wantErr: "must be between 1 and 100"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := gin.CreateTestContext(httptest.NewRecorder())
			c.Request = httptest.NewRequest(http.MethodGet, "/v1/dead-letters?"+tt.query, nil)

			offset, limit, err := httputil.ParsePagination(c)

			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantOffset, offset)
			assert.Equal(t, tt.wantLimit, limit)
		})
	}
}
