package origin

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchReturnsBodyAndStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/Missing" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte("article:" + r.URL.Path))
	}))
	defer srv.Close()

	c := NewClientBase(srv.URL+"/", time.Second)
	defer c.Close()

	resp, err := c.Fetch(context.Background(), "Main_Page")
	require.NoError(t, err)
	assert.True(t, resp.OK())
	assert.Equal(t, "article:/Main_Page", string(resp.Body))

	resp, err = c.Fetch(context.Background(), "Missing")
	require.NoError(t, err)
	assert.False(t, resp.OK())
	assert.Equal(t, http.StatusNotFound, resp.Status)
}

func TestFetchTransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	_, err := NewClientBase(base, time.Second).Fetch(context.Background(), "x")
	assert.Error(t, err)
}

func TestNewClientDefaultsPort(t *testing.T) {
	assert.Equal(t, "http://origin.example:8080", NewClient("origin.example", "", 0).Base())
	assert.Equal(t, "http://origin.example:9000", NewClient("origin.example", "9000", 0).Base())
}

func TestParseAddr(t *testing.T) {
	tests := []struct{ in, host, port string }{
		{"origin.example", "origin.example", "8080"},
		{"origin.example:9000", "origin.example", "9000"},
		{"origin.example:", "origin.example", "8080"},
	}
	for _, tt := range tests {
		h, p := ParseAddr(tt.in)
		assert.Equal(t, tt.host, h, tt.in)
		assert.Equal(t, tt.port, p, tt.in)
	}
}

func TestResponseOK(t *testing.T) {
	assert.True(t, Response{Status: 200}.OK())
	assert.True(t, Response{Status: 299}.OK())
	assert.False(t, Response{Status: 300}.OK())
	assert.False(t, Response{Status: 199}.OK())
}
