package http_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/fwojciec/ragkb"
	rkbhttp "github.com/fwojciec/ragkb/http"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeadChecker_Head(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("returns validators", func(t *testing.T) {
		t.Parallel()

		method := make(chan string, 1)
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			method <- r.Method
			w.Header().Set("ETag", `"v2"`)
			w.Header().Set("Last-Modified", "Tue, 13 Oct 2026 08:00:00 GMT")
		}))
		defer srv.Close()

		v, err := rkbhttp.NewHeadChecker(nil).Head(ctx, srv.URL)

		require.NoError(t, err)
		assert.Equal(t, http.MethodHead, <-method)
		assert.Equal(t, `"v2"`, v.ETag)
		assert.Equal(t, "Tue, 13 Oct 2026 08:00:00 GMT", v.LastModified)
	})

	t.Run("missing headers are empty", func(t *testing.T) {
		t.Parallel()

		srv := serve(t, "text/html", nil)

		v, err := rkbhttp.NewHeadChecker(nil).Head(ctx, srv.URL)

		require.NoError(t, err)
		assert.Empty(t, v.ETag)
		assert.Empty(t, v.LastModified)
	})

	t.Run("classifies status codes", func(t *testing.T) {
		t.Parallel()

		for status, temporary := range map[int]bool{
			http.StatusNotFound:           false,
			http.StatusServiceUnavailable: true,
		} {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(status)
			}))

			_, err := rkbhttp.NewHeadChecker(nil).Head(ctx, srv.URL)
			srv.Close()

			require.Error(t, err)
			assert.Equal(t, temporary, ragkb.IsTemporary(err), "status %d", status)
		}
	})
}
