package scrape

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const listingHTML = `<html><head><title>T2 Apartment, Lisbon</title></head>
<body><nav>Menu</nav><h1>T2 Apartment</h1><p class="price">250 000 EUR</p>
<footer>Copyright 2026</footer></body></html>`

func TestLocalScraper_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-agent", r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(200)
		_, _ = w.Write([]byte(listingHTML))
	}))
	defer srv.Close()

	s := NewLocalScraper(WithUserAgent("test-agent"))
	page, err := s.Scrape(context.Background(), srv.URL+"/listing/1")
	require.NoError(t, err)
	assert.Equal(t, "local_http", page.Source)
	assert.Equal(t, "T2 Apartment, Lisbon", page.Title)
	assert.Equal(t, 200, page.StatusCode)
	assert.Equal(t, srv.URL+"/listing/1", page.URL)
	assert.Contains(t, page.HTML, `<p class="price">250 000 EUR</p>`)
	assert.False(t, page.Timestamp.IsZero())
	assert.False(t, page.HasScreenshot())
}

func TestLocalScraper_FollowsRedirect(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/old", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/new", http.StatusMovedPermanently)
	})
	mux.HandleFunc("/new", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(listingHTML))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	page, err := NewLocalScraper().Scrape(context.Background(), srv.URL+"/old")
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/new", page.URL)
}

func TestLocalScraper_Cloudflare(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cf-Ray", "abc123")
		w.WriteHeader(403)
		_, _ = w.Write([]byte(`<html><body>Access denied</body></html>`))
	}))
	defer srv.Close()

	_, err := NewLocalScraper().Scrape(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Equal(t, KindBlocked, KindOf(err))
	assert.Contains(t, err.Error(), "cloudflare")
}

func TestLocalScraper_RateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := NewLocalScraper().Scrape(context.Background(), srv.URL)
	assert.Equal(t, KindBlocked, KindOf(err))
}

func TestLocalScraper_Captcha(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><body>Please complete the reCAPTCHA to continue</body></html>`))
	}))
	defer srv.Close()

	_, err := NewLocalScraper().Scrape(context.Background(), srv.URL)
	assert.Equal(t, KindBlocked, KindOf(err))
}

func TestLocalScraper_EmptyBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html><body>   </body></html>`))
	}))
	defer srv.Close()

	_, err := NewLocalScraper().Scrape(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Equal(t, KindRenderFailure, KindOf(err))
	assert.Contains(t, err.Error(), "empty")
}

func TestLocalScraper_NotFound(t *testing.T) {
	for _, code := range []int{404, 410} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(code)
			_, _ = w.Write([]byte(`<html><body>This listing is no longer available</body></html>`))
		}))

		_, err := NewLocalScraper().Scrape(context.Background(), srv.URL)
		srv.Close()

		var se *Error
		require.ErrorAs(t, err, &se)
		assert.Equal(t, KindNotFound, se.Kind)
		assert.Equal(t, code, se.StatusCode)
	}
}

func TestLocalScraper_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`<html><body>Internal error</body></html>`))
	}))
	defer srv.Close()

	_, err := NewLocalScraper().Scrape(context.Background(), srv.URL)
	assert.Equal(t, KindRenderFailure, KindOf(err))
}

func TestLocalScraper_DeadlineIsTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := NewLocalScraper().Scrape(ctx, srv.URL)
	assert.Equal(t, KindTimeout, KindOf(err))
}

func TestLocalScraper_MaxBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(listingHTML))
	}))
	defer srv.Close()

	page, err := NewLocalScraper(WithMaxBodyBytes(120)).Scrape(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Len(t, page.HTML, 120)
}

func TestLocalScraper_NameSupports(t *testing.T) {
	s := NewLocalScraper()
	assert.Equal(t, "local_http", s.Name())
	assert.True(t, s.Supports("https://portal.example"))
}
