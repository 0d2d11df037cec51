package ai_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-grading-api/pkg/ai"
)

func TestStripDataURI(t *testing.T) {
	cases := []struct {
		name     string
		payload  string
		data     string
		mimeType string
	}{
		{name: "data uri", payload: "data:application/pdf;base64,JVBERi0=", data: "JVBERi0=", mimeType: "application/pdf"},
		{name: "data uri with params", payload: "data:text/plain;charset=utf-8;base64,aGk=", data: "aGk=", mimeType: "text/plain"},
		{name: "bare base64", payload: "JVBERi0=", data: "JVBERi0="},
		{name: "foreign header", payload: "application/pdf;base64,JVBERi0=", data: "JVBERi0="},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			data, mimeType := ai.StripDataURI(tc.payload)
			require.Equal(t, tc.data, data)
			require.Equal(t, tc.mimeType, mimeType)
		})
	}
}

func TestGenerateRequestValidate(t *testing.T) {
	require.NoError(t, ai.GenerateRequest{EnableRetrieval: true}.Validate())
	require.NoError(t, ai.GenerateRequest{Schema: &ai.ResponseSchema{Name: "x"}}.Validate())
	require.ErrorIs(t, ai.GenerateRequest{EnableRetrieval: true, Schema: &ai.ResponseSchema{Name: "x"}}.Validate(), ai.ErrRetrievalWithSchema)
}

func TestHTTPLinkFetcherStripsMarkup(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/report":
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			_, _ = w.Write([]byte("<html><head><script>track()</script></head><body><h1>Report</h1>\n\n\n\n<p>Tom &amp; Jerry</p></body></html>"))
		case "/long":
			w.Header().Set("Content-Type", "text/plain")
			_, _ = w.Write([]byte(strings.Repeat("x", ai.MaxRetrievedChars+100)))
		default:
			w.WriteHeader(http.StatusForbidden)
		}
	}))
	defer server.Close()

	fetcher := ai.NewHTTPLinkFetcher(5*time.Second, ai.AllowPrivateNetworks())

	text, err := fetcher.Fetch(context.Background(), server.URL+"/report")
	require.NoError(t, err)
	require.Contains(t, text, "Report")
	require.Contains(t, text, "Tom & Jerry")
	require.NotContains(t, text, "<p>")
	require.NotContains(t, text, "track()")
	require.NotContains(t, text, "\n\n\n")

	long, err := fetcher.Fetch(context.Background(), server.URL+"/long")
	require.NoError(t, err)
	require.Len(t, long, ai.MaxRetrievedChars)

	_, err = fetcher.Fetch(context.Background(), server.URL+"/private")
	require.ErrorContains(t, err, "status 403")
}

func TestHTTPLinkFetcherRefusesNonPublicAddresses(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("INTERNAL-SECRET"))
	}))
	defer server.Close()

	fetcher := ai.NewHTTPLinkFetcher(5 * time.Second)

	for _, target := range []string{
		server.URL + "/admin",
		strings.Replace(server.URL, "127.0.0.1", "localhost", 1) + "/admin",
		"http://169.254.169.254/latest/meta-data/",
		"http://0.0.0.0:1/",
		"http://10.0.0.1:1/",
	} {
		text, err := fetcher.Fetch(context.Background(), target)
		require.ErrorIs(t, err, ai.ErrBlockedAddress, target)
		require.Empty(t, text, target)
	}
}
