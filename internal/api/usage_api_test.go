package api

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testCreds = Credentials{ClientCode: "GRP12345", Token: "jwt-token"}

func newTestClient(t *testing.T, handler http.HandlerFunc) *UsageClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return NewUsageClient(srv.URL, 2*time.Second, logger).WithLocation(time.UTC)
}

func TestFetchUsageSendsForm(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer jwt-token", r.Header.Get("Authorization"))

		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "GRP12345", r.FormValue("clientCode"))
		assert.Equal(t, "false", r.FormValue("ctrAdmin"))
		_, ok := r.MultipartForm.Value["ctrEmail"]
		assert.True(t, ok, "ctrEmail must be sent even when empty")
		assert.Equal(t, "", r.FormValue("ctrEmail"))

		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{
			"data": [
				{"INDEX_CIT": "100.000", "TIME": "2024-01-15 13:00:00", "METERSERIAL": "AB123"},
				{"INDEX_CIT": 100.5, "TIME": "2024-01-15T14:00:00", "METERSERIAL": "AB123"}
			],
			"avg": "0.25",
			"mid": 0.2
		}`)
	})

	usage, err := client.FetchUsage(context.Background(), testCreds)
	require.NoError(t, err)
	require.Len(t, usage.Readings, 2)

	last := usage.Readings[1]
	assert.InDelta(t, 100.5, last.Index, 1e-9)
	assert.Equal(t, "AB123", last.Serial)
	assert.Equal(t, time.Date(2024, 1, 15, 14, 0, 0, 0, time.UTC), last.Time)
	assert.InDelta(t, 0.25, usage.Average, 1e-9)
	assert.InDelta(t, 0.2, usage.Median, 1e-9)
}

func TestFetchUsageErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{"token expired", http.StatusUnauthorized, `{"message":"expired"}`, ErrAuthExpired},
		{"server error", http.StatusInternalServerError, `oops`, ErrFetch},
		{"not json", http.StatusOK, `<html></html>`, ErrMalformedResponse},
		{"data not a list", http.StatusOK, `{"data": {"INDEX_CIT": 1}}`, ErrMalformedResponse},
		{"bad index", http.StatusOK, `{"data": [{"INDEX_CIT": "n/a"}]}`, ErrMalformedResponse},
		{"missing index", http.StatusOK, `{"data": [{"TIME": "2024-01-15 14:00:00"}]}`, ErrMalformedResponse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.body)
			})

			usage, err := client.FetchUsage(context.Background(), testCreds)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Nil(t, usage)
		})
	}
}

func TestFetchUsageTimeout(t *testing.T) {
	release := make(chan struct{})
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)
	client.timeout = 50 * time.Millisecond

	_, err := client.FetchUsage(context.Background(), testCreds)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFetch)
}

func TestFetchUsageEmptyData(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"data": [], "avg": 1.5, "mid": 1.0}`)
	})

	usage, err := client.FetchUsage(context.Background(), testCreds)
	require.NoError(t, err)
	assert.Empty(t, usage.Readings)
	assert.InDelta(t, 1.5, usage.Average, 1e-9)
}

func TestValidate(t *testing.T) {
	t.Run("accepted", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			io.WriteString(w, `{"data": []}`)
		})
		assert.NoError(t, client.Validate(context.Background(), testCreds))
	})

	t.Run("no data key", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			io.WriteString(w, `{"status": "ok"}`)
		})
		assert.ErrorIs(t, client.Validate(context.Background(), testCreds), ErrFetch)
	})

	t.Run("rejected", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		})
		assert.ErrorIs(t, client.Validate(context.Background(), testCreds), ErrAuthExpired)
	})
}

func TestParseReadingTime(t *testing.T) {
	want := time.Date(2024, 1, 15, 14, 0, 0, 0, time.UTC)
	for _, in := range []string{"2024-01-15 14:00:00", "2024-01-15T14:00:00", "15.01.2024 14:00:00"} {
		got, ok := ParseReadingTime(in, time.UTC)
		assert.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}

	_, ok := ParseReadingTime("yesterday", time.UTC)
	assert.False(t, ok)
	_, ok = ParseReadingTime("", time.UTC)
	assert.False(t, ok)
}

func TestMaskedClientCode(t *testing.T) {
	assert.Equal(t, "GRP1****", testCreds.MaskedClientCode())
	assert.Equal(t, "****", Credentials{ClientCode: "abc"}.MaskedClientCode())
}
