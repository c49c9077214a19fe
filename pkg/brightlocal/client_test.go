package brightlocal

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, h http.HandlerFunc) Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	return NewClient("key-1", "secret-1",
		WithBaseURL(srv.URL+"/"),
		WithRateLimit(0),
		WithClock(func() time.Time { return fixed }),
	)
}

func TestAddReport_Success(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v2/ct/add", r.URL.Path)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "Joe's Pizza", r.PostForm.Get("business-name"))
		assert.Equal(t, "USA", r.PostForm.Get("country"))
		assert.Equal(t, "key-1", r.PostForm.Get("api-key"))
		assert.NotEmpty(t, r.PostForm.Get("sig"))
		assert.NotEmpty(t, r.PostForm.Get("expires"))
		w.Write([]byte(`{"success":true,"response":{"report-id":682}}`))
	})

	id, err := c.AddReport(context.Background(), AddReportRequest{
		ReportName:   "loc-1",
		BusinessName: "Joe's Pizza",
		Phone:        "555-123-4567",
	})
	require.NoError(t, err)
	assert.Equal(t, "682", id)
}

func TestAddReport_MissingID(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":true,"response":{}}`))
	})

	_, err := c.AddReport(context.Background(), AddReportRequest{BusinessName: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing report-id")
}

func TestRunReport(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/ct/run", r.URL.Path)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "682", r.PostForm.Get("report-id"))
		w.Write([]byte(`{"success":true}`))
	})

	require.NoError(t, c.RunReport(context.Background(), "682"))
}

func TestGetReport(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/v2/ct/get", r.URL.Path)
		assert.Equal(t, "682", r.URL.Query().Get("report-id"))
		assert.Equal(t, "key-1", r.URL.Query().Get("api-key"))
		w.Write([]byte(`{"success":true,"report":{"report_id":"682","status":"complete"}}`))
	})

	rep, err := c.GetReport(context.Background(), "682")
	require.NoError(t, err)
	assert.Equal(t, "682", rep.ReportID)
	assert.Equal(t, "complete", rep.Status)
}

func TestGetResults(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/ct/get-results", r.URL.Path)
		w.Write([]byte(`{"success":true,"results":{
			"active":[{"source":"Yelp","url":"https://yelp.com/joes","business-name":"Joe's Pizza","address":null,"telephone":"5551234567","domain-authority":94,"site-type":"General"}],
			"pending":[],
			"possible":[{"source":"Foursquare","url":null}]
		}}`))
	})

	res, err := c.GetResults(context.Background(), "682")
	require.NoError(t, err)
	require.Len(t, res.Active, 1)
	assert.Equal(t, "Yelp", res.Active[0].Source)
	require.NotNil(t, res.Active[0].URL)
	assert.Equal(t, "https://yelp.com/joes", *res.Active[0].URL)
	assert.Nil(t, res.Active[0].Address)
	assert.Equal(t, 94, res.Active[0].DomainAuthority)
	assert.Empty(t, res.Pending)
	require.Len(t, res.Possible, 1)
	assert.Nil(t, res.Possible[0].URL)
}

func TestGetResults_MissingResults(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":true}`))
	})

	_, err := c.GetResults(context.Background(), "682")
	require.Error(t, err)
}

func TestDeleteReport(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/ct/delete", r.URL.Path)
		w.Write([]byte(`{"success":true}`))
	})

	require.NoError(t, c.DeleteReport(context.Background(), "682"))
}

func TestHTTPError(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`maintenance`))
	})

	_, err := c.GetReport(context.Background(), "682")
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.StatusCode)
	assert.Contains(t, err.Error(), "503")
}

func TestUnsuccessfulEnvelope(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":false,"errors":{"report-id":"Invalid report ID"}}`))
	})

	err := c.RunReport(context.Background(), "nope")
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusOK, apiErr.StatusCode)
	assert.Contains(t, apiErr.Message, "Invalid report ID")
}

func TestContextCanceled(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":true}`))
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := c.RunReport(ctx, "682")
	require.Error(t, err)
}

func TestSign_Deterministic(t *testing.T) {
	t.Parallel()

	fixed := time.Unix(1_700_000_000, 0)
	c := &httpClient{apiKey: "k", apiSecret: "s", now: func() time.Time { return fixed }}

	a := map[string][]string{}
	b := map[string][]string{}
	c.sign(a)
	c.sign(b)

	assert.Equal(t, a["sig"], b["sig"])
	assert.Equal(t, []string{"1700001800"}, a["expires"])
}
