package slv

import (
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/datagridint/slv-extractor/internal/models"
)

var t0 = time.Date(2016, 5, 1, 0, 0, 0, 0, time.UTC)

func TestNewClient_InvalidBaseURL(t *testing.T) {
	_, err := NewClient(Options{BaseURL: "not a url"}, zap.NewNop())
	assert.Error(t, err)
}

func TestAuthenticate_Success(t *testing.T) {
	fake := newFakeSLV()
	srv := fake.start(t)
	c := newTestClient(t, srv, 0)

	sess := login(t, c)

	require.NotEmpty(t, sess.Cookies)
	var value string
	for _, ck := range sess.Cookies {
		if ck.Name == DefaultSessionCookie {
			value = ck.Value
		}
	}
	assert.Equal(t, authedSession, value)
}

func TestAuthenticate_BadCredentials(t *testing.T) {
	fake := newFakeSLV()
	srv := fake.start(t)
	c := newTestClient(t, srv, 0)

	_, err := c.Authenticate(t.Context(), Credentials{Username: testUser, Password: "wrong"})

	assert.True(t, errors.Is(err, ErrAuth), "got %v", err)
}

func TestAuthenticate_NoPreAuthCookie(t *testing.T) {
	fake := newFakeSLV()
	fake.noPreAuthCookie = true
	srv := fake.start(t)
	c := newTestClient(t, srv, 0)

	_, err := c.Authenticate(t.Context(), Credentials{Username: testUser, Password: testPassword})

	assert.ErrorIs(t, err, ErrAuth)
}

func TestAuthenticate_MissingCredentials(t *testing.T) {
	fake := newFakeSLV()
	srv := fake.start(t)
	c := newTestClient(t, srv, 0)

	_, err := c.Authenticate(t.Context(), Credentials{Username: testUser})

	assert.ErrorIs(t, err, ErrAuth)
}

func TestGetRootZone(t *testing.T) {
	fake := newFakeSLV()
	srv := fake.start(t)
	c := newTestClient(t, srv, 0)
	sess := login(t, c)

	zone, err := c.GetRootZone(t.Context(), sess)

	require.NoError(t, err)
	assert.Equal(t, testRootZoneID, zone)
}

func TestGetRootZone_KeyMissing(t *testing.T) {
	fake := newFakeSLV()
	fake.profile = []map[string]interface{}{{"key": "language", "value": "en"}}
	srv := fake.start(t)
	c := newTestClient(t, srv, 0)
	sess := login(t, c)

	_, err := c.GetRootZone(t.Context(), sess)

	assert.ErrorIs(t, err, ErrConfigNotFound)
}

func TestGetRootZone_Unauthenticated(t *testing.T) {
	fake := newFakeSLV()
	srv := fake.start(t)
	c := newTestClient(t, srv, 0)

	// 未登录时返回 HTML 登录页，无法解析为 JSON
	_, err := c.GetRootZone(t.Context(), &Session{})

	assert.ErrorIs(t, err, ErrUpstream)
}

func TestListDevices_FiltersCategory(t *testing.T) {
	fake := newFakeSLV()
	srv := fake.start(t)
	c := newTestClient(t, srv, 0)
	sess := login(t, c)

	devices, err := c.ListDevices(t.Context(), sess, testRootZoneID, models.CategoryStreetlight)

	require.NoError(t, err)
	require.Len(t, devices, 2)
	assert.Equal(t, models.Device{ID: 1, GeoZoneNamesPath: "City/North", Name: "Lamp 1", Category: "streetlight", IDOnController: "L1"}, devices[0])
	assert.Equal(t, "2002", devices[1].IDOnController)
}

func TestListDevices_UpstreamError(t *testing.T) {
	fake := newFakeSLV()
	srv := fake.start(t)
	c := newTestClient(t, srv, 0)
	sess := login(t, c)

	_, err := c.ListDevices(t.Context(), sess, "unknown-zone", models.CategoryStreetlight)

	var upErr *UpstreamError
	require.True(t, errors.As(err, &upErr))
	assert.Equal(t, http.StatusBadRequest, upErr.StatusCode)
	assert.Equal(t, methodGetGeoZoneDevices, upErr.Method)
	assert.ErrorIs(t, err, ErrUpstream)
}

func TestFetchReadings_FiftyHoursThreeRequests(t *testing.T) {
	fake := newFakeSLV()
	srv := fake.start(t)
	c := newTestClient(t, srv, 24*time.Hour)
	sess := login(t, c)

	rng := models.TimeRange{From: t0, To: t0.Add(50 * time.Hour)}
	_, err := c.FetchReadings(t.Context(), sess, []int64{1, 2}, models.TrackedMetrics, rng)
	require.NoError(t, err)

	require.Equal(t, 3, fake.requestCount())
	// 最新的窗口最先请求
	assert.Equal(t, "2016-05-03 01:59:59", fake.logRequests[0].Get("to"))
	assert.Equal(t, "2016-05-02 01:59:59", fake.logRequests[0].Get("from"))
	assert.Equal(t, "2016-05-01 00:00:00", fake.logRequests[2].Get("from"))
	assert.Equal(t, []string{"1", "2"}, fake.logRequests[0]["deviceId"])
	assert.Equal(t, models.MetricNames(models.TrackedMetrics), fake.logRequests[0]["name"])
}

func seedReadings(fake *fakeSLV) {
	fake.readings = []fakeReading{
		{DeviceID: 2, Name: "Energy", EventTime: t0.Add(30 * time.Hour), Value: 5.0},
		{DeviceID: 1, Name: "Temperature", EventTime: t0.Add(30 * time.Hour), Value: "20.5"},
		{DeviceID: 1, Name: "Energy", EventTime: t0.Add(30 * time.Hour), Value: 4.25},
		// 落在两个窗口的共享边界上
		{DeviceID: 1, Name: "Temperature", EventTime: t0.Add(26*time.Hour - time.Second), Value: 19},
		{DeviceID: 1, Name: "Current", EventTime: t0.Add(time.Hour), Value: nil},
		{DeviceID: 2, Name: "MainVoltage", EventTime: t0, Value: 231.2},
		// 超出范围
		{DeviceID: 2, Name: "MainVoltage", EventTime: t0.Add(50 * time.Hour), Value: 230},
		// 未请求的设备
		{DeviceID: 9, Name: "Energy", EventTime: t0.Add(time.Hour), Value: 1},
	}
}

func TestFetchReadings_WindowingDoesNotChangeResult(t *testing.T) {
	fake := newFakeSLV()
	seedReadings(fake)
	srv := fake.start(t)
	rng := models.TimeRange{From: t0, To: t0.Add(50 * time.Hour)}

	windowed := newTestClient(t, srv, 24*time.Hour)
	got, err := windowed.FetchReadings(t.Context(), login(t, windowed), []int64{1, 2}, models.TrackedMetrics, rng)
	require.NoError(t, err)

	single := newTestClient(t, srv, 1000*time.Hour)
	want, err := single.FetchReadings(t.Context(), login(t, single), []int64{1, 2}, models.TrackedMetrics, rng)
	require.NoError(t, err)

	assert.Equal(t, 4, fake.requestCount())
	assert.Equal(t, want, got)
	assert.Len(t, got, 6)
}

func TestFetchReadings_SortedAndParsed(t *testing.T) {
	fake := newFakeSLV()
	seedReadings(fake)
	srv := fake.start(t)
	c := newTestClient(t, srv, 24*time.Hour)
	sess := login(t, c)

	got, err := c.FetchReadings(t.Context(), sess, []int64{1, 2}, models.TrackedMetrics,
		models.TimeRange{From: t0, To: t0.Add(50 * time.Hour)})
	require.NoError(t, err)
	require.Len(t, got, 6)

	for i := 1; i < len(got); i++ {
		assert.False(t, got[i].EventTime.Before(got[i-1].EventTime), "readings must be sorted by event time")
	}
	assert.Equal(t, int64(2), got[0].DeviceID)
	assert.Equal(t, models.MetricMainVoltage, got[0].Metric)
	assert.Nil(t, got[1].Value, "null value stays nil")

	last3 := got[3:]
	assert.Equal(t, int64(1), last3[0].DeviceID)
	assert.Equal(t, models.MetricEnergy, last3[0].Metric)
	assert.Equal(t, models.MetricTemperature, last3[1].Metric)
	require.NotNil(t, last3[1].Value)
	assert.Equal(t, 20.5, *last3[1].Value)
	assert.Equal(t, int64(2), last3[2].DeviceID)
	assert.Equal(t, t0.Add(30*time.Hour+time.Minute), last3[2].UpdateTime)
	assert.Equal(t, "OK", last3[2].Status)
}

func TestFetchReadings_UpstreamErrorDiscardsPartialResults(t *testing.T) {
	fake := newFakeSLV()
	seedReadings(fake)
	fake.failOnRequest = 2
	srv := fake.start(t)
	c := newTestClient(t, srv, 24*time.Hour)
	sess := login(t, c)

	got, err := c.FetchReadings(t.Context(), sess, []int64{1, 2}, models.TrackedMetrics,
		models.TimeRange{From: t0, To: t0.Add(50 * time.Hour)})

	assert.Nil(t, got)
	var upErr *UpstreamError
	require.ErrorAs(t, err, &upErr)
	assert.Equal(t, http.StatusInternalServerError, upErr.StatusCode)
	assert.Equal(t, 2, fake.requestCount(), "no further windows after a failure")
}

func TestFetchReadings_NoDevices(t *testing.T) {
	fake := newFakeSLV()
	srv := fake.start(t)
	c := newTestClient(t, srv, 0)

	got, err := c.FetchReadings(t.Context(), &Session{}, nil, models.TrackedMetrics,
		models.TimeRange{From: t0, To: t0.Add(time.Hour)})

	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Equal(t, 0, fake.requestCount())
}

func TestFetchReadings_InvalidRange(t *testing.T) {
	fake := newFakeSLV()
	srv := fake.start(t)
	c := newTestClient(t, srv, 0)

	_, err := c.FetchReadings(t.Context(), &Session{}, []int64{1}, models.TrackedMetrics,
		models.TimeRange{From: t0.Add(time.Hour), To: t0})

	assert.Error(t, err)
}
