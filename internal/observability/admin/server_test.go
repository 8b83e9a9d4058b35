package admin

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleetnotify/internal/notifier"
	rtsup "fleetnotify/internal/runtime/supervisor"
	logx "fleetnotify/pkg/logx"
)

type fakeSource struct {
	lastFilter notifier.Filter
}

func (f *fakeSource) Metrics() notifier.Metrics {
	return notifier.Metrics{
		TotalSent:   4,
		TotalFailed: 1,
		ByType:      map[string]int64{"alarm": 3, "device_status": 1},
		BySeverity:  map[notifier.Severity]int64{notifier.SeverityError: 4},
		ByChannel:   map[notifier.Channel]int64{notifier.ChannelAlarm: 3},
	}
}

func (f *fakeSource) UnreadCount() int { return 2 }

func (f *fakeSource) Counters() rtsup.Counters { return rtsup.Counters{Active: 1, Started: 1} }

func (f *fakeSource) Notifications(filter notifier.Filter) []notifier.Notification {
	f.lastFilter = filter
	return []notifier.Notification{{ID: "n1", Title: "Overheat", DeviceID: filter.DeviceID}}
}

func get(t *testing.T, h http.Handler, target string, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthAndNotifications(t *testing.T) {
	src := &fakeSource{}
	h := New(Config{}, src, logx.Nop()).Handler()

	rec := get(t, h, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var health map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "ok", health["status"])
	assert.EqualValues(t, 2, health["unread"])
	require.Contains(t, health, "processor")

	rec = get(t, h, "/notifications?unread=1&device=d7&tag=ops&tag=plant&limit=900", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list []notifier.Notification
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, "d7", list[0].DeviceID)
	assert.True(t, src.lastFilter.UnreadOnly)
	assert.Equal(t, []string{"ops", "plant"}, src.lastFilter.Tags)
	assert.Equal(t, maxLimit, src.lastFilter.Limit)

	rec = get(t, h, "/notifications?limit=zero", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = get(t, h, "/debug/pprof/", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code, "pprof is opt-in")
}

func TestMetricsExport(t *testing.T) {
	h := New(Config{}, &fakeSource{}, logx.Nop()).Handler()
	rec := get(t, h, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `fleetnotify_notifications_total{outcome="sent"} 4`)
	assert.Contains(t, body, `fleetnotify_notifications_total{outcome="failed"} 1`)
	assert.Contains(t, body, `fleetnotify_delivered_by_type_total{type="alarm"} 3`)
	assert.Contains(t, body, `fleetnotify_delivered_by_severity_total{severity="error"} 4`)
	assert.Contains(t, body, "fleetnotify_unread 2")
}

func TestBearerAuth(t *testing.T) {
	h := New(Config{Token: "s3cret", Pprof: true}, &fakeSource{}, logx.Nop()).Handler()

	assert.Equal(t, http.StatusUnauthorized, get(t, h, "/healthz", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, get(t, h, "/healthz", http.Header{"Authorization": {"Bearer nope"}}).Code)
	assert.Equal(t, http.StatusOK, get(t, h, "/healthz", http.Header{"Authorization": {"Bearer s3cret"}}).Code)
	assert.Equal(t, http.StatusOK, get(t, h, "/healthz?token=s3cret", nil).Code)
	assert.Equal(t, http.StatusOK, get(t, h, "/debug/pprof/?token=s3cret", nil).Code)
}

func TestServerReconfigure(t *testing.T) {
	s := New(Config{}, &fakeSource{}, logx.Nop())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	t.Cleanup(func() { s.Stop(context.Background()) })

	s.Reconfigure(ctx, Config{Enabled: true, Addr: "127.0.0.1:0"})
	require.Eventually(t, func() bool { return s.Addr() != "" }, 3*time.Second, 20*time.Millisecond)

	resp, err := http.Get("http://" + s.Addr() + "/healthz")
	require.NoError(t, err)
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	s.Reconfigure(ctx, Config{Enabled: false})
	assert.Empty(t, s.Addr())
	assert.False(t, s.Enabled())
}

func TestRefusesPublicBindWithoutToken(t *testing.T) {
	assert.True(t, isLoopbackAddr("127.0.0.1:9464"))
	assert.True(t, isLoopbackAddr("localhost:1"))
	assert.False(t, isLoopbackAddr(":9464"))
	assert.False(t, isLoopbackAddr("10.0.0.5:9464"))

	s := New(Config{Enabled: true, Addr: "0.0.0.0:0"}, &fakeSource{}, logx.Nop())
	err := s.serveOnce(context.Background())
	assert.ErrorContains(t, err, "insecure bind")
}
