package remotejob

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical-ai/spherical/libs/filings-extractor/internal/domain"
)

// fakeClock fires immediately and records requested waits.
type fakeClock struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (f *fakeClock) After(d time.Duration) <-chan time.Time {
	f.mu.Lock()
	f.waits = append(f.waits, d)
	f.mu.Unlock()
	ch := make(chan time.Time, 1)
	ch <- time.Time{}
	return ch
}

// blockingClock never fires.
type blockingClock struct{}

func (blockingClock) After(time.Duration) <-chan time.Time { return make(chan time.Time) }

type fakeService struct {
	t              *testing.T
	processingFor  int
	final          map[string]any
	usage          map[string]any
	submits        atomic.Int32
	statusChecks   atomic.Int32
	lastSubmitFile []byte
}

func (f *fakeService) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/trigger", func(w http.ResponseWriter, r *http.Request) {
		f.submits.Add(1)
		assert.Equal(f.t, http.MethodPost, r.Method)
		assert.Equal(f.t, "secret", r.Header.Get("x-api-key"))
		if !assert.NoError(f.t, r.ParseMultipartForm(1<<20)) {
			return
		}
		assert.Equal(f.t, "False", r.FormValue("dup_check"))
		file, hdr, err := r.FormFile("input")
		if !assert.NoError(f.t, err) {
			return
		}
		assert.Equal(f.t, "document.pdf", hdr.Filename)
		f.lastSubmitFile, _ = io.ReadAll(file)
		writeJSON(w, map[string]any{"JobId": "job-1", "JobStatus": "Processing"})
	})
	mux.HandleFunc("/result", func(w http.ResponseWriter, r *http.Request) {
		n := f.statusChecks.Add(1)
		assert.Equal(f.t, "job-1", r.URL.Query().Get("JobId"))
		assert.Equal(f.t, "secret", r.Header.Get("x-api-key"))
		if int(n) <= f.processingFor {
			writeJSON(w, map[string]any{"JobStatus": "Processing"})
			return
		}
		writeJSON(w, f.final)
	})
	mux.HandleFunc("/usage", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, f.usage)
	})
	return mux
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func newTestClient(t *testing.T, svc *fakeService, clock Clock) *Client {
	t.Helper()
	srv := httptest.NewServer(svc.handler())
	t.Cleanup(srv.Close)
	return NewClient(Config{
		TriggerURL: srv.URL + "/trigger",
		ResultURL:  srv.URL + "/result",
		UsageURL:   srv.URL + "/usage",
	}, WithHTTPClient(srv.Client()), WithClock(clock))
}

func twoTablePayload() map[string]any {
	return map[string]any{
		"JobStatus": "Success",
		"Tables": []any{
			map[string]any{
				"TableJson": map[string]any{
					"0":  map[string]any{"0": "Filiale", "1": "Capital"},
					"1":  map[string]any{"0": "Alpha SA", "1": "1 000"},
					"10": map[string]any{"0": "Omega SAS", "1": "5 000"},
				},
				"TableConfidence": map[string]any{
					"0":  map[string]any{"0": 0.99, "1": "0.97"},
					"1":  map[string]any{"0": 0.91, "1": 0.42},
					"10": map[string]any{"0": 0.88, "1": 0.8},
				},
			},
			map[string]any{
				"TableJson": map[string]any{
					"0": map[string]any{"0": "Total", "1": "6 000"},
				},
			},
		},
	}
}

func TestSubmitAndFetch_PollsUntilDone(t *testing.T) {
	svc := &fakeService{t: t, processingFor: 3, final: twoTablePayload()}
	clock := &fakeClock{}
	c := newTestClient(t, svc, clock)

	tables, err := c.SubmitAndFetch(context.Background(), []byte("%PDF-1.7 fake"), "secret")
	require.NoError(t, err)

	assert.Equal(t, int32(1), svc.submits.Load())
	assert.Equal(t, int32(4), svc.statusChecks.Load())
	assert.Equal(t, []byte("%PDF-1.7 fake"), svc.lastSubmitFile)
	assert.Len(t, clock.waits, 3)
	for _, d := range clock.waits {
		assert.Equal(t, time.Second, d)
	}

	require.Len(t, tables, 2)

	first := tables[0]
	require.True(t, first.HasConfidence())
	require.Len(t, first.Cells, 11)
	assert.Equal(t, []string{"Filiale", "Capital"}, first.Cells[0])
	assert.Equal(t, []string{"Alpha SA", "1 000"}, first.Cells[1])
	assert.Equal(t, []string{"", ""}, first.Cells[5])
	assert.Equal(t, []string{"Omega SAS", "5 000"}, first.Cells[10])
	assert.Equal(t, 0.97, first.Confidence.Scores[0][1])
	assert.Equal(t, 0.8, first.Confidence.Scores[10][1])

	second := tables[1]
	assert.False(t, second.HasConfidence())
	assert.Nil(t, second.Confidence)
	assert.Equal(t, domain.Grid{{"Total", "6 000"}}, second.Cells)
}

func TestSubmitAndFetch_FailedJob(t *testing.T) {
	svc := &fakeService{t: t, processingFor: 1, final: map[string]any{"JobStatus": "Failed", "Message": "bad pdf"}}
	c := newTestClient(t, svc, &fakeClock{})

	tables, err := c.SubmitAndFetch(context.Background(), []byte("pdf"), "secret")
	require.Error(t, err)
	assert.Nil(t, tables)
	assert.True(t, domain.IsType(err, domain.ErrorTypeBackendUnavailable))
	assert.Contains(t, err.Error(), "bad pdf")
}

func TestSubmitAndFetch_MalformedPayload(t *testing.T) {
	tests := []struct {
		name  string
		final map[string]any
	}{
		{
			name: "shape mismatch",
			final: map[string]any{"JobStatus": "Success", "Tables": []any{map[string]any{
				"TableJson":       map[string]any{"0": map[string]any{"0": "a", "1": "b"}},
				"TableConfidence": map[string]any{"0": map[string]any{"0": 0.5}},
			}}},
		},
		{
			name: "missing TableJson",
			final: map[string]any{"JobStatus": "Success", "Tables": []any{map[string]any{
				"TableConfidence": map[string]any{"0": map[string]any{"0": 0.5}},
			}}},
		},
		{
			name: "non numeric row key",
			final: map[string]any{"JobStatus": "Success", "Tables": []any{map[string]any{
				"TableJson": map[string]any{"first": map[string]any{"0": "a"}},
			}}},
		},
		{
			name:  "tables not a list",
			final: map[string]any{"JobStatus": "Success", "Tables": "nope"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &fakeService{t: t, final: tt.final}
			c := newTestClient(t, svc, &fakeClock{})

			tables, err := c.SubmitAndFetch(context.Background(), []byte("pdf"), "secret")
			require.Error(t, err)
			assert.Nil(t, tables)
			assert.True(t, domain.IsType(err, domain.ErrorTypeMalformedPayload), err.Error())
		})
	}
}

func TestSubmitAndFetch_NonSuccessHTTPStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota", http.StatusForbidden)
	}))
	defer srv.Close()

	c := NewClient(Config{TriggerURL: srv.URL, ResultURL: srv.URL}, WithClock(&fakeClock{}))
	_, err := c.SubmitAndFetch(context.Background(), []byte("pdf"), "secret")
	require.Error(t, err)
	assert.True(t, domain.IsType(err, domain.ErrorTypeBackendUnavailable))
	assert.Contains(t, err.Error(), "403")
}

func TestSubmitAndFetch_CancelStopsPolling(t *testing.T) {
	svc := &fakeService{t: t, processingFor: 1 << 30}
	c := newTestClient(t, svc, blockingClock{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := c.SubmitAndFetch(ctx, []byte("pdf"), "secret")
		done <- err
	}()

	require.Eventually(t, func() bool { return svc.statusChecks.Load() >= 1 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.Error(t, err)
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("poll loop did not stop after cancellation")
	}
	assert.Equal(t, int32(1), svc.statusChecks.Load())
}

func TestSubmitAndFetch_RequiresAPIKey(t *testing.T) {
	svc := &fakeService{t: t}
	c := newTestClient(t, svc, &fakeClock{})

	_, err := c.SubmitAndFetch(context.Background(), []byte("pdf"), "")
	assert.True(t, domain.IsType(err, domain.ErrorTypeConfig))
	assert.Equal(t, int32(0), svc.submits.Load())
}

func TestRemainingCredits(t *testing.T) {
	tests := []struct {
		name  string
		usage map[string]any
		want  int
	}{
		{name: "nested", usage: map[string]any{"usage": map[string]any{"credits": 100, "used": 42}}, want: 58},
		{name: "top level", usage: map[string]any{"credits": 10, "used": 10}, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &fakeService{t: t, usage: tt.usage}
			c := newTestClient(t, svc, &fakeClock{})

			got, err := c.RemainingCredits(context.Background(), "secret")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	t.Run("missing counts", func(t *testing.T) {
		svc := &fakeService{t: t, usage: map[string]any{"status": "ok"}}
		c := newTestClient(t, svc, &fakeClock{})

		_, err := c.RemainingCredits(context.Background(), "secret")
		assert.True(t, domain.IsType(err, domain.ErrorTypeMalformedPayload))
	})
}
