package courier

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/safar/hardware-store/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const trackedBody = `{"status":"ok","events":[
	{"time":"2024-03-01 09:00:00","description":"Picked up","name":"PICKUP"},
	{"time":"2024-03-02T18:30:00Z","description":" Delivered ","name":"DELIVERED"},
	{"time":"2024-03-01 21:15:00","description":"In transit","name":"TRANSIT"}
]}`

func newTestClient(url string) *Client {
	return NewClient(config.CourierConfig{BaseURL: url + "/", APIKey: "k", Timeout: 2 * time.Second})
}

func TestTrackSortsMostRecentFirst(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/trackings/TW123", r.URL.Path)
		assert.Equal(t, "k", r.Header.Get("X-Api-Key"))
		w.Write([]byte(trackedBody))
	}))
	defer srv.Close()

	events, err := newTestClient(srv.URL).Track(context.Background(), "TW123")
	require.NoError(t, err)
	require.Len(t, events, 3)

	assert.Equal(t, "Delivered", events[0].OpDesc)
	assert.Equal(t, "TRANSIT", events[1].OpName)
	assert.Equal(t, "PICKUP", events[2].OpName)
}

func TestTrackRegistersThenRereadsOnce(t *testing.T) {
	var gets, posts int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			atomic.AddInt32(&posts, 1)
			w.WriteHeader(http.StatusCreated)
		case http.MethodGet:
			if atomic.AddInt32(&gets, 1) == 1 {
				w.Write([]byte(`{"status":"not_registered"}`))
				return
			}
			w.Write([]byte(trackedBody))
		}
	}))
	defer srv.Close()

	events, err := newTestClient(srv.URL).Track(context.Background(), "TW123")
	require.NoError(t, err)
	assert.Len(t, events, 3)
	assert.Equal(t, int32(2), atomic.LoadInt32(&gets))
	assert.Equal(t, int32(1), atomic.LoadInt32(&posts))
}

func TestTrackGivesUpAfterOneReread(t *testing.T) {
	var gets, posts int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			atomic.AddInt32(&posts, 1)
			w.WriteHeader(http.StatusOK)
			return
		}
		atomic.AddInt32(&gets, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Track(context.Background(), "TW123")
	assert.ErrorIs(t, err, ErrNotRegistered)
	assert.Equal(t, int32(2), atomic.LoadInt32(&gets))
	assert.Equal(t, int32(1), atomic.LoadInt32(&posts))
}

func TestTrackUpstreamFailureIsNotRetried(t *testing.T) {
	var calls int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Track(context.Background(), "TW123")
	assert.ErrorIs(t, err, ErrUpstream)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestNormalizeUnparseableTimesSortLast(t *testing.T) {
	events := normalize([]rawEvent{
		{Time: "garbage", Name: "A"},
		{Time: "2024-01-01 00:00:00", Name: "B"},
		{Time: "", Name: "C"},
	})

	require.Len(t, events, 3)
	assert.Equal(t, "B", events[0].OpName)
	assert.Equal(t, "A", events[1].OpName)
	assert.Equal(t, "C", events[2].OpName)
}
