package remote

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"
)

func newTestClient(srv *httptest.Server) *Client {
	return New(Options{
		ConnectTimeout:   2 * time.Second,
		SocketTimeout:    2 * time.Second,
		ProbeURL:         srv.URL + "/md5",
		ProbeUnavailable: "NOT_AVAILABLE",
		StarSyncURL:      srv.URL + "/stars",
		RegistrationURL:  srv.URL + "/devices",
		BreakerName:      "test",
	})
}

func TestFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		io.WriteString(w, "<rooms/>")
	}))
	defer srv.Close()
	c := newTestClient(srv)

	body, err := c.Fetch(context.Background(), srv.URL+"/rooms")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if string(body) != "<rooms/>" {
		t.Errorf("body = %q", body)
	}

	_, err = c.Fetch(context.Background(), srv.URL+"/missing")
	var terr *TransportError
	if !errors.As(err, &terr) {
		t.Fatalf("err = %v, want *TransportError", err)
	}
	if terr.StatusCode != http.StatusNotFound || terr.Retryable() {
		t.Errorf("status = %d, retryable = %v", terr.StatusCode, terr.Retryable())
	}
}

func TestFetchIOFailureIsTransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	c := newTestClient(srv)
	srv.Close()

	_, err := c.Fetch(context.Background(), srv.URL+"/rooms")
	var terr *TransportError
	if !errors.As(err, &terr) {
		t.Fatalf("err = %v, want *TransportError", err)
	}
	if terr.StatusCode != 0 || !terr.Retryable() {
		t.Errorf("status = %d, retryable = %v", terr.StatusCode, terr.Retryable())
	}
}

func TestSocketTimeoutIsTransportError(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	c := New(Options{ConnectTimeout: time.Second, SocketTimeout: 50 * time.Millisecond, BreakerName: "timeout"})
	_, err := c.Fetch(context.Background(), srv.URL)
	var terr *TransportError
	if !errors.As(err, &terr) {
		t.Fatalf("err = %v, want *TransportError", err)
	}
}

func TestProbe(t *testing.T) {
	answers := map[string]string{
		"https://feeds/rooms":  "  D41D8CD98F00B204E9800998ECF8427E\n",
		"https://feeds/tracks": "NOT_AVAILABLE",
		"https://feeds/news":   "",
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, answers[r.URL.Query().Get("url")])
	}))
	defer srv.Close()
	c := newTestClient(srv)
	ctx := context.Background()

	fp, err := c.Probe(ctx, "https://feeds/rooms")
	if err != nil || fp != "d41d8cd98f00b204e9800998ecf8427e" {
		t.Errorf("Probe(rooms) = %q, %v", fp, err)
	}
	if _, err := c.Probe(ctx, "https://feeds/tracks"); !errors.Is(err, ErrUnavailable) {
		t.Errorf("Probe(tracks) err = %v, want ErrUnavailable", err)
	}
	if _, err := c.Probe(ctx, "https://feeds/news"); !errors.Is(err, ErrUnavailable) {
		t.Errorf("Probe(news) err = %v, want ErrUnavailable", err)
	}
}

func TestSyncStars(t *testing.T) {
	var got StarSyncRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/stars" {
			http.Error(w, "bad route", http.StatusMethodNotAllowed)
			return
		}
		json.NewDecoder(r.Body).Decode(&got)
		io.WriteString(w, `{"starred": ["A", "D"]}`)
	}))
	defer srv.Close()

	resp, err := newTestClient(srv).SyncStars(context.Background(), StarSyncRequest{
		DeviceID: "dev-1",
		ToStar:   []string{"A", "B"},
		ToUnstar: []string{"C"},
	})
	if err != nil {
		t.Fatalf("SyncStars: %v", err)
	}
	if !reflect.DeepEqual(resp.Starred, []string{"A", "D"}) {
		t.Errorf("Starred = %v", resp.Starred)
	}
	want := StarSyncRequest{DeviceID: "dev-1", ToStar: []string{"A", "B"}, ToUnstar: []string{"C"}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("request = %+v, want %+v", got, want)
	}
}

func TestSyncStarsBadBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"starred": [`)
	}))
	defer srv.Close()

	_, err := newTestClient(srv).SyncStars(context.Background(), StarSyncRequest{})
	var terr *TransportError
	if !errors.As(err, &terr) {
		t.Fatalf("err = %v, want *TransportError", err)
	}
}

func TestRegisterFailureReason(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		io.WriteString(w, `{"reason": "account not allowed"}`)
	}))
	defer srv.Close()

	err := newTestClient(srv).Register(context.Background(), DeviceRegistration{DeviceID: "d", PushToken: "t"})
	var terr *TransportError
	if !errors.As(err, &terr) {
		t.Fatalf("err = %v, want *TransportError", err)
	}
	if terr.Reason != "account not allowed" {
		t.Errorf("Reason = %q", terr.Reason)
	}
	if !strings.Contains(terr.Error(), "403") {
		t.Errorf("Error() = %q", terr.Error())
	}
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()
	c := newTestClient(srv)

	for i := 0; i < 5; i++ {
		c.Fetch(context.Background(), srv.URL)
	}
	_, err := c.Fetch(context.Background(), srv.URL)

	var terr *TransportError
	if !errors.As(err, &terr) {
		t.Fatalf("err = %v, want *TransportError", err)
	}
	if calls.Load() != 5 {
		t.Errorf("server saw %d calls, want 5 (sixth rejected by breaker)", calls.Load())
	}
}

func TestClientErrorsDoNotTripBreaker(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.NotFound(w, r)
	}))
	defer srv.Close()
	c := newTestClient(srv)

	for i := 0; i < 8; i++ {
		c.Fetch(context.Background(), srv.URL)
	}
	if calls.Load() != 8 {
		t.Errorf("server saw %d calls, want 8", calls.Load())
	}
}
