package feedsync

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/conference-schedule/backend/internal/config"
	"github.com/conference-schedule/backend/internal/feed"
	"github.com/conference-schedule/backend/internal/fingerprint"
	"github.com/conference-schedule/backend/internal/remote"
	"github.com/conference-schedule/backend/internal/state"
	"github.com/conference-schedule/backend/internal/storage"
	"github.com/conference-schedule/backend/internal/storage/models"
)

// feedServer serves feed bodies under /feeds/ and their MD5 under /md5.
type feedServer struct {
	*httptest.Server

	mu     sync.Mutex
	bodies map[string]string // path below /feeds/ -> body
	probe  map[string]string // path below /feeds/ -> forced probe answer
	hits   map[string]int
}

func newFeedServer(t *testing.T) *feedServer {
	fs := &feedServer{
		bodies: map[string]string{},
		probe:  map[string]string{},
		hits:   map[string]int{},
	}
	fs.Server = httptest.NewServer(http.HandlerFunc(fs.handle))
	t.Cleanup(fs.Close)
	return fs
}

func (fs *feedServer) handle(w http.ResponseWriter, r *http.Request) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if r.URL.Path == "/md5" {
		name := strings.TrimPrefix(r.URL.Query().Get("url"), fs.URL+"/feeds/")
		fs.hits["probe:"+name]++
		if answer, ok := fs.probe[name]; ok {
			if answer == "500" {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			io.WriteString(w, answer)
			return
		}
		body, ok := fs.bodies[name]
		if !ok {
			io.WriteString(w, "NOT_AVAILABLE")
			return
		}
		io.WriteString(w, fingerprint.Compute([]byte(body)))
		return
	}

	name := strings.TrimPrefix(r.URL.Path, "/feeds/")
	fs.hits[name]++
	body, ok := fs.bodies[name]
	if !ok {
		http.NotFound(w, r)
		return
	}
	io.WriteString(w, body)
}

func (fs *feedServer) set(name, body string) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.bodies[name] = body
}

func (fs *feedServer) hitCount(name string) int {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.hits[name]
}

type harness struct {
	db           *storage.DB
	srv          *feedServer
	conn         *StaticConnectivity
	state        *state.SyncState
	fingerprints *fingerprint.Store
	service      *Service
	resources    []Resource
}

func newHarness(t *testing.T, withSeeder bool) *harness {
	t.Helper()

	db, err := storage.NewDB(filepath.Join(t.TempDir(), "sync.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	if err := storage.RunMigrations(db); err != nil {
		t.Fatal(err)
	}

	fps, err := fingerprint.OpenInMemory()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { fps.Close() })

	srv := newFeedServer(t)
	client := remote.New(remote.Options{
		ConnectTimeout:   2 * time.Second,
		SocketTimeout:    2 * time.Second,
		ProbeURL:         srv.URL + "/md5",
		ProbeUnavailable: "NOT_AVAILABLE",
		BreakerName:      t.Name(),
	})

	h := &harness{
		db:           db,
		srv:          srv,
		conn:         NewStaticConnectivity(true, true),
		state:        state.New(storage.NewSettingsRepository(db), state.Defaults{BackgroundSync: true}),
		fingerprints: fps,
		resources:    DefaultResources(&config.FeedsConfig{BaseURL: srv.URL + "/feeds/"}),
	}

	reconciler := storage.NewReconciler(db)
	var seeder *Seeder
	if withSeeder {
		seeder = NewSeeder("", reconciler, h.state, fps, 1)
	}
	h.service = NewService(
		h.resources,
		NewDetector(h.conn, h.state, client, fps),
		NewRemoteFetcher(client, reconciler),
		seeder,
		fps,
		storage.NewSyncRunRepository(db),
		nil,
	)
	return h
}

func (h *harness) count(t *testing.T, bucket string) int {
	t.Helper()
	n, err := storage.NewContentRepository(h.db).Count(context.Background(), bucket)
	if err != nil {
		t.Fatal(err)
	}
	return n
}

const newsBody = `[{"id": "a", "title": "A"}, {"id": "b", "title": "B"}]`

func TestSyncAppliesChangedFeedAndPersistsFingerprint(t *testing.T) {
	h := newHarness(t, false)
	h.srv.set("news.json", newsBody)
	ctx := context.Background()

	result, err := h.service.SyncNews(ctx, false)
	if err != nil {
		t.Fatalf("SyncNews: %v", err)
	}
	if result.Status != models.SyncStatusSuccess || result.Applied != 2 {
		t.Errorf("result = %+v", result)
	}
	if n := h.count(t, storage.BucketNews); n != 2 {
		t.Errorf("news rows = %d, want 2", n)
	}

	fp, ok, err := h.fingerprints.Get(h.srv.URL + "/feeds/news.json")
	if err != nil || !ok || fp != fingerprint.Compute([]byte(newsBody)) {
		t.Errorf("stored fingerprint = %q, %v, %v", fp, ok, err)
	}

	// Same content again: the probe matches, so no fetch happens.
	result, err = h.service.SyncNews(ctx, true)
	if err != nil {
		t.Fatal(err)
	}
	if result.Status != models.SyncStatusSkipped || result.Reason != "unchanged" {
		t.Errorf("second pass = %+v, want skipped/unchanged", result)
	}
	if hits := h.srv.hitCount("news.json"); hits != 1 {
		t.Errorf("feed fetched %d times, want 1", hits)
	}
}

func TestMatchingFingerprintSkipsFetch(t *testing.T) {
	h := newHarness(t, false)
	h.srv.set("news.json", newsBody)
	if err := h.fingerprints.Put(h.srv.URL+"/feeds/news.json", fingerprint.Compute([]byte(newsBody))); err != nil {
		t.Fatal(err)
	}

	result, err := h.service.SyncNews(context.Background(), false)
	if err != nil {
		t.Fatal(err)
	}
	if result.Status != models.SyncStatusSkipped {
		t.Errorf("status = %q, want skipped", result.Status)
	}
	if hits := h.srv.hitCount("news.json"); hits != 0 {
		t.Errorf("feed fetched %d times, want 0", hits)
	}
}

func TestProbeFailureTreatedAsUnchanged(t *testing.T) {
	for _, answer := range []string{"500", "NOT_AVAILABLE"} {
		t.Run(answer, func(t *testing.T) {
			h := newHarness(t, false)
			h.srv.set("news.json", newsBody)
			h.srv.probe["news.json"] = answer

			result, err := h.service.SyncNews(context.Background(), true)
			if err != nil {
				t.Fatal(err)
			}
			if result.Status != models.SyncStatusSkipped {
				t.Errorf("status = %q, want skipped", result.Status)
			}
			if hits := h.srv.hitCount("news.json"); hits != 0 {
				t.Errorf("feed fetched %d times, want 0", hits)
			}
			if _, ok, _ := h.fingerprints.Get(h.srv.URL + "/feeds/news.json"); ok {
				t.Error("fingerprint persisted for an unchanged group")
			}
		})
	}
}

func TestNetworkPolicy(t *testing.T) {
	tests := []struct {
		name      string
		connected bool
		unmetered bool
		wifiOnly  bool
		force     bool
		fetch     bool
	}{
		{"offline", false, true, false, true, false},
		{"metered wifi-only", true, false, true, false, false},
		{"metered wifi-only forced", true, false, true, true, true},
		{"metered no preference", true, false, false, false, true},
		{"unmetered wifi-only", true, true, true, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, false)
			h.conn.Set(tt.connected, tt.unmetered)
			if err := h.state.SetPreferences(context.Background(), state.Preferences{WifiOnly: tt.wifiOnly, BackgroundSync: true}); err != nil {
				t.Fatal(err)
			}

			detector := h.service.detector
			if got := detector.ShouldFetchRemote(context.Background(), tt.force); got != tt.fetch {
				t.Errorf("ShouldFetchRemote = %v, want %v", got, tt.fetch)
			}
		})
	}
}

func TestOfflinePassDoesNotProbe(t *testing.T) {
	h := newHarness(t, false)
	h.srv.set("news.json", newsBody)
	h.conn.Set(false, false)

	result, err := h.service.SyncNews(context.Background(), true)
	if err != nil {
		t.Fatal(err)
	}
	if result.Status != models.SyncStatusSkipped || result.Reason != "network policy" {
		t.Errorf("result = %+v", result)
	}
	if hits := h.srv.hitCount("probe:news.json"); hits != 0 {
		t.Errorf("probe called %d times while offline", hits)
	}
}

func TestResourceFailureDoesNotAbortPass(t *testing.T) {
	h := newHarness(t, false)
	h.srv.set("rooms.xml", `<rooms><room><name>Hall A</name></room></rooms>`)
	h.srv.set("tracks.xml", `<tracks><track><name>Java`)
	h.srv.set("speakers.json", `[{"id": 1, "firstName": "Ada"}]`)
	// sessions, presentations and schedule are missing: 404.

	result, err := h.service.SyncSchedule(context.Background(), false)
	if err != nil {
		t.Fatalf("SyncSchedule: %v", err)
	}
	if result.Status != models.SyncStatusPartial {
		t.Errorf("status = %q, want partial", result.Status)
	}
	if h.count(t, storage.BucketRooms) != 1 || h.count(t, storage.BucketSpeakers) != 1 {
		t.Error("healthy resources were not applied")
	}

	if _, ok, _ := h.fingerprints.Get(h.srv.URL + "/feeds/tracks.xml"); ok {
		t.Error("fingerprint persisted for a resource that failed to parse")
	}
	if _, ok, _ := h.fingerprints.Get(h.srv.URL + "/feeds/rooms.xml"); !ok {
		t.Error("fingerprint missing for an applied resource")
	}

	statuses := map[string]string{}
	for _, r := range result.Resources {
		statuses[r.Name] = r.Status
	}
	if statuses["tracks"] != models.SyncStatusError || statuses["rooms"] != models.SyncStatusSuccess {
		t.Errorf("per-resource statuses = %v", statuses)
	}
}

func TestSeederRunsOncePerSchemaVersion(t *testing.T) {
	h := newHarness(t, true)
	h.conn.Set(false, false)
	ctx := context.Background()

	result, err := h.service.SyncSchedule(ctx, false)
	if err != nil {
		t.Fatal(err)
	}
	if result.Seeded == 0 {
		t.Fatal("nothing seeded")
	}
	if n := h.count(t, storage.BucketRooms); n != 4 {
		t.Errorf("seeded rooms = %d, want 4", n)
	}
	if n := h.count(t, storage.BucketSessions); n != 5 {
		t.Errorf("seeded sessions = %d, want 5", n)
	}
	if v, _ := h.state.SchemaVersion(ctx, "rooms"); v != 1 {
		t.Errorf("rooms schema version = %d, want 1", v)
	}

	result, err = h.service.SyncSchedule(ctx, false)
	if err != nil {
		t.Fatal(err)
	}
	if result.Seeded != 0 {
		t.Errorf("second pass seeded %d resources, want 0", result.Seeded)
	}
}

func TestSeederFromDirectory(t *testing.T) {
	dir := t.TempDir()
	h := newHarness(t, false)
	ctx := context.Background()

	if err := writeFile(filepath.Join(dir, "rooms.xml"), `<rooms><room><name>Only Room</name></room></rooms>`); err != nil {
		t.Fatal(err)
	}
	seeder := NewSeeder(dir, storage.NewReconciler(h.db), h.state, h.fingerprints, 2)

	seeded, err := seeder.Seed(ctx, InGroup(h.resources, GroupSchedule))
	if err != nil {
		t.Fatal(err)
	}
	if seeded != 1 {
		t.Errorf("seeded = %d, want 1", seeded)
	}
	if n := h.count(t, storage.BucketRooms); n != 1 {
		t.Errorf("rooms = %d, want 1", n)
	}
	// Resources without a snapshot are still recorded.
	if v, _ := h.state.SchemaVersion(ctx, "tracks"); v != 2 {
		t.Errorf("tracks schema version = %d, want 2", v)
	}
}

func TestReseedForcesRefetch(t *testing.T) {
	h := newHarness(t, false)
	h.srv.set("news.json", newsBody)
	ctx := context.Background()

	if _, err := h.service.SyncNews(ctx, false); err != nil {
		t.Fatal(err)
	}
	if n := h.count(t, storage.BucketNews); n != 2 {
		t.Fatalf("news rows = %d, want 2", n)
	}

	// A schema bump replaces live rows with an older snapshot.
	dir := t.TempDir()
	if err := writeFile(filepath.Join(dir, "news.json"), `[{"id": "a", "title": "A"}]`); err != nil {
		t.Fatal(err)
	}
	seeder := NewSeeder(dir, storage.NewReconciler(h.db), h.state, h.fingerprints, 2)
	if _, err := seeder.Seed(ctx, InGroup(h.resources, GroupNews)); err != nil {
		t.Fatal(err)
	}
	if n := h.count(t, storage.BucketNews); n != 1 {
		t.Fatalf("news rows after reseed = %d, want 1", n)
	}
	if _, ok, _ := h.fingerprints.Get(h.srv.URL + "/feeds/news.json"); ok {
		t.Error("fingerprint kept for a reseeded resource")
	}

	result, err := h.service.SyncNews(ctx, false)
	if err != nil {
		t.Fatal(err)
	}
	if result.Status != models.SyncStatusSuccess {
		t.Errorf("pass after reseed = %+v, want success", result)
	}
	if n := h.count(t, storage.BucketNews); n != 2 {
		t.Errorf("news rows = %d, want 2 from the server", n)
	}
}

func TestNullListingKeepsRows(t *testing.T) {
	h := newHarness(t, false)
	h.srv.set("news.json", newsBody)
	ctx := context.Background()

	if _, err := h.service.SyncNews(ctx, false); err != nil {
		t.Fatal(err)
	}

	h.srv.set("news.json", "null")
	result, err := h.service.SyncNews(ctx, false)
	if err == nil {
		t.Fatalf("SyncNews succeeded on a null listing: %+v", result)
	}
	if result.Status != models.SyncStatusError {
		t.Errorf("status = %q, want error", result.Status)
	}
	if n := h.count(t, storage.BucketNews); n != 2 {
		t.Errorf("news rows = %d, want 2 kept", n)
	}
	if fp, _, _ := h.fingerprints.Get(h.srv.URL + "/feeds/news.json"); fp != fingerprint.Compute([]byte(newsBody)) {
		t.Error("fingerprint advanced past a rejected listing")
	}
}

func TestBatchShapeMustMatchResource(t *testing.T) {
	tests := []struct {
		name    string
		kind    feed.Kind
		full    bool
		payload string
		wantErr bool
	}{
		{"full listing swept", feed.KindNews, true, `[{"id": "a"}]`, false},
		{"partial listing updates", feed.KindPresentations, false, `[{"sessionId": 1, "url": "u"}]`, false},
		{"partial resource given a sweep", feed.KindNews, false, `[{"id": "a"}]`, true},
		{"full resource given updates", feed.KindPresentations, true, `[{"sessionId": 1, "url": "u"}]`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, false)
			r := Resource{Name: string(tt.kind), Kind: tt.kind, Bucket: storage.BucketNews, Full: tt.full}
			if tt.kind == feed.KindPresentations {
				r.Bucket = storage.BucketSessions
			}

			_, err := applyPayload(context.Background(), storage.NewReconciler(h.db), r, []byte(tt.payload))
			if got := errors.Is(err, ErrBatchShape); got != tt.wantErr {
				t.Errorf("applyPayload error = %v, want shape error %v", err, tt.wantErr)
			}
		})
	}
}

func TestUnknownGroup(t *testing.T) {
	h := newHarness(t, false)
	if _, err := h.service.Sync(context.Background(), "sponsors", false); err == nil {
		t.Fatal("expected error for unknown group")
	}
}
