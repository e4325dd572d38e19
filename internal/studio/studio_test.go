package studio

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/aura-webinar/videocreator/internal/capture"
	"github.com/aura-webinar/videocreator/internal/encoder"
	"github.com/aura-webinar/videocreator/internal/events"
	"github.com/aura-webinar/videocreator/internal/models"
	"github.com/aura-webinar/videocreator/internal/persistence"
	"github.com/aura-webinar/videocreator/internal/quota"
	"github.com/aura-webinar/videocreator/internal/recorder"
	"github.com/aura-webinar/videocreator/internal/templates"
	"github.com/aura-webinar/videocreator/pkg/clock"
)

// flakyGateway fails selected calls on top of an in-memory store.
type flakyGateway struct {
	persistence.Gateway
	failSaves  atomic.Int32
	failWrites atomic.Bool
}

func (g *flakyGateway) Save(ctx context.Context, data []byte, meta persistence.Metadata, p persistence.Progress) (models.VideoRecord, error) {
	if g.failSaves.Load() > 0 {
		g.failSaves.Add(-1)
		return models.VideoRecord{}, persistence.ErrPersistence
	}
	return g.Gateway.Save(ctx, data, meta, p)
}

func (g *flakyGateway) WriteQuota(ctx context.Context, q models.UserQuota) error {
	if g.failWrites.Load() {
		return errors.New("quota table unavailable")
	}
	return g.Gateway.WriteQuota(ctx, q)
}

type countingEncoder struct {
	encoder.MJPEG
	opens atomic.Int32
}

func (e *countingEncoder) Open(ctx context.Context, p encoder.Params) (encoder.Stream, error) {
	e.opens.Add(1)
	return e.MJPEG.Open(ctx, p)
}

type fixture struct {
	t       *testing.T
	user    uuid.UUID
	objects *persistence.MemoryObjects
	gw      *flakyGateway
	enc     *countingEncoder
	pub     *events.Recorder
	studio  *Studio
}

func baseConfig(f *fixture) Config {
	return Config{
		UserID:      f.user,
		Gateway:     f.gw,
		Source:      &capture.SyntheticSource{},
		Constraints: capture.Constraints{Width: 32, Height: 24, FrameRate: 10},
		Encoder:     f.enc,
		ChunkSize:   64,
		Templates:   templates.NewRegistry(),
		Publisher:   f.pub,
		Clock:       clock.NewFake(time.Unix(1_700_000_000, 0)),
		Countdown:   -1,
	}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{t: t, user: uuid.New(), objects: persistence.NewMemoryObjects(), enc: &countingEncoder{}, pub: &events.Recorder{}}
	f.gw = &flakyGateway{Gateway: persistence.NewStore(f.objects, persistence.NewMemoryMetadata(), nil, nil)}
	st, err := Open(context.Background(), baseConfig(f))
	if err != nil {
		t.Fatal(err)
	}
	f.studio = st
	t.Cleanup(st.Close)
	return f
}

func (f *fixture) waitEvent(match func(Event) bool) Event {
	f.t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-f.studio.Events():
			if !ok {
				f.t.Fatal("event channel closed")
			}
			if match(ev) {
				return ev
			}
		case <-timeout:
			f.t.Fatalf("timed out waiting for event; state=%s", f.studio.State())
			return Event{}
		}
	}
}

// record runs one short recording through the compositor loop.
func (f *fixture) record() {
	f.t.Helper()
	if err := f.studio.StartRecording(5 * time.Second); err != nil {
		f.t.Fatal(err)
	}
	if got := f.studio.State(); got != recorder.Recording {
		f.t.Fatalf("state = %s", got)
	}
	for i := 0; i < 3; i++ {
		f.studio.loop.Tick()
	}
	if err := f.studio.StopRecording(); err != nil {
		f.t.Fatal(err)
	}
}

func isType(typ EventType) func(Event) bool {
	return func(ev Event) bool { return ev.Type == typ }
}

func TestRecordAndSave(t *testing.T) {
	f := newFixture(t)
	if err := f.studio.ApplyTemplate(templates.Professional); err != nil {
		t.Fatal(err)
	}
	f.record()

	var progress []int
	saved := f.waitEvent(func(ev Event) bool {
		if ev.Type == EventUploadProgress {
			progress = append(progress, ev.Percent)
		}
		return ev.Type == EventVideoSaved
	})
	if len(progress) == 0 || progress[len(progress)-1] != 100 {
		t.Fatalf("progress = %v", progress)
	}

	v := saved.Video
	if v == nil || v.TemplateName != templates.Professional || v.MimeType != models.MimeTypeMJPEG || v.SizeBytes == 0 {
		t.Fatalf("video = %+v", v)
	}
	if v.Filters.Brightness != 105 {
		t.Fatalf("filters = %+v", v.Filters)
	}
	if _, ok := f.objects.Object(v.ObjectKey); !ok {
		t.Fatalf("object %s missing", v.ObjectKey)
	}

	stats := f.studio.Stats()
	if stats.VideoCount != 1 || stats.UsedBytes != v.SizeBytes {
		t.Fatalf("stats = %+v", stats)
	}
	list, err := f.studio.ListVideos(context.Background())
	if err != nil || len(list) != 1 || list[0].ID != v.ID {
		t.Fatalf("list = %+v, %v", list, err)
	}
	if f.studio.PendingSave() {
		t.Fatal("artifact still pending after save")
	}
	if evs := f.pub.Events(); len(evs) != 1 || evs[0].Type != events.TypeVideoCreated {
		t.Fatalf("domain events = %+v", evs)
	}

	// Free allows one video.
	if err := f.studio.StartRecording(5 * time.Second); !errors.Is(err, quota.ErrQuotaExceeded) {
		t.Fatalf("second start err = %v", err)
	}
}

func TestNoTemplateRecordsCustom(t *testing.T) {
	f := newFixture(t)
	f.record()
	saved := f.waitEvent(isType(EventVideoSaved))
	if saved.Video.TemplateName != "Custom" {
		t.Fatalf("template = %q", saved.Video.TemplateName)
	}
}

func TestQuotaDenialSkipsEncoder(t *testing.T) {
	f := newFixture(t)
	err := f.studio.StartRecording(10 * time.Minute)
	var ex *quota.ExceededError
	if !errors.As(err, &ex) || ex.Limit != quota.LimitDuration {
		t.Fatalf("err = %v", err)
	}
	if f.enc.opens.Load() != 0 {
		t.Fatal("encoder opened for a denied recording")
	}
	if f.studio.State() != recorder.Idle {
		t.Fatalf("state = %s", f.studio.State())
	}
}

func TestFailedSaveKeepsArtifactForRetry(t *testing.T) {
	f := newFixture(t)
	f.gw.failSaves.Store(1)
	f.record()

	f.waitEvent(func(ev Event) bool { return ev.Type == EventError && ev.Trigger == "save" })
	if !f.studio.PendingSave() {
		t.Fatal("artifact not kept")
	}
	if err := f.studio.StartRecording(5 * time.Second); !errors.Is(err, ErrPendingArtifact) {
		t.Fatalf("start err = %v", err)
	}
	if got := f.studio.Stats().VideoCount; got != 0 {
		t.Fatalf("video count = %d", got)
	}

	v, err := f.studio.RetrySave(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if f.studio.PendingSave() {
		t.Fatal("artifact pending after retry")
	}
	if got := f.studio.Stats().UsedBytes; got != v.SizeBytes {
		t.Fatalf("used bytes = %d, want %d", got, v.SizeBytes)
	}
	if _, err := f.studio.RetrySave(context.Background()); !errors.Is(err, ErrNoPending) {
		t.Fatalf("second retry err = %v", err)
	}
}

func TestDiscardPending(t *testing.T) {
	f := newFixture(t)
	f.gw.failSaves.Store(1)
	f.record()
	f.waitEvent(func(ev Event) bool { return ev.Type == EventError && ev.Trigger == "save" })

	if err := f.studio.DiscardPending(); err != nil {
		t.Fatal(err)
	}
	if err := f.studio.DiscardPending(); !errors.Is(err, ErrNoPending) {
		t.Fatalf("err = %v", err)
	}
	if err := f.studio.StartRecording(5 * time.Second); err != nil {
		t.Fatalf("start after discard: %v", err)
	}
}

func TestQuotaCommitFailureRemovesSavedVideo(t *testing.T) {
	f := newFixture(t)
	f.gw.failWrites.Store(true)
	f.record()

	f.waitEvent(func(ev Event) bool { return ev.Type == EventError && ev.Trigger == "save" })
	if n := f.objects.Len(); n != 0 {
		t.Fatalf("objects = %d, want 0", n)
	}
	list, err := f.studio.ListVideos(context.Background())
	if err != nil || len(list) != 0 {
		t.Fatalf("list = %+v, %v", list, err)
	}
	if q := f.studio.Stats(); q.VideoCount != 0 || q.UsedBytes != 0 {
		t.Fatalf("stats = %+v", q)
	}
	if !f.studio.PendingSave() {
		t.Fatal("artifact dropped")
	}

	f.gw.failWrites.Store(false)
	if _, err := f.studio.RetrySave(context.Background()); err != nil {
		t.Fatal(err)
	}
}

func TestDeleteVideo(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	other, err := f.gw.Save(ctx, []byte("x"), persistence.Metadata{UserID: uuid.New(), Extension: ".mjpeg"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := f.studio.DeleteVideo(ctx, other.ID); !errors.Is(err, persistence.ErrForbidden) {
		t.Fatalf("foreign delete err = %v", err)
	}
	if _, ok := f.objects.Object(other.ObjectKey); !ok {
		t.Fatal("foreign object removed")
	}

	f.record()
	v := f.waitEvent(isType(EventVideoSaved)).Video
	if err := f.studio.DeleteVideo(ctx, v.ID); err != nil {
		t.Fatal(err)
	}
	f.waitEvent(func(ev Event) bool { return ev.Type == EventVideoDeleted && ev.VideoID == v.ID })
	if q := f.studio.Stats(); q.VideoCount != 0 || q.UsedBytes != 0 {
		t.Fatalf("stats = %+v", q)
	}
	if err := f.studio.DeleteVideo(ctx, v.ID); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("second delete err = %v", err)
	}
	// Deleting frees the slot again.
	if err := f.studio.StartRecording(5 * time.Second); err != nil {
		t.Fatal(err)
	}
}

// deleteWithFailedRelease saves one video, then deletes it while quota
// writes fail. The video is gone but its quota is still held.
func (f *fixture) deleteWithFailedRelease() models.VideoRecord {
	f.t.Helper()
	f.record()
	v := f.waitEvent(isType(EventVideoSaved)).Video

	f.gw.failWrites.Store(true)
	if err := f.studio.DeleteVideo(context.Background(), v.ID); !errors.Is(err, persistence.ErrPersistence) {
		f.t.Fatalf("delete err = %v", err)
	}
	list, err := f.studio.ListVideos(context.Background())
	if err != nil || len(list) != 0 {
		f.t.Fatalf("list = %+v, %v", list, err)
	}
	if q := f.studio.Stats(); q.VideoCount != 1 || q.UsedBytes != v.SizeBytes {
		f.t.Fatalf("stats after failed release = %+v", q)
	}
	if n := f.studio.Library().PendingReleases(); n != 1 {
		f.t.Fatalf("pending releases = %d", n)
	}
	f.gw.failWrites.Store(false)
	return *v
}

func TestDeleteRetryReleasesQuota(t *testing.T) {
	f := newFixture(t)
	v := f.deleteWithFailedRelease()

	if err := f.studio.DeleteVideo(context.Background(), v.ID); err != nil {
		t.Fatalf("retry delete: %v", err)
	}
	f.waitEvent(func(ev Event) bool { return ev.Type == EventVideoDeleted && ev.VideoID == v.ID })
	if q := f.studio.Stats(); q.VideoCount != 0 || q.UsedBytes != 0 {
		t.Fatalf("stats = %+v", q)
	}
	if n := f.studio.Library().PendingReleases(); n != 0 {
		t.Fatalf("pending releases = %d", n)
	}
	if err := f.studio.DeleteVideo(context.Background(), v.ID); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("third delete err = %v", err)
	}
	if err := f.studio.StartRecording(5 * time.Second); err != nil {
		t.Fatal(err)
	}
}

func TestStartRecordingSettlesDeferredRelease(t *testing.T) {
	f := newFixture(t)
	f.deleteWithFailedRelease()

	if err := f.studio.StartRecording(5 * time.Second); err != nil {
		t.Fatalf("start after failed release: %v", err)
	}
	if q := f.studio.Stats(); q.VideoCount != 0 || q.UsedBytes != 0 {
		t.Fatalf("stats = %+v", q)
	}
}

func TestDeferredReleaseSurvivesRepeatedFailure(t *testing.T) {
	f := newFixture(t)
	v := f.deleteWithFailedRelease()

	f.gw.failWrites.Store(true)
	if err := f.studio.StartRecording(5 * time.Second); !errors.Is(err, quota.ErrQuotaExceeded) {
		t.Fatalf("start err = %v", err)
	}
	if n := f.studio.Library().PendingReleases(); n != 1 {
		t.Fatalf("pending releases = %d", n)
	}
	f.gw.failWrites.Store(false)
	if err := f.studio.DeleteVideo(context.Background(), v.ID); err != nil {
		t.Fatal(err)
	}
	if q := f.studio.Stats(); q.VideoCount != 0 {
		t.Fatalf("stats = %+v", q)
	}
}

func TestUpgradeTier(t *testing.T) {
	f := newFixture(t)
	q, err := f.studio.UpgradeTier(context.Background(), quota.Premium)
	if err != nil || q.Tier != string(quota.Premium) {
		t.Fatalf("q = %+v, err = %v", q, err)
	}
	ev := f.waitEvent(isType(EventTierChanged))
	if ev.Tier != string(quota.Premium) {
		t.Fatalf("event = %+v", ev)
	}
	if got := f.pub.Events(); len(got) != 1 || got[0].Type != events.TypeTierChanged {
		t.Fatalf("domain events = %+v", got)
	}
	if err := f.studio.StartRecording(10 * time.Minute); err != nil {
		t.Fatalf("premium start: %v", err)
	}
}

func TestCloseDiscardsRecording(t *testing.T) {
	f := newFixture(t)
	if err := f.studio.StartRecording(5 * time.Second); err != nil {
		t.Fatal(err)
	}
	f.studio.loop.Tick()
	f.studio.Close()
	f.studio.Close()

	for range f.studio.Events() {
	}
	if n := f.objects.Len(); n != 0 {
		t.Fatalf("objects = %d", n)
	}
	if f.studio.State() != recorder.Idle {
		t.Fatalf("state = %s", f.studio.State())
	}
	if err := f.studio.StartRecording(time.Second); !errors.Is(err, ErrClosed) {
		t.Fatalf("start after close err = %v", err)
	}
}

func TestOpenDeniedDevice(t *testing.T) {
	f := &fixture{user: uuid.New(), enc: &countingEncoder{}, pub: &events.Recorder{}}
	f.gw = &flakyGateway{Gateway: persistence.NewStore(persistence.NewMemoryObjects(), persistence.NewMemoryMetadata(), nil, nil)}
	cfg := baseConfig(f)
	cfg.Source = &capture.SyntheticSource{Deny: true}
	if _, err := Open(context.Background(), cfg); !errors.Is(err, capture.ErrDeviceAccess) {
		t.Fatalf("err = %v", err)
	}
}

func TestOpenFailsWhenQuotaUnreadable(t *testing.T) {
	f := &fixture{user: uuid.New(), enc: &countingEncoder{}, pub: &events.Recorder{}}
	f.gw = &flakyGateway{Gateway: persistence.NewStore(persistence.NewMemoryObjects(), persistence.NewMemoryMetadata(), nil, nil)}
	f.gw.failWrites.Store(true)
	if _, err := Open(context.Background(), baseConfig(f)); !errors.Is(err, persistence.ErrPersistence) {
		t.Fatalf("err = %v", err)
	}
}

type recordingBroadcaster struct {
	mu   sync.Mutex
	sent []string
}

func (b *recordingBroadcaster) PublishToUser(_ uuid.UUID, event string, _ interface{}) {
	b.mu.Lock()
	b.sent = append(b.sent, event)
	b.mu.Unlock()
}

func (b *recordingBroadcaster) has(event string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, e := range b.sent {
		if e == event {
			return true
		}
	}
	return false
}

func TestManagerSharesLibraryAndForwardsEvents(t *testing.T) {
	f := &fixture{user: uuid.New(), enc: &countingEncoder{}, pub: &events.Recorder{}}
	f.gw = &flakyGateway{Gateway: persistence.NewStore(persistence.NewMemoryObjects(), persistence.NewMemoryMetadata(), nil, nil)}
	b := &recordingBroadcaster{}
	cfg := baseConfig(f)
	cfg.UserID = uuid.Nil
	m := NewManager(ManagerConfig{Studio: cfg, Broadcaster: b})
	defer m.CloseAll()
	ctx := context.Background()

	if _, err := m.Get(f.user); !errors.Is(err, ErrNotOpen) {
		t.Fatalf("get err = %v", err)
	}

	lib, err := m.Library(ctx, f.user)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := lib.UpgradeTier(ctx, quota.Premium); err != nil {
		t.Fatal(err)
	}
	if !b.has(string(EventTierChanged)) {
		t.Fatal("tier change not broadcast without a studio")
	}

	st, err := m.Open(ctx, f.user)
	if err != nil {
		t.Fatal(err)
	}
	again, err := m.Open(ctx, f.user)
	if err != nil || again != st {
		t.Fatal("second open returned a different studio")
	}
	if st.Library() != lib {
		t.Fatal("studio does not share the user's library")
	}
	if st.Stats().Tier != quota.Premium {
		t.Fatalf("tier = %s", st.Stats().Tier)
	}

	if err := st.StartRecording(time.Second); err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(5 * time.Second)
	for !b.has(string(EventStateChanged)) {
		if time.Now().After(deadline) {
			t.Fatal("studio events not forwarded")
		}
		time.Sleep(5 * time.Millisecond)
	}

	m.Close(f.user)
	m.Close(f.user)
	if _, err := m.Get(f.user); !errors.Is(err, ErrNotOpen) {
		t.Fatalf("get after close err = %v", err)
	}
}
