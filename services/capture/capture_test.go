package capture

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"floraseven/drivers/camera"
	"floraseven/errcode"
	"floraseven/types"
)

const statusTopic = "floraSeven/hub/cam/image_status"

type fakeCamera struct {
	fb       *camera.FrameBuffer
	acquired int
	released []*camera.FrameBuffer
}

func (c *fakeCamera) Acquire() *camera.FrameBuffer {
	c.acquired++
	return c.fb
}

func (c *fakeCamera) Release(fb *camera.FrameBuffer) { c.released = append(c.released, fb) }

type fakePublisher struct {
	topics   []string
	payloads [][]byte
	err      error
}

func (p *fakePublisher) Publish(topic string, payload []byte) error {
	p.topics = append(p.topics, topic)
	p.payloads = append(p.payloads, payload)
	return p.err
}

type upload struct {
	body        []byte
	contentType string
	method      string
}

func uploadServer(t *testing.T, status int) (*httptest.Server, func() []upload) {
	t.Helper()
	var mu sync.Mutex
	var got []upload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		mu.Lock()
		got = append(got, upload{body: b, contentType: r.Header.Get("Content-Type"), method: r.Method})
		mu.Unlock()
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv, func() []upload {
		mu.Lock()
		defer mu.Unlock()
		return append([]upload(nil), got...)
	}
}

func jpegFrame() *camera.FrameBuffer {
	return &camera.FrameBuffer{Data: []byte{0xFF, 0xD8, 0x01, 0x02, 0xFF, 0xD9}, Width: 800, Height: 600, Format: camera.FormatJPEG}
}

func newPipeline(url string, cam Camera, pub Publisher) *Pipeline {
	p := New(Config{UploadURL: url, StatusTopic: statusTopic, Timeout: time.Second}, cam, pub, nil, nil)
	p.Name = func(time.Time) string { return "capture_test.jpg" }
	return p
}

func TestUploadAndPublishMetadata(t *testing.T) {
	srv, uploads := uploadServer(t, http.StatusOK)
	cam := &fakeCamera{fb: jpegFrame()}
	pub := &fakePublisher{}

	require.NoError(t, newPipeline(srv.URL, cam, pub).CaptureAndUpload(context.Background()))

	require.Len(t, uploads(), 1)
	u := uploads()[0]
	assert.Equal(t, http.MethodPost, u.method)
	assert.Equal(t, "image/jpeg", u.contentType)
	assert.Equal(t, cam.fb.Data, u.body)

	require.Len(t, pub.payloads, 1)
	assert.Equal(t, statusTopic, pub.topics[0])
	var meta types.ImageStatus
	require.NoError(t, json.Unmarshal(pub.payloads[0], &meta))
	assert.Equal(t, types.ImageStatus{
		Status:       "uploaded",
		Filename:     "capture_test.jpg",
		Resolution:   "800x600",
		SizeBytes:    6,
		UploadMethod: "http_post",
	}, meta)

	assert.Equal(t, []*camera.FrameBuffer{cam.fb}, cam.released)
}

func TestNoBufferNoRelease(t *testing.T) {
	cam := &fakeCamera{}
	pub := &fakePublisher{}
	err := newPipeline("http://127.0.0.1:1", cam, pub).CaptureAndUpload(context.Background())

	assert.ErrorIs(t, err, errcode.BufferUnavailable)
	assert.Empty(t, cam.released)
	assert.Empty(t, pub.payloads)
}

func TestUnsupportedFormatReleases(t *testing.T) {
	srv, uploads := uploadServer(t, http.StatusOK)
	fb := jpegFrame()
	fb.Format = camera.FormatRGB565
	cam := &fakeCamera{fb: fb}
	pub := &fakePublisher{}

	err := newPipeline(srv.URL, cam, pub).CaptureAndUpload(context.Background())
	assert.ErrorIs(t, err, errcode.UnsupportedFormat)
	assert.Len(t, cam.released, 1)
	assert.Empty(t, uploads())
	assert.Empty(t, pub.payloads)
}

func TestHTTPErrorStatusIsUploadFailed(t *testing.T) {
	for _, status := range []int{http.StatusInternalServerError, http.StatusBadRequest, http.StatusNotFound} {
		srv, _ := uploadServer(t, status)
		cam := &fakeCamera{fb: jpegFrame()}
		pub := &fakePublisher{}

		err := newPipeline(srv.URL, cam, pub).CaptureAndUpload(context.Background())
		assert.ErrorIs(t, err, errcode.UploadFailed, "status %d", status)
		assert.Len(t, cam.released, 1)
		assert.Empty(t, pub.payloads)
	}
}

func TestTransportErrorIsUploadFailed(t *testing.T) {
	srv, _ := uploadServer(t, http.StatusOK)
	url := srv.URL
	srv.Close()

	cam := &fakeCamera{fb: jpegFrame()}
	err := newPipeline(url, cam, &fakePublisher{}).CaptureAndUpload(context.Background())
	assert.ErrorIs(t, err, errcode.UploadFailed)
	assert.Len(t, cam.released, 1)
}

func TestPublishFailureKeepsSuccess(t *testing.T) {
	srv, _ := uploadServer(t, http.StatusCreated)
	cam := &fakeCamera{fb: jpegFrame()}
	pub := &fakePublisher{err: errcode.NotConnected}

	assert.NoError(t, newPipeline(srv.URL, cam, pub).CaptureAndUpload(context.Background()))
	assert.Len(t, cam.released, 1)
}

func TestWithRealPoolNothingLeaks(t *testing.T) {
	srv, _ := uploadServer(t, http.StatusOK)
	pool, err := camera.NewPool(stillSensor{}, camera.Config{MaxFrameBytes: 16})
	require.NoError(t, err)

	p := newPipeline(srv.URL, pool, &fakePublisher{})
	for i := 0; i < 3; i++ {
		require.NoError(t, p.CaptureAndUpload(context.Background()))
	}
	assert.Zero(t, pool.Outstanding())
	assert.Zero(t, pool.BadReleases())
}

type stillSensor struct{}

func (stillSensor) Grab(dst []byte) (camera.Frame, error) {
	n := copy(dst, []byte{0xFF, 0xD8, 0xFF, 0xD9})
	return camera.Frame{N: n, Width: 2, Height: 2, Format: camera.FormatJPEG}, nil
}

type countObserver struct {
	errs  []error
	sizes []int
}

func (o *countObserver) Captured(err error, size int) {
	o.errs = append(o.errs, err)
	o.sizes = append(o.sizes, size)
}

func TestObserverSeesEveryOutcome(t *testing.T) {
	obs := &countObserver{}
	p := New(Config{UploadURL: "http://127.0.0.1:1", StatusTopic: statusTopic}, &fakeCamera{}, &fakePublisher{}, obs, nil)
	_ = p.CaptureAndUpload(context.Background())

	require.Len(t, obs.errs, 1)
	assert.True(t, errors.Is(obs.errs[0], errcode.BufferUnavailable))
	assert.Zero(t, obs.sizes[0])
}

func TestFilenameShape(t *testing.T) {
	name := Filename(time.UnixMilli(1700000000123))
	assert.Regexp(t, regexp.MustCompile(`^capture_1700000000123_[0-9a-f]{8}\.jpg$`), name)
	assert.NotEqual(t, name, Filename(time.UnixMilli(1700000000123)))
}
