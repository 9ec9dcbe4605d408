// Package capture takes one still from the camera, uploads it over HTTP, and
// announces the upload on the broker.
package capture

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"floraseven/drivers/camera"
	"floraseven/errcode"
	"floraseven/types"
)

const contentType = "image/jpeg"

// Camera lends frame buffers. *camera.Pool satisfies it.
type Camera interface {
	Acquire() *camera.FrameBuffer
	Release(fb *camera.FrameBuffer)
}

// Publisher sends a payload to the broker.
type Publisher interface {
	Publish(topic string, payload []byte) error
}

// Observer is told the outcome of every capture. May be nil.
type Observer interface {
	Captured(err error, size int)
}

type Config struct {
	UploadURL   string
	StatusTopic string
	Timeout     time.Duration // per upload; default 10s
}

type Pipeline struct {
	cfg    Config
	cam    Camera
	pub    Publisher
	client *http.Client
	obs    Observer
	log    *zap.Logger

	// Name synthesises the reported filename.
	Name func(now time.Time) string
}

func New(cfg Config, cam Camera, pub Publisher, obs Observer, log *zap.Logger) *Pipeline {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Pipeline{
		cfg:    cfg,
		cam:    cam,
		pub:    pub,
		client: &http.Client{Timeout: cfg.Timeout},
		obs:    obs,
		log:    log.Named("capture"),
		Name:   Filename,
	}
}

// Filename returns "capture_<unix-ms>_<8 hex>.jpg".
func Filename(now time.Time) string {
	id := uuid.New().String()
	return "capture_" + strconv.FormatInt(now.UnixMilli(), 10) + "_" + id[:8] + ".jpg"
}

// CaptureAndUpload runs the pipeline once. Once a buffer has been acquired it
// is released exactly once on every path.
func (p *Pipeline) CaptureAndUpload(ctx context.Context) (err error) {
	size := 0
	defer func() {
		if p.obs != nil {
			p.obs.Captured(err, size)
		}
	}()

	fb := p.cam.Acquire()
	if fb == nil {
		return &errcode.E{C: errcode.BufferUnavailable, Op: "capture.acquire"}
	}
	defer p.cam.Release(fb)

	if fb.Format != camera.FormatJPEG {
		return &errcode.E{C: errcode.UnsupportedFormat, Op: "capture.format", Msg: fb.Format.String()}
	}
	size = fb.Len()

	if err := p.upload(ctx, fb.Data); err != nil {
		return err
	}

	meta := types.ImageStatus{
		Status:       types.ImageUploaded,
		Filename:     p.Name(time.Now()),
		Resolution:   fb.Resolution(),
		SizeBytes:    size,
		UploadMethod: types.UploadHTTPPost,
	}
	p.log.Info("image uploaded", zap.String("filename", meta.Filename), zap.String("resolution", meta.Resolution), zap.Int("bytes", size))

	b, jerr := json.Marshal(meta)
	if jerr == nil {
		jerr = p.pub.Publish(p.cfg.StatusTopic, b)
	}
	if jerr != nil {
		p.log.Warn("image status publish failed", zap.Error(jerr))
	}
	return nil
}

func (p *Pipeline) upload(ctx context.Context, data []byte) error {
	const op = "capture.upload"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.UploadURL, bytes.NewReader(data))
	if err != nil {
		return errcode.Wrap(errcode.UploadFailed, op, err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := p.client.Do(req)
	if err != nil {
		return errcode.Wrap(errcode.UploadFailed, op, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &errcode.E{C: errcode.UploadFailed, Op: op, Msg: "status " + strconv.Itoa(resp.StatusCode)}
	}
	return nil
}
