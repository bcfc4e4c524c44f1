package testsupport

import (
	"path/filepath"
	"testing"

	"drowsy/internal/camera"
	"drowsy/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It uses the virtual camera, an ephemeral API port and a fast poll interval,
// then applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.APIBind = "127.0.0.1:0"
	cfgVal.Paths.APIToken = ""
	cfgVal.Camera.Device = camera.VirtualDevice
	cfgVal.Camera.WatchUdev = false
	cfgVal.Polling.IntervalMS = 10
	cfgVal.Service.RequestTimeoutMS = 2000
	cfgVal.Service.StopTimeoutMS = 500
	cfgVal.Notifications.NtfyTopic = ""

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	if err := builder.cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return builder.cfg
}

// WithServiceURL points the detection client at baseURL.
func WithServiceURL(baseURL string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Service.BaseURL = baseURL
	}
}

// WithCameraDevice overrides the camera device path.
func WithCameraDevice(path string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Camera.Device = path
	}
}

// WithAPIToken requires a bearer token on the presentation API.
func WithAPIToken(token string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Paths.APIToken = token
	}
}

// WithoutAPI disables the HTTP presentation API.
func WithoutAPI() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Paths.APIBind = ""
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.StateDir)
}
