package config

const (
	defaultStateDir                 = "~/.local/share/drowsy"
	defaultLogDir                   = "~/.local/share/drowsy/logs"
	defaultAPIBind                  = "127.0.0.1:7488"
	defaultServiceBaseURL           = "http://localhost:5000/api"
	defaultRequestTimeoutMS         = 5000
	defaultStopTimeoutMS            = 3000
	defaultCameraDevice             = "/dev/video0"
	defaultPollIntervalMS           = 1000
	defaultIdleScore                = 87
	defaultNotifyRequestTimeout     = 10
	defaultNotifyDedupWindowSeconds = 60
	defaultLogFormat                = "console"
	defaultLogLevel                 = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StateDir: defaultStateDir,
			LogDir:   defaultLogDir,
			APIBind:  defaultAPIBind,
		},
		Service: Service{
			BaseURL:          defaultServiceBaseURL,
			RequestTimeoutMS: defaultRequestTimeoutMS,
			StopTimeoutMS:    defaultStopTimeoutMS,
		},
		Camera: Camera{
			Device:    defaultCameraDevice,
			WatchUdev: true,
		},
		Polling: Polling{
			IntervalMS: defaultPollIntervalMS,
		},
		Session: Session{
			IdleScore: defaultIdleScore,
		},
		Notifications: Notifications{
			RequestTimeout:     defaultNotifyRequestTimeout,
			Alert:              true,
			DedupWindowSeconds: defaultNotifyDedupWindowSeconds,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
