package config

const (
	defaultDataDir              = "~/.local/share/shortsfactory"
	defaultLogDir               = "~/.local/share/shortsfactory/logs"
	defaultInboxDir             = "~/shortsfactory/inbox"
	defaultStorageDir           = "~/.local/share/shortsfactory/storage"
	defaultAPIBind              = "127.0.0.1:7490"
	defaultLogRetentionDays     = 30
	defaultLogFormat            = "console"
	defaultLogLevel             = "info"
	defaultPollInterval         = 5
	defaultBatchLimit           = 1
	defaultMaxRetries           = 3
	defaultClaimTimeout         = 1800
	defaultErrorRetryInterval   = 10
	defaultPublishMaxPerDay     = 5
	defaultPublishMinDelay      = 60
	defaultPublishMaxDelay      = 180
	defaultPublishBackend       = "stub"
	defaultPrivacyStatus        = "private"
	defaultCategoryID           = "22"
	defaultVideoWidth           = 1080
	defaultVideoHeight          = 1920
	defaultVideoFPS             = 30
	defaultMinDuration          = 15
	defaultMaxDuration          = 60
	defaultVideoCodec           = "libx264"
	defaultAudioCodec           = "aac"
	defaultFFmpegBinary         = "ffmpeg"
	defaultFFprobeBinary        = "ffprobe"
	defaultIngestSettleSeconds  = 1
	defaultNotifyRequestTimeout = 10
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:    defaultDataDir,
			LogDir:     defaultLogDir,
			InboxDir:   defaultInboxDir,
			StorageDir: defaultStorageDir,
			APIBind:    defaultAPIBind,
		},
		Workflow: Workflow{
			PollInterval:       defaultPollInterval,
			BatchLimit:         defaultBatchLimit,
			MaxRetries:         defaultMaxRetries,
			ClaimTimeout:       defaultClaimTimeout,
			ErrorRetryInterval: defaultErrorRetryInterval,
		},
		Publish: Publish{
			Enabled:         false,
			MaxPerDay:       defaultPublishMaxPerDay,
			MinDelayMinutes: defaultPublishMinDelay,
			MaxDelayMinutes: defaultPublishMaxDelay,
			Backend:         defaultPublishBackend,
			PrivacyStatus:   defaultPrivacyStatus,
			CategoryID:      defaultCategoryID,
			S3: S3{
				UseSSL: true,
				Prefix: "shorts",
			},
		},
		Video: Video{
			Width:         defaultVideoWidth,
			Height:        defaultVideoHeight,
			FPS:           defaultVideoFPS,
			MinDuration:   defaultMinDuration,
			MaxDuration:   defaultMaxDuration,
			VideoCodec:    defaultVideoCodec,
			AudioCodec:    defaultAudioCodec,
			FFmpegBinary:  defaultFFmpegBinary,
			FFprobeBinary: defaultFFprobeBinary,
		},
		Ingest: Ingest{
			Enabled:       true,
			SettleSeconds: defaultIngestSettleSeconds,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
			Review:         true,
			Published:      true,
			Errors:         true,
		},
		Metrics: Metrics{
			Enabled: true,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
