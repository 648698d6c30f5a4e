package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	BackendGoogle   = "google"
	BackendDeepgram = "deepgram"
	BackendWhisper  = "whisper"
)

type Config struct {
	Addr            string
	ReportsDir      string
	ShutdownTimeout time.Duration
	WriteTimeout    time.Duration
	QueueWarnFrames int

	LogLevel  string
	LogFormat string

	Backend        string
	Language       string
	SampleRate     int
	Punctuate      bool
	InterimResults bool

	GoogleCredentialsFile string

	DeepgramAPIKey string
	DeepgramHost   string
	DeepgramModel  string

	WhisperModelPath         string
	WhisperThreads           int
	WhisperWorkWindowSamples int
	WhisperContextSamples    int
}

// SetDefaults registers defaults and environment bindings on v. Keys are
// readable as SCRIBE_<KEY>; a few older variable names are kept as aliases.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("addr", ":8080")
	v.SetDefault("reports_dir", "reports")
	v.SetDefault("shutdown_timeout", 30*time.Second)
	v.SetDefault("write_timeout", 10*time.Second)
	v.SetDefault("queue_warn_frames", 500)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")
	v.SetDefault("backend", BackendGoogle)
	v.SetDefault("language", "en-US")
	v.SetDefault("sample_rate", 16000)
	v.SetDefault("punctuate", true)
	v.SetDefault("interim_results", true)
	v.SetDefault("deepgram_host", "")
	v.SetDefault("deepgram_model", "nova-2")
	v.SetDefault("whisper_model_path", "./models/ggml-base.en.bin")
	v.SetDefault("whisper_threads", 0)
	v.SetDefault("whisper_work_window_samples", 8000)
	v.SetDefault("whisper_context_samples", 960000)

	v.SetEnvPrefix("scribe")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	_ = v.BindEnv("addr", "SCRIBE_ADDR", "WHISPER_GO_ADDR")
	_ = v.BindEnv("log_level", "SCRIBE_LOG_LEVEL", "LOG_LEVEL")
	_ = v.BindEnv("whisper_model_path", "SCRIBE_WHISPER_MODEL_PATH", "WHISPER_MODEL_PATH")
	_ = v.BindEnv("whisper_threads", "SCRIBE_WHISPER_THREADS", "WHISPER_THREADS")
	_ = v.BindEnv("deepgram_api_key", "SCRIBE_DEEPGRAM_API_KEY", "DEEPGRAM_API_KEY")
	_ = v.BindEnv("google_credentials_file", "SCRIBE_GOOGLE_CREDENTIALS_FILE", "GOOGLE_APPLICATION_CREDENTIALS")
}

// Load reads the effective configuration out of v and validates it.
func Load(v *viper.Viper) (Config, error) {
	cfg := Config{
		Addr:            v.GetString("addr"),
		ReportsDir:      v.GetString("reports_dir"),
		ShutdownTimeout: v.GetDuration("shutdown_timeout"),
		WriteTimeout:    v.GetDuration("write_timeout"),
		QueueWarnFrames: v.GetInt("queue_warn_frames"),

		LogLevel:  v.GetString("log_level"),
		LogFormat: v.GetString("log_format"),

		Backend:        strings.ToLower(strings.TrimSpace(v.GetString("backend"))),
		Language:       v.GetString("language"),
		SampleRate:     v.GetInt("sample_rate"),
		Punctuate:      v.GetBool("punctuate"),
		InterimResults: v.GetBool("interim_results"),

		GoogleCredentialsFile: v.GetString("google_credentials_file"),

		DeepgramAPIKey: v.GetString("deepgram_api_key"),
		DeepgramHost:   v.GetString("deepgram_host"),
		DeepgramModel:  v.GetString("deepgram_model"),

		WhisperModelPath:         v.GetString("whisper_model_path"),
		WhisperThreads:           v.GetInt("whisper_threads"),
		WhisperWorkWindowSamples: v.GetInt("whisper_work_window_samples"),
		WhisperContextSamples:    v.GetInt("whisper_context_samples"),
	}

	switch cfg.Backend {
	case BackendGoogle, BackendWhisper:
	case BackendDeepgram:
		if cfg.DeepgramAPIKey == "" {
			return cfg, fmt.Errorf("backend %q requires deepgram_api_key", cfg.Backend)
		}
	default:
		return cfg, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
	if cfg.SampleRate <= 0 {
		return cfg, fmt.Errorf("invalid sample_rate %d", cfg.SampleRate)
	}
	if cfg.ReportsDir == "" {
		return cfg, fmt.Errorf("reports_dir must not be empty")
	}
	return cfg, nil
}
