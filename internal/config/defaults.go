package config

import "time"

// Default values applied by [Config.ApplyDefaults].
const (
	DefaultListenAddr      = ":8000"
	DefaultReadLimitBytes  = 1 << 20
	DefaultMaxUploadBytes  = 32 << 20
	DefaultShutdownTimeout = 10 * time.Second

	DefaultSampleRate         = 16000
	DefaultVerifyThreshold    = 0.70
	DefaultLanguage           = "en"
	DefaultLowEnergyPadFrames = 6

	DefaultGracePeriodFrames = 20
	DefaultMinUtteranceSec   = 0.5

	DefaultSpeechRMSThreshold = 0.006
	DefaultMaxSilenceFrames   = 18
	DefaultMinRegisteredSec   = 0.5
	DefaultMinGuestSec        = 1.0
	DefaultGuestRMSFloor      = 0.008

	DefaultStruggleThreshold = 3
	DefaultCoachCooldown     = 8 * time.Second

	DefaultHistoryMessages = 6

	DefaultMaxItems          = 200
	DefaultRetrieveK         = 5
	DefaultMaxInjectionChars = 600
	DefaultMaxItemChars      = 500
	DefaultEvictBatch        = 10
	DefaultEmbeddingDims     = 768

	DefaultProfilePath = "data/speaker_profile.pv"

	DefaultConcurrency = 4
)

// ApplyDefaults fills every unset field with its default. Prompts and coach
// markers stay empty; the components that consume them fall back to their
// own built-in text.
func (c *Config) ApplyDefaults() {
	s := &c.Server
	if s.ListenAddr == "" {
		s.ListenAddr = DefaultListenAddr
	}
	if s.LogLevel == "" {
		s.LogLevel = LogInfo
	}
	if len(s.AllowedOrigins) == 0 {
		s.AllowedOrigins = []string{"*"}
	}
	setDefault(&s.ReadLimitBytes, DefaultReadLimitBytes)
	setDefault(&s.MaxUploadBytes, DefaultMaxUploadBytes)
	setDefault(&s.ShutdownTimeout, DefaultShutdownTimeout)

	setDefault(&c.Audio.SampleRate, DefaultSampleRate)
	setDefault(&c.Verification.Threshold, DefaultVerifyThreshold)
	setDefault(&c.Transcription.Language, DefaultLanguage)
	setDefault(&c.Transcription.LowEnergyPadFrames, DefaultLowEnergyPadFrames)

	setDefault(&c.Talk.GracePeriodFrames, DefaultGracePeriodFrames)
	setDefault(&c.Talk.MinUtteranceSec, DefaultMinUtteranceSec)

	cv := &c.Conversation
	setDefault(&cv.SpeechRMSThreshold, DefaultSpeechRMSThreshold)
	setDefault(&cv.MaxSilenceFrames, DefaultMaxSilenceFrames)
	setDefault(&cv.MinRegisteredSec, DefaultMinRegisteredSec)
	setDefault(&cv.MinGuestSec, DefaultMinGuestSec)
	setDefault(&cv.GuestRMSFloor, DefaultGuestRMSFloor)

	setDefault(&c.Coach.StruggleThreshold, DefaultStruggleThreshold)
	setDefault(&c.Coach.Cooldown, DefaultCoachCooldown)

	setDefault(&c.Dialogue.HistoryMessages, DefaultHistoryMessages)

	m := &c.Memory
	if m.Backend == "" {
		m.Backend = MemoryNone
	}
	setDefault(&m.EmbeddingDimensions, DefaultEmbeddingDims)
	setDefault(&m.MaxItems, DefaultMaxItems)
	setDefault(&m.RetrieveK, DefaultRetrieveK)
	setDefault(&m.MaxInjectionChars, DefaultMaxInjectionChars)
	setDefault(&m.MaxItemChars, DefaultMaxItemChars)
	setDefault(&m.EvictBatch, DefaultEvictBatch)

	if c.Profile.Backend == "" {
		c.Profile.Backend = ProfileFile
	}
	setDefault(&c.Profile.Path, DefaultProfilePath)

	setDefault(&c.Workers.Concurrency, DefaultConcurrency)
}

func setDefault[T comparable](field *T, def T) {
	var zero T
	if *field == zero {
		*field = def
	}
}
