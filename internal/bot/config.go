package bot

import (
	"time"

	"github.com/zulandar/meetbot/internal/config"
)

// Selectors locate the Meet controls the bot interacts with.
type Selectors struct {
	Caption    string
	Leave      string
	Captions   string
	NameInput  string
	Error      string
	Ready      []string
	Camera     []string
	Microphone []string
}

// Config holds the timings and page heuristics for a session.
type Config struct {
	DisplayName         string
	CaptionInterval     time.Duration
	ExitCheckInterval   time.Duration
	PersistInterval     time.Duration
	HeartbeatInterval   time.Duration
	LeaveGrace          time.Duration
	UIWaitTimeout       time.Duration
	CaptionsWaitTimeout time.Duration
	JoinSettle          time.Duration
	DefaultDuration     time.Duration

	Selectors       Selectors
	Join            []JoinMatcher
	Detector        Detector
	RejectedPhrases []string
}

// DefaultConfig returns the timings and Meet heuristics used when nothing
// is configured.
func DefaultConfig() Config {
	return Config{
		DisplayName:         config.DefaultDisplayName,
		CaptionInterval:     2 * time.Second,
		ExitCheckInterval:   30 * time.Second,
		PersistInterval:     30 * time.Second,
		HeartbeatInterval:   60 * time.Second,
		LeaveGrace:          2 * time.Second,
		UIWaitTimeout:       30 * time.Second,
		CaptionsWaitTimeout: 10 * time.Second,
		JoinSettle:          5 * time.Second,
		DefaultDuration:     config.DefaultDurationMinutes * time.Minute,
		Selectors: Selectors{
			Caption:   ".VIpgJd-fmcmS",
			Leave:     `button[aria-label="Leave call"]`,
			Captions:  `button[aria-label="Turn on captions"]`,
			NameInput: `input[aria-label="Your name"]`,
			Error:     ".GvcuGe",
			Ready: []string{
				`button[aria-label="Join now"]`,
				`button[aria-label="Join"]`,
				"[data-is-muted]",
				".zWfAib",
				".crqnQb",
				".NzPR9b",
				".GvcuGe",
			},
			Camera:     []string{`[aria-label*="camera"]`, `[aria-label*="Camera"]`, "[data-is-muted]"},
			Microphone: []string{`[aria-label*="microphone"]`, `[aria-label*="Microphone"]`, `[data-is-muted="true"]`},
		},
		Join:            DefaultJoinMatchers(),
		Detector:        DefaultDetector(),
		RejectedPhrases: []string{"can't join", "cannot join", "not allowed"},
	}
}

// FromConfig overlays the file configuration on DefaultConfig. Empty lists
// keep the built-in heuristics.
func FromConfig(c *config.Config) Config {
	out := DefaultConfig()
	if c == nil {
		return out
	}

	b := c.Bot
	out.DisplayName = b.DisplayName
	out.CaptionInterval = b.CaptionInterval
	out.ExitCheckInterval = b.ExitCheckInterval
	out.PersistInterval = b.PersistInterval
	out.HeartbeatInterval = b.HeartbeatInterval
	out.LeaveGrace = b.LeaveGrace
	out.UIWaitTimeout = b.UIWaitTimeout
	out.CaptionsWaitTimeout = b.CaptionsWaitTimeout
	out.JoinSettle = b.JoinSettle
	out.DefaultDuration = time.Duration(b.DefaultDurationMinutes) * time.Minute

	d := c.Detection
	setString(&out.Selectors.Caption, d.CaptionSelector)
	setString(&out.Selectors.Leave, d.LeaveSelector)
	setString(&out.Selectors.Captions, d.CaptionsSelector)
	setString(&out.Selectors.NameInput, d.NameInputSelector)
	setString(&out.Selectors.Error, d.ErrorSelector)
	setList(&out.Selectors.Ready, d.ReadySelectors)
	setList(&out.Selectors.Camera, d.CameraSelectors)
	setList(&out.Selectors.Microphone, d.MicrophoneSelectors)
	setList(&out.Detector.AlonePhrases, d.AlonePhrases)
	setList(&out.Detector.EndedPhrases, d.EndedPhrases)
	setList(&out.Detector.ParticipantSelectors, d.ParticipantSelectors)
	setList(&out.RejectedPhrases, d.RejectedPhrases)
	if len(d.JoinSelectors) > 0 || len(d.JoinTexts) > 0 {
		out.Join = JoinMatchers(d.JoinSelectors, d.JoinTexts)
	}
	return out
}

// withDefaults fills zero timings so a partially built Config is usable.
func (c Config) withDefaults() Config {
	def := DefaultConfig()
	fill := func(d *time.Duration, v time.Duration) {
		if *d <= 0 {
			*d = v
		}
	}
	fill(&c.CaptionInterval, def.CaptionInterval)
	fill(&c.ExitCheckInterval, def.ExitCheckInterval)
	fill(&c.PersistInterval, def.PersistInterval)
	fill(&c.HeartbeatInterval, def.HeartbeatInterval)
	fill(&c.DefaultDuration, def.DefaultDuration)
	if c.LeaveGrace < 0 {
		c.LeaveGrace = 0
	}
	if c.DisplayName == "" {
		c.DisplayName = def.DisplayName
	}
	return c
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setList(dst *[]string, v []string) {
	if len(v) > 0 {
		*dst = v
	}
}
