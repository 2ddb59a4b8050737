// Package config resolves, parses, validates, and defaults colloquy configuration.
package config

// Config is the fully materialized runtime configuration used by colloquy.
type Config struct {
	API       APIConfig
	Chat      ChatConfig
	Audio     AudioConfig
	Listen    ListenConfig
	Speak     SpeakConfig
	Indicator IndicatorConfig
	Log       LogConfig
	Debug     DebugConfig
}

// APIConfig locates the answering service and bounds its calls.
type APIConfig struct {
	BaseURL       string
	Dataset       string
	InitTimeoutMS int
	AskTimeoutMS  int
	SOCKSProxy    string
}

// ChatConfig controls transcript presentation.
type ChatConfig struct {
	Welcome        string
	UserLabel      string
	AssistantLabel string
	Examples       []string
}

// AudioConfig controls preferred and fallback input-source selection.
type AudioConfig struct {
	Input    string
	Fallback string
}

// ListenConfig controls the streaming speech recognizer.
type ListenConfig struct {
	Enable              bool
	URL                 string
	Model               string
	Language            string
	APIKeyEnv           string
	SmartFormat         bool
	EndpointingMS       int
	NoSpeechTimeoutMS   int
	MaxUtteranceMS      int
	CapitalizeSentences bool
	QuestionMark        bool
}

// SpeakConfig controls answer vocalization.
type SpeakConfig struct {
	Enable          bool
	Backend         string
	Command         CommandConfig
	VoicesCommand   CommandConfig
	Locale          string
	PreferredVoices []string
	Rate            float64
	Pitch           float64
	Volume          float64
	OpenAIModel     string
	OpenAIVoice     string
	OpenAIAPIKeyEnv string
	OpenAIBaseURL   string
}

// IndicatorConfig controls desktop notification and audio cue behavior.
type IndicatorConfig struct {
	Enable         bool
	Backend        string
	DesktopAppName string
	SoundEnable    bool
	SoundStartFile string
	SoundStopFile  string
	SoundErrorFile string
	TextListening  string
	TextError      string
	ErrorTimeoutMS int
}

// LogConfig controls the runtime log sinks.
type LogConfig struct {
	Level   string
	Console bool
}

// CommandConfig stores a raw command string and its parsed argv form.
type CommandConfig struct {
	Raw  string
	Argv []string
}

// DebugConfig controls optional debug artifact output.
type DebugConfig struct {
	EnableAudioDump  bool
	EnableStreamDump bool
}

// Warning is a non-fatal parse/validation message.
type Warning struct {
	Line    int
	Message string
}
