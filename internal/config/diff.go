package config

import "reflect"

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are applied; everything else is
// reported in RestartRequired so callers can warn.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// VADChanged is true if any detection tuning or grace period changed.
	// New values apply to the next listening period.
	VADChanged bool

	// PipelineChanged is true if the system prompt, token limit, temperature,
	// language or voice changed.
	PipelineChanged bool

	// RestartRequired lists the top-level sections that changed but are only
	// read at startup.
	RestartRequired []string
}

// Changed reports whether d contains any difference at all.
func (d ConfigDiff) Changed() bool {
	return d.LogLevelChanged || d.VADChanged || d.PipelineChanged || len(d.RestartRequired) > 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	// Log level
	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.VAD != new.VAD {
		d.VADChanged = true
	}
	if hotPipeline(old.Pipeline) != hotPipeline(new.Pipeline) {
		d.PipelineChanged = true
	}

	oldServer, newServer := old.Server, new.Server
	oldServer.LogLevel, newServer.LogLevel = "", ""
	if !reflect.DeepEqual(oldServer, newServer) {
		d.RestartRequired = append(d.RestartRequired, "server")
	}
	if !reflect.DeepEqual(old.Providers, new.Providers) {
		d.RestartRequired = append(d.RestartRequired, "providers")
	}
	if old.Pipeline.ResponseTTL != new.Pipeline.ResponseTTL || old.Pipeline.MaxResponses != new.Pipeline.MaxResponses {
		d.RestartRequired = append(d.RestartRequired, "pipeline")
	}
	if old.Capture != new.Capture {
		d.RestartRequired = append(d.RestartRequired, "capture")
	}
	if old.Client != new.Client {
		d.RestartRequired = append(d.RestartRequired, "client")
	}
	if old.Telemetry != new.Telemetry {
		d.RestartRequired = append(d.RestartRequired, "telemetry")
	}

	return d
}

// hotPipeline strips the pipeline fields that are only read at startup.
func hotPipeline(p PipelineConfig) PipelineConfig {
	p.ResponseTTL = 0
	p.MaxResponses = 0
	return p
}
