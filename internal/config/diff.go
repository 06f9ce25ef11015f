package config

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// LiveChanged is true if the voice, instructions, model or transcription
	// setting changed. The new values apply from the next session on.
	LiveChanged bool

	// SessionTimingsChanged is true if any session timing changed.
	SessionTimingsChanged bool

	// RestartRequired lists settings that changed but only take effect after
	// a restart (audio devices, ops listener, database).
	RestartRequired []string
}

// Changed reports whether any tracked setting differs.
func (d ConfigDiff) Changed() bool {
	return d.LogLevelChanged || d.LiveChanged || d.SessionTimingsChanged || len(d.RestartRequired) > 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	ol, nl := old.Live, new.Live
	if ol.Voice != nl.Voice || ol.Instructions != nl.Instructions ||
		ol.Model != nl.Model || ol.DisableTranscription != nl.DisableTranscription {
		d.LiveChanged = true
	}
	if ol.Provider != nl.Provider || ol.APIKey != nl.APIKey || ol.BaseURL != nl.BaseURL {
		d.RestartRequired = append(d.RestartRequired, "live")
	}

	if old.Session != new.Session {
		d.SessionTimingsChanged = true
	}

	if old.Server.ListenAddr != new.Server.ListenAddr {
		d.RestartRequired = append(d.RestartRequired, "server.listen_addr")
	}
	if old.Server.TraceExporter != new.Server.TraceExporter {
		d.RestartRequired = append(d.RestartRequired, "server.trace_exporter")
	}
	if old.Audio != new.Audio {
		d.RestartRequired = append(d.RestartRequired, "audio")
	}
	if old.Visualizer != new.Visualizer {
		d.RestartRequired = append(d.RestartRequired, "visualizer")
	}
	if old.Memory != new.Memory {
		d.RestartRequired = append(d.RestartRequired, "memory")
	}

	return d
}
