package config

import "reflect"

// Changes describes what differs between two loaded configs, split into
// what a running service can apply in place and what needs a restart.
//
// Only the log level is hot-applied today (the handler writes through a
// [log/slog.LevelVar]). Everything else feeds components that were built at
// startup, so the watcher callback reports those sections and the operator
// decides when to bounce the service.
type Changes struct {
	// LogLevel is true when log.level changed; NewLogLevel carries the
	// value to apply.
	LogLevel    bool
	NewLogLevel LogLevel

	// RestartRequired lists the changed sections that cannot be applied
	// to a running service, in schema order. Empty when nothing else
	// changed.
	RestartRequired []string
}

// Any reports whether the diff contains any change at all.
func (c Changes) Any() bool {
	return c.LogLevel || len(c.RestartRequired) > 0
}

// Diff compares two configs and returns what changed between them.
func Diff(old, new *Config) Changes {
	var c Changes

	if old.Log.Level != new.Log.Level {
		c.LogLevel = true
		c.NewLogLevel = new.Log.Level
	}
	if old.Log.Format != new.Log.Format {
		c.RestartRequired = append(c.RestartRequired, "log.format")
	}

	sections := []struct {
		name     string
		old, new any
	}{
		{"audio", old.Audio, new.Audio},
		{"source", old.Source, new.Source},
		{"pipeline", old.Pipeline, new.Pipeline},
		{"engines", old.Engines, new.Engines},
		{"speaker", old.Speaker, new.Speaker},
		{"vocabulary", old.Vocabulary, new.Vocabulary},
		{"redaction", old.Redaction, new.Redaction},
		{"punctuation", old.Punctuation, new.Punctuation},
		{"denoise", old.Denoise, new.Denoise},
		{"sinks", old.Sinks, new.Sinks},
		{"journal", old.Journal, new.Journal},
		{"health", old.Health, new.Health},
	}
	for _, s := range sections {
		if !reflect.DeepEqual(s.old, s.new) {
			c.RestartRequired = append(c.RestartRequired, s.name)
		}
	}

	return c
}
