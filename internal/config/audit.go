// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package config

import (
	"gopkg.in/yaml.v3"
)

// auditableSettings is the subset of Config worth recording in a startup
// audit trail: the knobs that change observable behavior (rate limits,
// feature toggles, resource caps), not secrets or file-system paths.
// Grounded on xg2g/internal/config/manager.go's Save, which likewise
// projects the live config onto a serializable snapshot before persisting.
type auditableSettings struct {
	ScrobbleEnabled    bool `yaml:"scrobble_enabled"`
	RedisEnabled       bool `yaml:"redis_enabled"`
	SimilarityMaxLimit int  `yaml:"similarity_max_limit"`
	QueueMaxSize       int  `yaml:"queue_max_size"`
	ChatRateMaxPerWin  int  `yaml:"chat_rate_max_per_window"`
	ChatToolIterations int  `yaml:"chat_tool_iterations"`
	TranscodePermits   int  `yaml:"transcode_permits"`
	AuthEnforced       bool `yaml:"auth_enforced"`
}

func (c Config) auditableSettings() auditableSettings {
	return auditableSettings{
		ScrobbleEnabled:    c.ScrobbleEnabled,
		RedisEnabled:       c.RedisEnabled,
		SimilarityMaxLimit: c.SimilarityMaxLimit,
		QueueMaxSize:       c.QueueMaxSize,
		ChatRateMaxPerWin:  c.ChatRateMaxPerWin,
		ChatToolIterations: c.ChatToolIterations,
		TranscodePermits:   c.TranscodePermits,
		AuthEnforced:       c.AuthSigningKey != "",
	}
}

// Snapshot renders the audit-worthy subset of c as YAML, for logging at
// startup and diffing against a prior run's snapshot.
func (c Config) Snapshot() (string, error) {
	buf, err := yaml.Marshal(c.auditableSettings())
	if err != nil {
		return "", err
	}
	return string(buf), nil
}

// SnapshotChanged reports whether c's audit-worthy settings differ from a
// previously recorded snapshot (as returned by Snapshot).
func (c Config) SnapshotChanged(previous string) (bool, error) {
	current, err := c.Snapshot()
	if err != nil {
		return false, err
	}
	return current != previous, nil
}
