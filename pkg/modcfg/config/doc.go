/*
Package config reads the host's own settings: where mod configuration lives
and how it is stored.

# Overview

A settings file is decoded into a Config, a thin wrapper over
map[string]any with typed accessors that fall back to a default on a
missing key or an unusable value. SettingsFrom turns the "store" table of
that document into Settings, and Settings.Open builds the persistence
backend.

# File Formats

FromFile picks the decoder by extension:

	.yaml, .yml   gopkg.in/yaml.v3
	.json         encoding/json, comments and trailing commas allowed
	.toml         github.com/pelletier/go-toml/v2

For example, in TOML:

	[store]
	backend = "sqlite"
	db = "/var/lib/game/settings.db"
	log_level = "debug"

# Lookups

Dotted keys reach into nested tables:

	cfg.String("store.dir", "config")
	cfg.Section("store").Bool("watch", false)

Durations accept Go duration strings ("250ms") or a bare number of
milliseconds.
*/
package config
