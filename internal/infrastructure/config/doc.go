// Package config provides configuration loading for winmon.
//
// Configuration is loaded from a YAML file with hardcoded defaults and
// WINMON_* environment variable overrides. The device list is carried as
// raw "id|type|model|floor|room|position" strings and parsed by the
// device package at startup.
package config
