// Package config provides configuration management for headscrape.
package config
