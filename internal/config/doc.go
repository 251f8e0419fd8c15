// Package config handles configuration loading for the ember CLI.
//
// # Overview
//
// The main configuration is loaded from a YAML file with environment
// variable expansion and duration-string parsing. Named gateway profiles
// are loaded separately from a TOML file, so one install can switch between
// gateways without editing the main config.
package config
