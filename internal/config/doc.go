// Package config provides the run configuration of madrecon: defaults,
// validation, the optional .madrecon YAML file and XDG directory locations.
package config
