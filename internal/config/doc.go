// Package config loads and queries machine topologies. A topology comes from
// a TOML file, a sysfs probe, or a CBOR snapshot of either.
package config
