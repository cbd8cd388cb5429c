// Package config defines the configuration for a murmur node.
//
// The node needs no configuration to speak the protocol: every value has a
// default, and the command line only tunes logging, queue sizes, RPC timing
// and the optional HTTP service. Values come from, in increasing priority,
// the defaults, an optional config file in Config.DataDir, and flags:
//
//  murmur.toml // (optional, also .yaml or .json) overrides of the defaults.
package config
