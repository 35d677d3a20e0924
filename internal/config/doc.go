// Package config loads, normalizes, and validates the FlowOps TOML
// configuration.
//
// Values are layered: repository defaults, then the config file, then a small
// set of environment fallbacks for secrets (FLOWOPS_API_TOKEN,
// FLOWOPS_DIRECTORY_TOKEN, FLOWOPS_NTFY_TOPIC). Paths support ~ expansion.
package config
