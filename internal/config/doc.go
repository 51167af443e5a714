// Package config loads the two configuration files of the sandbox daemon.
//
// Settings is the operator-tunable JSON document (depth range, filter
// coefficients, calibration corners). It is sanitized on load so a damaged
// file never produces a broken mesh, and it can be hot reloaded with Watcher.
//
// DaemonConfig is the TOML deployment file: listen addresses, database path,
// depth source selection and worker counts. It is read once at startup.
package config
