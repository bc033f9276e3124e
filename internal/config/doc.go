// Package config loads livecontext settings and the classifier rule table.
//
// Settings come from, in increasing priority: built-in defaults, a YAML file
// (.livecontext.yaml), and LIVECONTEXT_* environment variables. LoadDotEnv
// populates the environment from .env files first.
//
// The rule table is YAML as well. Its vocabulary section restricts which
// domain and pattern tags rules may emit; violations fail at load time.
package config
