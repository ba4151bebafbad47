// Package registry holds the static set of backend services the hub fronts.
//
// Descriptors are loaded once at process start, either from a YAML/JSON
// configuration file (see LoadConfig) or from the compiled-in DefaultConfig,
// validated by New, and never mutated afterwards. Everything that changes at
// runtime (liveness, discovered tools) lives in the discovery package and is
// joined back to a descriptor by its ID.
package registry
