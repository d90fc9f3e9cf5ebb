// Package module contains the module lifecycle core. It parses module
// manifests into descriptors, maps languages to interpreters, and runs the
// load/start/stop/unload state machine while enforcing hard and soft
// dependency constraints between loaded modules.
package module
