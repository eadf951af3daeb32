package main

// Version is the stratum binary version, overridable at build time via
// -ldflags "-X main.Version=...".
var Version = "0.1.0"
