package main

import "time"

// Flag structs decouple cobra from the handlers for testing.

// GlobalFlags holds the persistent flags shared by every command.
type GlobalFlags struct {
	ConfigPath string
}

// ApplyFlags carries the raw plan input exactly as typed; the validator
// owns parsing and bounds.
type ApplyFlags struct {
	Cores   string
	CPULoad string
	Memory  string
}

type StatusFlags struct {
	APIUrl     string
	APITimeout time.Duration
}

type WatchdogFlags struct {
	Interval time.Duration
	Listen   string
}
