package main

import "time"

// GlobalFlags holds persistent flags shared by all commands.
type GlobalFlags struct {
	ConfigPath string
	LogLevel   string
	NoColor    bool
}

// APIFlags holds flags for commands that talk to a running instance.
type APIFlags struct {
	URL     string
	Timeout time.Duration
}

const defaultAPIURL = "http://127.0.0.1:8420/api"
