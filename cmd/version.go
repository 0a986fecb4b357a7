package cmd

// Version is the application version, set at build time:
// go build -ldflags "-X github.com/aludratest/aludra/cmd.Version=1.0.0"
var Version = "dev"
