package buildinfo

// Version holds the application's version string.
// Set at link time: go build -ldflags="-X github.com/paulschiretz/holland/pkg/buildinfo.Version=1.2.0"
var Version = "dev"

// Name is the canonical name of the application used for logging and usage output.
var Name = "Holland"

// APIVersion is the plugin api version this build of the core speaks.
// Plugins declaring a different major version are still loaded but logged.
const APIVersion = 1
