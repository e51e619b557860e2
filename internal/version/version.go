package version

// Build metadata injected via ldflags.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Info returns the version, git commit and build date.
func Info() (string, string, string) {
	return Version, GitCommit, BuildDate
}
