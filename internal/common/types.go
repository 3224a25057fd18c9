package common

// Result is satisfied by any pond worker-pool result that names its own
// destination path; DownloadResult and DeCompressResult both implement it
// so Downloader/DeCompressor can share one result-pool type parameter.
type Result interface {
	Destination() string
}

const (
	MainComponent  = "main"
	DebugComponent = "debug"
)

// PackageOptions controls which package types to include.
type PackageOptions struct {
	// Primary if set indicates the primary package to use for distribution sorting
	Primary string `yaml:"primary,omitempty"`
	// Debug indicates whether to include debug packages
	Debug bool `yaml:"debug"`
	// Source indicates whether to include source packages
	Source bool `yaml:"source"`
}
