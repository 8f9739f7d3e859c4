// Package build provides build information that is linked into the application.
// Other modules can use this information to report the build, version and compilation time.
package build

var (
	// ProjectName is used as the metrics namespace and the default service name.
	ProjectName = "xray"

	// Version is the build version, set with -ldflags at release time.
	Version = "dev"

	// Commit is the git commit the binary was built from.
	Commit = "none"

	// Date is the build date.
	Date = "unknown"
)

// MinimumSupportedDatastoreSchemaRevision is the lowest migration revision
// a persistent model store must be at before it reports ready.
const MinimumSupportedDatastoreSchemaRevision = 1
