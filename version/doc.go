// Package version exposes the build identity of the rowquery binary.
//
// Version, git commit, branch, and build time are set at compile time
// via -ldflags and fall back to the module's embedded VCS settings:
//
//	go build -ldflags "-X github.com/kbukum/rowquery/version.Version=1.0.0" ./cmd/rowquery
package version
