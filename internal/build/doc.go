// Package build runs the step daemon toolchain inside the checkout and installs the
// produced artifact at a stable path.
//
// Toolchain output is streamed into slog line by line while the build runs. A nonzero
// exit runs the configured clean command and yields BuildFailed; it is never retried.
package build
