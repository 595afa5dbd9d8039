package arcvfs

import "go.uber.org/zap"

// Option configures an Archive.
type Option func(*Archive)

// WithLogger sets the logger. By default nothing is logged.
func WithLogger(l *zap.Logger) Option {
	return func(a *Archive) {
		a.logger = l
	}
}

// WithTempDir sets the directory for spooled content and the temporary
// files returned by Files. The default is os.TempDir.
func WithTempDir(dir string) Option {
	return func(a *Archive) {
		a.tempDir = dir
	}
}

// WithProgress sets a callback that receives progress updates while the
// container is rewritten or members are extracted.
func WithProgress(fn ProgressFunc) Option {
	return func(a *Archive) {
		a.progress = fn
	}
}
