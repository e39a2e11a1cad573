// internal/core/domain/errors.go
package domain

import "errors"

// Step failure taxonomy. Each sentinel corresponds to the pipeline step
// that failed; the runner wraps the underlying cause.
var (
	ErrEnvironmentSetup  = errors.New("environment setup failed")
	ErrDependencyInstall = errors.New("dependency install failed")
	ErrBuild             = errors.New("build failed")
	ErrDeploy            = errors.New("deploy failed")
)

// Artifact errors.
var (
	ErrArtifactMissing    = errors.New("build artifact missing")
	ErrArtifactEmpty      = errors.New("build artifact is empty")
	ErrArtifactUnreadable = errors.New("build artifact unreadable")
)

// Run errors.
var (
	ErrInvalidTransition = errors.New("invalid run state transition")
	ErrRunLocked         = errors.New("pipeline run already in progress")
	ErrRunCanceled       = errors.New("run was canceled")
)

// Configuration errors.
var (
	ErrInvalidConfig = errors.New("invalid configuration")
	ErrMissingConfig = errors.New("missing required configuration")
)

// Secret errors.
var (
	ErrSecretMissing = errors.New("secret not available")
)
