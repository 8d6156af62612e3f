package customerrs

import (
	"errors"
)

var (
	ErrUnsupportedPlatform  = errors.New("unsupported platform")
	ErrUnknownInternalError = errors.New("unknown internal error")

	// input validation, scan is aborted before any stage runs
	ErrInputFileNotFound = errors.New("input file not found")
	ErrInputNotRegular   = errors.New("input is not a regular file")
	ErrInvalidInput      = errors.New("invalid input")

	ErrURLMalformed     = errors.New("url is malformed")
	ErrURLSchemeBlocked = errors.New("url scheme must be http or https")
	ErrURLTargetBlocked = errors.New("url target resolves to a blocked address range")

	// capability degradation, logged once, surfaced as a flag, never fatal
	ErrSignatureEngineUnavailable = errors.New("signature engine unavailable, fallback pattern matching in effect")
	ErrSandboxUnavailable         = errors.New("sandbox isolation unavailable on this platform, static analysis only")
	ErrNetworkIsolationMissing    = errors.New("network isolation primitive unavailable, refusing to sandbox")

	ErrYaraCompilationFailure = errors.New("yara rule compilation failed")
	ErrRuleBundleCorrupted    = errors.New("rule bundle decryption failed, integrity check failed")

	ErrSandboxAlreadyUsed   = errors.New("sandbox executor is single-use, create a new one per run")
	ErrWorkspaceNotPrepared = errors.New("sandbox workspace has not been prepared")

	ErrExternalAVUnavailable = errors.New("external antivirus engine not configured or not found")
)
