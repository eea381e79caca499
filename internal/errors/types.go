package errors

// Exit codes returned by the CLI for each error kind.
const (
	ExitCodeSuccess             = 0
	ExitCodeGenericError        = 1
	ExitCodeNotFound            = 2
	ExitCodeUnsupportedPlatform = 3
	ExitCodeNetworkError        = 4
	ExitCodeHashMismatch        = 5
	ExitCodeInstallError        = 6
	ExitCodeLaunchError         = 7
	ExitCodeConfigError         = 8
	ExitCodeTimeout             = 124
)

// ExitCode maps err to a process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitCodeSuccess
	}
	switch GetKind(err) {
	case KindNotFound:
		return ExitCodeNotFound
	case KindUnsupportedPlatform:
		return ExitCodeUnsupportedPlatform
	case KindNetwork:
		return ExitCodeNetworkError
	case KindHashMismatch:
		return ExitCodeHashMismatch
	case KindExtraction, KindFilesystem:
		return ExitCodeInstallError
	case KindLaunch, KindAlreadyRunning, KindNotRunning:
		return ExitCodeLaunchError
	case KindConfig:
		return ExitCodeConfigError
	default:
		return ExitCodeGenericError
	}
}
