package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/boltpack/boltpack/internal/app"
	"github.com/boltpack/boltpack/internal/config"
	"github.com/boltpack/boltpack/internal/pack"
	"github.com/spf13/cobra"
)

var (
	packBuildFor   string
	packArch       string
	packRelease    string
	packIgnoreDeps bool
	packEnable     []string
	packDisable    []string
	packOutDir     string
)

// packCmd represents the pack command
var packCmd = &cobra.Command{
	Use:   "pack <specfile>",
	Short: "Build binary packages from a specfile",
	Long: `Build one or more binary packages from a declarative XML specfile.

pack resolves and unpacks the declared sources, runs the prepare/build/install
rules, expands every binary package's content list, splits out debug symbols,
resolves shared-library dependencies and writes the resulting .bolt archives
into the output pool directory.

Exit codes: 0 on success, 2 when the specfile's <source> is not supported on
the requested target, 1 for any other failure.

Examples:
  boltpack pack openssl.xml
  boltpack pack openssl.xml --arch x86_64-linux-gnu --build-for target
  boltpack pack busybox.xml --build-for tools --ignore-deps`,
	Args: cobra.ExactArgs(1),
	RunE: runPack,
}

func init() {
	packCmd.Flags().StringVar(&packBuildFor, "build-for", "", `one of "target", "tools", "cross-tools" (default from config)`)
	packCmd.Flags().StringVar(&packArch, "arch", "", "supported-on/host-type machine tag, e.g. x86_64-linux-gnu")
	packCmd.Flags().StringVar(&packRelease, "release", "", "release name scoping the source cache (default \"unstable\")")
	packCmd.Flags().BoolVar(&packIgnoreDeps, "ignore-deps", false, "downgrade an unmet shared-library dependency to a warning")
	packCmd.Flags().StringSliceVar(&packEnable, "enable", nil, "force-enable the named optional packages")
	packCmd.Flags().StringSliceVar(&packDisable, "disable", nil, "force-disable the named optional packages")
	packCmd.Flags().StringVar(&packOutDir, "outdir", "", "output pool directory (default from config)")
}

func runPack(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	application, err := app.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	defer application.Shutdown()

	result, err := pack.Run(ctx, application, args[0], pack.Options{
		BuildFor:   packBuildFor,
		Arch:       packArch,
		Release:    packRelease,
		IgnoreDeps: packIgnoreDeps,
		Enable:     packEnable,
		Disable:    packDisable,
		OutDir:     packOutDir,
		Stdout:     realStdout,
		Stderr:     realStdout,
	})
	if err != nil {
		if errors.Is(err, pack.ErrSkipBuild) {
			return &skipBuildError{err: err}
		}
		return err
	}

	names := make([]string, len(result.Outputs))
	for i, o := range result.Outputs {
		names[i] = o.Filename
	}
	fmt.Fprintf(realStdout, "built %s %s: %s\n", result.SourceName, result.Version, strings.Join(names, ", "))
	return nil
}

// skipBuildError marks a pack.ErrSkipBuild outcome so main can translate it
// to exit code 2 instead of the generic failure code 1.
type skipBuildError struct{ err error }

func (e *skipBuildError) Error() string { return e.err.Error() }
func (e *skipBuildError) Unwrap() error { return e.err }

// SkipBuildExitCode is the process exit code used when a pack invocation's
// error unwraps to pack.ErrSkipBuild (spec §7).
const SkipBuildExitCode = 2

// ExitCodeFor maps an error returned by ExecuteContext to the documented
// process exit code (spec §6): 0 is handled by the caller on a nil error.
func ExitCodeFor(err error) int {
	var skip *skipBuildError
	if errors.As(err, &skip) {
		return SkipBuildExitCode
	}
	return 1
}
