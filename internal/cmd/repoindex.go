package cmd

import (
	"fmt"

	"github.com/boltpack/boltpack/repoindex"
	"github.com/spf13/cobra"
)

var (
	repoIndexSignWith  string
	repoIndexForceFull bool
	repoIndexComment   string
)

// repoIndexCmd represents the repo-index command
var repoIndexCmd = &cobra.Command{
	Use:   "repo-index <pool-dir>",
	Short: "(Re)build a Packages.gz index over a pool of .bolt files",
	Long: `Walk pool-dir for .bolt package archives and (re)write Packages.gz,
reusing checksums already on record for unchanged files rather than
re-reading every archive.

When --sign-with names a Signify secret key, a detached Packages.sig and an
inline InPackages.gz are produced alongside Packages.gz.

Examples:
  boltpack repo-index ./pool
  boltpack repo-index ./pool --sign-with ./keys/repo.sec --force-full`,
	Args: cobra.ExactArgs(1),
	RunE: runRepoIndex,
}

func init() {
	repoIndexCmd.Flags().StringVar(&repoIndexSignWith, "sign-with", "", "path to a Signify secret key used to sign the index")
	repoIndexCmd.Flags().BoolVar(&repoIndexForceFull, "force-full", false, "ignore the existing index and re-walk the entire pool")
	repoIndexCmd.Flags().StringVar(&repoIndexComment, "comment", "", `"untrusted comment:" header text for Packages.sig`)
}

func runRepoIndex(cmd *cobra.Command, args []string) error {
	opts := repoindex.Options{
		ForceFull: repoIndexForceFull,
		Comment:   repoIndexComment,
	}

	if repoIndexSignWith != "" {
		priv, err := repoindex.LoadPrivateKey(repoIndexSignWith)
		if err != nil {
			return fmt.Errorf("loading signing key: %w", err)
		}
		opts.SignWith = priv
	}

	result, err := repoindex.Index(args[0], opts)
	if err != nil {
		return err
	}

	if result.Skipped {
		fmt.Fprintln(realStdout, "index unchanged")
		return nil
	}
	fmt.Fprintf(realStdout, "indexed %d package(s)\n", result.PackageQty)
	return nil
}
