package cmd

import (
	"fmt"
	"log/slog"
	"runtime"

	"github.com/gophertribe/devtool/build"
	"github.com/spf13/cobra"
)

const (
	binary      = "dist/tsl2561"
	mainPackage = "./cmd/tsl2561"
	buildImage  = "gophertribe/gobuild:1.25-bookworm"
)

// target resolves the platform to build for. Cross flags only apply to native
// builds, which is how the docker build re-enters this command.
func target(cmd *cobra.Command) (goos, goarch string, native bool) {
	goos = cmd.Flag("os").Value.String()
	goarch = cmd.Flag("arch").Value.String()
	native = goos == runtime.GOOS && goarch == runtime.GOARCH
	crossOS := cmd.Flag("cross-os").Value.String()
	crossArch := cmd.Flag("cross-arch").Value.String()
	if native && crossOS != "" && crossArch != "" {
		goos, goarch = crossOS, crossArch
	}
	return goos, goarch, native
}

func BuildCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build the tsl2561 cli",
		RunE: func(cmd *cobra.Command, args []string) error {
			version := cmd.Flag("version").Value.String()
			goos, goarch, native := target(cmd)
			if native {
				slog.Info("building", "os", goos, "arch", goarch, "version", version)
				// periph host drivers and hid need cgo
				return build.GoBuild(binary, mainPackage, build.GoBuildOpts{
					Version:       version,
					InjectVersion: true,
					ConfigPackage: "main",
					EnableCgo:     true,
					Arch:          goarch,
					OS:            goos,
				})
			}
			noCache, err := cmd.Flags().GetBool("no-cache")
			if err != nil {
				return fmt.Errorf("could not get no-cache flag: %w", err)
			}
			args = []string{"build", "--version", version,
				"--cross-os", cmd.Flag("cross-os").Value.String(),
				"--cross-arch", cmd.Flag("cross-arch").Value.String()}
			return build.Docker(cmd.Context(), fmt.Sprintf("./dev-%s-%s", goos, goarch), args, build.DockerBuildOpts{
				NoCache: noCache,
				Image:   buildImage,
			})
		},
	}
	cmd.Flags().Bool("no-cache", false, "do not use cache when building the app")
	cmd.Flags().String("version", "latest", "version of the cli")
	cmd.Flags().String("os", runtime.GOOS, "os to build for")
	cmd.Flags().String("arch", runtime.GOARCH, "arch to build for")
	cmd.Flags().String("cross-os", "", "os to cross-compile for")
	cmd.Flags().String("cross-arch", "", "arch to cross-compile for")
	return cmd
}
