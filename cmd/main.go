package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/peick/docker-build/drivers/docker"
	"github.com/peick/docker-build/drivers/vagrant"
	"github.com/peick/docker-build/engine"
	"github.com/peick/docker-build/executors"
	"github.com/peick/docker-build/frontends"
	_ "github.com/peick/docker-build/frontends/hcl"
	"github.com/peick/docker-build/internal/types"
	"github.com/peick/docker-build/layers"
	"github.com/peick/docker-build/registry"
)

var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

const envPrefix = "DOCKER_BUILD"

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	registries := newRegistryFlag()

	cmd := &cobra.Command{
		Use:   "docker-build",
		Short: "Build a graph of container images from one description",
		Long: `docker-build reads an HCL description of container images, builds the
named images that are missing locally or in their registry, uploads them and
removes the temporary images it created on the way.

Every flag can also be set through an environment variable named
DOCKER_BUILD_<FLAG>, e.g. DOCKER_BUILD_FILE or DOCKER_BUILD_FORCE_RECREATE.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", Version, GitCommit, BuildDate),
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := loadConfig(cmd.Flags(), registries)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := run(ctx, config, cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr()); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
				return err
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringP("file", "c", "docker-build.hcl", "Build description file, - reads from stdin")
	flags.VarP(registries, "registry", "r", "Registry in name=url form (repeatable)")
	flags.StringArray("rc", nil, "Registry config file (repeatable, default: first existing of docker-build.registry.yaml, ~/.docker-build/registry.yaml, /etc/docker-build/registry.yaml)")
	flags.BoolP("force-recreate", "f", false, "Delete and rebuild every named image")
	flags.BoolP("list", "l", false, "List the named images and whether they exist")
	flags.BoolP("check-config", "C", false, "Only load and validate the build description")
	flags.String("list-registry-images", "", "List the images of the named registry")
	flags.CountP("verbose", "v", "Increase verbosity (-v info, -vv debug)")
	flags.String("log-format", engine.LogFormatText, "Log format (text, json)")
	flags.String("engine", docker.BinaryDocker, "Container engine (docker, podman)")

	return cmd
}

// loadConfig merges flags with DOCKER_BUILD_* environment variables. A flag
// given on the command line wins over the environment.
func loadConfig(flags *pflag.FlagSet, registries *registryFlag) (*types.BuildConfig, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(flags); err != nil {
		return nil, fmt.Errorf("failed to bind flags: %w", err)
	}

	entries := registries.values
	if !flags.Changed("registry") {
		parsed, err := parseRegistries(v.GetStringSlice("registry"))
		if err != nil {
			return nil, fmt.Errorf("invalid %s_REGISTRY: %w", envPrefix, err)
		}
		entries = parsed
	}

	config := &types.BuildConfig{
		File:          v.GetString("file"),
		Engine:        v.GetString("engine"),
		Registries:    entries,
		RegistryFiles: v.GetStringSlice("rc"),
		ForceRecreate: v.GetBool("force-recreate"),
		ListOnly:      v.GetBool("list"),
		CheckOnly:     v.GetBool("check-config"),
		ListRegistry:  v.GetString("list-registry-images"),
		Verbosity:     v.GetInt("verbose"),
		LogFormat:     v.GetString("log-format"),
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func run(ctx context.Context, config *types.BuildConfig, stdin io.Reader, stdout, stderr io.Writer) error {
	logger := engine.NewLogger(engine.LoggerOptions{
		Verbosity: config.Verbosity,
		Format:    config.LogFormat,
		Output:    stderr,
	})

	runner := executors.NewLocalRunner(logger)
	engineDriver := docker.NewDriver(runner, config.Engine, logger)
	drivers := &layers.Drivers{
		Engine:      engineDriver,
		Provisioner: vagrant.NewDriver(runner, logger),
		Runner:      runner,
		Logger:      logger,
	}

	registries, err := loadRegistries(engineDriver, config, logger)
	if err != nil {
		return err
	}

	if config.ListRegistry != "" {
		return listRegistryImages(ctx, registries, config.ListRegistry, stdout)
	}

	frontend, err := frontends.ForPath(config.File)
	if err != nil {
		return err
	}
	description, err := frontend.Load(ctx, config.File, frontends.Options{
		Drivers:    drivers,
		Registries: registries,
		Stdin:      stdin,
	})
	if err != nil {
		return err
	}
	if description.Layers.Len() == 0 {
		return fmt.Errorf("no images defined in %s", config.File)
	}
	logger.WithFields(logrus.Fields{
		"files":  len(description.Files),
		"images": description.Layers.Len(),
	}).Info("Build description loaded")

	if config.CheckOnly {
		fmt.Fprintln(stdout, "Configuration OK")
		return nil
	}

	builder := engine.NewBuilder(description.Layers,
		engine.WithForceRecreate(config.ForceRecreate),
		engine.WithLogger(logger),
		engine.WithProgressOutput(stdout),
	)

	if config.ListOnly {
		statuses, err := builder.Status(ctx)
		if err != nil {
			return err
		}
		for _, status := range statuses {
			fmt.Fprintln(stdout, status)
		}
		return nil
	}

	result, err := builder.Build(ctx)
	if err != nil {
		return fmt.Errorf("build failed: %w", err)
	}
	switch result.Status {
	case types.BuildStatusNothingToDo:
		fmt.Fprintln(stdout, "Nothing to do")
	case types.BuildStatusUpToDate:
		fmt.Fprintln(stdout, "All images are up to date")
	default:
		fmt.Fprintf(stdout, "Built %d image(s) in %s\n", len(result.Built), result.Duration)
		for _, image := range result.Built {
			fmt.Fprintf(stdout, "  %s\n", image)
		}
	}
	return nil
}

// loadRegistries collects registries from config files, then from -r flags,
// later sources replacing earlier ones of the same name.
func loadRegistries(engineDriver registry.Engine, config *types.BuildConfig, logger logrus.FieldLogger) (*registry.Collection, error) {
	registries := registry.NewCollection(engineDriver, registry.WithLogger(logger))

	files := config.RegistryFiles
	if len(files) == 0 {
		files = registry.FindConfigFiles()
	}
	if len(files) > 0 {
		registryConfig, err := registry.LoadConfig(files...)
		if err != nil {
			return nil, err
		}
		if err := registries.AddConfig(registryConfig); err != nil {
			return nil, err
		}
		logger.WithField("files", strings.Join(files, ",")).Debug("Registry config loaded")
	}

	names := make([]string, 0, len(config.Registries))
	for name := range config.Registries {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if _, err := registries.Add(name, config.Registries[name]); err != nil {
			return nil, err
		}
	}
	return registries, nil
}

func listRegistryImages(ctx context.Context, registries *registry.Collection, name string, out io.Writer) error {
	reg, ok := registries.Get(name)
	if !ok {
		return fmt.Errorf("unknown registry %q (known: %s)", name, strings.Join(registries.Names(), ", "))
	}
	images, err := reg.Images(ctx)
	if err != nil {
		return err
	}
	for _, image := range images {
		fmt.Fprintln(out, image)
	}
	return nil
}
