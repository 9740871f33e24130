package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"runtime"
	"runtime/debug"
	"strings"
	"time"

	"github.com/igolaizola/photobooth/pkg/cmd/compose"
	"github.com/igolaizola/photobooth/pkg/cmd/export"
	"github.com/igolaizola/photobooth/pkg/cmd/migrate"
	"github.com/igolaizola/photobooth/pkg/cmd/overlays"
	"github.com/igolaizola/photobooth/pkg/cmd/web"
	"github.com/igolaizola/photobooth/pkg/image"
	"github.com/peterbourgon/ff/ffyaml"
	"github.com/peterbourgon/ff/v3"
	"github.com/peterbourgon/ff/v3/ffcli"
)

func New(version, commit, date string) *ffcli.Command {
	fs := flag.NewFlagSet("photobooth", flag.ExitOnError)

	return &ffcli.Command{
		ShortUsage: "photobooth [flags] <subcommand>",
		FlagSet:    fs,
		Exec: func(context.Context, []string) error {
			return flag.ErrHelp
		},
		Subcommands: []*ffcli.Command{
			newVersionCommand(version, commit, date),
			newMigrateCommand(),
			newServeCommand(),
			newOverlaysCommand(),
			newComposeCommand(),
			newExportCommand(),
		},
	}
}

func newVersionCommand(version, commit, date string) *ffcli.Command {
	return &ffcli.Command{
		Name:       "version",
		ShortUsage: "photobooth version",
		ShortHelp:  "print version",
		Exec: func(ctx context.Context, args []string) error {
			v := version
			if v == "" {
				if buildInfo, ok := debug.ReadBuildInfo(); ok {
					v = buildInfo.Main.Version
				}
			}
			if v == "" {
				v = "dev"
			}
			versionFields := []string{v}
			if commit != "" {
				versionFields = append(versionFields, commit)
			}
			if date != "" {
				versionFields = append(versionFields, date)
			}
			fmt.Println(strings.Join(versionFields, " "))
			return nil
		},
	}
}

func newOptions() []ff.Option {
	return []ff.Option{
		ff.WithConfigFileFlag("config"),
		ff.WithConfigFileParser(ffyaml.Parser),
		ff.WithEnvVarPrefix("PHOTOBOOTH"),
	}
}

func newMigrateCommand() *ffcli.Command {
	cmd := "migrate"
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	_ = fs.String("config", "", "config file (optional)")

	cfg := &migrate.Config{}

	fs.BoolVar(&cfg.Debug, "debug", false, "debug mode")
	fs.StringVar(&cfg.DBType, "db-type", "sqlite", "db type (sqlite, mysql, postgres)")
	fs.StringVar(&cfg.DBConn, "db-conn", "photobooth.db", "path for sqlite, dsn for mysql or postgres")

	return &ffcli.Command{
		Name:       cmd,
		ShortUsage: fmt.Sprintf("photobooth %s [flags]", cmd),
		Options:    newOptions(),
		ShortHelp:  "create or upgrade the database schema",
		FlagSet:    fs,
		Exec: func(ctx context.Context, args []string) error {
			return migrate.Run(ctx, cfg)
		},
	}
}

func newServeCommand() *ffcli.Command {
	cmd := "serve"
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	_ = fs.String("config", "", "config file (optional)")

	cfg := &web.Config{}

	fs.BoolVar(&cfg.Debug, "debug", false, "debug mode")
	fs.StringVar(&cfg.DBType, "db-type", "sqlite", "db type (sqlite, mysql, postgres)")
	fs.StringVar(&cfg.DBConn, "db-conn", "photobooth.db", "path for sqlite, dsn for mysql or postgres")
	fs.StringVar(&cfg.FSType, "fs-type", "local", "fs type (local, s3, telegram)")
	fs.StringVar(&cfg.FSConn, "fs-conn", "uploads", "path for local, key:secret@bucket.region for s3, token@chat for telegram")
	fs.StringVar(&cfg.Proxy, "proxy", "", "proxy to use for remote file storage")

	fs.StringVar(&cfg.Addr, "addr", ":1337", "address to listen on")
	fsMapVar(fs, &cfg.Credentials, "creds", nil, "credentials to use (semicolon separated) Example: user1:pass1;user2:pass2")
	fs.BoolVar(&cfg.Open, "open", false, "open the browser once the server is listening")

	fs.StringVar(&cfg.Overlays, "overlays", "overlays", "directory with the png overlays")
	fs.StringVar(&cfg.Prefix, "prefix", "img_", "prefix of the generated filenames")
	fs.StringVar(&cfg.Resampler, "resampler", image.CatmullRom, "resize filter (catmullrom, bilinear, box, lanczos)")
	fs.IntVar(&cfg.MaxWidth, "max-width", image.DefaultMaxWidth, "max output width (0 to disable)")
	fs.IntVar(&cfg.MaxHeight, "max-height", image.DefaultMaxHeight, "max output height (0 to disable)")
	fs.IntVar(&cfg.MaxSize, "max-size", image.DefaultMaxInputSize, "max input size in bytes")
	fs.IntVar(&cfg.MaxPixels, "max-pixels", image.DefaultMaxPixels, "max input pixels (0 to disable)")
	fs.IntVar(&cfg.Concurrency, "concurrency", runtime.NumCPU(), "max concurrent compositions")
	fs.DurationVar(&cfg.Timeout, "timeout", 30*time.Second, "max time for a composition, including the wait for a free slot")
	fs.Float64Var(&cfg.RateLimit, "rate-limit", 12, "uploads per minute per user or ip (0 to disable)")
	fs.IntVar(&cfg.RateBurst, "rate-burst", 10, "upload burst per user or ip")

	return &ffcli.Command{
		Name:       cmd,
		ShortUsage: fmt.Sprintf("photobooth %s [flags]", cmd),
		Options:    newOptions(),
		ShortHelp:  "serve the photobooth web app and api",
		FlagSet:    fs,
		Exec: func(ctx context.Context, args []string) error {
			return web.Serve(ctx, cfg)
		},
	}
}

func newOverlaysCommand() *ffcli.Command {
	cmd := "overlays"
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	_ = fs.String("config", "", "config file (optional)")

	cfg := &overlays.Config{}

	fs.StringVar(&cfg.Overlays, "overlays", "overlays", "directory with the png overlays")

	return &ffcli.Command{
		Name:       cmd,
		ShortUsage: fmt.Sprintf("photobooth %s [flags]", cmd),
		Options:    newOptions(),
		ShortHelp:  "list the available overlays",
		FlagSet:    fs,
		Exec: func(ctx context.Context, args []string) error {
			return overlays.Run(ctx, os.Stdout, cfg)
		},
	}
}

func newComposeCommand() *ffcli.Command {
	cmd := "compose"
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	_ = fs.String("config", "", "config file (optional)")

	cfg := &compose.Config{}

	fs.BoolVar(&cfg.Debug, "debug", false, "debug mode")
	fs.StringVar(&cfg.Input, "input", "", "input image or directory")
	fs.StringVar(&cfg.Output, "output", "output", "output directory")
	fs.StringVar(&cfg.Overlay, "overlay", "", "overlay to apply")
	fs.StringVar(&cfg.Overlays, "overlays", "overlays", "directory with the png overlays")
	fs.StringVar(&cfg.Prefix, "prefix", "img_", "prefix of the generated filenames")
	fs.StringVar(&cfg.Resampler, "resampler", image.CatmullRom, "resize filter (catmullrom, bilinear, box, lanczos)")
	fs.IntVar(&cfg.MaxWidth, "max-width", image.DefaultMaxWidth, "max output width (0 to disable)")
	fs.IntVar(&cfg.MaxHeight, "max-height", image.DefaultMaxHeight, "max output height (0 to disable)")
	fs.IntVar(&cfg.MaxSize, "max-size", image.DefaultMaxInputSize, "max input size in bytes")
	fs.IntVar(&cfg.MaxPixels, "max-pixels", image.DefaultMaxPixels, "max input pixels (0 to disable)")
	fs.IntVar(&cfg.Concurrency, "concurrency", runtime.NumCPU(), "number of concurrent compositions")

	return &ffcli.Command{
		Name:       cmd,
		ShortUsage: fmt.Sprintf("photobooth %s [flags]", cmd),
		Options:    newOptions(),
		ShortHelp:  "apply an overlay to local images",
		FlagSet:    fs,
		Exec: func(ctx context.Context, args []string) error {
			return compose.Run(ctx, os.Stdout, cfg)
		},
	}
}

func newExportCommand() *ffcli.Command {
	cmd := "export"
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	_ = fs.String("config", "", "config file (optional)")

	cfg := &export.Config{}

	fs.BoolVar(&cfg.Debug, "debug", false, "debug mode")
	fs.StringVar(&cfg.DBType, "db-type", "sqlite", "db type (sqlite, mysql, postgres)")
	fs.StringVar(&cfg.DBConn, "db-conn", "photobooth.db", "path for sqlite, dsn for mysql or postgres")
	fs.StringVar(&cfg.Output, "output", "images.csv", "output file (.csv or .json)")
	fs.StringVar(&cfg.User, "user", "", "only export images of this user")
	fs.IntVar(&cfg.Limit, "limit", 0, "max images to export (0 for all)")

	return &ffcli.Command{
		Name:       cmd,
		ShortUsage: fmt.Sprintf("photobooth %s [flags]", cmd),
		Options:    newOptions(),
		ShortHelp:  "export image metadata",
		FlagSet:    fs,
		Exec: func(ctx context.Context, args []string) error {
			return export.Run(ctx, cfg)
		},
	}
}

type mapValue struct {
	v *map[string]string
}

func (m *mapValue) String() string {
	if m.v == nil {
		return ""
	}
	return fmt.Sprintf("%v", map[string]string(*m.v))
}

func (m *mapValue) Set(value string) error {
	if m.v == nil {
		return errors.New("nil map reference")
	}
	pairs := strings.Split(value, ";")
	for _, pair := range pairs {
		parts := strings.SplitN(pair, ":", 2)
		if len(parts) != 2 {
			return fmt.Errorf("invalid map entry: %s", pair)
		}
		(*m.v)[parts[0]] = parts[1]
	}
	return nil
}

func fsMapVar(fs *flag.FlagSet, p *map[string]string, name string, value map[string]string, usage string) {
	if value == nil {
		value = make(map[string]string)
	}
	*p = value
	fs.Var(&mapValue{p}, name, usage)
}
