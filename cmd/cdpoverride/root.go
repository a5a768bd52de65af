package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"cdpoverride/internal/cdp"
	"cdpoverride/internal/config"
	"cdpoverride/internal/logger"
	"cdpoverride/internal/service"
	"cdpoverride/pkg/api"
	"cdpoverride/pkg/model"

	"github.com/spf13/cobra"
)

// flags 命令行参数，非空时覆盖配置文件
type flags struct {
	configPath     string
	remotePrefix   string
	entrySuffix    string
	localRoot      string
	devTools       string
	target         string
	startURL       string
	logLevel       string
	allowTraversal bool
}

func newRootCmd() *cobra.Command {
	f := &flags{}
	root := &cobra.Command{
		Use:   "cdpoverride",
		Short: "Serve local build artifacts in place of remote resources in a running browser",
		Long: `Attach to a Chromium browser started with --remote-debugging-port and
replace every response under the remote prefix with the matching file from
the local build directory. Requests ending in the entry route fall back to
the local index.html.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runIntercept(cmd.Context(), f, cmd.ErrOrStderr())
		},
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&f.configPath, "config", "c", os.Getenv("CDPOVERRIDE_CONFIG"), "path to cdpoverride.yaml")
	pf.StringVar(&f.remotePrefix, "remote-prefix", "", "URL path prefix served from the local root")
	pf.StringVar(&f.entrySuffix, "entry-suffix", "", "URL suffix that falls back to index.html")
	pf.StringVar(&f.localRoot, "local-root", "", "local build directory")
	pf.BoolVar(&f.allowTraversal, "allow-traversal", false, "do not reject paths escaping the local root")
	pf.StringVar(&f.devTools, "devtools", "", "DevTools HTTP endpoint")
	pf.StringVar(&f.target, "target", "", "target id to attach to")
	pf.StringVar(&f.startURL, "start-url", "", "open a new tab at this URL and attach to it")
	pf.StringVar(&f.logLevel, "log-level", "", "log level (debug, info, warn, error)")

	root.AddCommand(newResolveCmd(f), newTargetsCmd(f))
	return root
}

// loadConfig 读取配置文件并应用命令行覆盖
func loadConfig(f *flags) (*config.Config, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return nil, err
	}
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&cfg.Override.RemotePrefix, f.remotePrefix)
	set(&cfg.Override.EntryRouteSuffix, f.entrySuffix)
	set(&cfg.Override.LocalRoot, f.localRoot)
	set(&cfg.Browser.DevToolsURL, f.devTools)
	set(&cfg.Browser.Target, f.target)
	set(&cfg.Browser.StartURL, f.startURL)
	set(&cfg.Log.Level, f.logLevel)
	if f.allowTraversal {
		cfg.Override.AllowTraversal = true
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) logger.Logger {
	return logger.New(logger.Options{Level: cfg.Log.Level, Writer: cfg.Log.Writer, File: cfg.Log.File})
}

func runIntercept(ctx context.Context, f *flags, out io.Writer) error {
	cfg, err := loadConfig(f)
	if err != nil {
		return err
	}
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	l := newLogger(cfg)
	svc := api.NewService(cfg, l)
	defer svc.Close()

	startCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if err := svc.Start(startCtx); err != nil {
		return fmt.Errorf("start: %w", err)
	}

	select {
	case <-ctx.Done():
		l.Info("收到退出信号")
	case <-svc.Done():
		l.Warn("拦截事件流已结束，可能是浏览器已关闭")
	}

	if err := svc.Stop(); err != nil {
		l.Warn("停止会话失败", "error", err)
	}
	st, err := svc.Stats(context.Background())
	if err != nil {
		return fmt.Errorf("stats: %w", err)
	}
	printSummary(out, st)
	return nil
}

func printSummary(w io.Writer, st model.Stats) {
	fmt.Fprintf(w, "intercepted %d: fulfilled %d (index fallback %d), continued %d, faults %d, served %d bytes\n",
		st.Total, st.Fulfilled, st.IndexFallback, st.Continued, st.Faults, st.Bytes)
	types := make([]string, 0, len(st.ByContentType))
	for ct := range st.ByContentType {
		types = append(types, ct)
	}
	sort.Slice(types, func(i, j int) bool {
		if st.ByContentType[types[i]] != st.ByContentType[types[j]] {
			return st.ByContentType[types[i]] > st.ByContentType[types[j]]
		}
		return types[i] < types[j]
	})
	for _, ct := range types {
		fmt.Fprintf(w, "  %-28s %d\n", ct, st.ByContentType[ct])
	}
}

func newResolveCmd(f *flags) *cobra.Command {
	return &cobra.Command{
		Use:   "resolve URL...",
		Short: "Show which local file each URL would be served from",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(f)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			for _, u := range args {
				ex := service.Explain(cfg.Override, u, logger.NewNop())
				if !ex.Found {
					fmt.Fprintf(w, "%s\tcontinue\t(candidate %s)\n", u, ex.Candidate)
					continue
				}
				kind := "file"
				if ex.Resolution.IndexFallback {
					kind = "index"
				}
				fmt.Fprintf(w, "%s\tfulfill\t%s\t%s\t%s\n", u, kind, ex.Resolution.LocalPath, ex.ContentType)
			}
			return nil
		},
	}
}

func newTargetsCmd(f *flags) *cobra.Command {
	return &cobra.Command{
		Use:   "targets",
		Short: "List DevTools targets",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(f)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
			defer cancel()
			targets, err := cdp.ListTargets(ctx, cfg.Browser.DevToolsURL)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			for _, t := range targets {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", t.ID, t.Type, t.URL, t.Title)
			}
			return nil
		},
	}
}
