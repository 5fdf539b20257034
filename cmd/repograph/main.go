package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"repograph/internal/config"
	"repograph/internal/detect/iac"
	"repograph/internal/generator"
	"repograph/internal/git"
	"repograph/internal/graph"
	"repograph/internal/logging"
	"repograph/internal/pipeline"
	"repograph/internal/retrieval"
	"repograph/internal/rules"
	"repograph/internal/storage"
)

var (
	rootCmd = &cobra.Command{
		Use:           "repograph",
		Short:         "Build a knowledge graph of a repository's dependencies, services and secrets",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	dbPath      string
	configPath  string
	metricsFile string
	logLevel    string
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "❌", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&dbPath, "db", "d", "", "Path to the graph database (SQLite), overrides storage.path")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "repograph.yaml", "Path to the YAML configuration")
	rootCmd.PersistentFlags().StringVar(&metricsFile, "metrics-file", "", "Write prometheus metrics to this file after the command")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level, overrides log.level")

	analyzeCmd.Flags().String("id", "", "Repository id (defaults to the name plus a hash of the path)")
	analyzeCmd.Flags().String("name", "", "Repository name (defaults to the directory name)")
	analyzeCmd.Flags().String("url", "", "Repository URL (defaults to the git origin)")
	analyzeCmd.Flags().String("branch", "", "Branch (defaults to the checked out branch)")
	analyzeCmd.Flags().Bool("json", false, "Print the full report as JSON")

	graphCmd.Flags().StringSlice("focus", nil, "Only show the neighbourhood of these node names")
	reportCmd.Flags().StringP("out", "o", "", "Write the report into this directory instead of stdout")

	graphCmd.Flags().Int("hops", retrieval.DefaultConfig().MaxHops, "Hops around the focus nodes")

	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(graphCmd)
	rootCmd.AddCommand(reposCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(rulesCmd)
}

// env is what every command needs: configuration, a logger and the rules.
type env struct {
	cfg    *config.Config
	logger zerolog.Logger
}

func setup() (*env, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if dbPath != "" {
		cfg.Storage.Path = dbPath
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	return &env{cfg: cfg, logger: logging.New(cfg.Log.Level, cfg.Log.Pretty)}, nil
}

func (e *env) ruleSet() (*rules.RuleSet, error) {
	base := rules.Default()
	if e.cfg.Rules.Path != "" {
		loaded, err := rules.Load(e.cfg.Rules.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to load rules: %w", err)
		}
		base = loaded
	}
	return rules.LoadWithPlugins(base, e.cfg.Rules.PluginDir, e.logger), nil
}

func (e *env) openStore() (*storage.SQLiteStore, error) {
	store, err := storage.NewSQLiteStore(e.cfg.Storage.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", e.cfg.Storage.Path, err)
	}
	return store, nil
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze [path]",
	Short: "Analyze a repository and store its graph and findings",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "."
		if len(args) > 0 {
			path = args[0]
		}
		absPath, err := filepath.Abs(path)
		if err != nil {
			return err
		}

		e, err := setup()
		if err != nil {
			return err
		}
		rs, err := e.ruleSet()
		if err != nil {
			return err
		}
		ctx := cmd.Context()

		repo := repositoryFromFlags(cmd)
		if repo.URL == "" || repo.Branch == "" {
			info, err := git.Describe(ctx, absPath)
			if err != nil {
				e.logger.Debug().Err(err).Msg("no git metadata")
			}
			if repo.URL == "" {
				repo.URL = info.URL
			}
			if repo.Branch == "" {
				repo.Branch = info.Branch
			}
		}

		asJSON, _ := cmd.Flags().GetBool("json")
		out := cmd.OutOrStdout()
		if !asJSON {
			fmt.Fprintf(out, "📂 Analyzing %s\n", absPath)
		}

		analyzer := pipeline.NewAnalyzer(e.cfg, rs, e.logger, nil)
		report, err := analyzer.Analyze(ctx, absPath, repo)
		if err != nil {
			return err
		}

		store, err := e.openStore()
		if err != nil {
			return err
		}
		defer store.Close()
		if err := store.SaveSnapshot(ctx, report.Snapshot()); err != nil {
			return fmt.Errorf("failed to save snapshot: %w", err)
		}

		if err := writeMetrics(analyzer.Metrics()); err != nil {
			return err
		}
		if asJSON {
			return writeJSON(out, report)
		}
		printReport(out, report, e.cfg.Storage.Path)
		return nil
	},
}

func repositoryFromFlags(cmd *cobra.Command) graph.Repository {
	var r graph.Repository
	r.ID, _ = cmd.Flags().GetString("id")
	r.Name, _ = cmd.Flags().GetString("name")
	r.URL, _ = cmd.Flags().GetString("url")
	r.Branch, _ = cmd.Flags().GetString("branch")
	return r
}

func printReport(out io.Writer, r *pipeline.Report, db string) {
	fmt.Fprintf(out, "🔎 Scanned %d files (%d oversize, %d binary, %d ignored)\n",
		r.Crawl.Supplied, r.Crawl.SkippedOversize, r.Crawl.SkippedBinary, r.Crawl.SkippedIgnored)
	fmt.Fprintf(out, "📦 %d dependencies, 🧩 %d services, 🔗 %d relationships\n",
		len(r.Dependencies), len(r.Services), len(r.Relationships))
	fmt.Fprintf(out, "🔑 %d API keys, 🏗️  %d security entities\n", len(r.APIKeys), len(r.SecurityEntities))

	counts := r.SeverityCounts()
	if len(r.Vulnerabilities) > 0 {
		fmt.Fprintf(out, "⚠️  %d vulnerabilities:", len(r.Vulnerabilities))
		for _, sev := range severities(counts) {
			fmt.Fprintf(out, " %s=%d", sev, counts[sev])
		}
		fmt.Fprintln(out)
		for _, v := range r.VulnerabilitiesBySeverity() {
			fmt.Fprintf(out, "   [%s] %s %s:%d %s\n", v.Severity, v.Type, v.OriginFile, v.OriginLine, v.Description)
		}
	}
	fmt.Fprintf(out, "✅ Graph: %d nodes, %d edges in %v\n", len(r.Graph.Nodes), len(r.Graph.Edges), r.Duration)
	fmt.Fprintf(out, "🎉 Saved %s to %s\n", r.Repository.ID, db)
}

func severities(counts map[iac.Severity]int) []iac.Severity {
	out := make([]iac.Severity, 0, len(counts))
	for s := range counts {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Rank() < out[j].Rank() })
	return out
}

var graphCmd = &cobra.Command{
	Use:   "graph [repo]",
	Short: "Print statistics of a stored graph",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := setup()
		if err != nil {
			return err
		}
		store, err := e.openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		g, err := store.LoadGraph(cmd.Context(), args[0])
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("repository %q has not been analyzed", args[0])
		}
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		focus, _ := cmd.Flags().GetStringSlice("focus")
		if len(focus) > 0 {
			hops, _ := cmd.Flags().GetInt("hops")
			cfg := retrieval.DefaultConfig()
			cfg.MaxHops = hops
			sg := retrieval.Extract(g, retrieval.SeedsByName(g, focus...), cfg)
			if len(sg.SeedIDs) == 0 {
				return fmt.Errorf("no node named %v", focus)
			}
			for _, n := range sg.Nodes {
				fmt.Fprintf(out, "%s%s %s\n", strings.Repeat("  ", sg.Depth[n.ID]), n.Type, n.Name)
			}
			for _, edge := range sg.Edges {
				src, _ := g.Node(edge.Source)
				dst, _ := g.Node(edge.Target)
				fmt.Fprintf(out, "  %s -%s-> %s\n", src.Name, edge.Type, dst.Name)
			}
			return nil
		}
		return writeJSON(out, g.Statistics())
	},
}

var reposCmd = &cobra.Command{
	Use:   "repos",
	Short: "List analyzed repositories",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := setup()
		if err != nil {
			return err
		}
		store, err := e.openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		repos, err := store.Repositories(cmd.Context())
		if err != nil {
			return err
		}
		for _, r := range repos {
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\t%s\n", r.ID, r.Name, r.URL, r.Branch)
		}
		return nil
	},
}

var reportCmd = &cobra.Command{
	Use:   "report [repo]",
	Short: "Render a stored analysis as a Markdown report",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := setup()
		if err != nil {
			return err
		}
		store, err := e.openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		report, err := pipeline.LoadReport(cmd.Context(), store, args[0])
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("repository %q has not been analyzed", args[0])
		}
		if err != nil {
			return err
		}

		gen := generator.NewMarkdownGenerator()
		outDir, _ := cmd.Flags().GetString("out")
		if outDir == "" {
			_, err := io.WriteString(cmd.OutOrStdout(), gen.Render(report))
			return err
		}
		path, err := gen.WriteFile(outDir, report)
		if err != nil {
			return fmt.Errorf("failed to write report: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "📝 Report written to %s\n", path)
		return nil
	},
}

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Print the merged rule set as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := setup()
		if err != nil {
			return err
		}
		rs, err := e.ruleSet()
		if err != nil {
			return err
		}
		return writeJSON(cmd.OutOrStdout(), rs)
	},
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeMetrics(m *pipeline.Metrics) error {
	if metricsFile == "" {
		return nil
	}
	if err := m.WriteFile(metricsFile); err != nil {
		return fmt.Errorf("failed to write metrics: %w", err)
	}
	return nil
}
