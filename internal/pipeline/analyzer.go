// Package pipeline runs a full repository analysis: crawl, detect, merge and
// assemble.
package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"repograph/internal/config"
	"repograph/internal/crawler"
	"repograph/internal/detect/apikeys"
	"repograph/internal/detect/dependencies"
	"repograph/internal/detect/iac"
	"repograph/internal/detect/relationships"
	"repograph/internal/detect/services"
	"repograph/internal/extractor"
	"repograph/internal/finding"
	"repograph/internal/graph"
	"repograph/internal/rules"
)

// Analyzer owns the detectors of one configuration. It is safe to run
// Analyze for several repositories one after another.
type Analyzer struct {
	cfg     *config.Config
	workers int
	logger  zerolog.Logger
	metrics *Metrics
	crawler *crawler.Crawler

	services      *services.Detector
	relationships *relationships.Detector
	apiKeys       *apikeys.Detector
	iac           *iac.Detector
}

// NewAnalyzer wires the detectors to rs and cfg.
func NewAnalyzer(cfg *config.Config, rs *rules.RuleSet, logger zerolog.Logger, metrics *Metrics) *Analyzer {
	if metrics == nil {
		metrics = NewMetrics(logger)
	}
	threshold := cfg.Detection.Threshold
	// errgroup blocks forever on a zero limit.
	workers := cfg.Detection.Workers
	if workers < 1 {
		workers = 1
	}
	return &Analyzer{
		cfg:     cfg,
		workers: workers,
		logger:  logger.With().Str("component", "analyzer").Logger(),
		metrics: metrics,
		crawler: crawler.NewCrawler(
			crawler.WithMaxFileSize(cfg.Crawler.MaxFileSize),
			crawler.WithIgnore(cfg.Crawler.Ignore...),
			crawler.WithLogger(logger),
		),
		services:      services.NewDetector(rs, threshold, logger),
		relationships: relationships.NewDetector(rs, relationships.OptionsFrom(cfg)),
		apiKeys:       apikeys.NewDetector(rs, threshold, logger),
		iac:           iac.NewDetector(rs, threshold, logger),
	}
}

// Metrics returns the analyzer's metrics.
func (a *Analyzer) Metrics() *Metrics { return a.metrics }

// fileScan holds what the first pass found in one file.
type fileScan struct {
	deps     []*dependencies.Dependency
	services []*services.Service
	elements []*extractor.CodeElement
	security iac.Result
}

// fileLinks holds what the second pass found in one file.
type fileLinks struct {
	relationships []*relationships.Relationship
	keys          apikeys.Result
}

// defaultID derives an id from the name and the absolute path of root.
// Checkouts that share a directory name get distinct ids.
func defaultID(root, name string) string {
	abs, err := filepath.Abs(root)
	if err != nil {
		abs = filepath.Clean(root)
	}
	sum := uuid.NewSHA1(uuid.NameSpaceURL, []byte("file://"+filepath.ToSlash(abs)))
	return name + "-" + sum.String()[:8]
}

// Analyze runs the whole analysis of the repository at root. A missing root
// is the only input problem reported as an error; per-file problems are
// logged and skipped.
func (a *Analyzer) Analyze(ctx context.Context, root string, repo graph.Repository) (*Report, error) {
	start := time.Now()
	if repo.Name == "" {
		repo.Name = filepath.Base(filepath.Clean(root))
	}
	if repo.ID == "" {
		repo.ID = defaultID(root, repo.Name)
	}
	log := a.logger.With().Str("repository", repo.Name).Logger()

	files, stats, err := a.crawlStage(ctx, root)
	if err != nil {
		return nil, err
	}
	log.Info().Int("files", len(files)).Int("skipped_oversize", stats.SkippedOversize).Msg("crawl complete")

	scans, err := a.scanStage(ctx, files)
	if err != nil {
		return nil, err
	}

	report := &Report{Repository: repo, Crawl: stats}
	a.mergeInventory(report, scans)
	log.Info().
		Int("dependencies", len(report.Dependencies)).
		Int("services", len(report.Services)).
		Msg("inventory merged")

	links, err := a.linkStage(ctx, files, scans, report)
	if err != nil {
		return nil, err
	}
	a.mergeFindings(report, scans, links)
	log.Info().
		Int("relationships", len(report.Relationships)).
		Int("api_keys", len(report.APIKeys)).
		Int("security_entities", len(report.SecurityEntities)).
		Int("vulnerabilities", len(report.Vulnerabilities)).
		Msg("findings merged")

	done := a.timeStage("assemble")
	g, err := graph.Assemble(repo, graph.FromDependencies(report.Dependencies), graph.FromServices(report.Services))
	done()
	if err != nil {
		return nil, fmt.Errorf("assemble graph: %w", err)
	}
	report.Graph = g
	report.Duration = time.Since(start)

	a.observe(report)
	log.Info().
		Int("nodes", len(g.Nodes)).
		Int("edges", len(g.Edges)).
		Dur("duration", report.Duration).
		Msg("analysis complete")
	return report, nil
}

func (a *Analyzer) crawlStage(ctx context.Context, root string) ([]crawler.File, crawler.Stats, error) {
	defer a.timeStage("crawl")()
	files, stats, err := a.crawler.Collect(ctx, root)
	if err != nil {
		return nil, stats, fmt.Errorf("crawl %s: %w", root, err)
	}
	a.metrics.observeCrawl(stats)
	return files, stats, nil
}

// scanStage runs the per-file detectors that need nothing but the file.
// Results land in per-file slots so that merge order follows crawl order.
func (a *Analyzer) scanStage(ctx context.Context, files []crawler.File) ([]fileScan, error) {
	defer a.timeStage("scan")()
	scans := make([]fileScan, len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.workers)
	for i, f := range files {
		i, f := i, f
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			scans[i] = a.scanFile(f)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return scans, nil
}

func (a *Analyzer) scanFile(f crawler.File) fileScan {
	var s fileScan
	if dependencies.IsManifest(f.Path) {
		deps, err := dependencies.Extract(f)
		if err != nil {
			a.logger.Debug().Err(err).Str("file", f.Path).Msg("skipping malformed manifest")
		}
		s.deps = deps
	}
	s.services = a.services.DetectFile(f)
	s.elements = extractor.ExtractElements(f.Path, f.Text())
	s.security = a.iac.DetectFile(f)
	return s
}

func (a *Analyzer) mergeInventory(r *Report, scans []fileScan) {
	defer a.timeStage("merge_inventory")()
	var deps []*dependencies.Dependency
	var svcs []*services.Service
	for _, s := range scans {
		deps = append(deps, s.deps...)
		svcs = append(svcs, s.services...)
	}
	r.Dependencies = finding.Merge(deps)
	svcs = append(svcs, a.services.FromDependencies(r.Dependencies)...)
	r.Services = finding.Merge(svcs)
}

// linkStage relates code to the merged services and dependencies and looks
// for API keys, again one file per task.
func (a *Analyzer) linkStage(ctx context.Context, files []crawler.File, scans []fileScan, r *Report) ([]fileLinks, error) {
	defer a.timeStage("link")()
	links := make([]fileLinks, len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.workers)
	for i, f := range files {
		i, f := i, f
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			text := f.Text()
			elements := scans[i].elements
			links[i].relationships = a.relationships.DetectFile(f.Path, text, elements, r.Services, r.Dependencies)
			if apikeys.Scannable(f.Path) {
				links[i].keys = a.apiKeys.DetectFile(f.Path, text, elements, r.Services)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return links, nil
}

func (a *Analyzer) mergeFindings(r *Report, scans []fileScan, links []fileLinks) {
	defer a.timeStage("merge_findings")()
	var (
		rels     []*relationships.Relationship
		keys     []*apikeys.APIKey
		entities []*iac.Entity
		vulns    []*iac.Vulnerability
	)
	for i := range scans {
		entities = append(entities, scans[i].security.Entities...)
		vulns = append(vulns, scans[i].security.Vulnerabilities...)
		rels = append(rels, links[i].relationships...)
		keys = append(keys, links[i].keys.Keys...)
		vulns = append(vulns, links[i].keys.Vulnerabilities...)
	}
	r.Relationships = finding.Merge(rels)
	r.APIKeys = finding.Merge(keys)
	r.SecurityEntities = finding.Merge(entities)
	r.Vulnerabilities = finding.Merge(vulns)
	r.SecurityRelationships = finding.Merge(iac.LinkRoles(r.SecurityEntities))
}

func (a *Analyzer) observe(r *Report) {
	for domain, n := range r.Counts() {
		a.metrics.findings.WithLabelValues(domain).Add(float64(n))
	}
	for _, v := range r.Vulnerabilities {
		a.metrics.vulnerabilities.WithLabelValues(string(v.Severity)).Inc()
	}
	a.metrics.graphSize.WithLabelValues("nodes").Set(float64(len(r.Graph.Nodes)))
	a.metrics.graphSize.WithLabelValues("edges").Set(float64(len(r.Graph.Edges)))
}

// timeStage starts a stage timer; call the result when the stage ends.
func (a *Analyzer) timeStage(stage string) func() {
	start := time.Now()
	return func() {
		a.metrics.stageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
	}
}
