package cmd

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/harlowdata/tailorcore/pkg/config"
	"github.com/harlowdata/tailorcore/pkg/domain"
	"github.com/harlowdata/tailorcore/pkg/evidence"
	"github.com/harlowdata/tailorcore/pkg/gateway"
	"github.com/harlowdata/tailorcore/pkg/ingest"
	"github.com/harlowdata/tailorcore/pkg/jdstructurer"
	"github.com/harlowdata/tailorcore/pkg/lessons"
	"github.com/harlowdata/tailorcore/pkg/pipeline"
	"github.com/harlowdata/tailorcore/pkg/profile"
	"github.com/harlowdata/tailorcore/pkg/renderer"
	"github.com/harlowdata/tailorcore/pkg/store"
)

//nolint:gochecknoglobals // Cobra boilerplate
var (
	genOutputDir  string
	genSkipPDF    bool
	genTierForce  string
	genIndexPath  string
	genLessonsDir string
)

//nolint:gochecknoglobals // Cobra boilerplate
var generateCmd = &cobra.Command{
	Use:   "generate <posting-file-or-url>",
	Short: "Run a job posting through the tailoring pipeline",
	Long: `Run a job posting through the full tailoring pipeline: structure the
posting, route it to a processing tier by fit score, generate grounded
per-role bullets, stitch and compose a profile, then grade and improve
the result.

The posting can be a file path or a URL:
  tailorcore generate posting.txt
  tailorcore generate https://example.com/jobs/123 --tier GOLD`,
	Args: cobra.ExactArgs(1),
	RunE: runGenerate,
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(generateCmd)
	generateCmd.Flags().StringVar(&genOutputDir, "output-dir", "", "Output directory (default from config)")
	generateCmd.Flags().BoolVar(&genSkipPDF, "skip-pdf", false, "Skip PDF rendering, write markdown only")
	generateCmd.Flags().StringVar(&genTierForce, "tier", "", "Force a processing tier (GOLD, SILVER, BRONZE, SKIP) instead of routing by fit score")
	generateCmd.Flags().StringVar(&genIndexPath, "index", "", "Path to a persisted embedding index (default: in-memory)")
	generateCmd.Flags().StringVar(&genLessonsDir, "lessons-dir", "", "Directory of archived grading records (default: alongside curriculum file)")
}

func runGenerate(cmd *cobra.Command, args []string) (err error) {
	ctx := context.Background()

	cfg, err := config.Load(getConfigFile())
	if err != nil {
		return errors.Wrap(err, "failed to load config")
	}

	job, err := ingest.FetchWithContext(ctx, args[0])
	if err != nil {
		return errors.Wrap(err, "failed to fetch posting")
	}

	embedder := evidence.NewHashEmbedder()

	gw, err := gateway.New(cfg.AnthropicAPIKey)
	if err != nil {
		return errors.Wrap(err, "failed to build model gateway")
	}

	library, err := evidence.Open(ctx, cfg.CurriculumLocation, genIndexPath, embedder, gw.Logger())
	if err != nil {
		return errors.Wrap(err, "failed to open curriculum")
	}
	for _, w := range library.Warnings {
		fmt.Println("warning:", w)
	}

	persona := library.Data.Profile.Title + " " + strings.Join(library.Data.Skills.All(), " ")
	structurer := jdstructurer.New(gw, embedder, persona)
	composer := profile.New(library.Data.Skills, library.Data.Achievements, nil)

	lessonsDir := genLessonsDir
	if lessonsDir == "" {
		lessonsDir = filepath.Join(filepath.Dir(cfg.CurriculumLocation), "lessons")
	}
	lessonStore, err := lessons.NewStore(lessonsDir)
	if err != nil {
		return errors.Wrap(err, "failed to open lessons store")
	}
	lessonIdx, err := lessonStore.Load()
	if err != nil {
		return errors.Wrap(err, "failed to load lessons")
	}

	pl := pipeline.New(gw, library, structurer, composer, lessonIdx).
		WithWorkerPoolSize(cfg.Run.WorkerPoolSize)

	runCfg := cfg.Run.ToRunConfig(domain.Tier(strings.ToUpper(genTierForce)))

	if getVerbose() {
		fmt.Printf("running job %s through the pipeline\n", job.JobID)
	}

	artifact, err := pl.Run(ctx, job, library.Data.Profile.Title, runCfg)
	if err != nil {
		return errors.Wrap(err, "pipeline run failed")
	}

	db, err := store.Open(cfg.StoreLocation)
	if err != nil {
		return errors.Wrap(err, "failed to open artifact store")
	}
	defer func() { _ = db.Close() }()

	if err := db.Save(artifact); err != nil {
		return errors.Wrap(err, "failed to save artifact")
	}

	if !artifact.IsTailored {
		fmt.Printf("fit score %.2f below threshold, skipped: %s at %s\n", artifact.JD.FitScore, artifact.JD.RoleTitle, artifact.JD.CompanyName)
		return nil
	}

	outDir := genOutputDir
	if outDir == "" {
		outDir = cfg.Defaults.OutputDir
	}
	outDir, err = companyOutputDir(outDir, artifact.JD.CompanyName)
	if err != nil {
		return errors.Wrap(err, "failed to create output directory")
	}

	doc := renderer.BuildDocumentTree(library.Data.Profile.Name, artifact.JD, artifact.Profile, artifact.Body)
	mdPath := filepath.Join(outDir, "resume.md")
	pdfPath := filepath.Join(outDir, "resume.pdf")

	if err := renderer.RenderDocument(doc, mdPath, pdfPath, cfg.Pandoc.TemplatePath, cfg.Pandoc.ClassFile, genSkipPDF); err != nil {
		fmt.Printf("warning: PDF rendering failed: %v\nmarkdown saved at: %s\n", err, mdPath)
	} else if !genSkipPDF {
		fmt.Printf("resume PDF saved at: %s\n", pdfPath)
	}

	fmt.Printf("tier=%s composite=%.2f pass=%v partial=%v\n", artifact.Tier, artifact.Grade.Composite, artifact.Grade.Pass, artifact.Partial)

	if artifact.Grade.Pass {
		rec := lessons.Record{
			Company:   artifact.JD.CompanyName,
			Role:      artifact.JD.RoleTitle,
			RoleLevel: artifact.JD.SeniorityLevel,
			GradedAt:  time.Now(),
			Grade:     artifact.Grade,
		}
		if err := lessonStore.Append(rec); err != nil {
			fmt.Printf("warning: failed to archive grading record: %v\n", err)
		}
	}

	return nil
}

func companyOutputDir(baseDir, company string) (string, error) {
	safe := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		case r == ' ':
			return '-'
		default:
			return -1
		}
	}, company)
	if safe == "" {
		safe = "company"
	}
	dir := filepath.Join(baseDir, safe)
	if err := ensureDir(dir); err != nil {
		return "", err
	}
	return dir, nil
}
