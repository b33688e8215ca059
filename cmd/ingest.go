package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"docbuddy/src/core/knowledgebase"
	"docbuddy/src/fsutil"
	"docbuddy/src/infrastructure/log"
)

var (
	ingestStore       string
	ingestConcurrency int
	ingestExtensions  []string
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [file or directory]...",
	Short: "Ingest local text files into a vector store",
	Long: `Ingest splits every matching file into chunks and adds them to the
vector store. Directories are walked recursively.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)
	ingestCmd.Flags().StringVar(&ingestStore, "store", "", "vector store path (default rag.default_store)")
	ingestCmd.Flags().IntVar(&ingestConcurrency, "concurrency", 4, "number of files ingested in parallel")
	ingestCmd.Flags().StringSliceVar(&ingestExtensions, "ext", []string{".txt", ".md"}, "file extensions picked up in directories")
}

func runIngest(cmd *cobra.Command, args []string) error {
	if ingestConcurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1")
	}
	store := ingestStore
	if store == "" {
		store = viper.GetString("rag.default_store")
	}

	fs := fsutil.NewLocalFileStore()
	files, err := collectFiles(fs, args)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no files matching %v found", ingestExtensions)
	}

	a, err := buildApp()
	if err != nil {
		return err
	}
	defer a.Close()

	bar := progressbar.Default(int64(len(files)), "ingesting")
	var chunks atomic.Int64

	g, ctx := errgroup.WithContext(cmd.Context())
	g.SetLimit(ingestConcurrency)
	for _, path := range files {
		g.Go(func() error {
			content, err := fs.ReadFile(path)
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", path, err)
			}

			n, err := a.ingestion.Ingest(ctx, knowledgebase.IngestRequest{
				Content:      content,
				Source:       filepath.Base(path),
				StorePath:    store,
				ChunkSize:    viper.GetInt("chunker.size"),
				ChunkOverlap: viper.GetInt("chunker.overlap"),
			})
			if err != nil {
				return fmt.Errorf("failed to ingest %s: %w", path, err)
			}

			chunks.Add(int64(n))
			bar.Add(1)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	bar.Finish()

	log.Info("Ingestion finished", "files", len(files), "chunks", chunks.Load(), "store", store)
	fmt.Fprintf(cmd.OutOrStdout(), "Ingested %d files into %s (%d chunks)\n", len(files), store, chunks.Load())
	return nil
}

// collectFiles expands directories into the files they contain
func collectFiles(fs fsutil.FileStore, args []string) ([]string, error) {
	var files []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			files = append(files, arg)
			continue
		}

		found, err := fs.ListFiles(arg, ingestExtensions...)
		if err != nil {
			return nil, fmt.Errorf("failed to list %s: %w", arg, err)
		}
		files = append(files, found...)
	}
	return files, nil
}
