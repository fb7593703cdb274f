package ingest

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"botadmin/internal/audit"
	"botadmin/internal/domain"
)

var ingestPatterns = []string{".html", ".htm", ".txt", ".md"}

// Stats summarizes one ingestion run.
type Stats struct {
	FilesProcessed int      `json:"files_processed"`
	ChunksCreated  int      `json:"chunks_created"`
	Errors         []string `json:"errors,omitempty"`
}

// Service reads registered sources, chunks their content and replaces the
// source's documents in the vector store.
type Service struct {
	sources SourceStore
	chunker *Chunker
	store   VectorStore
	audit   *audit.Logger
	c       *cron.Cron
}

func NewService(sources SourceStore, store VectorStore, auditLog *audit.Logger) *Service {
	return &Service{
		sources: sources,
		chunker: NewChunker(),
		store:   store,
		audit:   auditLog,
		c:       cron.New(),
	}
}

// IngestSource re-ingests one registered source end to end. Old documents
// for the source are removed first so a shrunk site doesn't leave orphans.
func (s *Service) IngestSource(ctx context.Context, id string) (Stats, error) {
	src, err := s.sources.Get(ctx, id)
	if err != nil {
		return Stats{}, err
	}

	stats, err := s.ingest(ctx, src)
	s.record(ctx, src, stats, err)
	if err != nil {
		return stats, err
	}

	if merr := s.sources.MarkIngested(ctx, src.ID, time.Now().UTC(), stats.ChunksCreated); merr != nil {
		log.Warn().Err(merr).Str("source", src.ID).Msg("failed to record ingestion time")
	}
	return stats, nil
}

// RefreshAll re-ingests every enabled source; used by the cron schedule.
func (s *Service) RefreshAll(ctx context.Context) {
	sources, err := s.sources.ListEnabled(ctx)
	if err != nil {
		log.Error().Err(err).Msg("failed to list content sources")
		return
	}
	for _, src := range sources {
		if _, err := s.IngestSource(ctx, src.ID); err != nil {
			log.Error().Err(err).Str("source", src.ID).Msg("scheduled ingestion failed")
		}
	}
}

// Schedule registers the periodic refresh and starts the cron runner.
func (s *Service) Schedule(spec string) error {
	if _, err := s.c.AddFunc(spec, func() { s.RefreshAll(context.Background()) }); err != nil {
		return err
	}
	s.c.Start()
	return nil
}

func (s *Service) Stop() { s.c.Stop() }

func (s *Service) ingest(ctx context.Context, src domain.ContentSource) (Stats, error) {
	if err := s.store.DeleteBySource(ctx, src.Collection, src.Name); err != nil {
		return Stats{}, fmt.Errorf("clear old documents: %w", err)
	}

	switch src.SourceType {
	case "file":
		return s.ingestFiles(ctx, src, []string{src.Location})
	case "dir":
		files, err := collectFiles(src.Location)
		if err != nil {
			return Stats{}, err
		}
		return s.ingestFiles(ctx, src, files)
	default:
		return Stats{}, fmt.Errorf("unsupported source type %q", src.SourceType)
	}
}

func (s *Service) ingestFiles(ctx context.Context, src domain.ContentSource, files []string) (Stats, error) {
	var stats Stats
	for _, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			stats.Errors = append(stats.Errors, fmt.Sprintf("%s: %v", path, err))
			continue
		}
		chunks := s.chunker.Split(src.Name, filepath.Base(path), string(data))
		if len(chunks) == 0 {
			continue
		}
		if err := s.store.UpsertChunks(ctx, src.Collection, chunks); err != nil {
			stats.Errors = append(stats.Errors, fmt.Sprintf("%s: %v", path, err))
			continue
		}
		stats.FilesProcessed++
		stats.ChunksCreated += len(chunks)
	}
	log.Info().
		Str("source", src.Name).
		Int("files", stats.FilesProcessed).
		Int("chunks", stats.ChunksCreated).
		Msg("content ingested")
	return stats, nil
}

func (s *Service) record(ctx context.Context, src domain.ContentSource, stats Stats, cause error) {
	if s.audit == nil {
		return
	}
	entry := audit.Entry{
		ActionType: "content",
		ActionName: "ingest_source",
		Success:    cause == nil,
		Input:      map[string]string{"source_id": src.ID, "source": src.Name, "collection": src.Collection},
		Output:     stats,
	}
	if cause != nil {
		entry.Error = cause.Error()
	}
	if err := s.audit.Record(ctx, entry); err != nil {
		log.Warn().Err(err).Str("source", src.ID).Msg("audit record dropped")
	}
}

func collectFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		for _, p := range ingestPatterns {
			if ext == p {
				files = append(files, path)
				break
			}
		}
		return nil
	})
	return files, err
}
