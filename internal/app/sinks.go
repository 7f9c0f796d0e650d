package app

import (
	"context"
	"errors"
	"log/slog"

	"github.com/deusflow/topicnews/internal/config"
	"github.com/deusflow/topicnews/internal/storage"
	"github.com/deusflow/topicnews/internal/store"
)

// Sink receives the store after every commit. Errors are logged by the
// caller and never fail a refresh.
type Sink interface {
	Name() string
	Persist(ctx context.Context, snap store.Snapshot, committed []string) error
}

// SnapshotSink rewrites the JSON snapshot file
type SnapshotSink struct {
	file *storage.SnapshotFile
}

func (s *SnapshotSink) Name() string { return "snapshot" }

func (s *SnapshotSink) Persist(_ context.Context, snap store.Snapshot, _ []string) error {
	return s.file.Save(snap)
}

// ArchiveSink upserts the committed sections into Postgres
type ArchiveSink struct {
	archive *storage.PostgresArchive
}

func (a *ArchiveSink) Name() string { return "postgres" }

func (a *ArchiveSink) Persist(ctx context.Context, snap store.Snapshot, committed []string) error {
	var errs []error
	for _, id := range committed {
		if err := a.archive.Archive(ctx, id, snap.Sections[id].Articles); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// fanOut returns a commit hook that hands one snapshot to every sink.
func fanOut(st *store.SectionStore, log *slog.Logger, sinks ...Sink) func(ctx context.Context, scope string, committed []string) {
	return func(ctx context.Context, scope string, committed []string) {
		snap := st.Snapshot()
		for _, s := range sinks {
			if err := s.Persist(ctx, snap, committed); err != nil {
				log.Error("sink failed", "sink", s.Name(), "scope", scope, "error", err)
				continue
			}
			log.Debug("sink persisted", "sink", s.Name(), "scope", scope, "sections", len(committed))
		}
	}
}

// baseline keeps only the sections of configured categories and resets them
// to generation 0 so any live refresh supersedes them.
func baseline(snap store.Snapshot, categories []config.Category) store.Snapshot {
	known := make(map[string]struct{}, len(categories))
	for _, c := range categories {
		known[c.ID] = struct{}{}
	}

	out := store.Snapshot{GeneratedAt: snap.GeneratedAt, Sections: make(map[string]store.Section, len(snap.Sections))}
	for id, sec := range snap.Sections {
		if _, ok := known[id]; !ok {
			continue
		}
		sec.Generation = 0
		out.Sections[id] = sec
	}
	return out
}
