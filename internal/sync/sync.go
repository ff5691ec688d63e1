// Package sync imports exam documents from a library directory, optionally a
// git repository, into exam history.
package sync

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/conorfennell/studydeck/internal/domain"
	"github.com/conorfennell/studydeck/internal/exam"
	"github.com/conorfennell/studydeck/internal/gitsource"
	"github.com/conorfennell/studydeck/internal/knol"
	"github.com/conorfennell/studydeck/internal/parser"
)

// IDPrefix starts the id of every exam imported from a library.
const IDPrefix = "lib_"

// ExamStore is the part of the content store that sync needs.
type ExamStore interface {
	GetExam(ctx context.Context, id string) (*domain.ExamRecord, error)
	PutExam(ctx context.Context, rec domain.ExamRecord) error
}

// Source is a library to sync: a local directory or a git URL.
type Source struct {
	Dir  string
	Repo string
}

// Report summarizes one sync run.
type Report struct {
	Path      string
	Imported  []string
	Unchanged int
	Errors    []error
}

// Syncer imports library exams into a store.
type Syncer struct {
	store    ExamStore
	reposDir string
	logger   *slog.Logger
	now      func() time.Time
}

// New creates a Syncer that clones git libraries under reposDir.
func New(store ExamStore, reposDir string, logger *slog.Logger) *Syncer {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Syncer{store: store, reposDir: reposDir, logger: logger, now: time.Now}
}

// Run syncs the source. A git source is cloned or pulled first. Every valid
// exam document found (*.json, or *.md in the Q:/A: format) is added to
// history under a content-derived id; exams already present are left alone
// and nothing is ever deleted. Invalid files are reported in the Report and
// do not stop the run.
func (s *Syncer) Run(ctx context.Context, src Source) (*Report, error) {
	dir := src.Dir
	if src.Repo != "" {
		if err := os.MkdirAll(s.reposDir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create repos directory: %w", err)
		}
		localPath, err := GitURLToLocalPath(s.reposDir, src.Repo)
		if err != nil {
			return nil, err
		}
		if err := gitsource.Sync(ctx, src.Repo, localPath, s.logger); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrCollaborator, err)
		}
		dir = localPath
	}
	if dir == "" {
		return nil, fmt.Errorf("%w: no library directory or repository given", domain.ErrValidation)
	}

	s.logger.Info("Syncing exam library", "path", dir)
	report := &Report{Path: dir}

	walkErr := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		if !isExamFile(d.Name()) {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		id, imported, err := s.importFile(ctx, path)
		if err != nil {
			s.logger.Warn("Skipping exam file", "path", path, "error", err)
			report.Errors = append(report.Errors, fmt.Errorf("%s: %w", path, err))
			return nil
		}
		if imported {
			s.logger.Info("New exam found, inserting...", "id", id, "path", path)
			report.Imported = append(report.Imported, id)
		} else {
			report.Unchanged++
		}
		return nil
	})
	if walkErr != nil {
		return report, fmt.Errorf("error walking directory %s: %w", dir, walkErr)
	}

	s.logger.Info("Sync complete",
		"path", dir,
		"imported", len(report.Imported),
		"unchanged", report.Unchanged,
		"errors", len(report.Errors),
	)
	return report, nil
}

func isExamFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".json", ".md":
		return true
	}
	return false
}

// ReadFile reads an exam document from a JSON file or a Markdown file in the
// Q:/A: format, and validates it.
func ReadFile(path string) (domain.Document, error) {
	if strings.EqualFold(filepath.Ext(path), ".md") {
		doc, err := parser.ParseFile(path)
		if err != nil {
			return domain.Document{}, err
		}
		if err := exam.Validate(doc); err != nil {
			return domain.Document{}, fmt.Errorf("%s: %w", path, err)
		}
		return doc, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return domain.Document{}, err
	}
	defer f.Close()
	return exam.Decode(f)
}

func (s *Syncer) importFile(ctx context.Context, path string) (string, bool, error) {
	doc, err := ReadFile(path)
	if err != nil {
		return "", false, err
	}
	fp, err := knol.FingerprintDocument(doc)
	if err != nil {
		return "", false, err
	}
	id := LibraryID(fp)

	existing, err := s.store.GetExam(ctx, id)
	if err != nil {
		return "", false, err
	}
	if existing != nil {
		return id, false, nil
	}
	if err := s.store.PutExam(ctx, exam.NewRecord(doc, id, s.now())); err != nil {
		return "", false, err
	}
	return id, true, nil
}

// LibraryID returns the exam id for a library document with the given fingerprint.
func LibraryID(fingerprint string) string {
	if len(fingerprint) > 16 {
		fingerprint = fingerprint[:16]
	}
	return IDPrefix + fingerprint
}

// GitURLToLocalPath maps an https or scp-style git URL to a directory under baseDir.
func GitURLToLocalPath(baseDir, repoURL string) (string, error) {
	parsedURL, err := url.Parse(repoURL)
	if err != nil || (parsedURL.Scheme != "https" && parsedURL.Scheme != "http") {
		if strings.Contains(repoURL, "@") {
			parts := strings.Split(repoURL, ":")
			if len(parts) == 2 {
				hostAndUser := strings.Split(parts[0], "@")
				if len(hostAndUser) == 2 {
					host := hostAndUser[1]
					repoPath := strings.TrimSuffix(parts[1], ".git")
					return filepath.Join(baseDir, host, repoPath), nil
				}
			}
		}
		return "", fmt.Errorf("%w: could not parse git URL: %s", domain.ErrValidation, repoURL)
	}

	sanitizedPath := strings.TrimSuffix(parsedURL.Path, ".git")
	return filepath.Join(baseDir, parsedURL.Host, sanitizedPath), nil
}
