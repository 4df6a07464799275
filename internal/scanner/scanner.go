// Package scanner keeps the catalog in sync with the filesystem. A full scan
// walks a media root, diffs the walk result against the cataloged records
// under the same root, and applies the difference as bulk remove, update and
// insert calls. Incremental reconciliation reuses the same diff for a small
// set of paths handed over by the file watcher.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"mime"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/jpillora/backoff"
	"github.com/sirupsen/logrus"

	"legato/internal/catalog"
	"legato/internal/pathutil"
	"legato/pkg/models"
)

// ErrScanAborted is returned when a bulk catalog write keeps failing after
// all retries. The catalog is left in its pre-batch state.
var ErrScanAborted = errors.New("scan aborted")

const (
	retryAttempts = 5
	retryMin      = 100 * time.Millisecond
	retryMax      = 5 * time.Second

	// walkYieldInterval is how many files the walk visits between
	// cancellation checks.
	walkYieldInterval = 1000
)

// MetadataFiller fills the audio fields of a media file shell from the file
// on disk. Implementations must tolerate non-audio and unreadable files.
type MetadataFiller interface {
	Fill(path string, file *models.MediaFile) error
}

// Options configures a Scanner.
type Options struct {
	// Extensions is the allow-list of file extensions to catalog,
	// lowercase with leading dot.
	Extensions []string
	// ExcludePatterns are filepath.Match patterns applied to base names;
	// matching files and directories are skipped.
	ExcludePatterns []string
	// FollowSymlinks resolves symbolic links before canonicalization.
	FollowSymlinks bool
}

// Summary describes one completed scan or reconciliation.
type Summary struct {
	ScanID    string
	Root      string
	FilesSeen uint64
	Inserted  uint64
	Updated   uint64
	Removed   uint64
	Skipped   uint64
	Duration  time.Duration
}

// Scanner diffs filesystem state against a MediaStore and applies the
// difference in bulk.
type Scanner struct {
	store  models.MediaStore
	filler MetadataFiller
	logger *logrus.Logger

	extensions map[string]struct{}
	excludes   []string
	follow     bool

	filesSeen atomic.Uint64
	inserted  atomic.Uint64
	updated   atomic.Uint64
	removed   atomic.Uint64
	skipped   atomic.Uint64
}

// NewScanner creates a scanner over the given store. filler may be nil, in
// which case records carry only filesystem attributes.
func NewScanner(store models.MediaStore, filler MetadataFiller, opts Options) *Scanner {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	exts := make(map[string]struct{}, len(opts.Extensions))
	for _, e := range opts.Extensions {
		exts[strings.ToLower(e)] = struct{}{}
	}
	return &Scanner{
		store:      store,
		filler:     filler,
		logger:     logger,
		extensions: exts,
		excludes:   opts.ExcludePatterns,
		follow:     opts.FollowSymlinks,
	}
}

// Progress returns the scanner's running counters. The counters accumulate
// across scans.
func (s *Scanner) Progress() Summary {
	return Summary{
		FilesSeen: s.filesSeen.Load(),
		Inserted:  s.inserted.Load(),
		Updated:   s.updated.Load(),
		Removed:   s.removed.Load(),
		Skipped:   s.skipped.Load(),
	}
}

// Scan walks root, diffs the result against the catalog records under the
// same root and applies the difference. Per-file errors are logged and
// skipped; a persistent catalog write failure aborts with ErrScanAborted.
func (s *Scanner) Scan(ctx context.Context, root string) (*Summary, error) {
	scanID := uuid.NewString()
	start := time.Now()
	log := s.logger.WithFields(logrus.Fields{"scan_id": scanID, "root": root})
	log.Info("Starting library scan")

	current, err := s.walk(ctx, root, log)
	if err != nil {
		return nil, err
	}

	canonicalRoot, err := pathutil.CanonicalizeFile(root)
	if err != nil {
		return nil, err
	}
	known, err := s.knownUnder(ctx, canonicalRoot)
	if err != nil {
		return nil, err
	}

	toInsert, toUpdate, toRemove := diff(current, known)
	summary, err := s.apply(ctx, scanID, toInsert, toUpdate, toRemove)
	if err != nil {
		return nil, err
	}
	summary.ScanID = scanID
	summary.Root = canonicalRoot
	summary.FilesSeen = uint64(len(current))
	summary.Duration = time.Since(start)

	log.WithFields(logrus.Fields{
		"files_seen": summary.FilesSeen,
		"inserted":   summary.Inserted,
		"updated":    summary.Updated,
		"removed":    summary.Removed,
		"duration":   summary.Duration.String(),
	}).Info("Library scan complete")
	return summary, nil
}

// ReconcilePaths runs the scan diff for an explicit set of paths, stat'ing
// each one to decide whether it is an insert, update or removal. The watcher
// hands its coalesced event set here.
func (s *Scanner) ReconcilePaths(ctx context.Context, paths []string) (*Summary, error) {
	scanID := uuid.NewString()
	start := time.Now()
	log := s.logger.WithFields(logrus.Fields{"scan_id": scanID, "paths": len(paths)})
	log.Info("Reconciling watcher paths")

	current := make(map[string]*models.MediaFile)
	var gone []string
	for _, p := range paths {
		canonical, err := pathutil.CanonicalizeFile(p)
		if err != nil {
			log.WithError(err).WithField("path", p).Warn("Skipping unresolvable path")
			s.skipped.Add(1)
			continue
		}
		info, err := os.Stat(p)
		if err != nil {
			if os.IsNotExist(err) {
				gone = append(gone, canonical)
			} else {
				log.WithError(err).WithField("path", p).Warn("Skipping unreadable path")
				s.skipped.Add(1)
			}
			continue
		}
		if info.IsDir() || !s.wantFile(p) {
			continue
		}
		current[canonical] = s.shell(p, canonical, info)
	}

	canonicalPaths := make([]string, 0, len(current)+len(gone))
	for p := range current {
		canonicalPaths = append(canonicalPaths, p)
	}
	canonicalPaths = append(canonicalPaths, gone...)

	known := make(map[string]*models.MediaFile)
	if len(canonicalPaths) > 0 {
		existing, err := s.store.BulkGetByPaths(ctx, canonicalPaths)
		if err != nil {
			return nil, err
		}
		for i, f := range existing {
			if f != nil {
				known[canonicalPaths[i]] = f
			}
		}
	}

	toInsert, toUpdate, toRemove := diff(current, known)
	summary, err := s.apply(ctx, scanID, toInsert, toUpdate, toRemove)
	if err != nil {
		return nil, err
	}
	summary.ScanID = scanID
	summary.FilesSeen = uint64(len(current))
	summary.Duration = time.Since(start)

	log.WithFields(logrus.Fields{
		"inserted": summary.Inserted,
		"updated":  summary.Updated,
		"removed":  summary.Removed,
	}).Info("Reconciliation complete")
	return summary, nil
}

// walk enumerates media files under root depth-first and returns them keyed
// by canonical path. Unreadable subtrees are logged and skipped.
func (s *Scanner) walk(ctx context.Context, root string, log *logrus.Entry) (map[string]*models.MediaFile, error) {
	current := make(map[string]*models.MediaFile)
	visited := 0

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			log.WithError(err).WithField("path", path).Warn("Skipping unreadable entry")
			s.skipped.Add(1)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		visited++
		if visited%walkYieldInterval == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}

		name := filepath.Base(path)
		if s.excluded(name) || strings.HasPrefix(name, ".") {
			if d.IsDir() && path != root {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}

		resolved := path
		if s.follow && d.Type()&fs.ModeSymlink != 0 {
			resolved, err = filepath.EvalSymlinks(path)
			if err != nil {
				log.WithError(err).WithField("path", path).Warn("Skipping broken symlink")
				s.skipped.Add(1)
				return nil
			}
		}
		if !s.wantFile(resolved) {
			return nil
		}

		info, err := os.Stat(resolved)
		if err != nil {
			log.WithError(err).WithField("path", path).Warn("Skipping unstatable file")
			s.skipped.Add(1)
			return nil
		}
		canonical, err := pathutil.CanonicalizeFile(resolved)
		if err != nil {
			log.WithError(err).WithField("path", path).Warn("Skipping uncanonicalizable path")
			s.skipped.Add(1)
			return nil
		}

		current[canonical] = s.shell(resolved, canonical, info)
		s.filesSeen.Add(1)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return current, nil
}

// shell builds a MediaFile carrying only filesystem attributes.
func (s *Scanner) shell(path, canonical string, info os.FileInfo) *models.MediaFile {
	return &models.MediaFile{
		Path:                path,
		CanonicalPath:       canonical,
		CanonicalParentPath: pathutil.Parent(canonical),
		Filename:            pathutil.Filename(canonical),
		Size:                info.Size(),
		Modified:            info.ModTime().Unix(),
		MimeType:            s.detectMime(path),
	}
}

// detectMime maps the extension first and falls back to content sniffing for
// extensions the mime table does not know.
func (s *Scanner) detectMime(path string) string {
	if mt := mime.TypeByExtension(strings.ToLower(filepath.Ext(path))); mt != "" {
		if i := strings.IndexByte(mt, ';'); i >= 0 {
			mt = mt[:i]
		}
		return mt
	}
	if mt, err := mimetype.DetectFile(path); err == nil {
		return mt.String()
	}
	return "application/octet-stream"
}

func (s *Scanner) wantFile(path string) bool {
	if len(s.extensions) == 0 {
		return true
	}
	_, ok := s.extensions[strings.ToLower(filepath.Ext(path))]
	return ok
}

func (s *Scanner) excluded(name string) bool {
	for _, pattern := range s.excludes {
		if ok, err := filepath.Match(pattern, name); err == nil && ok {
			return true
		}
	}
	return strings.HasSuffix(name, ".tmp")
}

// knownUnder streams the cataloged records below root into a map.
func (s *Scanner) knownUnder(ctx context.Context, root string) (map[string]*models.MediaFile, error) {
	cursor := s.store.StreamFilesUnder(ctx, root)
	defer cursor.Close()

	known := make(map[string]*models.MediaFile)
	for cursor.Next() {
		f := cursor.File()
		known[f.CanonicalPath] = &f
	}
	if err := cursor.Err(); err != nil {
		return nil, err
	}
	return known, nil
}

// diff splits current against known into the three bulk sets. A known record
// is updated when its size changed or the file was modified after the
// cataloged mtime.
func diff(current, known map[string]*models.MediaFile) (toInsert, toUpdate []*models.MediaFile, toRemove []string) {
	for path, f := range current {
		old, ok := known[path]
		if !ok {
			toInsert = append(toInsert, f)
			continue
		}
		if f.Size != old.Size || f.Modified > old.Modified {
			toUpdate = append(toUpdate, f)
		}
	}
	for path := range known {
		if _, ok := current[path]; !ok {
			toRemove = append(toRemove, path)
		}
	}
	return toInsert, toUpdate, toRemove
}

func deref(files []*models.MediaFile) []models.MediaFile {
	out := make([]models.MediaFile, len(files))
	for i, f := range files {
		out[i] = *f
	}
	return out
}

// apply issues the three bulk calls in remove, update, insert order, filling
// metadata for the records that will be written.
func (s *Scanner) apply(ctx context.Context, scanID string, toInsert, toUpdate []*models.MediaFile, toRemove []string) (*Summary, error) {
	summary := &Summary{}
	log := s.logger.WithField("scan_id", scanID)

	if len(toRemove) > 0 {
		if err := s.retryBulk(ctx, log, "bulk_remove", func() error {
			n, err := s.store.BulkRemove(ctx, toRemove)
			if err == nil {
				summary.Removed = uint64(n)
				s.removed.Add(uint64(n))
			}
			return err
		}); err != nil {
			return nil, err
		}
	}

	s.fillMetadata(ctx, log, toUpdate)
	if len(toUpdate) > 0 {
		if err := s.retryBulk(ctx, log, "bulk_update", func() error {
			return s.store.BulkUpdate(ctx, deref(toUpdate))
		}); err != nil {
			return nil, err
		}
		summary.Updated = uint64(len(toUpdate))
		s.updated.Add(uint64(len(toUpdate)))
	}

	s.fillMetadata(ctx, log, toInsert)
	if len(toInsert) > 0 {
		if err := s.retryBulk(ctx, log, "bulk_store", func() error {
			ids, err := s.store.BulkStore(ctx, deref(toInsert), false)
			if err != nil {
				return err
			}
			for _, id := range ids {
				if id != 0 {
					summary.Inserted++
				}
			}
			return nil
		}); err != nil {
			return nil, err
		}
		s.inserted.Add(summary.Inserted)
	}

	return summary, nil
}

// fillMetadata runs the filler over the given records with a worker pool.
// Extraction errors are logged and leave the shell attributes in place.
func (s *Scanner) fillMetadata(ctx context.Context, log *logrus.Entry, files []*models.MediaFile) {
	if s.filler == nil || len(files) == 0 {
		return
	}

	jobs := make(chan *models.MediaFile, 100)
	var wg sync.WaitGroup
	workers := runtime.NumCPU()
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for f := range jobs {
				if err := s.filler.Fill(f.Path, f); err != nil {
					log.WithError(err).WithField("path", f.Path).Warn("Metadata extraction failed")
				}
			}
		}()
	}

	for _, f := range files {
		if ctx.Err() != nil {
			break
		}
		jobs <- f
	}
	close(jobs)
	wg.Wait()
}

// retryBulk runs op, retrying transaction failures with exponential backoff.
// Any other error, and exhaustion of the retry budget, surface immediately.
func (s *Scanner) retryBulk(ctx context.Context, log *logrus.Entry, name string, op func() error) error {
	b := &backoff.Backoff{Min: retryMin, Max: retryMax, Factor: 2, Jitter: true}

	var err error
	for attempt := 1; attempt <= retryAttempts; attempt++ {
		err = op()
		if err == nil {
			return nil
		}
		if !catalog.IsCode(err, catalog.ErrTransactionFailed) {
			return err
		}
		if attempt == retryAttempts {
			break
		}
		delay := b.Duration()
		log.WithError(err).WithFields(logrus.Fields{
			"op":      name,
			"attempt": attempt,
			"retry":   delay.String(),
		}).Warn("Bulk catalog write failed, retrying")
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return fmt.Errorf("%w: %s: %v", ErrScanAborted, name, err)
}
