package catalog

import (
	"context"
	"sort"
	"strings"

	"legato/internal/catalog/fb"
	"legato/internal/pathutil"
	"legato/pkg/models"
)

// materialize resolves id to a full record, consulting the cache first and
// decoding out of the mapping on a miss.
func (e *Engine) materialize(id uint64) (*models.MediaFile, error) {
	if f, ok := e.cache.get(id); ok {
		e.stats.recordCacheHit()
		return f, nil
	}
	e.stats.recordCacheMiss()

	loc, ok := e.idx.locationByID(id)
	if !ok {
		return nil, &Error{Code: ErrNotFound, Message: "no such record", ID: id}
	}
	f, err := e.readRecordAt(loc)
	if err != nil {
		return nil, err
	}
	e.cache.put(f)
	return f, nil
}

// readRecordAt decodes the record a location points at. Any framing or CRC
// mismatch on a committed batch is reported as corruption.
func (e *Engine) readRecordAt(loc location) (*models.MediaFile, error) {
	view, err := e.data.read(loc.Offset, loc.Length)
	if err != nil {
		return nil, err
	}
	hdr, payload, ok := verifyBatch(view)
	if !ok {
		return nil, newError(ErrCorrupt, "batch at offset %d failed verification", loc.Offset)
	}
	if loc.Index >= hdr.RecordCount {
		return nil, newError(ErrCorrupt, "record index %d out of range at offset %d", loc.Index, loc.Offset)
	}
	batch := decodeMediaBatch(payload)
	var rec fb.MediaFile
	if !fileAt(batch, int(loc.Index), &rec) {
		return nil, newError(ErrCorrupt, "record %d missing from batch at offset %d", loc.Index, loc.Offset)
	}
	f := fileToModel(&rec)
	return &f, nil
}

// GetByID resolves a record by its engine-assigned id.
func (e *Engine) GetByID(ctx context.Context, id uint64) (*models.MediaFile, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}
	e.stats.recordOp()
	return e.materialize(id)
}

// GetByPath resolves a record by any platform spelling of its path.
func (e *Engine) GetByPath(ctx context.Context, path string) (*models.MediaFile, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}
	e.stats.recordOp()
	canonical, err := pathutil.Canonicalize(path)
	if err != nil {
		return nil, &Error{Code: ErrInvalidFormat, Message: "cannot canonicalize path", Path: path, cause: err}
	}
	id, ok := e.idx.idByPath(canonical)
	if !ok {
		return nil, &Error{Code: ErrNotFound, Message: "path not cataloged", Path: canonical}
	}
	return e.materialize(id)
}

// BulkGetByPaths resolves records preserving input order. Unknown or invalid
// paths yield nil slots rather than failing the batch.
func (e *Engine) BulkGetByPaths(ctx context.Context, paths []string) ([]*models.MediaFile, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}
	e.stats.recordOp()
	out := make([]*models.MediaFile, len(paths))
	for i, p := range paths {
		if err := ctxErr(ctx); err != nil {
			return nil, err
		}
		canonical, err := pathutil.Canonicalize(p)
		if err != nil {
			continue
		}
		id, ok := e.idx.idByPath(canonical)
		if !ok {
			continue
		}
		f, err := e.materialize(id)
		if err != nil {
			if IsCode(err, ErrNotFound) {
				continue
			}
			return nil, err
		}
		out[i] = f
	}
	return out, nil
}

// GetDirectoryListing returns the direct subdirectories and files of parent.
// An empty parent lists the catalog roots; mimePrefix filters files by MIME
// type prefix ("audio/", "video/", ...), empty keeps all.
func (e *Engine) GetDirectoryListing(ctx context.Context, parent, mimePrefix string) (*models.DirectoryListing, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}
	e.stats.recordOp()

	canonical := ""
	if parent != "" {
		var err error
		canonical, err = pathutil.Canonicalize(parent)
		if err != nil {
			return nil, &Error{Code: ErrInvalidFormat, Message: "cannot canonicalize directory", Path: parent, cause: err}
		}
	}
	if !e.idx.hasDirectory(canonical) {
		return nil, &Error{Code: ErrNotFound, Message: "directory not cataloged", Path: canonical}
	}

	fileIDs, subdirs := e.idx.listDirectory(canonical)
	listing := &models.DirectoryListing{Subdirectories: subdirs}
	for _, id := range fileIDs {
		f, err := e.materialize(id)
		if err != nil {
			if IsCode(err, ErrNotFound) {
				continue
			}
			return nil, err
		}
		if mimePrefix != "" && !strings.HasPrefix(f.MimeType, mimePrefix) {
			continue
		}
		listing.Files = append(listing.Files, *f)
	}
	return listing, nil
}

func (e *Engine) GetArtists(ctx context.Context) ([]models.MusicCategory, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}
	e.stats.recordOp()
	return e.idx.artistCategories(), nil
}

// GetAlbums returns all albums, or the albums of one artist when artist is
// non-empty.
func (e *Engine) GetAlbums(ctx context.Context, artist string) ([]models.MusicCategory, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}
	e.stats.recordOp()
	if artist == "" {
		return e.idx.albumCategories(), nil
	}
	return e.idx.albumsForArtist(artist), nil
}

func (e *Engine) GetGenres(ctx context.Context) ([]models.MusicCategory, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}
	e.stats.recordOp()
	return e.idx.genreCategories(), nil
}

func (e *Engine) GetYears(ctx context.Context) ([]models.MusicCategory, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}
	e.stats.recordOp()
	return e.idx.yearCategories(), nil
}

func (e *Engine) GetMusicByArtist(ctx context.Context, artist string) ([]models.MediaFile, error) {
	return e.musicByIDs(ctx, e.idx.idsByArtist(artist))
}

func (e *Engine) GetMusicByAlbum(ctx context.Context, album string) ([]models.MediaFile, error) {
	return e.musicByIDs(ctx, e.idx.idsByAlbum(album))
}

func (e *Engine) GetMusicByGenre(ctx context.Context, genre string) ([]models.MediaFile, error) {
	return e.musicByIDs(ctx, e.idx.idsByGenre(genre))
}

func (e *Engine) GetMusicByYear(ctx context.Context, year uint32) ([]models.MediaFile, error) {
	return e.musicByIDs(ctx, e.idx.idsByYear(year))
}

// musicByIDs materializes a category id list ordered for playback: album,
// then track number, then title.
func (e *Engine) musicByIDs(ctx context.Context, ids []uint64) ([]models.MediaFile, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}
	e.stats.recordOp()
	out := make([]models.MediaFile, 0, len(ids))
	for _, id := range ids {
		f, err := e.materialize(id)
		if err != nil {
			if IsCode(err, ErrNotFound) {
				continue
			}
			return nil, err
		}
		out = append(out, *f)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Album != out[j].Album {
			return out[i].Album < out[j].Album
		}
		if out[i].TrackNumber != out[j].TrackNumber {
			return out[i].TrackNumber < out[j].TrackNumber
		}
		return out[i].Title < out[j].Title
	})
	return out, nil
}

// StreamAllMediaFiles returns a forward cursor over every live record, in
// unspecified order. The id set is pinned at call time; records removed
// mid-stream are skipped.
func (e *Engine) StreamAllMediaFiles(ctx context.Context) models.MediaCursor {
	var ids []uint64
	e.idx.forEachLocation(func(_ string, id uint64, _ location) {
		ids = append(ids, id)
	})
	return &idCursor{engine: e, ctx: ctx, ids: ids}
}

// StreamFilesUnder streams the live records at or below the given canonical
// directory prefix.
func (e *Engine) StreamFilesUnder(ctx context.Context, prefix string) models.MediaCursor {
	canonical, err := pathutil.Canonicalize(prefix)
	if err != nil {
		return &idCursor{err: &Error{Code: ErrInvalidFormat, Message: "cannot canonicalize prefix", Path: prefix, cause: err}}
	}
	return &idCursor{engine: e, ctx: ctx, ids: e.idx.idsUnder(canonical)}
}

// idCursor walks a pinned id list, materializing lazily.
type idCursor struct {
	engine *Engine
	ctx    context.Context
	ids    []uint64
	pos    int
	cur    models.MediaFile
	err    error
	closed bool
}

func (c *idCursor) Next() bool {
	if c.err != nil || c.closed {
		return false
	}
	for c.pos < len(c.ids) {
		if err := ctxErr(c.ctx); err != nil {
			c.err = err
			return false
		}
		id := c.ids[c.pos]
		c.pos++
		f, err := c.engine.materialize(id)
		if err != nil {
			if IsCode(err, ErrNotFound) {
				continue
			}
			c.err = err
			return false
		}
		c.cur = *f
		return true
	}
	return false
}

func (c *idCursor) File() models.MediaFile { return c.cur }
func (c *idCursor) Err() error             { return c.err }

func (c *idCursor) Close() error {
	c.closed = true
	return nil
}
