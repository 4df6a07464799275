package models

import "context"

// MediaStore is the operation surface every catalog backend must implement.
// The zero-copy engine is the production backend; an in-memory variant backs
// tests. Bulk operations are the primitive unit of work; single-item calls
// are wrappers over them and inherit their transaction semantics.
type MediaStore interface {
	// Close checkpoints and releases all resources.
	Close() error

	// BulkStore inserts new records, assigning fresh ids, and returns the
	// ids in input order. Duplicate canonical paths are rejected per-item
	// unless upsert is set, in which case they are routed to BulkUpdate.
	BulkStore(ctx context.Context, files []MediaFile, upsert bool) ([]uint64, error)

	// BulkUpdate rewrites existing records, resolved by canonical path.
	BulkUpdate(ctx context.Context, files []MediaFile) error

	// BulkRemove drops the records for the given canonical paths and
	// returns how many were actually removed.
	BulkRemove(ctx context.Context, paths []string) (int, error)

	// BulkGetByPaths resolves records preserving input order; misses are nil.
	BulkGetByPaths(ctx context.Context, paths []string) ([]*MediaFile, error)

	Store(ctx context.Context, file MediaFile) (uint64, error)
	Update(ctx context.Context, file MediaFile) error
	Remove(ctx context.Context, path string) error
	GetByPath(ctx context.Context, path string) (*MediaFile, error)
	GetByID(ctx context.Context, id uint64) (*MediaFile, error)

	// GetDirectoryListing returns the direct subdirectories and direct files
	// of parent, the files filtered by MIME prefix (empty prefix keeps all).
	GetDirectoryListing(ctx context.Context, parent, mimePrefix string) (*DirectoryListing, error)

	GetArtists(ctx context.Context) ([]MusicCategory, error)
	GetAlbums(ctx context.Context, artist string) ([]MusicCategory, error)
	GetGenres(ctx context.Context) ([]MusicCategory, error)
	GetYears(ctx context.Context) ([]MusicCategory, error)
	GetMusicByArtist(ctx context.Context, artist string) ([]MediaFile, error)
	GetMusicByAlbum(ctx context.Context, album string) ([]MediaFile, error)
	GetMusicByGenre(ctx context.Context, genre string) ([]MediaFile, error)
	GetMusicByYear(ctx context.Context, year uint32) ([]MediaFile, error)

	CreatePlaylist(ctx context.Context, name, description string) (uint64, error)
	DeletePlaylist(ctx context.Context, id uint64) error
	BulkAddToPlaylist(ctx context.Context, playlistID uint64, mediaFileIDs []uint64) error
	BulkRemoveFromPlaylist(ctx context.Context, playlistID uint64, mediaFileIDs []uint64) error
	GetPlaylists(ctx context.Context) ([]Playlist, error)
	GetPlaylistTracks(ctx context.Context, playlistID uint64) ([]MediaFile, error)

	// StreamAllMediaFiles returns a finite forward cursor over every live
	// record. The cursor is not restartable.
	StreamAllMediaFiles(ctx context.Context) MediaCursor

	// StreamFilesUnder streams live records whose canonical path begins with
	// the given canonical prefix.
	StreamFilesUnder(ctx context.Context, prefix string) MediaCursor

	// CleanupMissing removes every cataloged record whose canonical path is
	// absent from existing, in a single bulk remove.
	CleanupMissing(ctx context.Context, existing map[string]struct{}) (int, error)

	Stats() EngineStats
}

// MediaCursor is a forward-only iterator over media records.
type MediaCursor interface {
	// Next advances the cursor. It returns false when the sequence is
	// exhausted or an error occurred; check Err afterwards.
	Next() bool
	// File returns the record at the current position.
	File() MediaFile
	// Err returns the first error encountered, if any.
	Err() error
	// Close releases cursor resources. Safe to call more than once.
	Close() error
}
