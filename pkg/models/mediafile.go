package models

// MediaFile represents one scanned media item in the catalog. The engine
// assigns ID on first store and never reuses it. CanonicalPath is the unique
// key; Path keeps the original platform form for streaming I/O.
type MediaFile struct {
	ID                  uint64 `json:"id"`
	Path                string `json:"-"` // don't expose raw file path to clients
	CanonicalPath       string `json:"canonicalPath"`
	CanonicalParentPath string `json:"canonicalParentPath"`
	Filename            string `json:"filename"`
	Size                int64  `json:"size"`
	Modified            int64  `json:"modified"` // seconds since epoch
	MimeType            string `json:"mimeType"`

	// Optional audio fields, filled by the metadata collaborator.
	DurationMs  uint64 `json:"durationMs,omitempty"`
	Title       string `json:"title,omitempty"`
	Artist      string `json:"artist,omitempty"`
	Album       string `json:"album,omitempty"`
	Genre       string `json:"genre,omitempty"`
	TrackNumber uint32 `json:"trackNumber,omitempty"`
	Year        uint32 `json:"year,omitempty"`
	AlbumArtist string `json:"albumArtist,omitempty"`

	CreatedAt int64 `json:"createdAt"`
	UpdatedAt int64 `json:"updatedAt"`
}

// HasAudioFields reports whether any categorical music field is set, which
// determines membership in the music indexes.
func (m *MediaFile) HasAudioFields() bool {
	return m.Artist != "" || m.Album != "" || m.Genre != "" || m.Year != 0
}

// Playlist represents a user-created playlist.
type Playlist struct {
	ID          uint64 `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	CreatedAt   int64  `json:"createdAt"`
	UpdatedAt   int64  `json:"updatedAt"`
	TrackCount  int    `json:"trackCount"`
}

// PlaylistEntry binds a media file into a playlist at a position.
type PlaylistEntry struct {
	PlaylistID  uint64 `json:"playlistId"`
	MediaFileID uint64 `json:"mediaFileId"`
	Position    uint32 `json:"position"`
}

// MusicCategory is a derived (key, count) view over one of the categorical
// music indexes: artists, albums, genres or years.
type MusicCategory struct {
	Key   string `json:"key"`
	Count int    `json:"count"`
}

// DirectoryListing is the ephemeral result of a browse query: the direct
// subdirectories (canonical paths) and direct files of one directory.
type DirectoryListing struct {
	Subdirectories []string    `json:"subdirectories"`
	Files          []MediaFile `json:"files"`
}

// EngineStats is a point-in-time snapshot of the engine's atomic counters.
type EngineStats struct {
	TotalFiles          uint64  `json:"totalFiles"`
	TotalOperations     uint64  `json:"totalOperations"`
	BulkOperations      uint64  `json:"bulkOperations"`
	TotalFilesProcessed uint64  `json:"totalFilesProcessed"`
	CacheHits           uint64  `json:"cacheHits"`
	CacheMisses         uint64  `json:"cacheMisses"`
	CacheHitRate        float64 `json:"cacheHitRate"`
	CurrentThroughput   float64 `json:"currentThroughput"` // files/sec, EWMA
	PeakThroughput      float64 `json:"peakThroughput"`
	MemoryBytes         uint64  `json:"memoryBytes"`
	PeakMemoryBytes     uint64  `json:"peakMemoryBytes"`
}
