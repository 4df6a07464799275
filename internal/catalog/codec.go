package catalog

import (
	flatbuffers "github.com/google/flatbuffers/go"

	"legato/internal/catalog/fb"
	"legato/pkg/models"
)

// encodeMediaBatch serializes files into a single MediaFileBatch payload.
// Strings are interned per batch so repeated artists, albums and parent
// directories are stored once.
func encodeMediaBatch(batchID uint64, files []*models.MediaFile) []byte {
	builder := flatbuffers.NewBuilder(256 * len(files))
	interned := make(map[string]flatbuffers.UOffsetT)
	str := func(s string) flatbuffers.UOffsetT {
		if s == "" {
			return 0
		}
		if off, ok := interned[s]; ok {
			return off
		}
		off := builder.CreateString(s)
		interned[s] = off
		return off
	}

	offsets := make([]flatbuffers.UOffsetT, len(files))
	for i, f := range files {
		path := str(f.Path)
		canonical := str(f.CanonicalPath)
		parent := str(f.CanonicalParentPath)
		filename := str(f.Filename)
		mime := str(f.MimeType)
		title := str(f.Title)
		artist := str(f.Artist)
		album := str(f.Album)
		genre := str(f.Genre)
		albumArtist := str(f.AlbumArtist)

		fb.MediaFileStart(builder)
		fb.MediaFileAddId(builder, f.ID)
		fb.MediaFileAddPath(builder, path)
		fb.MediaFileAddCanonicalPath(builder, canonical)
		fb.MediaFileAddCanonicalParentPath(builder, parent)
		fb.MediaFileAddFilename(builder, filename)
		fb.MediaFileAddSize(builder, f.Size)
		fb.MediaFileAddModified(builder, f.Modified)
		fb.MediaFileAddMimeType(builder, mime)
		fb.MediaFileAddDurationMs(builder, f.DurationMs)
		fb.MediaFileAddTitle(builder, title)
		fb.MediaFileAddArtist(builder, artist)
		fb.MediaFileAddAlbum(builder, album)
		fb.MediaFileAddGenre(builder, genre)
		fb.MediaFileAddTrackNumber(builder, f.TrackNumber)
		fb.MediaFileAddYear(builder, f.Year)
		fb.MediaFileAddAlbumArtist(builder, albumArtist)
		fb.MediaFileAddCreatedAt(builder, f.CreatedAt)
		fb.MediaFileAddUpdatedAt(builder, f.UpdatedAt)
		offsets[i] = fb.MediaFileEnd(builder)
	}

	fb.MediaFileBatchStartFilesVector(builder, len(offsets))
	for i := len(offsets) - 1; i >= 0; i-- {
		builder.PrependUOffsetT(offsets[i])
	}
	filesVec := builder.EndVector(len(offsets))

	fb.MediaFileBatchStart(builder)
	fb.MediaFileBatchAddBatchId(builder, batchID)
	fb.MediaFileBatchAddFiles(builder, filesVec)
	builder.Finish(fb.MediaFileBatchEnd(builder))
	return builder.FinishedBytes()
}

// decodeMediaBatch wraps a verified payload without copying. The returned
// batch borrows payload, which must stay mapped while the batch is in use.
func decodeMediaBatch(payload []byte) *fb.MediaFileBatch {
	return fb.GetRootAsMediaFileBatch(payload, 0)
}

// fileToModel materializes one record out of a batch. All strings are copied
// out of the mapping, so the result outlives it.
func fileToModel(f *fb.MediaFile) models.MediaFile {
	return models.MediaFile{
		ID:                  f.Id(),
		Path:                string(f.Path()),
		CanonicalPath:       string(f.CanonicalPath()),
		CanonicalParentPath: string(f.CanonicalParentPath()),
		Filename:            string(f.Filename()),
		Size:                f.Size(),
		Modified:            f.Modified(),
		MimeType:            string(f.MimeType()),
		DurationMs:          f.DurationMs(),
		Title:               string(f.Title()),
		Artist:              string(f.Artist()),
		Album:               string(f.Album()),
		Genre:               string(f.Genre()),
		TrackNumber:         f.TrackNumber(),
		Year:                f.Year(),
		AlbumArtist:         string(f.AlbumArtist()),
		CreatedAt:           f.CreatedAt(),
		UpdatedAt:           f.UpdatedAt(),
	}
}

// fileAt initializes obj with the j-th record of the batch and reports
// whether the index was in range. obj is reused across calls to avoid
// per-record allocation during scans.
func fileAt(batch *fb.MediaFileBatch, j int, obj *fb.MediaFile) bool {
	if j < 0 || j >= batch.FilesLength() {
		return false
	}
	return batch.Files(obj, j)
}

// encodePlaylistBatch serializes playlists and their entries into a single
// PlaylistBatch payload.
func encodePlaylistBatch(batchID uint64, playlists []*models.Playlist, entries []models.PlaylistEntry) []byte {
	builder := flatbuffers.NewBuilder(128 * (len(playlists) + len(entries) + 1))

	plOffsets := make([]flatbuffers.UOffsetT, len(playlists))
	for i, p := range playlists {
		var name, desc flatbuffers.UOffsetT
		if p.Name != "" {
			name = builder.CreateString(p.Name)
		}
		if p.Description != "" {
			desc = builder.CreateString(p.Description)
		}
		fb.PlaylistStart(builder)
		fb.PlaylistAddId(builder, p.ID)
		fb.PlaylistAddName(builder, name)
		fb.PlaylistAddDescription(builder, desc)
		fb.PlaylistAddCreatedAt(builder, p.CreatedAt)
		fb.PlaylistAddUpdatedAt(builder, p.UpdatedAt)
		plOffsets[i] = fb.PlaylistEnd(builder)
	}

	entryOffsets := make([]flatbuffers.UOffsetT, len(entries))
	for i, e := range entries {
		fb.PlaylistEntryStart(builder)
		fb.PlaylistEntryAddPlaylistId(builder, e.PlaylistID)
		fb.PlaylistEntryAddMediaFileId(builder, e.MediaFileID)
		fb.PlaylistEntryAddPosition(builder, e.Position)
		entryOffsets[i] = fb.PlaylistEntryEnd(builder)
	}

	fb.PlaylistBatchStartPlaylistsVector(builder, len(plOffsets))
	for i := len(plOffsets) - 1; i >= 0; i-- {
		builder.PrependUOffsetT(plOffsets[i])
	}
	plVec := builder.EndVector(len(plOffsets))

	fb.PlaylistBatchStartEntriesVector(builder, len(entryOffsets))
	for i := len(entryOffsets) - 1; i >= 0; i-- {
		builder.PrependUOffsetT(entryOffsets[i])
	}
	entryVec := builder.EndVector(len(entryOffsets))

	fb.PlaylistBatchStart(builder)
	fb.PlaylistBatchAddBatchId(builder, batchID)
	fb.PlaylistBatchAddPlaylists(builder, plVec)
	fb.PlaylistBatchAddEntries(builder, entryVec)
	builder.Finish(fb.PlaylistBatchEnd(builder))
	return builder.FinishedBytes()
}

func decodePlaylistBatch(payload []byte) *fb.PlaylistBatch {
	return fb.GetRootAsPlaylistBatch(payload, 0)
}

func playlistToModel(p *fb.Playlist) models.Playlist {
	return models.Playlist{
		ID:          p.Id(),
		Name:        string(p.Name()),
		Description: string(p.Description()),
		CreatedAt:   p.CreatedAt(),
		UpdatedAt:   p.UpdatedAt(),
	}
}

func playlistEntryToModel(e *fb.PlaylistEntry) models.PlaylistEntry {
	return models.PlaylistEntry{
		PlaylistID:  e.PlaylistId(),
		MediaFileID: e.MediaFileId(),
		Position:    e.Position(),
	}
}
