// Package browse maps DLNA-style object ids onto catalog queries. An object
// id names either a container (directory, music category, playlist) or a
// single item; Browse resolves one level of children per call.
package browse

import (
	"context"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"legato/internal/catalog"
	"legato/internal/pathutil"
	"legato/pkg/models"
)

// Well-known container ids.
const (
	RootID      = "0"
	FoldersID   = "folders"
	MusicID     = "music"
	PlaylistsID = "playlists"
)

// Container is one browsable node in the hierarchy.
type Container struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	ChildCount int    `json:"childCount,omitempty"`
}

// Result is one level of a container's children.
type Result struct {
	Containers []Container        `json:"containers"`
	Items      []models.MediaFile `json:"items"`
}

// Browser answers object-id navigation against a MediaStore.
type Browser struct {
	store  models.MediaStore
	logger *logrus.Logger
}

func NewBrowser(store models.MediaStore) *Browser {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	return &Browser{store: store, logger: logger}
}

// Browse resolves the direct children of objectID.
func (b *Browser) Browse(ctx context.Context, objectID string) (*Result, error) {
	switch objectID {
	case RootID, "":
		return &Result{Containers: []Container{
			{ID: FoldersID, Title: "Folders"},
			{ID: MusicID, Title: "Music"},
			{ID: PlaylistsID, Title: "Playlists"},
		}}, nil
	case FoldersID:
		return b.browseDirectory(ctx, "")
	case MusicID:
		return &Result{Containers: []Container{
			{ID: MusicID + ":artists", Title: "Artists"},
			{ID: MusicID + ":albums", Title: "Albums"},
			{ID: MusicID + ":genres", Title: "Genres"},
			{ID: MusicID + ":years", Title: "Years"},
		}}, nil
	case PlaylistsID:
		return b.browsePlaylists(ctx)
	}

	switch {
	case strings.HasPrefix(objectID, "dir:"):
		return b.browseDirectory(ctx, objectID[len("dir:"):])
	case strings.HasPrefix(objectID, "item:"):
		return b.browseItem(ctx, objectID[len("item:"):])
	case strings.HasPrefix(objectID, MusicID+":"):
		return b.browseMusic(ctx, objectID[len(MusicID)+1:])
	case strings.HasPrefix(objectID, PlaylistsID+":"):
		return b.browsePlaylist(ctx, objectID[len(PlaylistsID)+1:])
	}
	return nil, &catalog.Error{Code: catalog.ErrInvalidFormat, Message: "unrecognized object id", Path: objectID}
}

func (b *Browser) browseDirectory(ctx context.Context, dir string) (*Result, error) {
	listing, err := b.store.GetDirectoryListing(ctx, dir, "")
	if err != nil {
		return nil, err
	}
	res := &Result{Items: listing.Files}
	for _, sub := range listing.Subdirectories {
		title := pathutil.Filename(sub)
		if title == "" || title == sub {
			title = sub
		}
		res.Containers = append(res.Containers, Container{ID: "dir:" + sub, Title: title})
	}
	return res, nil
}

func (b *Browser) browseItem(ctx context.Context, rawID string) (*Result, error) {
	id, err := strconv.ParseUint(rawID, 10, 64)
	if err != nil {
		return nil, &catalog.Error{Code: catalog.ErrInvalidFormat, Message: "malformed item id", Path: rawID}
	}
	f, err := b.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return &Result{Items: []models.MediaFile{*f}}, nil
}

// browseMusic handles everything below "music:". Category keys may contain
// colons, so only the leading segment is split off.
func (b *Browser) browseMusic(ctx context.Context, rest string) (*Result, error) {
	kind, key, hasKey := strings.Cut(rest, ":")
	switch kind {
	case "artists":
		if !hasKey {
			cats, err := b.store.GetArtists(ctx)
			if err != nil {
				return nil, err
			}
			return categoryResult("music:artists:", cats), nil
		}
		albums, err := b.store.GetAlbums(ctx, key)
		if err != nil {
			return nil, err
		}
		tracks, err := b.store.GetMusicByArtist(ctx, key)
		if err != nil {
			return nil, err
		}
		res := categoryResult("music:albums:", albums)
		res.Items = tracks
		return res, nil
	case "albums":
		if !hasKey {
			cats, err := b.store.GetAlbums(ctx, "")
			if err != nil {
				return nil, err
			}
			return categoryResult("music:albums:", cats), nil
		}
		tracks, err := b.store.GetMusicByAlbum(ctx, key)
		if err != nil {
			return nil, err
		}
		return &Result{Items: tracks}, nil
	case "genres":
		if !hasKey {
			cats, err := b.store.GetGenres(ctx)
			if err != nil {
				return nil, err
			}
			return categoryResult("music:genres:", cats), nil
		}
		tracks, err := b.store.GetMusicByGenre(ctx, key)
		if err != nil {
			return nil, err
		}
		return &Result{Items: tracks}, nil
	case "years":
		if !hasKey {
			cats, err := b.store.GetYears(ctx)
			if err != nil {
				return nil, err
			}
			return categoryResult("music:years:", cats), nil
		}
		year, err := strconv.ParseUint(key, 10, 32)
		if err != nil {
			return nil, &catalog.Error{Code: catalog.ErrInvalidFormat, Message: "malformed year", Path: key}
		}
		tracks, err := b.store.GetMusicByYear(ctx, uint32(year))
		if err != nil {
			return nil, err
		}
		return &Result{Items: tracks}, nil
	}
	return nil, &catalog.Error{Code: catalog.ErrInvalidFormat, Message: "unrecognized music category", Path: kind}
}

func (b *Browser) browsePlaylists(ctx context.Context) (*Result, error) {
	playlists, err := b.store.GetPlaylists(ctx)
	if err != nil {
		return nil, err
	}
	res := &Result{}
	for _, p := range playlists {
		res.Containers = append(res.Containers, Container{
			ID:         PlaylistsID + ":" + strconv.FormatUint(p.ID, 10),
			Title:      p.Name,
			ChildCount: p.TrackCount,
		})
	}
	return res, nil
}

func (b *Browser) browsePlaylist(ctx context.Context, rawID string) (*Result, error) {
	id, err := strconv.ParseUint(rawID, 10, 64)
	if err != nil {
		return nil, &catalog.Error{Code: catalog.ErrInvalidFormat, Message: "malformed playlist id", Path: rawID}
	}
	tracks, err := b.store.GetPlaylistTracks(ctx, id)
	if err != nil {
		return nil, err
	}
	return &Result{Items: tracks}, nil
}

func categoryResult(prefix string, cats []models.MusicCategory) *Result {
	res := &Result{}
	for _, c := range cats {
		res.Containers = append(res.Containers, Container{ID: prefix + c.Key, Title: c.Key, ChildCount: c.Count})
	}
	return res
}
