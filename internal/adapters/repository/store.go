// Package repository stores named byte blobs (recordings, backing tracks,
// scores and mixes) and hands out fetchable URLs for them.
package repository

import (
	"context"
	"path"
	"strings"
	"time"

	"github.com/okian/chorus/internal/domain/model"
)

// Buckets.
const (
	BackingTracks  = "backing_tracks"
	PracticeTracks = "practice_tracks"
	Mixdowns       = "mixdowns"
)

// ObjectInfo describes a stored object. Name is relative to the listed
// prefix.
type ObjectInfo struct {
	Path        string    `json:"path"`
	Name        string    `json:"name"`
	CreatedAt   time.Time `json:"createdAt"`
	Size        int64     `json:"size"`
	ContentType string    `json:"contentType"`
	URL         string    `json:"url"`
}

// Object is a stored blob with its metadata.
type Object struct {
	ObjectInfo
	Data []byte
}

// Store provides blob access.
type Store interface {
	// Put writes data under p, replacing any existing object, and returns
	// its URL.
	Put(ctx context.Context, p string, data []byte, contentType string) (string, error)

	// Get returns the object at p or ErrNotFound.
	Get(ctx context.Context, p string) (Object, error)

	// List returns objects whose path starts with prefix, ordered by path.
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)

	// Delete removes the given paths and reports how many existed.
	Delete(ctx context.Context, paths ...string) (int, error)

	// URL is the fetchable reference for p.
	URL(p string) string

	Close() error
}

// RoomKey is the path-safe form of a room id.
func RoomKey(room string) string { return model.EncodeKey(room) }

// BackingPrefix holds a room's backing track versions.
func BackingPrefix(room string) string { return BackingTracks + "/" + RoomKey(room) + "/" }

// PracticePrefix holds a room's captured artifacts.
func PracticePrefix(room string) string { return PracticeTracks + "/" + RoomKey(room) + "/" }

// ScoresPrefix holds a room's score pages.
func ScoresPrefix(room string) string { return PracticeTracks + "/" + RoomKey(room) + "_scores/" }

// MixdownPrefix holds a room's rendered mixes.
func MixdownPrefix(room string) string { return Mixdowns + "/" + RoomKey(room) + "/" }

// CleanPath normalises an object path and rejects traversal.
func CleanPath(p string) (string, error) {
	p = strings.TrimPrefix(p, "/")
	if p == "" {
		return "", ErrInvalidPath
	}
	clean := path.Clean(p)
	if clean != p || strings.HasPrefix(clean, "..") {
		return "", ErrInvalidPath
	}
	return clean, nil
}

func objectURL(base, p string) string {
	return strings.TrimSuffix(base, "/") + "/objects/" + p
}

func info(prefix, p string, created time.Time, size int64, contentType, url string) ObjectInfo {
	return ObjectInfo{
		Path:        p,
		Name:        strings.TrimPrefix(p, prefix),
		CreatedAt:   created,
		Size:        size,
		ContentType: contentType,
		URL:         url,
	}
}
