package catalog

import (
	"encoding/json"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

// SupportedExtensions are the audio file extensions the provider recognizes
var SupportedExtensions = map[string]bool{
	".mp3":  true,
	".flac": true,
	".m4a":  true,
	".aac":  true,
	".ogg":  true,
	".wav":  true,
	".wma":  true,
	".alac": true,
	".opus": true,
}

// FSProvider walks configured library paths and reports the audio files it
// finds. Metadata comes from ffprobe when available, otherwise from filenames.
type FSProvider struct {
	libraryPaths []string
	ffprobePath  string
}

// NewFSProvider creates a filesystem-backed track provider
func NewFSProvider(libraryPaths []string) *FSProvider {
	// Metadata extraction degrades gracefully without ffprobe
	ffprobePath, _ := exec.LookPath("ffprobe")

	return &FSProvider{
		libraryPaths: libraryPaths,
		ffprobePath:  ffprobePath,
	}
}

// GetAllTracks walks the library paths and returns matching tracks
func (p *FSProvider) GetAllTracks(filters Filters) ([]Track, error) {
	var tracks []Track
	var nextID int64 = 1

	for _, root := range p.libraryPaths {
		err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				// Unreadable directories are skipped, not fatal
				return nil
			}
			if info.IsDir() {
				return nil
			}
			if !SupportedExtensions[strings.ToLower(filepath.Ext(path))] {
				return nil
			}
			if excludedPath(path, filters.ExcludePathSubstrings) {
				return nil
			}

			track := p.buildTrack(nextID, path, info)
			if filters.MinDurationMillis > 0 && track.DurationMillis > 0 &&
				track.DurationMillis < filters.MinDurationMillis {
				return nil
			}

			tracks = append(tracks, track)
			nextID++
			return nil
		})
		if err != nil {
			log.Printf("[CATALOG] Failed to walk %s: %v", root, err)
		}
	}

	return tracks, nil
}

func excludedPath(path string, substrings []string) bool {
	for _, s := range substrings {
		if s != "" && strings.Contains(path, s) {
			return true
		}
	}
	return false
}

func (p *FSProvider) buildTrack(id int64, path string, info os.FileInfo) Track {
	track := Track{
		ID:         id,
		URI:        path,
		Title:      titleFromFilename(path),
		FolderPath: filepath.Dir(path),
		DateAdded:  info.ModTime().Unix(),
	}

	if p.ffprobePath != "" {
		if meta, ok := p.probe(path); ok {
			if meta.Title != "" {
				track.Title = meta.Title
			}
			track.Artist = meta.Artist
			track.Album = meta.Album
			track.DurationMillis = meta.DurationMillis
		}
	}

	return track
}

func titleFromFilename(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

type probedMetadata struct {
	Title          string
	Artist         string
	Album          string
	DurationMillis int64
}

// probe extracts tags and duration via ffprobe
func (p *FSProvider) probe(path string) (probedMetadata, bool) {
	cmd := exec.Command(p.ffprobePath,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		path,
	)
	output, err := cmd.Output()
	if err != nil {
		return probedMetadata{}, false
	}

	var result struct {
		Format struct {
			Duration string            `json:"duration"`
			Tags     map[string]string `json:"tags"`
		} `json:"format"`
	}
	if err := json.Unmarshal(output, &result); err != nil {
		return probedMetadata{}, false
	}

	meta := probedMetadata{}
	for key, value := range result.Format.Tags {
		switch strings.ToLower(key) {
		case "title":
			meta.Title = value
		case "artist":
			meta.Artist = value
		case "album":
			meta.Album = value
		case "album_artist":
			if meta.Artist == "" {
				meta.Artist = value
			}
		}
	}

	if result.Format.Duration != "" {
		if sec, err := strconv.ParseFloat(result.Format.Duration, 64); err == nil {
			meta.DurationMillis = int64(sec * 1000)
		}
	}

	return meta, true
}
