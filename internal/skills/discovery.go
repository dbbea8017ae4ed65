package skills

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"impressionism/internal/logging"
)

// Source identifies which root bucket a skill came from.
type Source string

const (
	SourceUser    Source = "user"
	SourceProject Source = "project"
	SourcePlugin  Source = "plugin"
)

// Root is a discovery root with its source bucket.
type Root struct {
	Path   string
	Source Source
}

// Discovered is a skill file found during a walk.
type Discovered struct {
	Path   string
	Source Source
}

// Discovery walks configured roots for skill documents.
type Discovery struct {
	roots    []Root
	patterns []string
	ignore   []string
}

// NewDiscovery builds a Discovery from configured directories. Roots may
// be written "bucket:path"; otherwise the first root is user, the second
// project, and the rest plugin. "~" expands to the home directory.
func NewDiscovery(directories, patterns, ignore []string) *Discovery {
	d := &Discovery{patterns: patterns, ignore: ignore}
	if len(d.patterns) == 0 {
		d.patterns = []string{"**/SKILL.md"}
	}
	for i, dir := range directories {
		source := bucketForIndex(i)
		if bucket, rest, ok := strings.Cut(dir, ":"); ok && isBucket(bucket) {
			source = Source(bucket)
			dir = rest
		}
		d.roots = append(d.roots, Root{Path: expandHome(dir), Source: source})
	}
	return d
}

// Walk visits every root and returns matching skill files. Unreadable
// roots produce a warning and are skipped; fullWalk reports whether all
// roots were walked to completion, which gates deletion of vanished
// skills.
func (d *Discovery) Walk() (found []Discovered, fullWalk bool) {
	log := logging.Get(logging.CategoryIndex)
	fullWalk = true

	for _, root := range d.roots {
		info, err := os.Stat(root.Path)
		if err != nil || !info.IsDir() {
			log.Warnf("skipping unreadable root %s: %v", root.Path, err)
			fullWalk = false
			continue
		}

		walkErr := filepath.WalkDir(root.Path, func(path string, entry fs.DirEntry, err error) error {
			if err != nil {
				log.Warnf("walk error under %s: %v", root.Path, err)
				fullWalk = false
				return nil
			}
			rel, relErr := filepath.Rel(root.Path, path)
			if relErr != nil {
				return nil
			}
			rel = filepath.ToSlash(rel)

			if entry.IsDir() {
				if d.ignored(rel + "/") {
					return filepath.SkipDir
				}
				return nil
			}
			if d.ignored(rel) {
				return nil
			}
			if d.matches(rel) {
				found = append(found, Discovered{Path: CanonicalPath(path), Source: root.Source})
			}
			return nil
		})
		if walkErr != nil {
			log.Warnf("walk of %s aborted: %v", root.Path, walkErr)
			fullWalk = false
		}
	}
	return found, fullWalk
}

func (d *Discovery) matches(rel string) bool {
	for _, pat := range d.patterns {
		if ok, err := doublestar.Match(pat, rel); err == nil && ok {
			return true
		}
		// Bare filenames like "SKILL.md" should match at any depth.
		if !strings.Contains(pat, "/") {
			if ok, err := doublestar.Match("**/"+pat, rel); err == nil && ok {
				return true
			}
		}
	}
	return false
}

func (d *Discovery) ignored(rel string) bool {
	for _, pat := range d.ignore {
		if ok, err := doublestar.Match(pat, rel); err == nil && ok {
			return true
		}
		if ok, err := doublestar.Match(strings.TrimSuffix(pat, "/**"), strings.TrimSuffix(rel, "/")); err == nil && ok {
			return true
		}
	}
	return false
}

func bucketForIndex(i int) Source {
	switch i {
	case 0:
		return SourceUser
	case 1:
		return SourceProject
	default:
		return SourcePlugin
	}
}

func isBucket(s string) bool {
	switch Source(s) {
	case SourceUser, SourceProject, SourcePlugin:
		return true
	}
	return false
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}
