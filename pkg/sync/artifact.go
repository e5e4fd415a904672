// Package sync walks a local artifact tree, uploads it to the wiki under
// bounded concurrency, and derives navigation pages from whatever ended
// up present remotely.
package sync

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/rs/zerolog"
	"github.com/walteh/wikisync/pkg/config"
	"gitlab.com/tozd/go/errors"
	"gopkg.in/yaml.v3"
)

// descriptorFile is an optional per-section YAML file carrying metadata
// for the generated section listing. It is never uploaded as a page.
const descriptorFile = "_section.yaml"

// Page is a local page artifact. Its identity is Section/Title.
type Page struct {
	Section string
	Title   string
	Path    string
}

// File is a local media artifact. Its identity is Section/Name.
type File struct {
	Section string
	Name    string
	Path    string
}

// Tree is the result of the discovery phase: every artifact to consider,
// plus section descriptions harvested from descriptor files.
type Tree struct {
	Pages        []Page
	Files        []File
	Descriptions map[string]string
}

// Discover enumerates the artifact tree under cfg.Root. Media files live
// under <root>/<media>/<section>/, pages under <root>/<section>/*.txt
// with the base name (sans extension) as the leaf title. Discovery does
// no network I/O; uploading consumes the returned Tree separately.
func Discover(ctx context.Context, cfg *config.Config) (*Tree, error) {
	logger := zerolog.Ctx(ctx)

	tree := &Tree{Descriptions: map[string]string{}}

	entries, err := os.ReadDir(cfg.Root)
	if err != nil {
		return nil, errors.Errorf("reading artifact root: %w", err)
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if entry.Name() == cfg.MediaDir {
			if err := discoverMedia(cfg, filepath.Join(cfg.Root, entry.Name()), tree); err != nil {
				return nil, err
			}
			continue
		}
		if err := discoverSection(ctx, cfg, entry.Name(), tree); err != nil {
			return nil, err
		}
	}

	logger.Debug().
		Int("pages", len(tree.Pages)).
		Int("files", len(tree.Files)).
		Msg("discovered artifacts")
	return tree, nil
}

func discoverMedia(cfg *config.Config, mediaRoot string, tree *Tree) error {
	sections, err := os.ReadDir(mediaRoot)
	if err != nil {
		return errors.Errorf("reading media directory: %w", err)
	}
	for _, section := range sections {
		if !section.IsDir() {
			continue
		}
		files, err := os.ReadDir(filepath.Join(mediaRoot, section.Name()))
		if err != nil {
			return errors.Errorf("reading media section %q: %w", section.Name(), err)
		}
		for _, file := range files {
			if file.IsDir() {
				continue
			}
			if ignored(cfg.IgnoreGlobs, section.Name()+"/"+file.Name()) {
				continue
			}
			tree.Files = append(tree.Files, File{
				Section: section.Name(),
				Name:    file.Name(),
				Path:    filepath.Join(mediaRoot, section.Name(), file.Name()),
			})
		}
	}
	return nil
}

func discoverSection(ctx context.Context, cfg *config.Config, section string, tree *Tree) error {
	dir := filepath.Join(cfg.Root, section)
	files, err := os.ReadDir(dir)
	if err != nil {
		return errors.Errorf("reading section %q: %w", section, err)
	}
	for _, file := range files {
		if file.IsDir() {
			continue
		}
		if file.Name() == descriptorFile {
			loadDescriptor(ctx, section, filepath.Join(dir, file.Name()), tree)
			continue
		}
		if ignored(cfg.IgnoreGlobs, section+"/"+file.Name()) {
			continue
		}
		title := strings.TrimSuffix(file.Name(), filepath.Ext(file.Name()))
		if title == "" {
			continue
		}
		tree.Pages = append(tree.Pages, Page{
			Section: section,
			Title:   title,
			Path:    filepath.Join(dir, file.Name()),
		})
	}
	return nil
}

// loadDescriptor parses a section descriptor. A malformed descriptor is
// logged and skipped, never fatal.
func loadDescriptor(ctx context.Context, section, path string, tree *Tree) {
	logger := zerolog.Ctx(ctx)

	data, err := os.ReadFile(path)
	if err != nil {
		logger.Warn().Str("section", section).Err(err).Msg("reading section descriptor")
		return
	}
	var desc struct {
		Title       string `yaml:"title"`
		Description string `yaml:"description"`
	}
	if err := yaml.Unmarshal(data, &desc); err != nil {
		logger.Warn().Str("section", section).Err(err).Msg("malformed section descriptor, skipping")
		return
	}
	if desc.Description != "" {
		tree.Descriptions[section] = desc.Description
	}
}

func ignored(globs []string, relPath string) bool {
	for _, glob := range globs {
		matched, err := doublestar.Match(glob, relPath)
		if err != nil {
			continue
		}
		if matched {
			return true
		}
	}
	return false
}
