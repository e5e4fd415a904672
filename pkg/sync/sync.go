package sync

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/walteh/wikisync/pkg/config"
	"github.com/walteh/wikisync/pkg/log"
	"github.com/walteh/wikisync/pkg/markup"
	"github.com/walteh/wikisync/pkg/retry"
	"github.com/walteh/wikisync/pkg/session"
	"github.com/walteh/wikisync/pkg/wiki"
	"gitlab.com/tozd/go/errors"
	"golang.org/x/sync/errgroup"
)

// Runner drives one sync run: authenticate, upload files then pages as
// two awaited batches, then derive navigation from the structure map.
type Runner struct {
	cfg     *config.Config
	client  *wiki.Client
	session *session.Session

	stats     Stats
	structure *Structure
}

// NewRunner creates a runner. The session carries the retry policy used
// for every remote operation.
func NewRunner(cfg *config.Config, client *wiki.Client, sess *session.Session) *Runner {
	return &Runner{
		cfg:       cfg,
		client:    client,
		session:   sess,
		structure: NewStructure(),
	}
}

// Run executes the whole sync. Per-artifact failures are counted and do
// not abort the run; failures in authentication, structure building or
// home-page assembly are fatal and returned. Counts are valid either way.
func (r *Runner) Run(ctx context.Context) (Counts, error) {
	ui := log.FromContext(ctx)
	ui.Header(fmt.Sprintf("syncing %s to %s", r.cfg.Root, r.cfg.Endpoint))

	if err := r.session.Authenticate(ctx); err != nil {
		return r.stats.Counts(), err
	}
	if _, err := r.session.Token(ctx, false); err != nil {
		return r.stats.Counts(), errors.Errorf("obtaining initial token: %w", err)
	}

	tree, err := Discover(ctx, r.cfg)
	if err != nil {
		return r.stats.Counts(), errors.Errorf("discovering artifacts: %w", err)
	}
	r.stats.SetDiscovered(len(tree.Pages), len(tree.Files))

	// Two batches, files first, each fully settled before the structure
	// map is read. Task errors are swallowed at the task boundary so one
	// bad artifact never cancels its siblings.
	batch := func(submit func(g *errgroup.Group)) {
		g := new(errgroup.Group)
		g.SetLimit(r.cfg.Parallel)
		submit(g)
		_ = g.Wait()
	}

	batch(func(g *errgroup.Group) {
		for _, f := range tree.Files {
			f := f
			g.Go(func() error {
				r.syncFile(ctx, f)
				return nil
			})
			r.pace(ctx)
		}
	})

	batch(func(g *errgroup.Group) {
		for _, p := range tree.Pages {
			p := p
			g.Go(func() error {
				r.syncPage(ctx, p)
				return nil
			})
			r.pace(ctx)
		}
	})

	if r.cfg.DryRun {
		return r.stats.Counts(), nil
	}

	if err := r.buildStructure(ctx, tree); err != nil {
		return r.stats.Counts(), err
	}
	if err := r.assembleHome(ctx); err != nil {
		return r.stats.Counts(), err
	}

	return r.stats.Counts(), nil
}

// pace inserts the submission delay between discovering and submitting
// successive tasks, independent of the concurrency gate.
func (r *Runner) pace(ctx context.Context) {
	if r.cfg.SubmitDelay <= 0 {
		return
	}
	select {
	case <-time.After(r.cfg.SubmitDelay):
	case <-ctx.Done():
	}
}

func (r *Runner) syncFile(ctx context.Context, f File) {
	ui := log.FromContext(ctx)
	dest := f.Section + "/" + f.Name

	fingerprint, err := FileFingerprint(f.Path)
	if err != nil {
		r.stats.FileFailed()
		ui.Failed(dest, "file", err)
		return
	}

	var info wiki.FileInfo
	var found bool
	err = retry.Do(ctx, "file info "+dest, r.session.ReadPolicy(), func(ctx context.Context) error {
		tctx, cancel := context.WithTimeout(ctx, r.cfg.PageTimeout)
		defer cancel()
		i, ok, err := r.client.GetFileInfo(tctx, dest)
		if err != nil {
			return err
		}
		info, found = i, ok
		return nil
	})
	if err != nil {
		r.stats.FileFailed()
		ui.Failed(dest, "file", err)
		return
	}

	if found && FileUnchanged(info.SHA1, fingerprint) {
		r.stats.FileSkipped()
		ui.Skipped(dest, "file")
		return
	}

	if r.cfg.DryRun {
		r.stats.FileUploaded()
		ui.WouldUpload(dest, "file")
		return
	}

	err = retry.Do(ctx, "upload "+dest, r.session.WritePolicy(), func(ctx context.Context) error {
		token, err := r.session.Token(ctx, false)
		if err != nil {
			return err
		}
		body, err := os.Open(f.Path)
		if err != nil {
			return errors.Errorf("opening %q: %w", f.Path, err)
		}
		defer body.Close()
		tctx, cancel := context.WithTimeout(ctx, r.cfg.UploadTimeout)
		defer cancel()
		return r.client.UploadFile(tctx, dest, token, body)
	})
	if err != nil {
		r.stats.FileFailed()
		ui.Failed(dest, "file", err)
		return
	}

	r.stats.FileUploaded()
	ui.Uploaded(dest, "file")
}

func (r *Runner) syncPage(ctx context.Context, p Page) {
	ui := log.FromContext(ctx)
	title := p.Section + "/" + p.Title

	data, err := os.ReadFile(p.Path)
	if err != nil {
		r.stats.PageFailed()
		ui.Failed(title, "page", err)
		return
	}
	localText := string(data)

	var remoteText string
	var found bool
	err = retry.Do(ctx, "page content "+title, r.session.ReadPolicy(), func(ctx context.Context) error {
		tctx, cancel := context.WithTimeout(ctx, r.cfg.PageTimeout)
		defer cancel()
		text, ok, err := r.client.PageContent(tctx, title)
		if err != nil {
			return err
		}
		remoteText, found = text, ok
		return nil
	})
	if err != nil {
		r.stats.PageFailed()
		ui.Failed(title, "page", err)
		return
	}

	if found && PageUnchanged(remoteText, localText) {
		r.stats.PageSkipped()
		// Already-correct pages still belong in the navigation built
		// from this run.
		r.structure.Add(p.Section, p.Title)
		ui.Skipped(title, "page")
		return
	}

	if r.cfg.DryRun {
		r.stats.PageUploaded()
		ui.WouldUpload(title, "page")
		return
	}

	if err := r.editPage(ctx, title, localText); err != nil {
		r.stats.PageFailed()
		ui.Failed(title, "page", err)
		return
	}

	r.stats.PageUploaded()
	r.structure.Add(p.Section, p.Title)
	ui.Uploaded(title, "page")
}

// editPage is the shared write path for content pages and derived pages.
func (r *Runner) editPage(ctx context.Context, title, text string) error {
	return retry.Do(ctx, "edit "+title, r.session.WritePolicy(), func(ctx context.Context) error {
		token, err := r.session.Token(ctx, false)
		if err != nil {
			return err
		}
		tctx, cancel := context.WithTimeout(ctx, r.cfg.PageTimeout)
		defer cancel()
		return r.client.EditPage(tctx, title, text, token)
	})
}

// buildStructure derives the navigation artifacts from the finalized
// structure map and uploads them through the normal page path. Derived
// pages are not diffed; a failure here is fatal.
func (r *Runner) buildStructure(ctx context.Context, tree *Tree) error {
	ui := log.FromContext(ctx)

	snapshot := r.structure.Snapshot()
	if len(snapshot) == 0 {
		ui.Warning("no pages confirmed, skipping navigation")
		return nil
	}

	ui.Header("building navigation")

	type derivedPage struct {
		title string
		text  string
	}
	derived := []derivedPage{
		{markup.NavigationTitle, markup.Navigation(snapshot)},
		{markup.SitemapTitle, markup.Sitemap(snapshot)},
	}
	for _, section := range markup.Sections(snapshot) {
		derived = append(derived, derivedPage{
			title: section,
			text:  markup.SectionListing(section, snapshot[section], tree.Descriptions[section]),
		})
	}
	derived = append(derived,
		derivedPage{markup.IndexTitle, markup.Index(snapshot, r.cfg.HomeSection)},
		derivedPage{markup.SidebarTitle, markup.Sidebar(snapshot, r.cfg.HomeSection)},
	)

	for _, d := range derived {
		if err := r.editPage(ctx, d.title, d.text); err != nil {
			return errors.Errorf("uploading derived page %q: %w", d.title, err)
		}
		ui.Uploaded(d.title, "derived")
	}
	return nil
}

// assembleHome re-uploads the designated section's singular page under
// the fixed top-level title, prefixed with the navigation reference.
func (r *Runner) assembleHome(ctx context.Context) error {
	ui := log.FromContext(ctx)
	logger := zerolog.Ctx(ctx)

	snapshot := r.structure.Snapshot()
	pages := snapshot[r.cfg.HomeSection]
	if len(pages) == 0 {
		logger.Debug().Str("section", r.cfg.HomeSection).Msg("home section empty, keeping existing main page")
		return nil
	}
	source := r.cfg.HomeSection + "/" + pages[0]

	var content string
	var found bool
	err := retry.Do(ctx, "page content "+source, r.session.ReadPolicy(), func(ctx context.Context) error {
		tctx, cancel := context.WithTimeout(ctx, r.cfg.PageTimeout)
		defer cancel()
		text, ok, err := r.client.PageContent(tctx, source)
		if err != nil {
			return err
		}
		content, found = text, ok
		return nil
	})
	if err != nil {
		return errors.Errorf("fetching home source %q: %w", source, err)
	}
	if !found {
		ui.Warningf("home source page %s missing remotely", source)
		return nil
	}

	if err := r.editPage(ctx, markup.MainPageTitle, markup.MainPage(content)); err != nil {
		return errors.Errorf("assembling main page: %w", err)
	}
	ui.Uploaded(markup.MainPageTitle, "derived")
	return nil
}
