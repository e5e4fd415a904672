// Package markup derives navigation pages from the set of pages a sync
// run confirmed present on the remote wiki. Everything here is a pure
// function of its input: no network, no filesystem, byte-order sorting
// so output is reproducible regardless of locale.
package markup

import (
	"fmt"
	"sort"
	"strings"
)

// NavigationTitle is the page the navigation template lives under.
const NavigationTitle = "Template:Navigation"

// NavigationRef is the transclusion reference other pages use.
const NavigationRef = "{{Navigation}}"

// SitemapTitle is the title of the generated sitemap page.
const SitemapTitle = "Sitemap"

// IndexTitle is the title of the generated section index.
const IndexTitle = "Index"

// SidebarTitle is the wiki's sidebar configuration page.
const SidebarTitle = "MediaWiki:Sidebar"

// MainPageTitle is the fixed top-level title of the assembled home page.
const MainPageTitle = "Main Page"

// Sections returns the section names of a structure map in byte order.
func Sections(structure map[string][]string) []string {
	sections := make([]string, 0, len(structure))
	for s := range structure {
		sections = append(sections, s)
	}
	sort.Strings(sections)
	return sections
}

// Navigation builds the body of the navigation template: a single link
// row over the home page, every section and the sitemap.
func Navigation(structure map[string][]string) string {
	var b strings.Builder
	b.WriteString("[[" + MainPageTitle + "|Home]]")
	for _, section := range Sections(structure) {
		fmt.Fprintf(&b, " | [[%s]]", section)
	}
	fmt.Fprintf(&b, " | [[%s]]\n", SitemapTitle)
	return b.String()
}

// Sitemap lists every uploaded page grouped by section, pages sorted
// within each group.
func Sitemap(structure map[string][]string) string {
	var b strings.Builder
	for _, section := range Sections(structure) {
		fmt.Fprintf(&b, "== %s ==\n", section)
		for _, page := range sortedPages(structure[section]) {
			fmt.Fprintf(&b, "* [[%s/%s|%s]]\n", section, page, page)
		}
		b.WriteString("\n")
	}
	return b.String()
}

// SectionListing builds the landing page of one section. A non-empty
// description from the section descriptor goes above the page list.
func SectionListing(section string, pages []string, description string) string {
	var b strings.Builder
	if description != "" {
		b.WriteString(description)
		b.WriteString("\n\n")
	}
	for _, page := range sortedPages(pages) {
		fmt.Fprintf(&b, "* [[%s/%s|%s]]\n", section, page, page)
	}
	return b.String()
}

// Index lists every section with its page count, sections sorted. The
// home section is excluded.
func Index(structure map[string][]string, homeSection string) string {
	var b strings.Builder
	for _, section := range Sections(structure) {
		if section == homeSection {
			continue
		}
		fmt.Fprintf(&b, "* [[%s]] (%d pages)\n", section, len(structure[section]))
	}
	return b.String()
}

// Sidebar builds the sidebar configuration: the fixed entries followed
// by every section except the home one.
func Sidebar(structure map[string][]string, homeSection string) string {
	var b strings.Builder
	b.WriteString("* navigation\n")
	b.WriteString("** mainpage|Main page\n")
	fmt.Fprintf(&b, "** %s|%s\n", SitemapTitle, SitemapTitle)
	fmt.Fprintf(&b, "** %s|%s\n", IndexTitle, IndexTitle)
	for _, section := range Sections(structure) {
		if section == homeSection {
			continue
		}
		fmt.Fprintf(&b, "** %s|%s\n", section, section)
	}
	return b.String()
}

// MainPage assembles the home page body: the navigation template
// reference followed by the designated section's content.
func MainPage(content string) string {
	return NavigationRef + "\n\n" + content
}

func sortedPages(pages []string) []string {
	sorted := make([]string, len(pages))
	copy(sorted, pages)
	sort.Strings(sorted)
	return sorted
}
