package importer

import (
	"path"

	"github.com/cordum/cordum-import/core/backup/archive"
	"github.com/cordum/cordum-import/core/backup/command"
	"github.com/cordum/cordum-import/core/backup/manifest"
)

// Category is the kind of document an archive entry holds.
type Category string

const (
	Catalog      Category = "catalog"
	Report       Category = "report"
	Facts        Category = "facts"
	Unrecognized Category = "unrecognized"
)

// Command returns the command a category is submitted as.
func (c Category) Command() (command.Name, bool) {
	switch c {
	case Catalog:
		return command.ReplaceCatalog, true
	case Report:
		return command.StoreReport, true
	case Facts:
		return command.ReplaceFacts, true
	default:
		return "", false
	}
}

type route struct {
	category Category
	match    func(string) bool
}

// Classifier maps entry paths to categories with an ordered route table.
// Routes are rooted in distinct directories so at most one matches.
type Classifier struct {
	root   string
	routes []route
}

// NewClassifier builds the route table for an export root.
func NewClassifier(root string) *Classifier {
	if root == "" {
		root = manifest.DefaultRoot
	}
	root = archive.CleanPath(root)
	return &Classifier{
		root: root,
		routes: []route{
			{category: Catalog, match: jsonIn(root, "catalogs")},
			{category: Report, match: jsonIn(root, "reports")},
			{category: Facts, match: jsonIn(root, "facts")},
		},
	}
}

// Root returns the export root the routes are anchored at.
func (c *Classifier) Root() string {
	return c.root
}

// Classify returns the category of an entry path, or Unrecognized.
func (c *Classifier) Classify(entryPath string) Category {
	p := archive.CleanPath(entryPath)
	for _, r := range c.routes {
		if r.match(p) {
			return r.category
		}
	}
	return Unrecognized
}

// jsonIn matches <root>/<dir>/*.json, one level deep.
func jsonIn(root, dir string) func(string) bool {
	pattern := path.Join(root, dir, "*.json")
	return func(p string) bool {
		ok, err := path.Match(pattern, p)
		return err == nil && ok
	}
}
