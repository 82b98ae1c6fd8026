// Copyright 2022 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package render

import (
	"io/fs"
	"path"
	"text/template"

	"github.com/juju/errors"
)

// Loader finds templates for an OpenStack release. A template in the
// release directory overrides the one at the top level.
type Loader struct {
	fsys    fs.FS
	release string
}

// NewLoader returns a Loader reading templates from fsys.
func NewLoader(fsys fs.FS, release string) *Loader {
	return &Loader{fsys: fsys, release: release}
}

// SearchPath returns the paths tried for the named template, in order.
func (l *Loader) SearchPath(name string) []string {
	var paths []string
	if l.release != "" {
		paths = append(paths, path.Join(l.release, name))
	}
	return append(paths, name)
}

// Load parses the named template.
func (l *Loader) Load(name string) (*template.Template, error) {
	for _, p := range l.SearchPath(name) {
		content, err := fs.ReadFile(l.fsys, p)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		} else if err != nil {
			return nil, errors.Annotatef(err, "reading template %q", p)
		}
		logger.Tracef("loading template %q from %q", name, p)
		tmpl, err := template.New(name).
			Funcs(funcs).
			Option("missingkey=error").
			Parse(string(content))
		if err != nil {
			return nil, errors.Annotatef(err, "parsing template %q", p)
		}
		return tmpl, nil
	}
	return nil, errors.NotFoundf("template %q for release %q", name, l.release)
}

var funcs = template.FuncMap{
	"pybool": pyBool,
}

// pyBool formats a boolean the way oslo.config documents it.
func pyBool(v bool) string {
	if v {
		return "True"
	}
	return "False"
}
