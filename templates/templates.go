// Copyright 2022 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package templates holds the configuration templates shipped with the
// charm. Release specific overrides live in a directory named after the
// OpenStack release, next to the default templates under files/.
package templates

import (
	"embed"
	"io/fs"
)

//go:embed files
var files embed.FS

// FS holds every template, release directories included.
var FS fs.FS = mustSub(files, "files")

func mustSub(fsys fs.FS, dir string) fs.FS {
	sub, err := fs.Sub(fsys, dir)
	if err != nil {
		panic(err)
	}
	return sub
}
