// Copyright 2022 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package render writes service configuration files from templates.
package render

import (
	"bytes"
	"context"
	"os"
	"os/user"
	"strconv"

	"github.com/juju/errors"
	"github.com/juju/loggo/v2"
	"github.com/juju/utils/v4"
	"gopkg.in/ini.v1"
)

var logger = loggo.GetLogger("cloudkitty.render")

// Target describes a file to render.
type Target struct {
	// Source is the template name.
	Source string

	// Path is where the file is written.
	Path string

	// Owner and Group own the file. Empty leaves ownership unchanged.
	Owner string
	Group string

	// Perms are the file permissions.
	Perms os.FileMode

	// Validate, if set, checks the rendered content before it is
	// written.
	Validate func([]byte) error
}

// Renderer renders templates to files.
type Renderer interface {
	// Render writes the target from data, returning whether the content
	// on disk changed.
	Render(ctx context.Context, target Target, data interface{}) (bool, error)
}

// FileRenderer is a Renderer writing to the local filesystem.
type FileRenderer struct {
	loader *Loader
}

var _ Renderer = (*FileRenderer)(nil)

// NewFileRenderer returns a FileRenderer using templates from loader.
func NewFileRenderer(loader *Loader) *FileRenderer {
	return &FileRenderer{loader: loader}
}

// Render is part of the Renderer interface. The file is replaced
// atomically, with ownership and permissions set before it is moved into
// place. Unchanged content is not rewritten.
func (r *FileRenderer) Render(ctx context.Context, target Target, data interface{}) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, errors.Trace(err)
	}
	tmpl, err := r.loader.Load(target.Source)
	if err != nil {
		return false, errors.Trace(err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return false, errors.Annotatef(err, "rendering %q", target.Path)
	}
	content := buf.Bytes()
	if target.Validate != nil {
		if err := target.Validate(content); err != nil {
			return false, errors.Annotatef(err, "validating %q", target.Path)
		}
	}

	before, err := fileSHA256(target.Path)
	if err != nil {
		return false, errors.Trace(err)
	}
	after, _, err := utils.ReadSHA256(bytes.NewReader(content))
	if err != nil {
		return false, errors.Trace(err)
	}

	uid, gid, err := lookupOwner(target.Owner, target.Group)
	if err != nil {
		return false, errors.Trace(err)
	}
	if before == after {
		logger.Debugf("%q unchanged", target.Path)
		return false, errors.Annotatef(setOwnership(target.Path, target.Perms, uid, gid), "updating %q", target.Path)
	}
	err = utils.AtomicWriteFileAndChange(target.Path, content, func(tmp string) error {
		return setOwnership(tmp, target.Perms, uid, gid)
	})
	if err != nil {
		return false, errors.Annotatef(err, "writing %q", target.Path)
	}
	logger.Debugf("rendered %q", target.Path)
	return true, nil
}

func setOwnership(path string, perms os.FileMode, uid, gid int) error {
	if err := os.Chmod(path, perms); err != nil {
		return errors.Trace(err)
	}
	if uid == -1 && gid == -1 {
		return nil
	}
	return errors.Trace(os.Chown(path, uid, gid))
}

// fileSHA256 returns the hash of the file's content, or the empty string if
// there is no such file.
func fileSHA256(path string) (string, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return "", nil
	} else if err != nil {
		return "", errors.Trace(err)
	}
	defer f.Close()
	sum, _, err := utils.ReadSHA256(f)
	return sum, errors.Annotatef(err, "hashing %q", path)
}

// lookupOwner resolves owner and group to ids. -1 means leave unchanged,
// as os.Chown does.
func lookupOwner(owner, group string) (int, int, error) {
	uid, gid := -1, -1
	if owner != "" {
		u, err := user.Lookup(owner)
		if err != nil {
			return 0, 0, errors.Annotatef(err, "looking up user %q", owner)
		}
		if uid, err = strconv.Atoi(u.Uid); err != nil {
			return 0, 0, errors.Trace(err)
		}
	}
	if group != "" {
		g, err := user.LookupGroup(group)
		if err != nil {
			return 0, 0, errors.Annotatef(err, "looking up group %q", group)
		}
		if gid, err = strconv.Atoi(g.Gid); err != nil {
			return 0, 0, errors.Trace(err)
		}
	}
	return uid, gid, nil
}

// ValidateINI checks that content parses as an INI file.
func ValidateINI(content []byte) error {
	_, err := ini.Load(content)
	return errors.Trace(err)
}
