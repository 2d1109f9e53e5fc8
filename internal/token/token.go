// Package token resolves file placeholders in command templates.
//
// Four placeholders are recognised, case-insensitively:
//
//	{file}      file name with extension      (report.csv)
//	{basefile}  file name without extension   (report)
//	{path}      full path as discovered       (data/report.csv)
//	{dir}       containing directory          (data)
package token

import (
	"path/filepath"
	"regexp"
	"strings"
)

// File describes one discovered file for template resolution.
type File struct {
	Name string // file name with extension
	Base string // file name without extension
	Path string // path as returned by discovery
	Dir  string // containing directory
}

// Parse derives the File record for path.
func Parse(path string) File {
	name := filepath.Base(path)
	return File{
		Name: name,
		Base: trimExt(name),
		Path: path,
		Dir:  filepath.Dir(path),
	}
}

// trimExt removes the last extension from name. A leading dot does not start
// an extension, so ".bashrc" is returned unchanged.
func trimExt(name string) string {
	i := strings.LastIndexByte(name, '.')
	if i <= 0 {
		return name
	}
	return name[:i]
}

var placeholder = regexp.MustCompile(`(?i)\{(file|basefile|path|dir)\}`)

// Substitute replaces every placeholder in template with the matching field
// of f. Replacement text is never re-scanned.
func Substitute(template string, f File) string {
	if !strings.Contains(template, "{") {
		return template
	}
	return placeholder.ReplaceAllStringFunc(template, func(m string) string {
		switch strings.ToLower(m) {
		case "{file}":
			return f.Name
		case "{basefile}":
			return f.Base
		case "{path}":
			return f.Path
		case "{dir}":
			return f.Dir
		}
		return m
	})
}

// SubstituteAll applies Substitute to each template and returns a new slice.
func SubstituteAll(templates []string, f File) []string {
	out := make([]string, len(templates))
	for i, t := range templates {
		out[i] = Substitute(t, f)
	}
	return out
}
