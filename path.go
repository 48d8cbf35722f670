package vpk

import "strings"

// emptyField is what Valve tools store for an empty path or extension.
const emptyField = " "

// NormalizePath converts a user-provided path to fs.ValidPath format.
//
// Leading, trailing, and repeated slashes are removed and the empty path
// becomes ".". Paths containing "." or ".." elements are preserved and will
// be rejected by Archive methods via fs.ValidPath.
func NormalizePath(p string) string {
	p = strings.Trim(p, "/")
	if p == "" {
		return "."
	}
	parts := strings.Split(p, "/")
	result := parts[:0]
	for _, part := range parts {
		if part != "" {
			result = append(result, part)
		}
	}
	if len(result) == 0 {
		return "."
	}
	return strings.Join(result, "/")
}

// fsName maps tree fields to the entry's slash-separated fs.FS name.
func fsName(path, filename, extension string) string {
	name := filename
	if extension != emptyField {
		name += "." + extension
	}
	if path != emptyField {
		name = path + "/" + name
	}
	return name
}

// splitName maps an fs.FS name to tree fields, using " " for a missing
// directory or extension. A leading dot (".gitignore") or a trailing dot is
// kept in the filename.
func splitName(name string) (path, filename, extension string) {
	path = emptyField
	base := name
	if i := strings.LastIndexByte(name, '/'); i >= 0 {
		path, base = name[:i], name[i+1:]
	}
	dot := strings.LastIndexByte(base, '.')
	if dot <= 0 || dot == len(base)-1 {
		return path, base, emptyField
	}
	return path, base[:dot], base[dot+1:]
}

// KeyForName returns the lookup key of the entry whose fs.FS name is name,
// as written by CreateFromDir.
func KeyForName(name string) string {
	path, filename, extension := splitName(name)
	return path + "/" + filename + "." + extension
}
