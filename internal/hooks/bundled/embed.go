// Package bundled ships the hooks built into the binary. Each hook is a
// directory with a HOOK.md manifest, embedded at build time and served
// to discovery as a plain fs.FS.
package bundled

import (
	"embed"
	"io/fs"
)

//go:embed hooks/**/HOOK.md
var bundledFS embed.FS

// BundledFS roots the embedded tree at hooks/ so callers see hook
// directories directly.
func BundledFS() fs.FS {
	sub, err := fs.Sub(bundledFS, "hooks")
	if err != nil {
		return bundledFS
	}
	return sub
}
