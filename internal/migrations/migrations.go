// Package migrations embeds the goose SQL migrations. Table names in
// the SQL carry a {{prefix}} placeholder that is rendered with the
// configured table prefix at load time, so the DDL creates the same
// tables the repositories interpolate into their queries.
package migrations

import (
	"embed"
	"io"
	"io/fs"
	"strings"
	"time"
)

//go:embed *.sql
var embedded embed.FS

const placeholder = "{{prefix}}"

// WithPrefix returns the migration filesystem with every table-name
// placeholder replaced by prefix. An empty prefix yields the plain
// foldershare_* names.
func WithPrefix(prefix string) fs.FS {
	return &prefixFS{prefix: prefix}
}

type prefixFS struct {
	prefix string
}

func (p *prefixFS) Open(name string) (fs.File, error) {
	f, err := embedded.Open(name)
	if err != nil {
		return nil, err
	}
	if !strings.HasSuffix(name, ".sql") {
		// Directories pass through untouched so fs.ReadDir works.
		return f, nil
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}

	rendered := strings.ReplaceAll(string(data), placeholder, p.prefix)
	return &renderedFile{
		Reader: strings.NewReader(rendered),
		info: renderedInfo{
			name:    info.Name(),
			size:    int64(len(rendered)),
			mode:    info.Mode(),
			modTime: info.ModTime(),
		},
	}, nil
}

// renderedFile serves substituted SQL as an fs.File.
type renderedFile struct {
	*strings.Reader
	info renderedInfo
}

func (f *renderedFile) Stat() (fs.FileInfo, error) { return f.info, nil }
func (f *renderedFile) Close() error               { return nil }

type renderedInfo struct {
	name    string
	size    int64
	mode    fs.FileMode
	modTime time.Time
}

func (i renderedInfo) Name() string       { return i.name }
func (i renderedInfo) Size() int64        { return i.size }
func (i renderedInfo) Mode() fs.FileMode  { return i.mode }
func (i renderedInfo) ModTime() time.Time { return i.modTime }
func (i renderedInfo) IsDir() bool        { return false }
func (i renderedInfo) Sys() any           { return nil }
