package pipeline

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Reference is either a remote URL or a local file. Build it with RemoteURL
// or LocalPath.
type Reference struct {
	remote string
	local  string
}

// RemoteURL references a video by URL.
func RemoteURL(u string) Reference {
	return Reference{remote: strings.TrimSpace(u)}
}

// LocalPath references an already uploaded file.
func LocalPath(p string) Reference {
	return Reference{local: p}
}

// IsRemote reports whether r is a URL reference.
func (r Reference) IsRemote() bool { return r.remote != "" }

// URL returns the remote URL, or "" for local references.
func (r Reference) URL() string { return r.remote }

// Path returns the local path, or "" for remote references.
func (r Reference) Path() string { return r.local }

// Validate checks that exactly one variant is set and that a remote URL is
// an absolute http(s) URL.
func (r Reference) Validate() error {
	switch {
	case r.remote == "" && r.local == "":
		return errors.New("empty video reference")
	case r.remote != "" && r.local != "":
		return errors.New("video reference has both url and path")
	case r.local != "":
		return nil
	}

	u, err := url.Parse(r.remote)
	if err != nil {
		return fmt.Errorf("invalid video url: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("video url must be an absolute http(s) url, got %q", r.remote)
	}
	return nil
}

func (r Reference) String() string {
	if r.local != "" {
		return "file:" + r.local
	}
	return r.remote
}
