package xhttp

import (
	"context"
	"io"
	"net/http"
	"path"
	"runtime/debug"
	"strings"
)

const fallbackUserAgent = "xmlstore-client/0"

var defaultUserAgent = fallbackUserAgent

func init() {
	if bf, ok := debug.ReadBuildInfo(); ok {
		defaultUserAgent = UserAgent(bf)
	}
}

// UserAgent creates an User-Agent on the format: <main package name>/<vcs revision> Go/<go version>
// from the given build information. The revision is shortened to 7 chars and is "no-version" if absent.
func UserAgent(bf *debug.BuildInfo) string {
	var uas []string

	if name := path.Base(bf.Path); bf.Path != "" && name != "" {
		version := "no-version"
		for _, setting := range bf.Settings {
			if setting.Key != "vcs.revision" {
				continue
			}
			version = setting.Value
			if len(version) > 7 {
				version = version[:7]
			}
		}
		uas = append(uas, name+"/"+version)
	}
	if bf.GoVersion != "" {
		uas = append(uas, "Go/"+bf.GoVersion)
	}
	if len(uas) == 0 {
		return fallbackUserAgent
	}
	return strings.Join(uas, " ")
}

// NewRequestWithContext calls [http.NewRequestWithContext] and adds an User-Agent header according to [RFC 7231]
// (see [UserAgent]). The user agent identifies the binary talking with the document store on the store logs.
//
// [RFC 7231]: https://datatracker.ietf.org/doc/html/rfc7231#section-5.5.3
func NewRequestWithContext(ctx context.Context, method, url string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return req, err
	}
	req.Header.Set("User-Agent", defaultUserAgent)
	return req, nil
}
