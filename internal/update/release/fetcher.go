// Package release downloads and unpacks release source archives.
package release

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/valyala/fasttemplate"
	"go.uber.org/zap"

	"github.com/muxos/muxos-helper/pkg/config"
	"github.com/muxos/muxos-helper/pkg/errclass"
)

// Fetcher resolves (repo, ref) pairs to archive URLs and downloads them.
type Fetcher struct {
	client    *http.Client
	template  *fasttemplate.Template
	userAgent string
	logger    *zap.Logger
}

// NewFetcher builds a fetcher from the update configuration. The URL
// template may reference {{repo}} and {{ref}}.
func NewFetcher(cfg config.UpdateConfig, logger *zap.Logger) (*Fetcher, error) {
	tmpl, err := fasttemplate.NewTemplate(cfg.ArchiveURLTemplate, "{{", "}}")
	if err != nil {
		return nil, fmt.Errorf("parse archive url template: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{
		client:    &http.Client{Timeout: cfg.DownloadTimeout},
		template:  tmpl,
		userAgent: cfg.UserAgent,
		logger:    logger,
	}, nil
}

// URL returns the archive location for repo at ref.
func (f *Fetcher) URL(repo, ref string) string {
	return f.template.ExecuteFuncString(func(w io.Writer, tag string) (int, error) {
		switch tag {
		case "repo":
			return w.Write([]byte(repo))
		case "ref":
			return w.Write([]byte(url.PathEscape(ref)))
		default:
			return 0, nil
		}
	})
}

// Fetch downloads the archive for repo at ref. The caller must close the
// returned body. The client timeout bounds the whole transfer, including
// reading the body.
func (f *Fetcher) Fetch(ctx context.Context, repo, ref string) (io.ReadCloser, error) {
	archiveURL := f.URL(repo, ref)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, archiveURL, nil)
	if err != nil {
		return nil, errclass.ErrTransport.WithMessagef("build request for %s: %v", archiveURL, err)
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	f.logger.Info("downloading release archive", zap.String("url", archiveURL))
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, errclass.ErrTransport.WithMessagef("failed to download %s@%s: %v", repo, ref, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, errclass.ErrTransport.WithMessagef("failed to download %s@%s: HTTP %d", repo, ref, resp.StatusCode)
	}
	return resp.Body, nil
}
