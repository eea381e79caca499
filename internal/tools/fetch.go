package tools

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"

	"go.uber.org/zap"

	apperrors "lsphost/internal/errors"
)

// download streams rawURL into dest, following redirects by hand so the hop
// count is bounded.
func (r *Resolver) download(ctx context.Context, rawURL string, dest *os.File) (int64, error) {
	client := *r.client
	client.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}

	current := rawURL
	for hops := 0; ; hops++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, current, nil)
		if err != nil {
			return 0, apperrors.Wrap(apperrors.KindNetwork, "create request", err)
		}
		req.Header.Set("User-Agent", "lsphost/1.0")

		resp, err := client.Do(req)
		if err != nil {
			return 0, apperrors.Wrap(apperrors.KindNetwork, fmt.Sprintf("download %s", current), err)
		}

		if isRedirect(resp.StatusCode) {
			location := resp.Header.Get("Location")
			drain(resp.Body)
			if hops >= r.maxRedirects {
				return 0, apperrors.Newf(apperrors.KindNetwork, "download %s: stopped after %d redirects", rawURL, r.maxRedirects)
			}
			if location == "" {
				return 0, apperrors.Newf(apperrors.KindNetwork, "download %s: redirect without location", current)
			}
			next, err := resolveLocation(current, location)
			if err != nil {
				return 0, apperrors.Wrap(apperrors.KindNetwork, "parse redirect location", err)
			}
			r.log.Debug("following redirect", zap.Int("hop", hops+1), zap.String("location", next))
			current = next
			continue
		}

		n, err := r.copyBody(ctx, resp, dest)
		return n, err
	}
}

func (r *Resolver) copyBody(ctx context.Context, resp *http.Response, dest *os.File) (int64, error) {
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return 0, apperrors.Newf(apperrors.KindNetwork, "download %s: unexpected status %s", resp.Request.URL, resp.Status)
	}

	total := resp.ContentLength
	pw := &progressWriter{
		w: dest,
		report: func(n int64) {
			r.emit(Event{Phase: PhaseDownloading, Downloaded: n, Total: total})
		},
	}
	r.emit(Event{Phase: PhaseDownloading, Downloaded: 0, Total: total})

	n, err := io.Copy(pw, &ctxReader{ctx: ctx, r: resp.Body})
	if err != nil {
		if ctx.Err() != nil {
			return n, apperrors.Wrap(apperrors.KindNetwork, "download cancelled", ctx.Err())
		}
		if pw.writeErr != nil {
			return n, apperrors.Wrap(apperrors.KindFilesystem, "write download", pw.writeErr)
		}
		return n, apperrors.Wrap(apperrors.KindNetwork, "read response body", err)
	}
	return n, nil
}

func isRedirect(code int) bool {
	switch code {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther,
		http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
		return true
	}
	return false
}

func resolveLocation(base, location string) (string, error) {
	b, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	l, err := url.Parse(location)
	if err != nil {
		return "", err
	}
	return b.ResolveReference(l).String(), nil
}

func drain(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, io.LimitReader(body, 64<<10))
	_ = body.Close()
}

type progressWriter struct {
	w        io.Writer
	n        int64
	report   func(int64)
	writeErr error
}

func (p *progressWriter) Write(b []byte) (int, error) {
	n, err := p.w.Write(b)
	p.n += int64(n)
	if err != nil {
		p.writeErr = err
		return n, err
	}
	p.report(p.n)
	return n, nil
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
