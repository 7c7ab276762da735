package httpclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/rsjfw/rsjfw/internal/apperr"
	"github.com/rsjfw/rsjfw/internal/progress"
	"go.uber.org/zap"
)

// Download streams url into dest, reporting fraction and byte counts on
// task. The body is written to dest+".part" and renamed on completion so a
// half-written file never looks cached.
func (c *Client) Download(ctx context.Context, url, dest, task string, rep progress.Reporter) error {
	if rep == nil {
		rep = progress.Nop
	}

	resp, err := c.resty.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		Get(url)
	if err != nil {
		return apperr.Wrap(apperr.KindNetwork, "downloading "+url, err)
	}
	body := resp.RawBody()
	defer body.Close()

	if !resp.IsSuccess() {
		return apperr.Wrap(apperr.KindNetwork, "", &StatusError{URL: url, Code: resp.StatusCode()})
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return fmt.Errorf("creating download directory: %w", err)
	}
	part := dest + ".part"
	f, err := os.Create(part)
	if err != nil {
		return fmt.Errorf("creating download file: %w", err)
	}

	total := resp.RawResponse.ContentLength
	name := filepath.Base(dest)
	var downloaded int64
	lastPercent := -1

	buf := make([]byte, 32*1024)
	for {
		n, readErr := body.Read(buf)
		if n > 0 {
			if _, writeErr := f.Write(buf[:n]); writeErr != nil {
				f.Close()
				os.Remove(part)
				return fmt.Errorf("writing download: %w", writeErr)
			}
			downloaded += int64(n)
			if total > 0 {
				percent := int(downloaded * 100 / total)
				if percent != lastPercent {
					rep.Report(task, float64(downloaded)/float64(total), fmt.Sprintf("Downloading %s (%s / %s)",
						name, humanize.Bytes(uint64(downloaded)), humanize.Bytes(uint64(total))))
					lastPercent = percent
				}
			}
		}
		if errors.Is(readErr, io.EOF) {
			break
		}
		if readErr != nil {
			f.Close()
			os.Remove(part)
			return apperr.Wrap(apperr.KindNetwork, "reading download stream", readErr)
		}
	}
	if err := f.Close(); err != nil {
		os.Remove(part)
		return fmt.Errorf("closing download file: %w", err)
	}
	if err := os.Rename(part, dest); err != nil {
		os.Remove(part)
		return fmt.Errorf("finalizing download: %w", err)
	}

	c.log.Info("downloaded", zap.String("url", url), zap.String("size", humanize.Bytes(uint64(downloaded))))
	rep.Report(task, 1, fmt.Sprintf("Downloaded %s", name))
	return nil
}
