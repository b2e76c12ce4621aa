package downloads

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

var (
	// RetryAttempts is the number of times to try a failed download.
	RetryAttempts = 3
	// RetryDelay is the delay between attempts.
	RetryDelay = 5 * time.Second
)

// bufferSize is the copy buffer for downloads.
const bufferSize = 32 * 1024

// ByteProgressCallback receives the bytes written so far and the expected
// total, which is -1 when the server did not say.
type ByteProgressCallback func(downloaded, total int64)

// DownloadFile fetches url into destPath. A partial destPath is resumed with
// a Range request when the server supports it.
func DownloadFile(ctx context.Context, destPath string, url string, progressCb ByteProgressCallback) error {
	var existingSize int64
	if stat, err := os.Stat(destPath); err == nil {
		existingSize = stat.Size()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if existingSize > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", existingSize))
	}

	// no client timeout; archives are large and ctx bounds the transfer
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	var out *os.File
	switch resp.StatusCode {
	case http.StatusOK:
		existingSize = 0
		out, err = os.Create(destPath)
	case http.StatusPartialContent:
		out, err = os.OpenFile(destPath, os.O_APPEND|os.O_WRONLY, 0644)
	case http.StatusRequestedRangeNotSatisfiable:
		// already complete
		if progressCb != nil {
			progressCb(existingSize, existingSize)
		}
		return nil
	default:
		return fmt.Errorf("bad status: %s", resp.Status)
	}
	if err != nil {
		return fmt.Errorf("failed to open output file: %w", err)
	}
	defer out.Close()

	totalSize := resp.ContentLength
	if totalSize >= 0 {
		totalSize += existingSize
	}

	downloaded := existingSize
	buffer := make([]byte, bufferSize)
	lastReport := time.Now()
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := resp.Body.Read(buffer)
		if n > 0 {
			if _, writeErr := out.Write(buffer[:n]); writeErr != nil {
				return fmt.Errorf("failed to write to file: %w", writeErr)
			}
			downloaded += int64(n)
			if progressCb != nil && time.Since(lastReport) >= 100*time.Millisecond {
				progressCb(downloaded, totalSize)
				lastReport = time.Now()
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read response: %w", err)
		}
	}

	if progressCb != nil {
		progressCb(downloaded, totalSize)
	}
	return nil
}

// DownloadWithRetry calls DownloadFile up to RetryAttempts times, resuming
// from whatever the previous attempt wrote.
func DownloadWithRetry(ctx context.Context, destPath string, url string, progressCb ByteProgressCallback) error {
	var lastErr error
	for attempt := 1; attempt <= RetryAttempts; attempt++ {
		err := DownloadFile(ctx, destPath, url, progressCb)
		if err == nil {
			return nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return err
		}
		if attempt < RetryAttempts {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(RetryDelay):
			}
		}
	}
	return fmt.Errorf("download failed after %d attempts: %w", RetryAttempts, lastErr)
}
