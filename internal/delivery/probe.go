package delivery

import (
	"bytes"
	"context"
	"encoding/hex"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/m3rciful/channelgate/core/logger"
)

const probeHeadBytes = 20

// ProbeResult describes what the document URL currently serves.
type ProbeResult struct {
	URL              string `json:"url"`
	HTTPStatus       int    `json:"http_status"`
	ContentType      string `json:"content_type"`
	DetectedType     string `json:"detected_type"`
	ByteSize         int    `json:"byte_size"`
	SignatureMatches bool   `json:"signature_matches"`
	FirstBytesHex    string `json:"first_bytes_hex"`
}

// Probe downloads url and reports its status, size and leading bytes. Unlike
// Deliver it does not reject non-200 answers; only transport failures are errors.
func (s *Service) Probe(ctx context.Context, url string) (ProbeResult, error) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, s.opts.FetchTimeout)
	defer cancel()

	res := ProbeResult{URL: url}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return res, &FetchError{URL: url, Err: err}
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return res, &FetchError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, s.opts.MaxBytes))
	if err != nil {
		return res, &FetchError{URL: url, Status: resp.StatusCode, Err: err}
	}

	head := data
	if len(head) > probeHeadBytes {
		head = head[:probeHeadBytes]
	}
	res.HTTPStatus = resp.StatusCode
	res.ContentType = resp.Header.Get("Content-Type")
	res.ByteSize = len(data)
	res.SignatureMatches = bytes.HasPrefix(data, pdfSignature)
	res.FirstBytesHex = hex.EncodeToString(head)
	res.DetectedType = mimetype.Detect(data).String()

	logger.Info(ctx, component, "probe",
		slog.String("status", "ok"),
		slog.Int("http_status", res.HTTPStatus),
		slog.Int("bytes", res.ByteSize),
		slog.String("content_type", res.DetectedType),
		slog.Duration("duration", logger.Took(start)),
	)
	return res, nil
}
