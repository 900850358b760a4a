package replay

import (
	"bufio"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"

	"cloudtrail-sentry/internal/cloudtrail"
)

var gzipMagic = []byte{0x1f, 0x8b}

// logFile is the document CloudTrail delivers to S3.
type logFile struct {
	Records []cloudtrail.Record `json:"Records"`
}

// ReadRecords decodes a CloudTrail log file, gunzipping it first when it starts with
// the gzip magic bytes. File names are not trusted for this.
func ReadRecords(r io.Reader) ([]cloudtrail.Record, error) {
	br := bufio.NewReader(r)

	magic, err := br.Peek(len(gzipMagic))
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to read log file: %w", err)
	}

	var body io.Reader = br
	if len(magic) == len(gzipMagic) && magic[0] == gzipMagic[0] && magic[1] == gzipMagic[1] {
		gz, err := gzip.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("failed to open gzip stream: %w", err)
		}
		defer gz.Close()
		body = gz
	}

	var doc logFile
	if err := json.NewDecoder(body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode log file: %w", err)
	}
	return doc.Records, nil
}
