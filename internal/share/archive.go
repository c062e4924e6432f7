package share

import (
	"archive/zip"
	"context"
	"errors"
	"io"
	"time"

	"github.com/klauspost/compress/flate"

	"droplink/internal/logging"
)

// WriteArchive streams a compressed zip of a group's blobs to w. Entry names
// are the recovered original filenames, in upload order. The archive is built
// on the fly; nothing is buffered beyond the compressor's window.
//
// Blobs missing at write time (swept mid-download, or never written) are
// skipped and logged, so a partially expired group still yields an archive of
// what remains. Errors before the first entry is written are reported cleanly;
// once bytes have been flushed the caller can only abort the stream.
func (s *Service) WriteArchive(ctx context.Context, groupID string, w io.Writer) error {
	entries, err := s.GroupFiles(ctx, groupID)
	if err != nil {
		return err
	}

	zw := zip.NewWriter(w)
	zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, flate.BestCompression)
	})

	for _, entry := range entries {
		rc, err := s.storage.Load(ctx, entry.StoredName)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				logging.Internal.Printf("archive %s: blob %s missing, skipping", groupID, entry.StoredName)
				continue
			}
			zw.Close()
			return err
		}

		fw, err := zw.CreateHeader(&zip.FileHeader{
			Name:     entry.OriginalName,
			Method:   zip.Deflate,
			Modified: time.Now(),
		})
		if err != nil {
			rc.Close()
			zw.Close()
			return err
		}
		if _, err := io.Copy(fw, rc); err != nil {
			rc.Close()
			zw.Close()
			return err
		}
		rc.Close()
	}

	return zw.Close()
}
