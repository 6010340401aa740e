package api

import (
	"fmt"
	"io"
	"mime/multipart"
	"net/textproto"
	"strings"

	"github.com/babara6666/PDF-OCR-batch/internal/constants"
	"github.com/babara6666/PDF-OCR-batch/internal/models"
	"github.com/babara6666/PDF-OCR-batch/internal/progress"
)

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func partHeader(f models.SelectedFile) textproto.MIMEHeader {
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
		constants.MultipartFileField, quoteEscaper.Replace(f.Name)))
	ct := f.MIMEHint
	if ct == "" {
		ct = "application/octet-stream"
	}
	h.Set("Content-Type", ct)
	return h
}

type countingWriter struct{ n int64 }

func (w *countingWriter) Write(p []byte) (int, error) {
	w.n += int64(len(p))
	return len(p), nil
}

// multipartLength computes the exact encoded body size for files under
// boundary without reading any file contents.
func multipartLength(boundary string, files []models.SelectedFile) (int64, error) {
	cw := &countingWriter{}
	mw := multipart.NewWriter(cw)
	if err := mw.SetBoundary(boundary); err != nil {
		return 0, err
	}
	for _, f := range files {
		if _, err := mw.CreatePart(partHeader(f)); err != nil {
			return 0, err
		}
		cw.n += f.Size
	}
	if err := mw.Close(); err != nil {
		return 0, err
	}
	return cw.n, nil
}

// writeMultipart streams every file as a repeated "files" part. File bytes
// pass through a ProgressReader so the projector sees what the transport
// has consumed from the pipe. A file whose size changed since staging
// fails the request because the declared Content-Length would be wrong.
func writeMultipart(mw *multipart.Writer, files []models.SelectedFile, proj *progress.Projector, rep progress.Reporter) error {
	for _, f := range files {
		part, err := mw.CreatePart(partHeader(f))
		if err != nil {
			return err
		}

		rc, err := f.Reader()
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", f.Name, err)
		}

		var src io.Reader = io.LimitReader(rc, f.Size+1)
		if proj != nil {
			src = progress.NewProgressReader(src, proj, rep)
		}
		n, err := io.Copy(part, src)
		rc.Close()
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", f.Name, err)
		}
		if n != f.Size {
			return fmt.Errorf("%s changed since it was added (%d bytes, expected %d)", f.Name, n, f.Size)
		}
	}
	return mw.Close()
}
