package handlers

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"

	"github.com/apex/log"
	"github.com/pkg/errors"
)

// DownloadHandler streams the file at source as an attachment named
// attachmentName. The file is opened on every request, relative to the
// working directory, so replacing it on disk takes effect immediately.
func DownloadHandler(source, attachmentName string) http.HandlerFunc {
	disposition := fmt.Sprintf("attachment; filename=\"%s\"", attachmentName)

	return func(w http.ResponseWriter, r *http.Request) {
		entry := log.WithField("source", source)

		f, err := os.Open(source)
		if err != nil {
			if os.IsNotExist(err) {
				entry.Warn("update file not found")
				http.Error(w, "update file not found", http.StatusNotFound)
				return
			}
			entry.WithError(errors.Wrap(err, "open update file")).Error("update file unavailable")
			http.Error(w, "update file unavailable", http.StatusInternalServerError)
			return
		}
		defer f.Close()

		info, err := f.Stat()
		if err == nil && info.IsDir() {
			err = errors.Errorf("%s is a directory", source)
		}
		if err != nil {
			entry.WithError(errors.Wrap(err, "stat update file")).Error("update file unavailable")
			http.Error(w, "update file unavailable", http.StatusInternalServerError)
			return
		}

		h := w.Header()
		h.Set("Content-Type", "application/octet-stream")
		h.Set("Content-Disposition", disposition)
		h.Set("Content-Length", strconv.FormatInt(info.Size(), 10))

		if r.Method == http.MethodHead {
			return
		}

		// Headers are gone by now; a failed copy can only be logged.
		if n, err := sendFile(w, f, info.Size()); err != nil {
			entry.WithError(err).WithField("written", n).Warn("download interrupted")
		}
	}
}

// sendFile copies exactly size bytes, the length already announced in
// Content-Length, even if the file grew after it was stat'ed.
func sendFile(w io.Writer, f io.Reader, size int64) (int64, error) {
	return io.CopyN(w, f, size)
}
