package receiver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/fruitsalade/dirsync/internal/logging"
	"github.com/fruitsalade/dirsync/internal/metrics"
	"github.com/fruitsalade/dirsync/pkg/protocol"
)

const maxFieldSize = 64 * 1024

// uploadError is a failed upload request. Alert marks failures the
// operator is notified about.
type uploadError struct {
	Code    int
	Subject string
	Err     error
	Alert   bool
}

func (e *uploadError) Error() string {
	return fmt.Sprintf("%s: %v", e.Subject, e.Err)
}

func (e *uploadError) Unwrap() error { return e.Err }

// receiveError classifies an error hit while reading or storing the body.
// An oversized body is the client's fault; anything else is alerted.
func receiveError(subject string, err error) *uploadError {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return &uploadError{
			Code:    http.StatusRequestEntityTooLarge,
			Subject: fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit),
			Err:     err,
		}
	}
	return &uploadError{Code: http.StatusInternalServerError, Subject: subject, Err: err, Alert: true}
}

type spooledPart struct {
	name string
	path string
}

// upload is the state of one upload request.
type upload struct {
	s          *Server
	receivedAt time.Time
	fields     map[string]string
	spooled    []spooledPart
	stored     []protocol.StoredFile
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadSize)

	mr, err := r.MultipartReader()
	switch {
	case errors.Is(err, http.ErrNotMultipart):
		s.fail(w, r, &uploadError{
			Code:    http.StatusBadRequest,
			Subject: "expected a multipart/form-data body",
			Err:     err,
		})
		return
	case err != nil:
		// Declared multipart but unreadable, e.g. no boundary.
		s.fail(w, r, receiveError("Upload failed", err))
		return
	}

	u := &upload{
		s:          s,
		receivedAt: s.now(),
		fields:     make(map[string]string),
	}
	defer u.cleanup()

	if err := u.process(r.Context(), mr); err != nil {
		if len(u.stored) > 0 {
			logging.WithContext(r.Context()).Warn("upload failed after storing files",
				zap.Int("stored", len(u.stored)))
		}
		s.fail(w, r, err)
		return
	}

	s.sendJSON(w, http.StatusOK, protocol.UploadResponse{
		Success: true,
		Message: "upload successful",
		Files:   u.stored,
	})
}

func (u *upload) process(ctx context.Context, mr *multipart.Reader) error {
	if err := u.readParts(ctx, mr); err != nil {
		return err
	}
	if len(u.stored)+len(u.spooled) == 0 {
		return &uploadError{
			Code:    http.StatusBadRequest,
			Subject: "no file in request",
			Err:     fmt.Errorf("expected a %q part with a filename", protocol.FieldFile),
		}
	}
	if err := u.commitSpooled(ctx); err != nil {
		return err
	}
	return u.applyTimes(ctx)
}

func (u *upload) readParts(ctx context.Context, mr *multipart.Reader) error {
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return receiveError("Upload failed", err)
		}

		if part.FileName() == "" {
			err = u.readField(part)
		} else {
			err = u.receiveFile(ctx, part)
		}
		part.Close()
		if err != nil {
			return err
		}
	}
}

func (u *upload) readField(part *multipart.Part) error {
	value, err := io.ReadAll(io.LimitReader(part, maxFieldSize+1))
	if err != nil {
		return receiveError("Upload failed", err)
	}
	if len(value) > maxFieldSize {
		return &uploadError{
			Code:    http.StatusBadRequest,
			Subject: "form field too large",
			Err:     fmt.Errorf("field %q exceeds %d bytes", part.FormName(), maxFieldSize),
		}
	}
	name := part.FormName()
	if _, dup := u.fields[name]; dup {
		return nil
	}
	u.fields[name] = string(value)
	return nil
}

// receiveFile stores the part directly when its directory is already
// known, otherwise it spools it until the whole body has been read.
func (u *upload) receiveFile(ctx context.Context, part *multipart.Part) error {
	name, err := SanitizeName(part.FileName())
	if err != nil {
		return &uploadError{
			Code:    http.StatusBadRequest,
			Subject: "invalid filename",
			Err:     fmt.Errorf("%q: %w", part.FileName(), err),
		}
	}
	if _, ok := u.fields[protocol.FieldRelativePath]; ok {
		return u.store(ctx, name, part)
	}
	return u.spool(name, part)
}

func (u *upload) store(ctx context.Context, name string, body io.Reader) error {
	dir := SanitizeDir(u.fields[protocol.FieldRelativePath])
	requested := joinKey(dir, name)

	key, size, err := u.s.resolver.Store(ctx, dir, name, body, u.receivedAt)
	metrics.RecordFileReceived(size, err == nil)
	if err != nil {
		return receiveError("Failed to write file: "+requested, err)
	}

	u.stored = append(u.stored, protocol.StoredFile{Path: key, Renamed: key != requested})
	logging.WithContext(ctx).Info("file received",
		zap.String("path", key),
		zap.Int64("size", size),
		zap.Bool("renamed", key != requested))
	return nil
}

func (u *upload) spool(name string, part *multipart.Part) error {
	f, err := os.CreateTemp(u.s.opts.SpoolDir, "dirsync-spool-*")
	if err != nil {
		return receiveError("Upload failed", fmt.Errorf("create spool file: %w", err))
	}
	u.spooled = append(u.spooled, spooledPart{name: name, path: f.Name()})

	_, err = io.Copy(f, part)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return receiveError("Upload failed", err)
	}
	return nil
}

func (u *upload) commitSpooled(ctx context.Context) error {
	for _, sp := range u.spooled {
		f, err := os.Open(sp.path)
		if err != nil {
			return receiveError("Upload failed", fmt.Errorf("open spool file: %w", err))
		}
		err = u.store(ctx, sp.name, f)
		f.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

func (u *upload) applyTimes(ctx context.Context) error {
	times, defaulted := ResolveTimes(
		u.fields[protocol.FieldCreatedAt],
		u.fields[protocol.FieldModifiedAt],
		u.receivedAt)
	if defaulted {
		logging.WithContext(ctx).Debug("timestamps missing or invalid, using receipt time",
			zap.String("created_at", u.fields[protocol.FieldCreatedAt]),
			zap.String("modified_at", u.fields[protocol.FieldModifiedAt]))
	}

	for _, sf := range u.stored {
		if err := u.s.times.Apply(ctx, sf.Path, times); err != nil {
			return &uploadError{
				Code:    http.StatusInternalServerError,
				Subject: "Failed to set timestamps of file: " + sf.Path,
				Err:     err,
				Alert:   true,
			}
		}
	}
	return nil
}

func (u *upload) cleanup() {
	for _, sp := range u.spooled {
		if err := os.Remove(sp.path); err != nil && !os.IsNotExist(err) {
			logging.Warn("failed to remove spool file", zap.String("path", sp.path), zap.Error(err))
		}
	}
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	var ue *uploadError
	if !errors.As(err, &ue) {
		ue = &uploadError{Code: http.StatusInternalServerError, Subject: "Upload failed", Err: err, Alert: true}
	}

	log := logging.WithContext(r.Context())
	if ue.Code >= http.StatusInternalServerError {
		log.Error(ue.Subject, zap.Int("status", ue.Code), zap.Error(ue.Err))
	} else {
		log.Warn(ue.Subject, zap.Int("status", ue.Code), zap.Error(ue.Err))
	}
	if ue.Alert {
		s.notifier.Notify(ue.Subject, fmt.Sprintf("Cause: %v\nRemote: %s", ue.Err, r.RemoteAddr))
	}
	s.sendError(w, ue.Code, ue.Subject, ue.Err.Error())
}
