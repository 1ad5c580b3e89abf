package service

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ledongthuc/pdf"
	"go.uber.org/zap"

	"ipotracker/internal/config"
	"ipotracker/internal/metrics"
	"ipotracker/internal/repository"
	"ipotracker/internal/sebi"
)

var (
	ErrDocumentDownload = errors.New("prospectus download failed")
	ErrArchiveEntry     = errors.New("archive entry escapes working directory")
	ErrArchiveTooLarge  = errors.New("archive exceeds size limit")
)

// TimetableExtractor downloads a prospectus archive, finds the red herring
// prospectus PDF inside it and fills settlement dates from its indicative
// timetable.
type TimetableExtractor struct {
	Repo     repository.Repository
	Calendar *sebi.Calendar
	Metrics  *metrics.Pipeline
	Logger   *zap.Logger

	client          *http.Client
	workDir         string
	maxArchiveBytes int64
	windowSize      int
	fileMarker      string

	// textOf is swapped out in tests.
	textOf func(path string) (string, error)
}

func NewTimetableExtractor(cfg config.TimetableConfig, repo repository.Repository, cal *sebi.Calendar, m *metrics.Pipeline, logger *zap.Logger) *TimetableExtractor {
	maxRedirects := cfg.MaxRedirects
	if maxRedirects < 0 {
		maxRedirects = 0
	}
	timeout := cfg.DownloadTimeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	maxBytes := cfg.MaxArchiveBytes
	if maxBytes <= 0 {
		maxBytes = 200 << 20
	}
	marker := strings.ToLower(strings.TrimSpace(cfg.FileMarker))
	if marker == "" {
		marker = "rhp"
	}
	return &TimetableExtractor{
		Repo:     repo,
		Calendar: cal,
		Metrics:  m,
		Logger:   logger,
		client: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) > maxRedirects {
					return fmt.Errorf("stopped after %d redirects", maxRedirects)
				}
				return nil
			},
		},
		workDir:         cfg.WorkDir,
		maxArchiveBytes: maxBytes,
		windowSize:      cfg.WindowSize,
		fileMarker:      marker,
		textOf:          pdfPlainText,
	}
}

// Extract runs download, unpack, locate, parse and persist in sequence. The
// working directory is removed on every exit path. An archive without a
// matching PDF, or a PDF without a timetable, is not an error.
func (e *TimetableExtractor) Extract(ctx context.Context, offeringID uint64, documentURL string) (Timetable, error) {
	if e == nil {
		return nil, nil
	}
	logger := nopLogger(e.Logger).With(zap.Uint64("offering_id", offeringID))
	documentURL = strings.TrimSpace(documentURL)
	if documentURL == "" {
		return nil, nil
	}

	dir, err := os.MkdirTemp(e.workDir, "prospectus-*")
	if err != nil {
		e.Metrics.Timetable(metrics.OutcomeFailed)
		return nil, fmt.Errorf("create working dir: %w", err)
	}
	defer os.RemoveAll(dir)

	archivePath := filepath.Join(dir, "document")
	if err := e.download(ctx, documentURL, archivePath); err != nil {
		e.Metrics.Timetable(metrics.OutcomeFailed)
		return nil, err
	}

	pdfPath, err := e.unpack(archivePath, filepath.Join(dir, "files"))
	if err != nil {
		e.Metrics.Timetable(metrics.OutcomeFailed)
		return nil, err
	}
	if pdfPath == "" {
		logger.Debug("no prospectus pdf in archive", zap.String("url", documentURL))
		e.Metrics.Timetable(metrics.OutcomeEmpty)
		return nil, nil
	}

	text, err := e.textOf(pdfPath)
	if err != nil {
		e.Metrics.Timetable(metrics.OutcomeFailed)
		return nil, fmt.Errorf("read prospectus text: %w", err)
	}
	timetable := ParseTimetable(text, e.windowSize)
	if len(timetable) == 0 {
		logger.Debug("no timetable found in prospectus", zap.String("file", filepath.Base(pdfPath)))
		e.Metrics.Timetable(metrics.OutcomeEmpty)
		return nil, nil
	}

	written, err := e.persist(ctx, offeringID, timetable)
	if err != nil {
		e.Metrics.Timetable(metrics.OutcomeFailed)
		return timetable, err
	}
	e.Metrics.Timetable(metrics.OutcomeOK)
	logger.Info("prospectus timetable extracted",
		zap.Int("found", len(timetable)),
		zap.Strings("written", written),
	)
	return timetable, nil
}

func (e *TimetableExtractor) download(ctx context.Context, documentURL, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, documentURL, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDocumentDownload, err)
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDocumentDownload, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: status %d", ErrDocumentDownload, resp.StatusCode)
	}

	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	n, err := io.Copy(out, io.LimitReader(resp.Body, e.maxArchiveBytes+1))
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDocumentDownload, err)
	}
	if n > e.maxArchiveBytes {
		return ErrArchiveTooLarge
	}
	return nil
}

var pdfMagic = []byte("%PDF")

// unpack extracts the archive into dir and returns the first PDF, in lexical
// walk order, whose name carries the file marker. A download that already is
// a PDF is used as is.
func (e *TimetableExtractor) unpack(archivePath, dir string) (string, error) {
	head := make([]byte, len(pdfMagic))
	if f, err := os.Open(archivePath); err == nil {
		_, _ = io.ReadFull(f, head)
		_ = f.Close()
	}
	if bytes.Equal(head, pdfMagic) {
		return archivePath, nil
	}

	if err := extractZip(archivePath, dir, 4*e.maxArchiveBytes); err != nil {
		return "", err
	}
	return locatePDF(dir, e.fileMarker)
}

func extractZip(archivePath, dir string, maxTotal int64) error {
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer r.Close()

	root, err := filepath.Abs(dir)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return err
	}
	var total int64
	for _, f := range r.File {
		target := filepath.Join(root, f.Name)
		if target != root && !strings.HasPrefix(target, root+string(os.PathSeparator)) {
			return fmt.Errorf("%w: %s", ErrArchiveEntry, f.Name)
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		n, err := extractFile(f, target, maxTotal-total)
		if err != nil {
			return err
		}
		total += n
	}
	return nil
}

func extractFile(f *zip.File, target string, budget int64) (int64, error) {
	if budget <= 0 {
		return 0, ErrArchiveTooLarge
	}
	src, err := f.Open()
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", f.Name, err)
	}
	defer src.Close()
	dst, err := os.Create(target)
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(dst, io.LimitReader(src, budget+1))
	if closeErr := dst.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return n, fmt.Errorf("extract %s: %w", f.Name, err)
	}
	if n > budget {
		return n, ErrArchiveTooLarge
	}
	return n, nil
}

var errFound = errors.New("found")

func locatePDF(dir, marker string) (string, error) {
	var found string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		name := strings.ToLower(d.Name())
		if strings.Contains(name, marker) && strings.HasSuffix(name, ".pdf") {
			found = path
			return errFound
		}
		return nil
	})
	if err != nil && !errors.Is(err, errFound) {
		return "", err
	}
	return found, nil
}

func pdfPlainText(path string) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	reader, err := r.GetPlainText()
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(reader); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// persist writes each extracted date with an UPDATE against the existing dates
// row, and only where the stored value is null or not a business day.
func (e *TimetableExtractor) persist(ctx context.Context, offeringID uint64, timetable Timetable) ([]string, error) {
	if e.Repo == nil || e.Calendar == nil {
		return nil, nil
	}
	stored, err := e.Repo.GetOfferingDates(ctx, offeringID)
	if err != nil {
		return nil, fmt.Errorf("load dates of offering %d: %w", offeringID, err)
	}
	if stored == nil {
		return nil, nil
	}
	updates := map[string]time.Time{}
	written := make([]string, 0, len(timetable))
	for _, d := range timetable {
		current := stored.Get(d.Column)
		if current != nil && e.Calendar.IsBusinessDay(e.Calendar.FromStorage(*current)) {
			continue
		}
		updates[d.Column] = d.Date
		written = append(written, d.Column)
	}
	if len(updates) == 0 {
		return nil, nil
	}
	if _, err := e.Repo.UpdateOfferingDates(ctx, offeringID, updates); err != nil {
		return nil, fmt.Errorf("write timetable of offering %d: %w", offeringID, err)
	}
	return written, nil
}
