package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/balkashynov/crewclock/internal/models"
)

// LocalStore is where ingested sessions are kept on this device
type LocalStore interface {
	AppendSession(session *models.SessionRecord) error
	HasSession(id string) (bool, error)
	CurrentMembership() (*models.Membership, error)
}

// SessionUploader hands a session to the remote side. *Coordinator
// implements it.
type SessionUploader interface {
	UploadSession(ctx context.Context, groupID, userName string, session models.SessionRecord) (Outcome, error)
}

// Ingest stores a finished session locally and then uploads or queues it.
// Group and user default to the device's membership. A session whose id is
// already stored locally is only uploaded, so a document that failed once
// can be dropped again as a retry.
func Ingest(ctx context.Context, local LocalStore, up SessionUploader, doc models.SessionDocument) (Outcome, error) {
	outcome, _, err := ingest(ctx, local, up, doc)
	return outcome, err
}

// ingest is Ingest that also returns the document as stored, with every
// generated id filled in. The returned document is zero when nothing was
// stored.
func ingest(ctx context.Context, local LocalStore, up SessionUploader, doc models.SessionDocument) (Outcome, models.SessionDocument, error) {
	if doc.GroupID == "" || doc.UserName == "" {
		m, err := local.CurrentMembership()
		if err != nil {
			return "", models.SessionDocument{}, fmt.Errorf("session names no group and this device has not joined one: %w", err)
		}
		if doc.GroupID == "" {
			doc.GroupID = m.GroupID
		}
		if doc.UserName == "" {
			doc.UserName = m.UserName
		}
	}

	stored := false
	if doc.Session.ID != "" {
		var err error
		if stored, err = local.HasSession(doc.Session.ID); err != nil {
			return "", models.SessionDocument{}, err
		}
	}
	if !stored {
		session := doc.Session
		if err := local.AppendSession(&session); err != nil {
			return "", models.SessionDocument{}, err
		}
		doc.Session = session
	}
	outcome, err := up.UploadSession(ctx, doc.GroupID, doc.UserName, doc.Session)
	return outcome, doc, err
}

// Inbox watches a directory for finished-session documents dropped there
// by the capture side
type Inbox struct {
	dir       string
	processed string
	failed    string
	local     LocalStore
	uploader  SessionUploader
	debounce  time.Duration
	logger    *slog.Logger
}

// NewInbox creates an inbox over dir. Handled files move to
// dir/processed, unusable ones to dir/failed.
func NewInbox(dir string, local LocalStore, up SessionUploader, logger *slog.Logger) *Inbox {
	if logger == nil {
		logger = slog.Default()
	}
	return &Inbox{
		dir:       dir,
		processed: filepath.Join(dir, "processed"),
		failed:    filepath.Join(dir, "failed"),
		local:     local,
		uploader:  up,
		debounce:  250 * time.Millisecond,
		logger:    logger.With("component", "inbox", "dir", dir),
	}
}

// SetDebounce changes how long a file must stay quiet before it is read
func (in *Inbox) SetDebounce(d time.Duration) {
	in.debounce = d
}

// Run processes files already present and then every new one until ctx is
// cancelled
func (in *Inbox) Run(ctx context.Context) error {
	for _, dir := range []string{in.dir, in.processed, in.failed} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create inbox directory: %w", err)
		}
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	defer watcher.Close()
	if err := watcher.Add(in.dir); err != nil {
		return fmt.Errorf("failed to watch inbox %s: %w", in.dir, err)
	}

	ready := make(chan string, 64)
	timers := make(map[string]*time.Timer)
	schedule := func(path string) {
		if t, ok := timers[path]; ok {
			t.Reset(in.debounce)
			return
		}
		timers[path] = time.AfterFunc(in.debounce, func() {
			select {
			case ready <- path:
			case <-ctx.Done():
			}
		})
	}

	existing, err := filepath.Glob(filepath.Join(in.dir, "*.json"))
	if err != nil {
		return err
	}
	for _, path := range existing {
		schedule(path)
	}
	in.logger.Info("watching inbox", "existing", len(existing))

	for {
		select {
		case <-ctx.Done():
			for _, t := range timers {
				t.Stop()
			}
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if in.relevant(event) {
				schedule(event.Name)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			in.logger.Warn("inbox watcher error", "err", err)

		case path := <-ready:
			delete(timers, path)
			in.process(ctx, path)
		}
	}
}

func (in *Inbox) relevant(event fsnotify.Event) bool {
	if !strings.HasSuffix(event.Name, ".json") || filepath.Dir(event.Name) != filepath.Clean(in.dir) {
		return false
	}
	return event.Has(fsnotify.Create) || event.Has(fsnotify.Write)
}

// process ingests one file and moves it out of the inbox
func (in *Inbox) process(ctx context.Context, path string) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return
	}
	if err != nil {
		in.logger.Warn("cannot read session file", "file", path, "err", err)
		return
	}

	var doc models.SessionDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		in.logger.Warn("session file is not valid JSON", "file", path, "err", err)
		in.move(path, in.failed)
		return
	}

	outcome, stored, err := ingest(ctx, in.local, in.uploader, doc)
	if err != nil {
		in.logger.Error("session file not uploaded", "file", path, "err", err)
		if stored.Session.ID == "" {
			in.move(path, in.failed)
			return
		}
		// Keep the assigned ids so dropping the file again retries the
		// upload of the session already stored here
		in.rewrite(path, in.failed, stored)
		return
	}
	in.logger.Info("session ingested", "file", filepath.Base(path), "outcome", outcome)
	in.move(path, in.processed)
}

func (in *Inbox) rewrite(path, dir string, doc models.SessionDocument) {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err == nil {
		err = os.WriteFile(filepath.Join(dir, filepath.Base(path)), data, 0644)
	}
	if err != nil {
		in.logger.Warn("failed to save session file with ids", "file", path, "err", err)
		in.move(path, dir)
		return
	}
	if err := os.Remove(path); err != nil {
		in.logger.Warn("failed to remove session file", "file", path, "err", err)
	}
}

func (in *Inbox) move(path, dir string) {
	dst := filepath.Join(dir, filepath.Base(path))
	if err := os.Rename(path, dst); err != nil {
		in.logger.Warn("failed to move session file", "file", path, "to", dir, "err", err)
	}
}
