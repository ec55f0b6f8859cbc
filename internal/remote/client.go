package remote

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/balkashynov/crewclock/internal/models"
)

const (
	// BatchSize is the most records sent in one modify request
	BatchSize = 400
	// QueryLimit is the most records a single query returns. There is no
	// cursor, so larger result sets are cut off.
	QueryLimit = 1000
)

// Options configures a Client
type Options struct {
	Zone       string
	LinkScheme string
	Logger     *slog.Logger
}

// Client speaks to a record backend inside one zone
type Client struct {
	backend    Backend
	zone       string
	linkScheme string
	logger     *slog.Logger
}

// NewClient wraps a backend
func NewClient(backend Backend, opts Options) *Client {
	if opts.Zone == "" {
		opts.Zone = "groups"
	}
	if opts.LinkScheme == "" {
		opts.LinkScheme = "crewclock"
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Client{
		backend:    backend,
		zone:       opts.Zone,
		linkScheme: opts.LinkScheme,
		logger:     opts.Logger.With("component", "remote", "zone", opts.Zone),
	}
}

// Zone returns the zone the client writes to
func (c *Client) Zone() string {
	return c.zone
}

// EnsureNamespace creates the zone if it does not exist yet
func (c *Client) EnsureNamespace(ctx context.Context) error {
	err := c.backend.FetchZone(ctx, c.zone)
	if err == nil {
		return nil
	}
	if !errors.Is(err, ErrNamespaceMissing) {
		return err
	}
	c.logger.Info("creating namespace")
	if err := c.backend.CreateZone(ctx, c.zone); err != nil {
		return fmt.Errorf("create namespace %s: %w", c.zone, err)
	}
	return nil
}

// modify sends one request and, if the zone is gone, recreates it and
// tries exactly once more
func (c *Client) modify(ctx context.Context, req ModifyRequest) (ModifyResult, error) {
	res, err := c.backend.Modify(ctx, c.zone, req)
	if !errors.Is(err, ErrNamespaceMissing) {
		return res, err
	}
	c.logger.Warn("namespace missing, recreating and retrying")
	if cerr := c.backend.CreateZone(ctx, c.zone); cerr != nil {
		return ModifyResult{}, fmt.Errorf("create namespace %s: %w", c.zone, cerr)
	}
	return c.backend.Modify(ctx, c.zone, req)
}

// CreateGroup saves a new group with its share record and returns the link
// other users join with
func (c *Client) CreateGroup(ctx context.Context, ownerName, groupName string) (string, string, error) {
	if ownerName == "" || groupName == "" {
		return "", "", fmt.Errorf("group name and owner are required: %w", ErrEncoding)
	}
	if err := c.EnsureNamespace(ctx); err != nil {
		return "", "", err
	}

	groupID := uuid.NewString()
	link := ShareLink(c.linkScheme, groupID)
	req := ModifyRequest{
		Save: []Record{
			EncodeGroup(models.Group{ID: groupID, Name: groupName, OwnerName: ownerName}),
			EncodeShare(uuid.NewString(), groupID, groupName, link),
		},
		Policy: SaveIfUnchanged,
		Atomic: true,
	}
	if _, err := c.modify(ctx, req); err != nil {
		return "", "", fmt.Errorf("create group %q: %w", groupName, err)
	}
	c.logger.Info("group created", "group", groupID, "name", groupName, "owner", ownerName)
	return link, groupID, nil
}

// FetchGroup loads a group's root record
func (c *Client) FetchGroup(ctx context.Context, groupID string) (models.Group, error) {
	recs, err := c.Lookup(ctx, []string{groupID})
	if err != nil {
		return models.Group{}, err
	}
	return DecodeGroup(recs[0])
}

// members returns every member record for (groupID, userName). Duplicates
// can exist because lookup and create are not transactional.
func (c *Client) members(ctx context.Context, groupID, userName string) ([]models.Member, error) {
	recs, err := c.Query(ctx, Query{
		Type: TypeMember,
		Filters: []Filter{
			Equal(FieldGroupRef, RefID(groupID)),
			Equal(FieldUserName, String(userName)),
		},
	})
	if err != nil {
		return nil, err
	}
	out := make([]models.Member, 0, len(recs))
	for _, rec := range recs {
		m, err := DecodeMember(rec)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

// UpsertMember returns the id of the member (groupID, userName), creating
// the member when none exists
func (c *Client) UpsertMember(ctx context.Context, groupID, userName string) (string, error) {
	if groupID == "" || userName == "" {
		return "", fmt.Errorf("group id and user name are required: %w", ErrEncoding)
	}
	existing, err := c.members(ctx, groupID, userName)
	if err != nil {
		return "", err
	}
	if len(existing) > 0 {
		return existing[0].ID, nil
	}

	m := models.Member{ID: uuid.NewString(), GroupID: groupID, UserName: userName}
	_, err = c.modify(ctx, ModifyRequest{
		Save:   []Record{EncodeMember(m)},
		Policy: SaveIfUnchanged,
		Atomic: true,
	})
	if err != nil {
		return "", fmt.Errorf("create member %q: %w", userName, err)
	}
	c.logger.Info("member created", "group", groupID, "user", userName, "member", m.ID)
	return m.ID, nil
}

// UploadRecords saves records in sequential batches of BatchSize. Each
// batch is atomic. The first failing batch ends the upload: earlier
// batches stay committed and later ones are never sent.
func (c *Client) UploadRecords(ctx context.Context, records []Record) error {
	batches := chunk(records, BatchSize)
	for i, batch := range batches {
		_, err := c.modify(ctx, ModifyRequest{
			Save:   batch,
			Policy: SaveIfUnchanged,
			Atomic: true,
		})
		if err != nil {
			return fmt.Errorf("upload batch %d/%d: %w", i+1, len(batches), err)
		}
		c.logger.Debug("batch uploaded", "batch", i+1, "of", len(batches), "records", len(batch))
	}
	return nil
}

// Query runs a single-page query capped at QueryLimit
func (c *Client) Query(ctx context.Context, q Query) ([]Record, error) {
	q.Limit = QueryLimit
	recs, err := c.backend.Query(ctx, c.zone, q)
	if errors.Is(err, ErrNamespaceMissing) {
		if cerr := c.backend.CreateZone(ctx, c.zone); cerr != nil {
			return nil, fmt.Errorf("create namespace %s: %w", c.zone, cerr)
		}
		recs, err = c.backend.Query(ctx, c.zone, q)
	}
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", q.Type, err)
	}
	if len(recs) >= QueryLimit {
		c.logger.Warn("query returned a full page, results may be truncated",
			"type", q.Type, "limit", QueryLimit)
	}
	return recs, nil
}

// Lookup fetches records by id
func (c *Client) Lookup(ctx context.Context, ids []string) ([]Record, error) {
	recs, err := c.backend.Lookup(ctx, c.zone, ids)
	if err != nil {
		return nil, fmt.Errorf("lookup: %w", err)
	}
	return recs, nil
}

// DeleteRecordsInBatches deletes ids in batches of BatchSize. Batches are
// independent: a failure leaves earlier deletions in place.
func (c *Client) DeleteRecordsInBatches(ctx context.Context, ids []string) error {
	batches := chunk(ids, BatchSize)
	for i, batch := range batches {
		_, err := c.modify(ctx, ModifyRequest{Delete: batch, Atomic: true})
		if err != nil {
			return fmt.Errorf("delete batch %d/%d: %w", i+1, len(batches), err)
		}
	}
	return nil
}

// ResetNamespace drops the zone with every record in it and recreates it
// empty
func (c *Client) ResetNamespace(ctx context.Context) error {
	if err := c.backend.DeleteZone(ctx, c.zone); err != nil && !errors.Is(err, ErrNamespaceMissing) {
		return fmt.Errorf("delete namespace %s: %w", c.zone, err)
	}
	if err := c.backend.CreateZone(ctx, c.zone); err != nil {
		return fmt.Errorf("create namespace %s: %w", c.zone, err)
	}
	c.logger.Warn("namespace reset")
	return nil
}

func chunk[T any](items []T, size int) [][]T {
	var out [][]T
	for len(items) > size {
		out = append(out, items[:size:size])
		items = items[size:]
	}
	if len(items) > 0 {
		out = append(out, items)
	}
	return out
}
