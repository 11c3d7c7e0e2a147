package couchbase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/couchbase/gocb/v2"
	"github.com/rs/zerolog/log"

	"shaneshark.com/portfolio/internal/store"
)

// documents is the key-value surface of DocumentManager
type documents interface {
	Get(ctx context.Context, docID string, result interface{}) (gocb.Cas, error)
	Insert(ctx context.Context, docID string, data interface{}) error
	Replace(ctx context.Context, docID string, data interface{}, cas gocb.Cas) error
	Remove(ctx context.Context, docID string) error
	MutateIn(ctx context.Context, docID string, specs []gocb.MutateInSpec) error
}

// Client implements store.Store on a Couchbase bucket
type Client struct {
	connManager *ConnectionManager
	docManager  documents
	locker      *DatabaseLocker
	ids         *store.IDGenerator
}

var _ store.Store = (*Client)(nil)

// NewClient connects to Couchbase and creates the indexes under the database lock
func NewClient(ctx context.Context, url, username, password, bucket string, ids *store.IDGenerator) (*Client, error) {
	connManager, err := NewConnectionManager(ctx, url, username, password, bucket)
	if err != nil {
		return nil, err
	}

	client := &Client{
		connManager: connManager,
		docManager:  NewDocumentManager(connManager.GetBucket()),
		locker:      NewDatabaseLocker(connManager.GetBucket()),
		ids:         ids,
	}

	if err := client.locker.WithLock(ctx, client.createIndexes); err != nil {
		connManager.Close()
		return nil, fmt.Errorf("failed to create indexes: %w", err)
	}

	return client, nil
}

func (c *Client) createIndexes(ctx context.Context) error {
	log.Info().Msg("Creating secondary indexes for efficient querying...")

	for _, indexQuery := range indexStatements(c.connManager.GetBucketName()) {
		_, err := c.connManager.GetCluster().Query(indexQuery, &gocb.QueryOptions{Context: ctx})
		if err != nil {
			log.Warn().Err(err).Str("query", indexQuery).Msg("Failed to create index")
			return err
		}
		log.Debug().Str("query", indexQuery).Msg("Index ready")
	}

	log.Info().Msg("Secondary indexes creation completed")
	return nil
}

// Close closes the Couchbase connection
func (c *Client) Close() error {
	return c.connManager.Close()
}

func (c *Client) Ping(ctx context.Context) error {
	_, err := c.connManager.GetBucket().Ping(&gocb.PingOptions{
		Context:      ctx,
		ServiceTypes: []gocb.ServiceType{gocb.ServiceTypeKeyValue},
	})
	return err
}

func (c *Client) query(ctx context.Context, statement string, args []interface{}) (*gocb.QueryResult, error) {
	return c.connManager.GetCluster().Query(statement, &gocb.QueryOptions{
		Context:              ctx,
		PositionalParameters: args,
		ScanConsistency:      gocb.QueryScanConsistencyRequestPlus,
	})
}

func (c *Client) ListQa(ctx context.Context, q store.QaQuery) (store.Page[store.QaInfo], error) {
	bucket := c.connManager.GetBucketName()

	countStmt, countArgs := buildCountQuery(bucket, q)
	rows, err := c.query(ctx, countStmt, countArgs)
	if err != nil {
		return store.Page[store.QaInfo]{}, fmt.Errorf("count qa: %w", err)
	}
	var count struct {
		Count int64 `json:"count"`
	}
	if err := rows.One(&count); err != nil {
		return store.Page[store.QaInfo]{}, fmt.Errorf("read qa count: %w", err)
	}

	listStmt, listArgs := buildListQuery(bucket, q)
	docs, err := c.queryQa(ctx, listStmt, listArgs)
	if err != nil {
		return store.Page[store.QaInfo]{}, err
	}

	return store.NewPage(docs, count.Count, q.Current, q.PageSize), nil
}

func (c *Client) ListHotQa(ctx context.Context) ([]store.QaInfo, error) {
	stmt := fmt.Sprintf("SELECT d.* FROM `%s` AS d WHERE d.`type` = $1 AND d.isHot = 1 ORDER BY d.createTime DESC",
		c.connManager.GetBucketName())
	return c.queryQa(ctx, stmt, []interface{}{docTypeQa})
}

func (c *Client) queryQa(ctx context.Context, stmt string, args []interface{}) ([]store.QaInfo, error) {
	rows, err := c.query(ctx, stmt, args)
	if err != nil {
		return nil, fmt.Errorf("list qa: %w", err)
	}
	defer rows.Close()

	var out []store.QaInfo
	for rows.Next() {
		var doc qaDocument
		if err := rows.Row(&doc); err != nil {
			log.Warn().Err(err).Msg("Failed to decode qa row")
			continue
		}
		out = append(out, doc.toQa())
	}
	return out, rows.Err()
}

func (c *Client) GetQa(ctx context.Context, id store.ID) (*store.QaInfo, error) {
	var doc qaDocument
	if _, err := c.docManager.Get(ctx, qaKey(id), &doc); err != nil {
		return nil, err
	}
	qa := doc.toQa()
	return &qa, nil
}

func (c *Client) IncrementQaViews(ctx context.Context, id store.ID) error {
	return c.docManager.MutateIn(ctx, qaKey(id), []gocb.MutateInSpec{
		gocb.IncrementSpec("viewCount", 1, nil),
	})
}

func (c *Client) CreateQa(ctx context.Context, qa *store.QaInfo) error {
	if qa.ID == 0 {
		qa.ID = c.ids.Next()
	}
	return c.docManager.Insert(ctx, qaKey(qa.ID), newQaDocument(qa))
}

// UpdateQa rewrites the editable fields and leaves viewCount untouched
func (c *Client) UpdateQa(ctx context.Context, qa *store.QaInfo) error {
	return c.docManager.MutateIn(ctx, qaKey(qa.ID), []gocb.MutateInSpec{
		gocb.ReplaceSpec("question", qa.Question, nil),
		gocb.ReplaceSpec("answer", qa.Answer, nil),
		gocb.UpsertSpec("tag", qa.Tag, nil),
		gocb.UpsertSpec("isHot", qa.IsHot, nil),
		gocb.UpsertSpec("updateTime", qa.UpdateTime.UnixMilli(), nil),
	})
}

func (c *Client) DeleteQa(ctx context.Context, id store.ID) error {
	return c.docManager.Remove(ctx, qaKey(id))
}

func (c *Client) FindUserByEmail(ctx context.Context, email string) (*store.User, error) {
	var lookup emailLookup
	if _, err := c.docManager.Get(ctx, emailKey(email), &lookup); err != nil {
		return nil, err
	}
	var doc userDocument
	if _, err := c.docManager.Get(ctx, userKey(lookup.UserID), &doc); err != nil {
		return nil, err
	}
	u := doc.toUser()
	return &u, nil
}

// CreateUser claims the e-mail lookup key first so two registrations cannot race
func (c *Client) CreateUser(ctx context.Context, u *store.User) error {
	if u.ID == 0 {
		u.ID = c.ids.Next()
	}
	if u.Email != "" {
		err := c.docManager.Insert(ctx, emailKey(u.Email), emailLookup{UserID: u.ID})
		if errors.Is(err, gocb.ErrDocumentExists) {
			return fmt.Errorf("e-mail %s already registered", u.Email)
		}
		if err != nil {
			return err
		}
	}
	if err := c.docManager.Insert(ctx, userKey(u.ID), newUserDocument(u)); err != nil {
		if u.Email != "" {
			if rmErr := c.docManager.Remove(context.WithoutCancel(ctx), emailKey(u.Email)); rmErr != nil {
				log.Error().Err(rmErr).Str("email", u.Email).Msg("Failed to release e-mail lookup after user insert failed")
			}
		}
		return err
	}
	return nil
}

func (c *Client) UpdateUserRole(ctx context.Context, email, role string) error {
	var lookup emailLookup
	if _, err := c.docManager.Get(ctx, emailKey(email), &lookup); err != nil {
		return err
	}
	return c.docManager.MutateIn(ctx, userKey(lookup.UserID), []gocb.MutateInSpec{
		gocb.UpsertSpec("role", role, nil),
		gocb.UpsertSpec("updateTime", time.Now().UnixMilli(), nil),
	})
}

func (c *Client) SaveVerificationCode(ctx context.Context, vc *store.VerificationCode) error {
	if vc.ID == 0 {
		vc.ID = c.ids.Next()
	}
	return c.docManager.Insert(ctx, codeKey(vc.ID), newCodeDocument(vc))
}

// ConsumeVerificationCode finds the newest candidate by N1QL and flips it with a CAS replace
func (c *Client) ConsumeVerificationCode(ctx context.Context, account, code string, now time.Time) error {
	stmt := fmt.Sprintf("SELECT RAW d.id FROM `%s` AS d WHERE d.`type` = $1 AND d.account = $2 AND d.code = $3 "+
		"AND d.status = $4 AND d.expireTime > $5 ORDER BY d.createTime DESC LIMIT 1", c.connManager.GetBucketName())
	rows, err := c.query(ctx, stmt, []interface{}{docTypeCode, account, code, store.CodeUnused, now.UnixMilli()})
	if err != nil {
		return fmt.Errorf("find verification code: %w", err)
	}
	var id store.ID
	if err := rows.One(&id); err != nil {
		if errors.Is(err, gocb.ErrNoResult) {
			return store.ErrNotFound
		}
		return fmt.Errorf("read verification code: %w", err)
	}

	var doc codeDocument
	cas, err := c.docManager.Get(ctx, codeKey(id), &doc)
	if err != nil {
		return err
	}
	if doc.Status != store.CodeUnused {
		return store.ErrNotFound
	}
	doc.Status = store.CodeUsed
	err = c.docManager.Replace(ctx, codeKey(id), doc, cas)
	if errors.Is(err, gocb.ErrCasMismatch) {
		// consumed concurrently
		return store.ErrNotFound
	}
	return err
}
