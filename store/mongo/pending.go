/*
Package mongo stages pending proposals in MongoDB.

PURPOSE:
  Implements confirm.PendingStore so staged proposals survive restarts and
  can be shared by several server processes.

EXPIRY:
  Reads filter on expires_at > now, so an entry is unusable the moment it
  expires. A TTL index on expires_at lets MongoDB delete it shortly after;
  PurgeExpired does the same on demand for the sweeper.

DOCUMENTS:
  Amounts are stored as decimal strings. Token and batch id are the _id.

SEE ALSO:
  - confirm/types.go: PendingStore contract
  - store/sqlite/pending.go: the SQLite implementation
*/
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/warp/ledger-engine/confirm"
	"github.com/warp/ledger-engine/ledger"
	"github.com/warp/ledger-engine/logctx"
)

const (
	PendingCollection = "pending_transactions"
	BatchCollection   = "pending_batches"
)

// ---- Abstractions for Testability ----

// Collection is the part of *mongo.Collection the store uses.
type Collection interface {
	ReplaceOne(ctx context.Context, filter interface{}, replacement interface{}, opts ...*options.ReplaceOptions) (*mongo.UpdateResult, error)
	FindOne(ctx context.Context, filter interface{}, opts ...*options.FindOneOptions) *mongo.SingleResult
	DeleteOne(ctx context.Context, filter interface{}, opts ...*options.DeleteOptions) (*mongo.DeleteResult, error)
	DeleteMany(ctx context.Context, filter interface{}, opts ...*options.DeleteOptions) (*mongo.DeleteResult, error)
}

// CollectionProvider hands out collections by name.
type CollectionProvider interface {
	Collection(name string) Collection
}

// DatabaseProvider adapts *mongo.Database to CollectionProvider.
type DatabaseProvider struct {
	db *mongo.Database
}

func NewDatabaseProvider(db *mongo.Database) *DatabaseProvider {
	return &DatabaseProvider{db: db}
}

func (p *DatabaseProvider) Collection(name string) Collection {
	return p.db.Collection(name)
}

// Connect dials uri and pings the server.
func Connect(ctx context.Context, uri string) (*mongo.Client, error) {
	logger := logctx.From(ctx)
	logger.DebugContext(ctx, "Attempting to connect to MongoDB")

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}
	logger.InfoContext(ctx, "Successfully established connection to MongoDB")
	return client, nil
}

// EnsureIndexes creates the TTL indexes on expires_at.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	ttl := mongo.IndexModel{
		Keys:    bson.D{{Key: "expires_at", Value: 1}},
		Options: options.Index().SetExpireAfterSeconds(0),
	}
	for _, name := range []string{PendingCollection, BatchCollection} {
		if _, err := db.Collection(name).Indexes().CreateOne(ctx, ttl); err != nil {
			return fmt.Errorf("failed to create TTL index on %s: %w", name, err)
		}
	}
	return nil
}

// =============================================================================
// DOCUMENTS
// =============================================================================

type proposalDoc struct {
	Action       string    `bson:"action"`
	Amount       string    `bson:"amount"`
	Description  string    `bson:"description,omitempty"`
	Category     string    `bson:"category,omitempty"`
	Source       string    `bson:"source,omitempty"`
	WalletID     string    `bson:"wallet_id,omitempty"`
	WalletName   string    `bson:"wallet_name,omitempty"`
	ToWalletID   string    `bson:"to_wallet_id,omitempty"`
	ToWalletName string    `bson:"to_wallet_name,omitempty"`
	GoalID       string    `bson:"goal_id,omitempty"`
	GoalName     string    `bson:"goal_name,omitempty"`
	AssetName    string    `bson:"asset_name,omitempty"`
	AdminFee     string    `bson:"admin_fee"`
	Date         time.Time `bson:"date"`
	Confidence   float64   `bson:"confidence"`
}

type pendingDoc struct {
	Token     string      `bson:"_id"`
	OwnerID   string      `bson:"owner_id"`
	ChannelID string      `bson:"channel_id,omitempty"`
	BatchID   string      `bson:"batch_id,omitempty"`
	Proposal  proposalDoc `bson:"proposal"`
	CreatedAt time.Time   `bson:"created_at"`
	ExpiresAt time.Time   `bson:"expires_at"`
}

type batchDoc struct {
	ID        string    `bson:"_id"`
	OwnerID   string    `bson:"owner_id"`
	ChannelID string    `bson:"channel_id,omitempty"`
	Tokens    []string  `bson:"tokens"`
	CreatedAt time.Time `bson:"created_at"`
	ExpiresAt time.Time `bson:"expires_at"`
}

func toPendingDoc(p confirm.Pending) pendingDoc {
	pr := p.Proposal
	return pendingDoc{
		Token:     p.Token,
		OwnerID:   string(p.OwnerID),
		ChannelID: p.ChannelID,
		BatchID:   p.BatchID,
		Proposal: proposalDoc{
			Action:       string(pr.Action),
			Amount:       pr.Amount.String(),
			Description:  pr.Description,
			Category:     pr.Category,
			Source:       pr.Source,
			WalletID:     string(pr.WalletID),
			WalletName:   pr.WalletName,
			ToWalletID:   string(pr.ToWalletID),
			ToWalletName: pr.ToWalletName,
			GoalID:       string(pr.GoalID),
			GoalName:     pr.GoalName,
			AssetName:    pr.AssetName,
			AdminFee:     pr.AdminFee.String(),
			Date:         pr.Date,
			Confidence:   pr.Confidence,
		},
		CreatedAt: p.CreatedAt,
		ExpiresAt: p.ExpiresAt,
	}
}

func (d pendingDoc) pending() (confirm.Pending, error) {
	amount, err := decimal.NewFromString(d.Proposal.Amount)
	if err != nil {
		return confirm.Pending{}, fmt.Errorf("pending %s: bad amount %q: %w", d.Token, d.Proposal.Amount, err)
	}
	fee, err := decimal.NewFromString(d.Proposal.AdminFee)
	if err != nil {
		fee = decimal.Zero
	}
	pr := d.Proposal
	return confirm.Pending{
		Token:     d.Token,
		OwnerID:   ledger.OwnerID(d.OwnerID),
		ChannelID: d.ChannelID,
		BatchID:   d.BatchID,
		Proposal: confirm.Proposal{
			Action:       confirm.Action(pr.Action),
			Amount:       amount,
			Description:  pr.Description,
			Category:     pr.Category,
			Source:       pr.Source,
			WalletID:     ledger.WalletID(pr.WalletID),
			WalletName:   pr.WalletName,
			ToWalletID:   ledger.WalletID(pr.ToWalletID),
			ToWalletName: pr.ToWalletName,
			GoalID:       ledger.GoalID(pr.GoalID),
			GoalName:     pr.GoalName,
			AssetName:    pr.AssetName,
			AdminFee:     fee,
			Date:         pr.Date.UTC(),
			Confidence:   pr.Confidence,
		},
		CreatedAt: d.CreatedAt.UTC(),
		ExpiresAt: d.ExpiresAt.UTC(),
	}, nil
}

// =============================================================================
// STORE
// =============================================================================

// PendingStore implements confirm.PendingStore on MongoDB.
type PendingStore struct {
	pending Collection
	batches Collection
}

func NewPendingStore(provider CollectionProvider) *PendingStore {
	return &PendingStore{
		pending: provider.Collection(PendingCollection),
		batches: provider.Collection(BatchCollection),
	}
}

func (s *PendingStore) SavePending(ctx context.Context, p confirm.Pending) error {
	_, err := s.pending.ReplaceOne(ctx, bson.M{"_id": p.Token}, toPendingDoc(p), options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to save pending %s: %w", p.Token, err)
	}
	return nil
}

func (s *PendingStore) GetPending(ctx context.Context, token string, now time.Time) (confirm.Pending, bool, error) {
	var doc pendingDoc
	err := s.pending.FindOne(ctx, live("_id", token, now)).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return confirm.Pending{}, false, nil
	}
	if err != nil {
		return confirm.Pending{}, false, fmt.Errorf("failed to load pending %s: %w", token, err)
	}
	p, err := doc.pending()
	if err != nil {
		return confirm.Pending{}, false, err
	}
	return p, true, nil
}

func (s *PendingStore) DeletePending(ctx context.Context, token string) error {
	if _, err := s.pending.DeleteOne(ctx, bson.M{"_id": token}); err != nil {
		return fmt.Errorf("failed to delete pending %s: %w", token, err)
	}
	return nil
}

func (s *PendingStore) SaveBatch(ctx context.Context, b confirm.Batch) error {
	doc := batchDoc{
		ID:        b.ID,
		OwnerID:   string(b.OwnerID),
		ChannelID: b.ChannelID,
		Tokens:    b.Tokens,
		CreatedAt: b.CreatedAt,
		ExpiresAt: b.ExpiresAt,
	}
	if _, err := s.batches.ReplaceOne(ctx, bson.M{"_id": b.ID}, doc, options.Replace().SetUpsert(true)); err != nil {
		return fmt.Errorf("failed to save batch %s: %w", b.ID, err)
	}
	return nil
}

func (s *PendingStore) GetBatch(ctx context.Context, id string, now time.Time) (confirm.Batch, bool, error) {
	var doc batchDoc
	err := s.batches.FindOne(ctx, live("_id", id, now)).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return confirm.Batch{}, false, nil
	}
	if err != nil {
		return confirm.Batch{}, false, fmt.Errorf("failed to load batch %s: %w", id, err)
	}
	return confirm.Batch{
		ID:        doc.ID,
		OwnerID:   ledger.OwnerID(doc.OwnerID),
		ChannelID: doc.ChannelID,
		Tokens:    doc.Tokens,
		CreatedAt: doc.CreatedAt.UTC(),
		ExpiresAt: doc.ExpiresAt.UTC(),
	}, true, nil
}

func (s *PendingStore) DeleteBatch(ctx context.Context, id string) error {
	if _, err := s.batches.DeleteOne(ctx, bson.M{"_id": id}); err != nil {
		return fmt.Errorf("failed to delete batch %s: %w", id, err)
	}
	return nil
}

func (s *PendingStore) PurgeExpired(ctx context.Context, now time.Time) (int, error) {
	filter := bson.M{"expires_at": bson.M{"$lte": now}}
	total := 0
	for _, c := range []Collection{s.pending, s.batches} {
		res, err := c.DeleteMany(ctx, filter)
		if err != nil {
			return total, fmt.Errorf("failed to purge expired entries: %w", err)
		}
		total += int(res.DeletedCount)
	}
	return total, nil
}

func live(key, id string, now time.Time) bson.M {
	return bson.M{key: id, "expires_at": bson.M{"$gt": now}}
}
