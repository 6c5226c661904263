package mongo_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/warp/ledger-engine/confirm"
	mongostore "github.com/warp/ledger-engine/store/mongo"
)

// fakeCollection keeps replaced documents by _id. Filters other than _id
// are recorded for inspection, not evaluated.
type fakeCollection struct {
	docs       map[string]interface{}
	lastFilter bson.M

	deleteManyFunc func(ctx context.Context, filter interface{}) (*mongo.DeleteResult, error)
}

func newFakeCollection() *fakeCollection {
	return &fakeCollection{docs: map[string]interface{}{}}
}

func (c *fakeCollection) ReplaceOne(_ context.Context, filter interface{}, replacement interface{}, _ ...*options.ReplaceOptions) (*mongo.UpdateResult, error) {
	id := filter.(bson.M)["_id"].(string)
	c.docs[id] = replacement
	return &mongo.UpdateResult{UpsertedCount: 1}, nil
}

func (c *fakeCollection) FindOne(_ context.Context, filter interface{}, _ ...*options.FindOneOptions) *mongo.SingleResult {
	c.lastFilter = filter.(bson.M)
	doc, ok := c.docs[c.lastFilter["_id"].(string)]
	if !ok {
		return mongo.NewSingleResultFromDocument(bson.D{}, mongo.ErrNoDocuments, nil)
	}
	return mongo.NewSingleResultFromDocument(doc, nil, nil)
}

func (c *fakeCollection) DeleteOne(_ context.Context, filter interface{}, _ ...*options.DeleteOptions) (*mongo.DeleteResult, error) {
	id := filter.(bson.M)["_id"].(string)
	if _, ok := c.docs[id]; !ok {
		return &mongo.DeleteResult{}, nil
	}
	delete(c.docs, id)
	return &mongo.DeleteResult{DeletedCount: 1}, nil
}

func (c *fakeCollection) DeleteMany(ctx context.Context, filter interface{}, _ ...*options.DeleteOptions) (*mongo.DeleteResult, error) {
	if c.deleteManyFunc != nil {
		return c.deleteManyFunc(ctx, filter)
	}
	return &mongo.DeleteResult{}, nil
}

type fakeProvider struct {
	collections map[string]*fakeCollection
}

func (p *fakeProvider) Collection(name string) mongostore.Collection {
	if p.collections[name] == nil {
		p.collections[name] = newFakeCollection()
	}
	return p.collections[name]
}

func newStore() (*mongostore.PendingStore, *fakeProvider) {
	p := &fakeProvider{collections: map[string]*fakeCollection{}}
	return mongostore.NewPendingStore(p), p
}

var now = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func TestPendingStore_RoundTrip(t *testing.T) {
	s, p := newStore()
	ctx := context.Background()
	in := confirm.Pending{
		Token:   "tok-1",
		OwnerID: "owner-1",
		BatchID: "b-1",
		Proposal: confirm.Proposal{
			Action:     confirm.ActionTransfer,
			Amount:     decimal.RequireFromString("200000.50"),
			AdminFee:   decimal.NewFromInt(2500),
			WalletID:   "w-bca",
			WalletName: "BCA",
			ToWalletID: "w-gopay",
			Date:       time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
			Confidence: 0.8,
		},
		CreatedAt: now,
		ExpiresAt: now.Add(15 * time.Minute),
	}
	require.NoError(t, s.SavePending(ctx, in))

	out, ok, err := s.GetPending(ctx, "tok-1", now)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, in.OwnerID, out.OwnerID)
	assert.Equal(t, in.Proposal.WalletID, out.Proposal.WalletID)
	assert.True(t, in.Proposal.Amount.Equal(out.Proposal.Amount))
	assert.True(t, in.Proposal.AdminFee.Equal(out.Proposal.AdminFee))
	assert.True(t, in.ExpiresAt.Equal(out.ExpiresAt))

	// the expiry check is pushed into the query
	assert.Equal(t, bson.M{"$gt": now}, p.collections[mongostore.PendingCollection].lastFilter["expires_at"])
}

func TestPendingStore_Missing(t *testing.T) {
	s, _ := newStore()

	_, ok, err := s.GetPending(context.Background(), "nope", now)
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = s.GetBatch(context.Background(), "nope", now)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPendingStore_DeletePending(t *testing.T) {
	s, _ := newStore()
	ctx := context.Background()
	require.NoError(t, s.SavePending(ctx, confirm.Pending{
		Token: "tok-1", OwnerID: "o", Proposal: confirm.Proposal{Action: confirm.ActionExpense, Amount: decimal.NewFromInt(1)},
		ExpiresAt: now.Add(time.Minute),
	}))
	require.NoError(t, s.DeletePending(ctx, "tok-1"))

	_, ok, err := s.GetPending(ctx, "tok-1", now)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPendingStore_Batch(t *testing.T) {
	s, _ := newStore()
	ctx := context.Background()
	require.NoError(t, s.SaveBatch(ctx, confirm.Batch{
		ID: "b-1", OwnerID: "o", Tokens: []string{"t1", "t2"}, CreatedAt: now, ExpiresAt: now.Add(time.Minute),
	}))

	b, ok, err := s.GetBatch(ctx, "b-1", now)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []string{"t1", "t2"}, b.Tokens)

	require.NoError(t, s.DeleteBatch(ctx, "b-1"))
	_, ok, err = s.GetBatch(ctx, "b-1", now)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPendingStore_PurgeExpired(t *testing.T) {
	s, p := newStore()
	var filters []interface{}
	count := int64(2)
	for _, name := range []string{mongostore.PendingCollection, mongostore.BatchCollection} {
		c := p.Collection(name).(*fakeCollection)
		c.deleteManyFunc = func(_ context.Context, filter interface{}) (*mongo.DeleteResult, error) {
			filters = append(filters, filter)
			n := count
			count--
			return &mongo.DeleteResult{DeletedCount: n}, nil
		}
	}

	n, err := s.PurgeExpired(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	require.Len(t, filters, 2)
	assert.Equal(t, bson.M{"expires_at": bson.M{"$lte": now}}, filters[0])
}

func TestPendingStore_PurgeError(t *testing.T) {
	s, p := newStore()
	p.Collection(mongostore.PendingCollection).(*fakeCollection).deleteManyFunc = func(context.Context, interface{}) (*mongo.DeleteResult, error) {
		return nil, errors.New("connection reset")
	}

	_, err := s.PurgeExpired(context.Background(), now)
	assert.ErrorContains(t, err, "connection reset")
}
