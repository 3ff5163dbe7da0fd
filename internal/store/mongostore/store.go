// Package mongostore implements the store ports on MongoDB. Checkout runs in
// a snapshot multi-document transaction, so the server must be a replica set.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/fairyhunter13/order-checkout-service/internal/model"
	"github.com/fairyhunter13/order-checkout-service/internal/obs"
	"github.com/fairyhunter13/order-checkout-service/internal/store"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readconcern"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"
)

const (
	productsCollection = "products"
	ordersCollection   = "orders"

	labelTransient     = "TransientTransactionError"
	labelUnknownCommit = "UnknownTransactionCommitResult"

	maxCommitRetries = 3
)

// Store is a store.Backend backed by MongoDB.
type Store struct {
	client   *mongo.Client
	products *mongo.Collection
	orders   *mongo.Collection
	locks    *productLocks
}

var _ store.Backend = (*Store)(nil)

// New wraps an already connected client.
func New(client *mongo.Client, database string) *Store {
	db := client.Database(database)
	return &Store{
		client:   client,
		products: db.Collection(productsCollection),
		orders:   db.Collection(ordersCollection),
		locks:    newProductLocks(),
	}
}

// Open connects to uri, wraps the client and ensures indexes exist.
func Open(ctx context.Context, uri, database string) (*Store, error) {
	client, err := ConnectMongoDB(ctx, uri)
	if err != nil {
		return nil, err
	}
	s := New(client, database)
	if err := s.CreateIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	obs.Logger.Info("store_opened", "backend", "mongo", "database", database)
	return s, nil
}

// CreateIndexes creates the order listing indexes.
func (s *Store) CreateIndexes(ctx context.Context) error {
	_, err := s.orders.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "owner_ref", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "created_at", Value: -1}}},
	})
	if err != nil {
		return fmt.Errorf("failed to create order indexes: %w", err)
	}
	return nil
}

// WithinTx runs fn inside a snapshot transaction with majority commit.
// Errors returned by fn abort the transaction and are passed through.
// Products read through the tx stay locked in this process until the
// transaction has finished.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	sess, err := s.client.StartSession()
	if err != nil {
		return classify(err)
	}
	defer sess.EndSession(context.Background())
	tx := &mongoTx{s: s}
	defer tx.unlock()

	txOpts := options.Transaction().
		SetReadConcern(readconcern.Snapshot()).
		SetWriteConcern(writeconcern.Majority())

	return mongo.WithSession(ctx, sess, func(sc mongo.SessionContext) error {
		if err := sess.StartTransaction(txOpts); err != nil {
			return classify(err)
		}
		if err := fn(sc, tx); err != nil {
			_ = sess.AbortTransaction(context.Background())
			return err
		}
		return commit(sc, sess)
	})
}

func commit(ctx context.Context, sess mongo.Session) error {
	for i := 0; ; i++ {
		err := sess.CommitTransaction(ctx)
		if err == nil {
			return nil
		}
		if hasLabel(err, labelUnknownCommit) && i < maxCommitRetries {
			continue
		}
		_ = sess.AbortTransaction(context.Background())
		return classify(err)
	}
}

type mongoTx struct {
	s    *Store
	held []string
}

// FindByIDs locks ids before the first read, so the snapshot starts after
// any local transaction on the same products has committed.
func (t *mongoTx) FindByIDs(ctx context.Context, ids []string) ([]model.Product, error) {
	var want []string
	for _, id := range ids {
		if !slices.Contains(t.held, id) {
			want = append(want, id)
		}
	}
	held, err := t.s.locks.acquire(ctx, want)
	if err != nil {
		return nil, classify(err)
	}
	t.held = append(t.held, held...)
	return t.s.findByIDs(ctx, ids)
}

func (t *mongoTx) unlock() {
	t.s.locks.release(t.held)
	t.held = nil
}

func (t *mongoTx) DecrementStock(ctx context.Context, productID string, qty int64) error {
	if qty <= 0 {
		return store.ErrBadQuantity
	}
	filter := bson.M{
		"_id":    productID,
		"status": string(model.ProductActive),
		"stock":  bson.M{"$gte": qty},
	}
	res, err := t.s.products.UpdateOne(ctx, filter, bson.M{"$inc": bson.M{"stock": -qty}})
	if err != nil {
		return classify(err)
	}
	if res.MatchedCount == 0 {
		return store.ErrStockGuard
	}
	return nil
}

func (t *mongoTx) CreateOrder(ctx context.Context, o model.Order) (model.Order, error) {
	doc, err := toOrderDoc(o)
	if err != nil {
		return model.Order{}, err
	}
	if _, err := t.s.orders.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return model.Order{}, store.ErrDuplicateOrder
		}
		return model.Order{}, classify(err)
	}
	return doc.model()
}

func (s *Store) findByIDs(ctx context.Context, ids []string) ([]model.Product, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	cur, err := s.products.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, classify(err)
	}
	var docs []productDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, classify(err)
	}
	out := make([]model.Product, 0, len(docs))
	for _, d := range docs {
		p, err := d.model()
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func (s *Store) GetOrder(ctx context.Context, id string) (model.Order, error) {
	var doc orderDoc
	err := s.orders.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return model.Order{}, store.ErrOrderNotFound
	}
	if err != nil {
		return model.Order{}, classify(err)
	}
	return doc.model()
}

func (s *Store) ListOrdersByOwner(ctx context.Context, ownerRef string, limit int) ([]model.Order, error) {
	return s.listOrders(ctx, bson.M{"owner_ref": ownerRef}, limit)
}

func (s *Store) ListOrders(ctx context.Context, limit int) ([]model.Order, error) {
	return s.listOrders(ctx, bson.M{}, limit)
}

func (s *Store) listOrders(ctx context.Context, filter bson.M, limit int) ([]model.Order, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}).
		SetLimit(int64(store.NormalizeLimit(limit)))
	cur, err := s.orders.Find(ctx, filter, opts)
	if err != nil {
		return nil, classify(err)
	}
	var docs []orderDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, classify(err)
	}
	out := make([]model.Order, 0, len(docs))
	for _, d := range docs {
		o, err := d.model()
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, nil
}

func (s *Store) UpsertProduct(ctx context.Context, p model.Product) (model.Product, error) {
	doc, err := toProductDoc(p)
	if err != nil {
		return model.Product{}, err
	}
	_, err = s.products.ReplaceOne(ctx, bson.M{"_id": doc.ID}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return model.Product{}, classify(err)
	}
	return doc.model()
}

func (s *Store) GetProduct(ctx context.Context, id string) (model.Product, error) {
	var doc productDoc
	err := s.products.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return model.Product{}, store.ErrProductNotFound
	}
	if err != nil {
		return model.Product{}, classify(err)
	}
	return doc.model()
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx, readpref.Primary()); err != nil {
		return classify(err)
	}
	return nil
}

func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func hasLabel(err error, label string) bool {
	var le mongo.LabeledError
	return errors.As(err, &le) && le.HasErrorLabel(label)
}

// classify maps driver errors onto the store sentinels so the checkout
// engine can decide whether to retry.
func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case hasLabel(err, labelTransient), hasWriteConflict(err):
		return fmt.Errorf("%w: %v", store.ErrConflict, err)
	case mongo.IsNetworkError(err), mongo.IsTimeout(err),
		errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled),
		errors.Is(err, mongo.ErrClientDisconnected):
		return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	default:
		return err
	}
}

// hasWriteConflict reports server code 112 (WriteConflict).
func hasWriteConflict(err error) bool {
	var se mongo.ServerError
	return errors.As(err, &se) && se.HasErrorCode(112)
}
