package mongostore

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/fairyhunter13/order-checkout-service/internal/checkout"
	"github.com/fairyhunter13/order-checkout-service/internal/model"
	"github.com/fairyhunter13/order-checkout-service/internal/store"
	"github.com/fairyhunter13/order-checkout-service/internal/store/storetest"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/mongodb"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

func setupTestClient(t *testing.T) *mongo.Client {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping MongoDB container test in short mode")
	}
	ctx := context.Background()

	// Transactions need a replica set.
	mongoContainer, err := mongodb.Run(ctx, "mongo:7", mongodb.WithReplicaSet("rs0"))
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := mongoContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	})

	uri, err := mongoContainer.ConnectionString(ctx)
	require.NoError(t, err)
	if !strings.Contains(uri, "directConnection") {
		sep := "/?"
		if strings.Contains(uri, "?") {
			sep = "&"
		}
		uri += sep + "directConnection=true"
	}

	client, err := ConnectMongoDB(ctx, uri)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Disconnect(context.Background()) })
	return client
}

func TestMongoBackend(t *testing.T) {
	client := setupTestClient(t)
	storetest.Run(t, func(t *testing.T) store.Backend {
		s := New(client, "checkout_"+strings.ReplaceAll(uuid.NewString()[:8], "-", ""))
		require.NoError(t, s.CreateIndexes(context.Background()))
		return s
	})

	t.Run("NonFinitePriceFailsCheckoutClosed", func(t *testing.T) {
		ctx := context.Background()
		s := New(client, "checkout_"+strings.ReplaceAll(uuid.NewString()[:8], "-", ""))
		_, err := s.products.InsertOne(ctx, productDoc{ID: "nan", Name: "Broken", Price: nanDecimal128, Stock: 5, Status: "active"})
		require.NoError(t, err)

		_, err = checkout.New(s).PlaceOrder(ctx, "alice", []model.CartLine{{ProductRef: "nan", Quantity: 1}}, storetest.Address)
		require.ErrorIs(t, err, model.ErrTransactionFailed)

		var doc productDoc
		require.NoError(t, s.products.FindOne(ctx, bson.M{"_id": "nan"}).Decode(&doc))
		assert.Equal(t, int64(5), doc.Stock)
		n, err := s.orders.CountDocuments(ctx, bson.M{})
		require.NoError(t, err)
		assert.Zero(t, n)
	})
}

var (
	nanDecimal128 = primitive.NewDecimal128(0x7C00000000000000, 0)
	infDecimal128 = primitive.NewDecimal128(0x7800000000000000, 0)
)

func TestDecimalConversionKeepsScale(t *testing.T) {
	for _, in := range []string{"0", "19.99", "1234567.8901", "0.01"} {
		d := decimal.RequireFromString(in)
		v, err := toDecimal128(d)
		require.NoError(t, err)
		got, err := fromDecimal128(v)
		require.NoError(t, err)
		assert.True(t, d.Equal(got), "round trip of %s gave %s", in, got)
	}
}

func TestNonFiniteDecimalIsRejected(t *testing.T) {
	for _, v := range []primitive.Decimal128{nanDecimal128, infDecimal128} {
		_, err := fromDecimal128(v)
		assert.Error(t, err, v.String())

		_, err = productDoc{ID: "p1", Name: "P", Price: v, Stock: 5, Status: "active"}.model()
		assert.Error(t, err)

		total, err := toDecimal128(decimal.NewFromInt(1))
		require.NoError(t, err)
		_, err = orderDoc{ID: "o1", TotalAmount: total, LineItems: []lineItemDoc{{ProductRef: "p1", Quantity: 1, UnitPrice: v}}}.model()
		assert.Error(t, err)
		_, err = orderDoc{ID: "o2", TotalAmount: v}.model()
		assert.Error(t, err)
	}
}

func TestProductLocksSerializeSameProduct(t *testing.T) {
	locks := newProductLocks()
	ctx := context.Background()

	held, err := locks.acquire(ctx, []string{"b", "a", "b"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, held)

	other, err := locks.acquire(ctx, []string{"c"})
	require.NoError(t, err)

	waitCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, err = locks.acquire(waitCtx, []string{"c", "a"})
	require.ErrorIs(t, err, context.DeadlineExceeded)

	acquired := make(chan []string)
	go func() {
		ids, _ := locks.acquire(ctx, []string{"a"})
		acquired <- ids
	}()
	select {
	case <-acquired:
		t.Fatal("acquired a lock that is still held")
	case <-time.After(20 * time.Millisecond):
	}
	locks.release(held)
	got := <-acquired
	locks.release(got)
	locks.release(other)
	assert.Empty(t, locks.locks)
}

func TestClassify(t *testing.T) {
	assert.Nil(t, classify(nil))
	assert.ErrorIs(t, classify(context.DeadlineExceeded), store.ErrUnavailable)
	assert.ErrorIs(t, classify(mongo.ErrClientDisconnected), store.ErrUnavailable)

	transient := mongo.CommandError{Code: 251, Name: "NoSuchTransaction", Labels: []string{labelTransient}}
	assert.ErrorIs(t, classify(transient), store.ErrConflict)
	assert.True(t, store.Retryable(classify(transient)))

	writeConflict := mongo.CommandError{Code: 112, Name: "WriteConflict"}
	assert.ErrorIs(t, classify(writeConflict), store.ErrConflict)

	other := mongo.CommandError{Code: 2, Name: "BadValue"}
	assert.False(t, store.Retryable(classify(other)))
}
