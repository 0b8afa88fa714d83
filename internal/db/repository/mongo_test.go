package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"

	"github.com/bellyrush/marketplace/internal/models"
)

func newMockMongo(t *testing.T) *mtest.T {
	return mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
}

// doc converts a model into the document the server would return
func doc(t require.TestingT, v any) bson.D {
	raw, err := bson.Marshal(v)
	require.NoError(t, err)
	var d bson.D
	require.NoError(t, bson.Unmarshal(raw, &d))
	return d
}

func duplicateKey() bson.D {
	return mtest.CreateWriteErrorsResponse(mtest.WriteError{
		Index: 0, Code: 11000, Message: "E11000 duplicate key error",
	})
}

func noMatch() bson.D {
	return mtest.CreateSuccessResponse(bson.E{Key: "value", Value: nil})
}

func TestMapMongoError(t *testing.T) {
	other := errors.New("connection reset")
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"no documents", mongo.ErrNoDocuments, ErrNotFound},
		{"wrapped no documents", errors.Join(errors.New("find"), mongo.ErrNoDocuments), ErrNotFound},
		{"duplicate key", mongo.WriteException{WriteErrors: mongo.WriteErrors{{Code: 11000}}}, ErrDuplicate},
		{"other write error", mongo.WriteException{WriteErrors: mongo.WriteErrors{{Code: 121}}}, nil},
		{"other", other, other},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := mapMongoError(tt.err)
			if tt.want == nil {
				assert.NotErrorIs(t, got, ErrDuplicate)
				assert.NotErrorIs(t, got, ErrNotFound)
				return
			}
			assert.ErrorIs(t, got, tt.want)
		})
	}
}

func TestMongoAccounts(t *testing.T) {
	mt := newMockMongo(t)
	acct := &models.Account{
		ID: "a1", Role: models.RoleVendor, Name: "Thai Town", Email: "v@x.com", Phone: "021",
		Profile: models.NewProfile(models.RoleVendor), CreatedAt: time.Now().UTC().Truncate(time.Millisecond),
	}

	mt.Run("create", func(mt *mtest.T) {
		store := NewMongoAccounts(mt.DB)
		mt.AddMockResponses(mtest.CreateSuccessResponse(), duplicateKey())

		require.NoError(mt, store.Create(context.Background(), acct))
		assert.Equal(mt, "vendors", mt.GetStartedEvent().Command.Lookup("insert").StringValue())

		assert.ErrorIs(mt, store.Create(context.Background(), acct), ErrDuplicate)
	})

	mt.Run("get", func(mt *mtest.T) {
		store := NewMongoAccounts(mt.DB)
		mt.AddMockResponses(
			mtest.CreateCursorResponse(0, "test.vendors", mtest.FirstBatch, doc(mt, acct)),
			mtest.CreateCursorResponse(0, "test.vendors", mtest.FirstBatch),
		)

		got, err := store.GetByEmail(context.Background(), models.RoleVendor, "v@x.com")
		require.NoError(mt, err)
		assert.Equal(mt, "Thai Town", got.Name)
		require.NotNil(mt, got.Profile.Vendor)

		_, err = store.GetByID(context.Background(), models.RoleVendor, "missing")
		assert.ErrorIs(mt, err, ErrNotFound)
	})

	mt.Run("update", func(mt *mtest.T) {
		store := NewMongoAccounts(mt.DB)
		mt.AddMockResponses(
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 0}, bson.E{Key: "nModified", Value: 0}),
			duplicateKey(),
		)

		assert.ErrorIs(mt, store.Update(context.Background(), acct), ErrNotFound)
		assert.ErrorIs(mt, store.Update(context.Background(), acct), ErrDuplicate)
	})
}

func TestMongoOrdersAssign(t *testing.T) {
	mt := newMockMongo(t)
	order := models.Order{
		ID: "o1", BuyerID: "b1", VendorID: "v1", Items: models.OrderItems{},
		TotalAmount: 3800, Status: models.OrderStatusReady,
	}

	mt.Run("assigned", func(mt *mtest.T) {
		store := NewMongoOrders(mt.DB)
		taken := order
		taken.DeliveryID, taken.Status = "d1", models.OrderStatusOutForDelivery
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "value", Value: doc(mt, taken)}))

		got, err := store.Assign(context.Background(), "o1", "d1", models.OrderStatusReady, models.OrderStatusOutForDelivery)
		require.NoError(mt, err)
		assert.Equal(mt, "d1", got.DeliveryID)

		query := mt.GetStartedEvent().Command.Lookup("query")
		assert.Equal(mt, "", query.Document().Lookup("delivery").StringValue(), "only unassigned orders match")
		assert.Equal(mt, "ready", query.Document().Lookup("status").StringValue())
	})

	mt.Run("already taken", func(mt *mtest.T) {
		store := NewMongoOrders(mt.DB)
		mt.AddMockResponses(noMatch(), mtest.CreateCursorResponse(0, "test.orders", mtest.FirstBatch, doc(mt, order)))

		_, err := store.Assign(context.Background(), "o1", "d2", models.OrderStatusReady, models.OrderStatusOutForDelivery)
		assert.ErrorIs(mt, err, ErrNotAvailable)
	})

	mt.Run("missing", func(mt *mtest.T) {
		store := NewMongoOrders(mt.DB)
		mt.AddMockResponses(noMatch(), mtest.CreateCursorResponse(0, "test.orders", mtest.FirstBatch))

		_, err := store.Assign(context.Background(), "nope", "d2", models.OrderStatusReady, models.OrderStatusOutForDelivery)
		assert.ErrorIs(mt, err, ErrNotFound)
	})
}

func TestMongoOrdersListUnassigned(t *testing.T) {
	mt := newMockMongo(t)

	mt.Run("filter", func(mt *mtest.T) {
		store := NewMongoOrders(mt.DB)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "test.orders", mtest.FirstBatch))

		orders, err := store.List(context.Background(), OrderFilter{Status: models.OrderStatusReady, Unassigned: true})
		require.NoError(mt, err)
		assert.Empty(mt, orders)
		assert.NotNil(mt, orders)

		filter := mt.GetStartedEvent().Command.Lookup("filter").Document()
		assert.Equal(mt, "", filter.Lookup("delivery").StringValue())
		assert.Equal(mt, "ready", filter.Lookup("status").StringValue())
	})
}

func TestMongoOrdersRevenue(t *testing.T) {
	mt := newMockMongo(t)

	mt.Run("sum", func(mt *mtest.T) {
		store := NewMongoOrders(mt.DB)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "test.orders", mtest.FirstBatch,
			bson.D{{Key: "_id", Value: nil}, {Key: "total", Value: int64(1250)}}))

		total, err := store.Revenue(context.Background(), models.OrderStatusDelivered)
		require.NoError(mt, err)
		assert.EqualValues(mt, 1250, total)

		pipeline := mt.GetStartedEvent().Command.Lookup("pipeline").Array()
		match, err := pipeline.IndexErr(0)
		require.NoError(mt, err)
		assert.Equal(mt, "delivered", match.Value().Document().Lookup("$match", "status").StringValue())
	})

	mt.Run("no delivered orders", func(mt *mtest.T) {
		store := NewMongoOrders(mt.DB)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "test.orders", mtest.FirstBatch))

		total, err := store.Revenue(context.Background(), models.OrderStatusDelivered)
		require.NoError(mt, err)
		assert.Zero(mt, total)
	})
}
