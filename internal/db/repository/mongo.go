package repository

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/bellyrush/marketplace/internal/models"
)

// mapMongoError translates driver errors into repository errors
func mapMongoError(err error) error {
	switch {
	case errors.Is(err, mongo.ErrNoDocuments):
		return ErrNotFound
	case mongo.IsDuplicateKeyError(err):
		return ErrDuplicate
	}
	return err
}

// EnsureIndexes creates the unique indexes the account collections rely on
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	for _, role := range models.Roles() {
		_, err := db.Collection(role.Collection()).Indexes().CreateMany(ctx, []mongo.IndexModel{
			{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "phone", Value: 1}}, Options: options.Index().SetUnique(true).SetSparse(true)},
		})
		if err != nil {
			return fmt.Errorf("create %s indexes: %w", role.Collection(), err)
		}
	}

	_, err := db.Collection("menus").Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "vendor", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("create menus index: %w", err)
	}

	_, err = db.Collection("orders").Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "buyer", Value: 1}}},
		{Keys: bson.D{{Key: "vendor", Value: 1}}},
		{Keys: bson.D{{Key: "delivery", Value: 1}, {Key: "status", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("create orders indexes: %w", err)
	}
	return nil
}

type mongoAccounts struct {
	db *mongo.Database
}

// NewMongoAccounts stores each role in its own collection
func NewMongoAccounts(db *mongo.Database) AccountStore {
	return &mongoAccounts{db: db}
}

func (r *mongoAccounts) col(role models.Role) *mongo.Collection {
	return r.db.Collection(role.Collection())
}

func (r *mongoAccounts) Create(ctx context.Context, acct *models.Account) error {
	if _, err := r.col(acct.Role).InsertOne(ctx, acct); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

func (r *mongoAccounts) findOne(ctx context.Context, role models.Role, filter bson.M) (*models.Account, error) {
	var acct models.Account
	if err := r.col(role).FindOne(ctx, filter).Decode(&acct); err != nil {
		if mapped := mapMongoError(err); errors.Is(mapped, ErrNotFound) {
			return nil, mapped
		}
		return nil, fmt.Errorf("find account: %w", err)
	}
	return &acct, nil
}

func (r *mongoAccounts) GetByID(ctx context.Context, role models.Role, id string) (*models.Account, error) {
	return r.findOne(ctx, role, bson.M{"_id": id})
}

func (r *mongoAccounts) GetByEmail(ctx context.Context, role models.Role, email string) (*models.Account, error) {
	return r.findOne(ctx, role, bson.M{"email": email})
}

func (r *mongoAccounts) List(ctx context.Context, role models.Role) ([]models.Account, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	cur, err := r.col(role).Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer cur.Close(ctx)

	accounts := []models.Account{}
	if err := cur.All(ctx, &accounts); err != nil {
		return nil, fmt.Errorf("decode accounts: %w", err)
	}
	return accounts, nil
}

func (r *mongoAccounts) Update(ctx context.Context, acct *models.Account) error {
	res, err := r.col(acct.Role).ReplaceOne(ctx, bson.M{"_id": acct.ID}, acct)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("replace account: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *mongoAccounts) Delete(ctx context.Context, role models.Role, id string) (*models.Account, error) {
	var acct models.Account
	if err := r.col(role).FindOneAndDelete(ctx, bson.M{"_id": id}).Decode(&acct); err != nil {
		if mapped := mapMongoError(err); errors.Is(mapped, ErrNotFound) {
			return nil, mapped
		}
		return nil, fmt.Errorf("delete account: %w", err)
	}
	return &acct, nil
}

func (r *mongoAccounts) Count(ctx context.Context, role models.Role) (int64, error) {
	n, err := r.col(role).CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, fmt.Errorf("count accounts: %w", err)
	}
	return n, nil
}

type mongoMenus struct {
	col *mongo.Collection
}

func NewMongoMenus(db *mongo.Database) MenuStore {
	return &mongoMenus{col: db.Collection("menus")}
}

func (r *mongoMenus) Create(ctx context.Context, item *models.MenuItem) error {
	if _, err := r.col.InsertOne(ctx, item); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert menu item: %w", err)
	}
	return nil
}

func (r *mongoMenus) GetByID(ctx context.Context, id string) (*models.MenuItem, error) {
	var item models.MenuItem
	if err := r.col.FindOne(ctx, bson.M{"_id": id}).Decode(&item); err != nil {
		if mapped := mapMongoError(err); errors.Is(mapped, ErrNotFound) {
			return nil, mapped
		}
		return nil, fmt.Errorf("find menu item: %w", err)
	}
	return &item, nil
}

func (r *mongoMenus) List(ctx context.Context, filter MenuFilter) ([]models.MenuItem, error) {
	q := bson.M{}
	if filter.VendorID != "" {
		q["vendor"] = filter.VendorID
	}
	if filter.AvailableOnly {
		q["available"] = true
	}

	opts := options.Find().SetSort(bson.D{{Key: "category", Value: 1}, {Key: "foodname", Value: 1}})
	cur, err := r.col.Find(ctx, q, opts)
	if err != nil {
		return nil, fmt.Errorf("list menu items: %w", err)
	}
	defer cur.Close(ctx)

	items := []models.MenuItem{}
	if err := cur.All(ctx, &items); err != nil {
		return nil, fmt.Errorf("decode menu items: %w", err)
	}
	return items, nil
}

func (r *mongoMenus) Update(ctx context.Context, item *models.MenuItem) error {
	res, err := r.col.ReplaceOne(ctx, bson.M{"_id": item.ID}, item)
	if err != nil {
		return fmt.Errorf("replace menu item: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *mongoMenus) Delete(ctx context.Context, id string) (*models.MenuItem, error) {
	var item models.MenuItem
	if err := r.col.FindOneAndDelete(ctx, bson.M{"_id": id}).Decode(&item); err != nil {
		if mapped := mapMongoError(err); errors.Is(mapped, ErrNotFound) {
			return nil, mapped
		}
		return nil, fmt.Errorf("delete menu item: %w", err)
	}
	return &item, nil
}

func (r *mongoMenus) Count(ctx context.Context) (int64, error) {
	n, err := r.col.CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, fmt.Errorf("count menu items: %w", err)
	}
	return n, nil
}

type mongoOrders struct {
	col *mongo.Collection
}

func NewMongoOrders(db *mongo.Database) OrderStore {
	return &mongoOrders{col: db.Collection("orders")}
}

func (r *mongoOrders) Create(ctx context.Context, order *models.Order) error {
	if _, err := r.col.InsertOne(ctx, order); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

func (r *mongoOrders) GetByID(ctx context.Context, id string) (*models.Order, error) {
	var order models.Order
	if err := r.col.FindOne(ctx, bson.M{"_id": id}).Decode(&order); err != nil {
		if mapped := mapMongoError(err); errors.Is(mapped, ErrNotFound) {
			return nil, mapped
		}
		return nil, fmt.Errorf("find order: %w", err)
	}
	return &order, nil
}

func (r *mongoOrders) List(ctx context.Context, filter OrderFilter) ([]models.Order, error) {
	q := bson.M{}
	if filter.BuyerID != "" {
		q["buyer"] = filter.BuyerID
	}
	if filter.VendorID != "" {
		q["vendor"] = filter.VendorID
	}
	if filter.DeliveryID != "" {
		q["delivery"] = filter.DeliveryID
	}
	if filter.Status != "" {
		q["status"] = filter.Status
	}
	if filter.Unassigned {
		q["delivery"] = ""
	}

	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	cur, err := r.col.Find(ctx, q, opts)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer cur.Close(ctx)

	orders := []models.Order{}
	if err := cur.All(ctx, &orders); err != nil {
		return nil, fmt.Errorf("decode orders: %w", err)
	}
	return orders, nil
}

func (r *mongoOrders) findOneAndSet(ctx context.Context, filter bson.M, set bson.M) (*models.Order, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var order models.Order
	err := r.col.FindOneAndUpdate(ctx, filter, bson.M{"$set": set}, opts).Decode(&order)
	if err != nil {
		return nil, mapMongoError(err)
	}
	return &order, nil
}

func (r *mongoOrders) UpdateStatus(ctx context.Context, id string, status models.OrderStatus) (*models.Order, error) {
	order, err := r.findOneAndSet(ctx, bson.M{"_id": id}, bson.M{"status": status, "updatedAt": now()})
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("update order status: %w", err)
	}
	return order, err
}

func (r *mongoOrders) Assign(ctx context.Context, id, riderID string, from, to models.OrderStatus) (*models.Order, error) {
	filter := bson.M{"_id": id, "delivery": "", "status": from}
	order, err := r.findOneAndSet(ctx, filter, bson.M{"delivery": riderID, "status": to, "updatedAt": now()})
	if err == nil {
		return order, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("assign order: %w", err)
	}

	if _, getErr := r.GetByID(ctx, id); getErr != nil {
		return nil, getErr
	}
	return nil, ErrNotAvailable
}

func (r *mongoOrders) Delete(ctx context.Context, id string) (*models.Order, error) {
	var order models.Order
	if err := r.col.FindOneAndDelete(ctx, bson.M{"_id": id}).Decode(&order); err != nil {
		if mapped := mapMongoError(err); errors.Is(mapped, ErrNotFound) {
			return nil, mapped
		}
		return nil, fmt.Errorf("delete order: %w", err)
	}
	return &order, nil
}

func (r *mongoOrders) Count(ctx context.Context) (int64, error) {
	n, err := r.col.CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, fmt.Errorf("count orders: %w", err)
	}
	return n, nil
}

func (r *mongoOrders) Revenue(ctx context.Context, status models.OrderStatus) (int64, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"status": status}}},
		{{Key: "$group", Value: bson.M{"_id": nil, "total": bson.M{"$sum": "$totalAmount"}}}},
	}

	cur, err := r.col.Aggregate(ctx, pipeline)
	if err != nil {
		return 0, fmt.Errorf("aggregate revenue: %w", err)
	}
	defer cur.Close(ctx)

	var rows []struct {
		Total int64 `bson:"total"`
	}
	if err := cur.All(ctx, &rows); err != nil {
		return 0, fmt.Errorf("decode revenue: %w", err)
	}
	if len(rows) == 0 {
		return 0, nil
	}
	return rows[0].Total, nil
}
