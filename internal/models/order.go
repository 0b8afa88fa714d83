package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"
)

// OrderStatus is an open-ended status label. The constants are the values
// the service itself writes; any other non-empty label is accepted on update.
type OrderStatus string

const (
	OrderStatusPending        OrderStatus = "pending"
	OrderStatusConfirmed      OrderStatus = "confirmed"
	OrderStatusPreparing      OrderStatus = "preparing"
	OrderStatusReady          OrderStatus = "ready"
	OrderStatusOutForDelivery OrderStatus = "out_for_delivery"
	OrderStatusDelivered      OrderStatus = "delivered"
	OrderStatusCancelled      OrderStatus = "cancelled"
)

// Terminal reports whether no rider may pick the order up any more
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusDelivered || s == OrderStatusCancelled
}

// Order placed by a buyer with a vendor, optionally carried by a rider
type Order struct {
	ID          string      `bson:"_id" db:"id" json:"id"`
	BuyerID     string      `bson:"buyer" db:"buyer_id" json:"buyer"`
	VendorID    string      `bson:"vendor" db:"vendor_id" json:"vendor"`
	DeliveryID  string      `bson:"delivery" db:"delivery_id" json:"delivery,omitempty"`
	Items       OrderItems  `bson:"items" db:"items" json:"items"`
	Address     string      `bson:"address" db:"address" json:"address"`
	Contact     string      `bson:"contact" db:"contact" json:"contact"`
	ScheduledAt *time.Time  `bson:"scheduledAt,omitempty" db:"scheduled_at" json:"scheduledAt,omitempty"`
	TotalAmount int64       `bson:"totalAmount" db:"total_amount" json:"totalAmount"`
	Status      OrderStatus `bson:"status" db:"status" json:"status"`
	CreatedAt   time.Time   `bson:"createdAt" db:"created_at" json:"createdAt"`
	UpdatedAt   time.Time   `bson:"updatedAt" db:"updated_at" json:"updatedAt"`
}

// OrderItem is a snapshot of a menu item at the time the order was placed
type OrderItem struct {
	MenuID   string `bson:"menuId" json:"menuId"`
	Name     string `bson:"name" json:"name"`
	Price    int64  `bson:"price" json:"price"`
	Quantity int    `bson:"quantity" json:"quantity"`
}

// OrderItems is stored as a JSON document column
type OrderItems []OrderItem

func (o OrderItems) Value() (driver.Value, error) {
	if o == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]OrderItem(o))
}

func (o *OrderItems) Scan(src any) error {
	return scanJSON(src, (*[]OrderItem)(o))
}

// OrderRequest is used for order placement
type OrderRequest struct {
	VendorID    string             `json:"vendorId" validate:"required"`
	Items       []OrderItemRequest `json:"items" validate:"required,min=1,max=50,dive"`
	Address     string             `json:"address" validate:"required,max=300"`
	Contact     string             `json:"contact" validate:"required,max=50"`
	ScheduledAt *time.Time         `json:"scheduledAt"`
}

// OrderItemRequest is used for order item creation
type OrderItemRequest struct {
	MenuID   string `json:"menuId" validate:"required"`
	Quantity int    `json:"quantity" validate:"required,min=1,max=100"`
}

// OrderStatusRequest sets a free-form status on an order
type OrderStatusRequest struct {
	OrderID string      `json:"orderId" validate:"required"`
	Status  OrderStatus `json:"status" validate:"required,max=32"`
}

// Stats is the admin overview of the marketplace
type Stats struct {
	Vendors    int64 `json:"vendors"`
	Buyers     int64 `json:"buyers"`
	Deliveries int64 `json:"deliveries"`
	Menus      int64 `json:"menus"`
	Orders     int64 `json:"orders"`
	Revenue    int64 `json:"revenue"`
}
