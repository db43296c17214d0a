package models

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/yeboahd24/t-beauty/config"
	"github.com/yeboahd24/t-beauty/utils"
)

type Customer struct {
	ID              int       `gorm:"primary_key" json:"id"`
	OwnerId         string    `gorm:"index;not null" json:"owner_id" binding:"required"`
	FirstName       string    `gorm:"size:100;not null" json:"first_name" binding:"required"`
	LastName        string    `gorm:"size:100;not null" json:"last_name" binding:"required"`
	Email           string    `gorm:"size:100" json:"email"`
	Phone           string    `gorm:"size:20" json:"phone"`
	InstagramHandle string    `gorm:"size:100" json:"instagram_handle"`
	AddressLine1    string    `gorm:"size:255" json:"address_line1"`
	AddressLine2    string    `gorm:"size:255" json:"address_line2"`
	City            string    `gorm:"size:100" json:"city"`
	Region          string    `gorm:"size:100" json:"region"`
	Country         string    `gorm:"size:100" json:"country"`
	Notes           string    `gorm:"type:text" json:"notes"`
	IsActive        *bool     `gorm:"not null;default:true" json:"is_active"`
	IsVip           *bool     `gorm:"not null;default:false" json:"is_vip"`
	CreatedAt       time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewCustomer struct {
	FirstName       string `json:"first_name" binding:"required"`
	LastName        string `json:"last_name" binding:"required"`
	Email           string `json:"email"`
	Phone           string `json:"phone"`
	InstagramHandle string `json:"instagram_handle"`
	AddressLine1    string `json:"address_line1"`
	AddressLine2    string `json:"address_line2"`
	City            string `json:"city"`
	Region          string `json:"region"`
	Country         string `json:"country"`
	Notes           string `json:"notes"`
	IsVip           *bool  `json:"is_vip"`
}

type CustomersEdge Edge[Customer]
type CustomersConnection struct {
	Edges    []*CustomersEdge `json:"edges"`
	PageInfo *PageInfo        `json:"pageInfo"`
}

func (c Customer) GetOwnerId() string {
	return c.OwnerId
}

func (c Customer) GetId() int {
	return c.ID
}

// returns decoded cursor string
func (c Customer) GetCursor() string {
	return c.CreatedAt.String()
}

func (c Customer) FullName() string {
	return strings.TrimSpace(c.FirstName + " " + c.LastName)
}

func (input *NewCustomer) validate(ctx context.Context, ownerId string, id int) error {
	if id > 0 {
		if err := utils.ValidateResourceId[Customer](ctx, ownerId, id); err != nil {
			return err
		}
	}
	// validate email
	if input.Email != "" && !utils.IsValidEmail(input.Email) {
		return errors.New("invalid email address")
	}
	if input.Email != "" {
		if err := utils.ValidateUnique[Customer](ctx, ownerId, "email", input.Email, id); err != nil {
			return err
		}
	}
	// normalize & dedupe phone
	if input.Phone != "" {
		normalized, err := utils.NormalizePhoneNumber(input.Phone)
		if err != nil {
			return errors.New("invalid phone number")
		}
		input.Phone = normalized
		if err := utils.ValidateUnique[Customer](ctx, ownerId, "phone", input.Phone, id); err != nil {
			return err
		}
	}
	if input.InstagramHandle != "" {
		input.InstagramHandle = strings.TrimPrefix(strings.TrimSpace(input.InstagramHandle), "@")
	}
	return nil
}

func CreateCustomer(ctx context.Context, input *NewCustomer) (*Customer, error) {
	db := config.GetDB()

	ownerId, ok := utils.GetOwnerIdFromContext(ctx)
	if !ok || ownerId == "" {
		return nil, errors.New("owner id is required")
	}

	if err := input.validate(ctx, ownerId, 0); err != nil {
		return nil, err
	}

	customer := Customer{
		OwnerId:         ownerId,
		FirstName:       input.FirstName,
		LastName:        input.LastName,
		Email:           strings.ToLower(input.Email),
		Phone:           input.Phone,
		InstagramHandle: input.InstagramHandle,
		AddressLine1:    input.AddressLine1,
		AddressLine2:    input.AddressLine2,
		City:            input.City,
		Region:          input.Region,
		Country:         input.Country,
		Notes:           input.Notes,
		IsActive:        utils.NewTrue(),
		IsVip:           utils.NewFalse(),
	}
	if input.IsVip != nil {
		customer.IsVip = input.IsVip
	}

	if err := db.WithContext(ctx).Create(&customer).Error; err != nil {
		return nil, err
	}

	return &customer, nil
}

func UpdateCustomer(ctx context.Context, id int, input *NewCustomer) (*Customer, error) {
	db := config.GetDB()

	ownerId, ok := utils.GetOwnerIdFromContext(ctx)
	if !ok || ownerId == "" {
		return nil, errors.New("owner id is required")
	}

	if err := input.validate(ctx, ownerId, id); err != nil {
		return nil, err
	}

	var customer Customer
	if err := db.WithContext(ctx).Where("owner_id = ?", ownerId).First(&customer, id).Error; err != nil {
		return nil, utils.ErrorRecordNotFound
	}

	customer.FirstName = input.FirstName
	customer.LastName = input.LastName
	customer.Email = strings.ToLower(input.Email)
	customer.Phone = input.Phone
	customer.InstagramHandle = input.InstagramHandle
	customer.AddressLine1 = input.AddressLine1
	customer.AddressLine2 = input.AddressLine2
	customer.City = input.City
	customer.Region = input.Region
	customer.Country = input.Country
	customer.Notes = input.Notes
	if input.IsVip != nil {
		customer.IsVip = input.IsVip
	}

	tx := db.Begin()
	if err := tx.WithContext(ctx).Save(&customer).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := RemoveRedisBoth(customer); err != nil {
		tx.Rollback()
		return nil, err
	}

	return &customer, tx.Commit().Error
}

func GetCustomer(ctx context.Context, id int) (*Customer, error) {
	return GetResource[Customer](ctx, id)
}

// ListCustomers pages by created_at; name filters on first, last or
// instagram handle.
func ListCustomers(ctx context.Context, limit int, after *string, name string, activeOnly bool) (*CustomersConnection, error) {
	db := config.GetDB()

	ownerId, ok := utils.GetOwnerIdFromContext(ctx)
	if !ok || ownerId == "" {
		return nil, errors.New("owner id is required")
	}

	dbCtx := db.WithContext(ctx).Model(&Customer{}).Where("owner_id = ?", ownerId)
	if name != "" {
		pattern := fmt.Sprintf("%%%s%%", name)
		dbCtx.Where("first_name LIKE ? OR last_name LIKE ? OR instagram_handle LIKE ?", pattern, pattern, pattern)
	}
	if activeOnly {
		dbCtx.Where("is_active = true")
	}

	edges, pageInfo, err := FetchPagePureCursor[Customer](dbCtx, limit, after, "created_at", "<")
	if err != nil {
		return nil, err
	}

	customerEdges := make([]*CustomersEdge, 0, len(edges))
	for i := range edges {
		edge := CustomersEdge(edges[i])
		customerEdges = append(customerEdges, &edge)
	}

	return &CustomersConnection{Edges: customerEdges, PageInfo: pageInfo}, nil
}

func ToggleActiveCustomer(ctx context.Context, id int, isActive bool) (*Customer, error) {
	ownerId, ok := utils.GetOwnerIdFromContext(ctx)
	if !ok || ownerId == "" {
		return nil, errors.New("owner id is required")
	}
	return ToggleActiveModel[Customer](ctx, ownerId, id, isActive)
}

// DeleteCustomer refuses when the customer has orders; deactivate instead.
func DeleteCustomer(ctx context.Context, id int) (*Customer, error) {
	db := config.GetDB()

	ownerId, ok := utils.GetOwnerIdFromContext(ctx)
	if !ok || ownerId == "" {
		return nil, errors.New("owner id is required")
	}

	var customer Customer
	if err := db.WithContext(ctx).Where("owner_id = ?", ownerId).First(&customer, id).Error; err != nil {
		return nil, utils.ErrorRecordNotFound
	}

	var orderCount int64
	if err := db.WithContext(ctx).Model(&Order{}).
		Where("owner_id = ? AND customer_id = ?", ownerId, id).Count(&orderCount).Error; err != nil {
		return nil, err
	}
	if orderCount > 0 {
		return nil, errors.New("customer has orders and cannot be deleted")
	}

	tx := db.Begin()
	if err := tx.WithContext(ctx).Delete(&customer).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := RemoveRedisBoth(customer); err != nil {
		tx.Rollback()
		return nil, err
	}

	return &customer, tx.Commit().Error
}
