package models

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/yeboahd24/t-beauty/config"
	"github.com/yeboahd24/t-beauty/utils"
)

type Product struct {
	ID             int             `gorm:"primary_key" json:"id"`
	OwnerId        string          `gorm:"index;not null;index:uniq_owner_sku,unique" json:"owner_id" binding:"required"`
	Sku            string          `gorm:"size:100;not null;index:uniq_owner_sku,unique" json:"sku" binding:"required"`
	Name           string          `gorm:"size:255;not null" json:"name" binding:"required"`
	Description    string          `gorm:"type:text" json:"description"`
	BasePrice      decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"base_price"`
	Category       string          `gorm:"size:100" json:"category"`
	Brand          string          `gorm:"size:100" json:"brand"`
	Weight         decimal.Decimal `gorm:"type:decimal(10,3);default:0" json:"weight"`
	IsActive       *bool           `gorm:"not null;default:true" json:"is_active"`
	IsFeatured     *bool           `gorm:"not null;default:false" json:"is_featured"`
	IsDiscontinued *bool           `gorm:"not null;default:false" json:"is_discontinued"`
	CreatedAt      time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewProduct struct {
	Sku            string          `json:"sku" binding:"required"`
	Name           string          `json:"name" binding:"required"`
	Description    string          `json:"description"`
	BasePrice      decimal.Decimal `json:"base_price" binding:"required"`
	Category       string          `json:"category"`
	Brand          string          `json:"brand"`
	Weight         decimal.Decimal `json:"weight"`
	IsFeatured     *bool           `json:"is_featured"`
	IsDiscontinued *bool           `json:"is_discontinued"`
}

type ProductsEdge Edge[Product]
type ProductsConnection struct {
	Edges    []*ProductsEdge `json:"edges"`
	PageInfo *PageInfo       `json:"pageInfo"`
}

func (p Product) GetOwnerId() string {
	return p.OwnerId
}

func (p Product) GetId() int {
	return p.ID
}

func (p Product) GetCursor() string {
	return p.CreatedAt.String()
}

func (input *NewProduct) validate(ctx context.Context, ownerId string, id int) error {
	if id > 0 {
		if err := utils.ValidateResourceId[Product](ctx, ownerId, id); err != nil {
			return err
		}
	}
	input.Sku = strings.ToUpper(strings.TrimSpace(input.Sku))
	if input.Sku == "" {
		return errors.New("sku is required")
	}
	if err := utils.ValidateUnique[Product](ctx, ownerId, "sku", input.Sku, id); err != nil {
		return err
	}
	if input.BasePrice.IsNegative() {
		return errors.New("base price cannot be negative")
	}
	return nil
}

func CreateProduct(ctx context.Context, input *NewProduct) (*Product, error) {
	db := config.GetDB()

	ownerId, ok := utils.GetOwnerIdFromContext(ctx)
	if !ok || ownerId == "" {
		return nil, errors.New("owner id is required")
	}

	if err := input.validate(ctx, ownerId, 0); err != nil {
		return nil, err
	}

	product := Product{
		OwnerId:        ownerId,
		Sku:            input.Sku,
		Name:           input.Name,
		Description:    input.Description,
		BasePrice:      input.BasePrice,
		Category:       input.Category,
		Brand:          input.Brand,
		Weight:         input.Weight,
		IsActive:       utils.NewTrue(),
		IsFeatured:     utils.NewFalse(),
		IsDiscontinued: utils.NewFalse(),
	}
	if input.IsFeatured != nil {
		product.IsFeatured = input.IsFeatured
	}
	if input.IsDiscontinued != nil {
		product.IsDiscontinued = input.IsDiscontinued
	}

	if err := db.WithContext(ctx).Create(&product).Error; err != nil {
		return nil, err
	}

	return &product, nil
}

func UpdateProduct(ctx context.Context, id int, input *NewProduct) (*Product, error) {
	db := config.GetDB()

	ownerId, ok := utils.GetOwnerIdFromContext(ctx)
	if !ok || ownerId == "" {
		return nil, errors.New("owner id is required")
	}

	if err := input.validate(ctx, ownerId, id); err != nil {
		return nil, err
	}

	var product Product
	if err := db.WithContext(ctx).Where("owner_id = ?", ownerId).First(&product, id).Error; err != nil {
		return nil, utils.ErrorRecordNotFound
	}

	product.Sku = input.Sku
	product.Name = input.Name
	product.Description = input.Description
	product.BasePrice = input.BasePrice
	product.Category = input.Category
	product.Brand = input.Brand
	product.Weight = input.Weight
	if input.IsFeatured != nil {
		product.IsFeatured = input.IsFeatured
	}
	if input.IsDiscontinued != nil {
		product.IsDiscontinued = input.IsDiscontinued
	}

	tx := db.Begin()
	if err := tx.WithContext(ctx).Save(&product).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := RemoveRedisBoth(product); err != nil {
		tx.Rollback()
		return nil, err
	}

	return &product, tx.Commit().Error
}

func GetProduct(ctx context.Context, id int) (*Product, error) {
	return GetResource[Product](ctx, id)
}

func ListProducts(ctx context.Context, limit int, after *string, name string, category string, activeOnly bool) (*ProductsConnection, error) {
	db := config.GetDB()

	ownerId, ok := utils.GetOwnerIdFromContext(ctx)
	if !ok || ownerId == "" {
		return nil, errors.New("owner id is required")
	}

	dbCtx := db.WithContext(ctx).Model(&Product{}).Where("owner_id = ?", ownerId)
	if name != "" {
		pattern := fmt.Sprintf("%%%s%%", name)
		dbCtx.Where("name LIKE ? OR sku LIKE ?", pattern, pattern)
	}
	if category != "" {
		dbCtx.Where("category = ?", category)
	}
	if activeOnly {
		dbCtx.Where("is_active = true AND is_discontinued = false")
	}

	edges, pageInfo, err := FetchPagePureCursor[Product](dbCtx, limit, after, "created_at", "<")
	if err != nil {
		return nil, err
	}

	productEdges := make([]*ProductsEdge, 0, len(edges))
	for i := range edges {
		edge := ProductsEdge(edges[i])
		productEdges = append(productEdges, &edge)
	}

	return &ProductsConnection{Edges: productEdges, PageInfo: pageInfo}, nil
}

func ToggleActiveProduct(ctx context.Context, id int, isActive bool) (*Product, error) {
	ownerId, ok := utils.GetOwnerIdFromContext(ctx)
	if !ok || ownerId == "" {
		return nil, errors.New("owner id is required")
	}
	return ToggleActiveModel[Product](ctx, ownerId, id, isActive)
}

// DeleteProduct refuses when inventory units or order lines reference
// the product; discontinue instead.
func DeleteProduct(ctx context.Context, id int) (*Product, error) {
	db := config.GetDB()

	ownerId, ok := utils.GetOwnerIdFromContext(ctx)
	if !ok || ownerId == "" {
		return nil, errors.New("owner id is required")
	}

	var product Product
	if err := db.WithContext(ctx).Where("owner_id = ?", ownerId).First(&product, id).Error; err != nil {
		return nil, utils.ErrorRecordNotFound
	}

	var unitCount int64
	if err := db.WithContext(ctx).Model(&InventoryUnit{}).
		Where("owner_id = ? AND product_id = ?", ownerId, id).Count(&unitCount).Error; err != nil {
		return nil, err
	}
	var lineCount int64
	if err := db.WithContext(ctx).Model(&OrderLine{}).
		Where("product_id = ?", id).Count(&lineCount).Error; err != nil {
		return nil, err
	}
	if unitCount > 0 || lineCount > 0 {
		return nil, errors.New("product is in use and cannot be deleted")
	}

	tx := db.Begin()
	if err := tx.WithContext(ctx).Delete(&product).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := RemoveRedisBoth(product); err != nil {
		tx.Rollback()
		return nil, err
	}

	return &product, tx.Commit().Error
}
