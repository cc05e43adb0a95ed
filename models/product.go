package models

import "github.com/shopspring/decimal"

// Product is the catalog row checkout prices are read from. The admin
// surface owns writes to this table; checkout only reads it.
type Product struct {
	PID         int64           `gorm:"column:pid;primaryKey;autoIncrement" json:"pid"`
	CatID       int64           `gorm:"column:catid;index" json:"catid"`
	Name        string          `gorm:"type:varchar(255);not null" json:"name"`
	Price       decimal.Decimal `gorm:"type:numeric(10,2);not null" json:"price"`
	Description string          `gorm:"type:text" json:"description,omitempty"`
}

func (Product) TableName() string { return "products" }
