// Package domain contains persistence models for versioned module pricing.
package domain

import (
	"encoding/json"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// PricingMetric identifies how a module's price scales.
type PricingMetric string

const (
	MetricBasePrice  PricingMetric = "BASE_PRICE"
	MetricPerUser    PricingMetric = "PER_USER"
	MetricPerSensor  PricingMetric = "PER_SENSOR"
	MetricPerHectare PricingMetric = "PER_HECTARE"
	MetricPerDevice  PricingMetric = "PER_DEVICE"
)

// ValidMetric reports whether v is a known pricing metric.
func ValidMetric(v PricingMetric) bool {
	switch v {
	case MetricBasePrice, MetricPerUser, MetricPerSensor, MetricPerHectare, MetricPerDevice:
		return true
	}
	return false
}

// MetricPrice is one entry of a pricing version's price list.
type MetricPrice struct {
	Metric           PricingMetric `json:"metric"`
	UnitPrice        int64         `json:"unit_price"`
	IncludedQuantity int64         `json:"included_quantity"`
}

// ModulePricing is one pricing version for a module. At most one row per
// module is active at a time; creating a new version retires the overlapping
// one by closing its effective window.
type ModulePricing struct {
	ID            snowflake.ID   `gorm:"primaryKey"`
	ModuleCode    string         `gorm:"type:text;not null;index"`
	ModuleName    string         `gorm:"type:text;not null"`
	Prices        datatypes.JSON `gorm:"type:jsonb;not null"`
	EffectiveFrom time.Time      `gorm:"not null"`
	EffectiveTo   *time.Time     `gorm:""`
	IsActive      bool           `gorm:"not null;default:true"`
	CreatedBy     string         `gorm:"type:text"`
	CreatedAt     time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt     time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (ModulePricing) TableName() string { return "module_pricing" }

// MetricPrices decodes the version's price list.
func (m ModulePricing) MetricPrices() ([]MetricPrice, error) {
	if len(m.Prices) == 0 {
		return nil, nil
	}
	var prices []MetricPrice
	if err := json.Unmarshal(m.Prices, &prices); err != nil {
		return nil, err
	}
	return prices, nil
}

// PriceFor returns the price entry for a metric, if the version carries one.
func (m ModulePricing) PriceFor(metric PricingMetric) (MetricPrice, bool) {
	prices, err := m.MetricPrices()
	if err != nil {
		return MetricPrice{}, false
	}
	for _, p := range prices {
		if p.Metric == metric {
			return p, true
		}
	}
	return MetricPrice{}, false
}
