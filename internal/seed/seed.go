package seed

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	modulepricingdomain "github.com/croplytics/croplytics/internal/modulepricing/domain"
	plandomain "github.com/croplytics/croplytics/internal/plan/domain"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// EnsureDefaultPlans seeds the standard plan catalog so a fresh install
// can sell subscriptions without manual setup. Existing codes are left
// untouched.
func EnsureDefaultPlans(db *gorm.DB) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return err
	}

	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, plan := range defaultPlans() {
			var existing plandomain.PlanDefinition
			err := tx.WithContext(ctx).
				Where("code = ?", plan.Code).
				First(&existing).Error
			if err == nil {
				continue
			}
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
			plan.ID = node.Generate()
			now := time.Now().UTC()
			plan.CreatedAt = now
			plan.UpdatedAt = now
			if err := tx.WithContext(ctx).Create(&plan).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// EnsureDefaultModulePricing seeds pricing for the core product modules.
// A module with any pricing row, active or not, is skipped.
func EnsureDefaultModulePricing(db *gorm.DB) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return err
	}

	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, pricing := range defaultModulePricing() {
			var count int64
			if err := tx.WithContext(ctx).
				Model(&modulepricingdomain.ModulePricing{}).
				Where("module_code = ?", pricing.ModuleCode).
				Count(&count).Error; err != nil {
				return err
			}
			if count > 0 {
				continue
			}
			pricing.ID = node.Generate()
			now := time.Now().UTC()
			pricing.EffectiveFrom = now
			pricing.CreatedAt = now
			pricing.UpdatedAt = now
			if err := tx.WithContext(ctx).Create(&pricing).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func defaultPlans() []plandomain.PlanDefinition {
	return []plandomain.PlanDefinition{
		{
			Code:            "FREE",
			Name:            "Free",
			Tier:            plandomain.TierFree,
			MonthlyPrice:    0,
			QuarterlyPrice:  0,
			SemiAnnualPrice: 0,
			AnnualPrice:     0,
			MaxUsers:        2,
			MaxSensors:      5,
			MaxFarms:        1,
			StorageGB:       1,
			Features:        datatypes.JSONMap{"support": "community"},
		},
		{
			Code:            "STARTER",
			Name:            "Starter",
			Tier:            plandomain.TierStarter,
			MonthlyPrice:    4900,
			QuarterlyPrice:  13965,
			SemiAnnualPrice: 26460,
			AnnualPrice:     49980,
			MaxUsers:        10,
			MaxSensors:      50,
			MaxFarms:        3,
			StorageGB:       25,
			Features:        datatypes.JSONMap{"support": "email"},
		},
		{
			Code:            "PROFESSIONAL",
			Name:            "Professional",
			Tier:            plandomain.TierProfessional,
			MonthlyPrice:    19900,
			QuarterlyPrice:  56715,
			SemiAnnualPrice: 107460,
			AnnualPrice:     202980,
			MaxUsers:        50,
			MaxSensors:      500,
			MaxFarms:        20,
			StorageGB:       250,
			Features:        datatypes.JSONMap{"support": "priority", "api_access": true},
		},
		{
			Code:            "ENTERPRISE",
			Name:            "Enterprise",
			Tier:            plandomain.TierEnterprise,
			MonthlyPrice:    79900,
			QuarterlyPrice:  227715,
			SemiAnnualPrice: 431460,
			AnnualPrice:     814980,
			MaxUsers:        500,
			MaxSensors:      10000,
			MaxFarms:        200,
			StorageGB:       2000,
			Features:        datatypes.JSONMap{"support": "dedicated", "api_access": true, "sso": true},
		},
	}
}

func defaultModulePricing() []modulepricingdomain.ModulePricing {
	return []modulepricingdomain.ModulePricing{
		{
			ModuleCode: "FARM_MANAGEMENT",
			ModuleName: "Farm Management",
			Prices: mustPrices([]modulepricingdomain.MetricPrice{
				{Metric: modulepricingdomain.MetricBasePrice, UnitPrice: 2500, IncludedQuantity: 0},
				{Metric: modulepricingdomain.MetricPerUser, UnitPrice: 500, IncludedQuantity: 3},
				{Metric: modulepricingdomain.MetricPerHectare, UnitPrice: 10, IncludedQuantity: 100},
			}),
			IsActive:  true,
			CreatedBy: "seed",
		},
		{
			ModuleCode: "SENSOR_MONITORING",
			ModuleName: "Sensor Monitoring",
			Prices: mustPrices([]modulepricingdomain.MetricPrice{
				{Metric: modulepricingdomain.MetricBasePrice, UnitPrice: 1500, IncludedQuantity: 0},
				{Metric: modulepricingdomain.MetricPerSensor, UnitPrice: 200, IncludedQuantity: 10},
				{Metric: modulepricingdomain.MetricPerDevice, UnitPrice: 300, IncludedQuantity: 5},
			}),
			IsActive:  true,
			CreatedBy: "seed",
		},
		{
			ModuleCode: "IRRIGATION_CONTROL",
			ModuleName: "Irrigation Control",
			Prices: mustPrices([]modulepricingdomain.MetricPrice{
				{Metric: modulepricingdomain.MetricBasePrice, UnitPrice: 3500, IncludedQuantity: 0},
				{Metric: modulepricingdomain.MetricPerDevice, UnitPrice: 450, IncludedQuantity: 2},
			}),
			IsActive:  true,
			CreatedBy: "seed",
		},
	}
}

func mustPrices(prices []modulepricingdomain.MetricPrice) datatypes.JSON {
	raw, err := json.Marshal(prices)
	if err != nil {
		panic(err)
	}
	return datatypes.JSON(raw)
}
