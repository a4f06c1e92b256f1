package repository

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/nimbusbilling/subrelay/app/models"
)

type deliveryStatRepository struct {
	db *gorm.DB
}

// NewDeliveryStatRepository creates a gorm-backed delivery stat repository.
func NewDeliveryStatRepository(db *gorm.DB) DeliveryStatRepository {
	return &deliveryStatRepository{db: db}
}

func (r *deliveryStatRepository) AddCounts(route string, delivered, failed int64) error {
	if delivered == 0 && failed == 0 {
		return nil
	}
	stat := models.DeliveryStat{Route: route, Delivered: delivered, Failed: failed}
	return r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "route"}},
		DoUpdates: clause.Assignments(map[string]any{
			"delivered": gorm.Expr("delivered + ?", delivered),
			"failed":    gorm.Expr("failed + ?", failed),
		}),
	}).Create(&stat).Error
}

func (r *deliveryStatRepository) List() ([]models.DeliveryStat, error) {
	var stats []models.DeliveryStat
	err := r.db.Order("route ASC").Find(&stats).Error
	return stats, err
}
