package database

import (
	"leadlynx/internal/database/models"

	"gorm.io/gorm"
)

func RunMigrations(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Visitor{},
		&models.Fingerprint{},
		&models.Category{},
		&models.Categoryscoring{},
		&models.Pagevisit{},
		&models.Newsvisit{},
		&models.Linkclick{},
		&models.Download{},
		&models.Attribute{},
		&models.Ipinformation{},
		&models.Log{},
		&models.Page{},
		&models.News{},
		&models.File{},
		&models.Linklistener{},
		&models.Redirect{},
		&models.IPLookup{},
		&models.IPCompany{},
	)
}
