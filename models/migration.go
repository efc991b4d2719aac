package models

import (
	"log"

	"bitbucket.org/easyadvisor/fingov_backend/config"
	"gorm.io/gorm"
)

func AllModels() []interface{} {
	return []interface{}{
		&User{}, &RefreshToken{}, &PasswordOtp{},
		&ArmyLog{}, &PanRecord{}, &KotakRecord{}, &Partner{},
		&AppSetting{}, &AdminAudit{}, &WaLog{},
	}
}

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(AllModels()...)
}

func MigrateTable() {
	if err := Migrate(config.GetDB()); err != nil {
		log.Fatal(err)
	}
}
