package db

import (
	"fmt"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"agrifin-loan-engine/internal/domain/approval"
	"agrifin-loan-engine/internal/domain/ledger"
	"agrifin-loan-engine/internal/domain/loan"
	applog "agrifin-loan-engine/internal/logger"
)

// Models are the gorm models owned by the engine, in FK order.
var Models = []any{
	&loan.Loan{},
	&ledger.Transaction{},
	&approval.Approval{},
}

// OpenGorm connects to mysql or sqlite. sqlite gets its schema via AutoMigrate;
// mysql schema is owned by the versioned migrations.
func OpenGorm(driver, dsn, logLevel string) (*gorm.DB, error) {
	var dial gorm.Dialector
	switch driver {
	case "mysql":
		dial = mysql.Open(dsn)
	case "sqlite":
		dial = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported db driver %q", driver)
	}

	db, err := OpenGormWithDialector(dial, gormLogLevel(logLevel))
	if err != nil {
		return nil, err
	}
	if driver == "sqlite" {
		sqlDB, _ := db.DB()
		// one writer; sqlite serializes anyway and this avoids SQLITE_BUSY
		sqlDB.SetMaxOpenConns(1)
		if err := db.AutoMigrate(Models...); err != nil {
			return nil, fmt.Errorf("automigrate: %w", err)
		}
	}
	return db, nil
}

// OpenGormWithDialector opens and pings an already configured dialector.
func OpenGormWithDialector(dial gorm.Dialector, level ...logger.LogLevel) (*gorm.DB, error) {
	lvl := logger.Warn
	if len(level) > 0 {
		lvl = level[0]
	}
	cfg := &gorm.Config{
		Logger:               logger.Default.LogMode(lvl),
		TranslateError:       true,
		DisableAutomaticPing: true,
	}
	db, err := gorm.Open(dial, cfg)
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(30)
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)
	sqlDB.SetConnMaxIdleTime(10 * time.Minute)

	if err := sqlDB.Ping(); err != nil {
		return nil, err
	}
	applog.Get().Infow("gorm: connected", "dialect", dial.Name())
	return db, nil
}

func gormLogLevel(level string) logger.LogLevel {
	switch level {
	case "debug":
		return logger.Info
	case "error":
		return logger.Error
	case "silent":
		return logger.Silent
	default:
		return logger.Warn
	}
}
