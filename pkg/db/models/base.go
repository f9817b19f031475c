package models

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// assignID fills a zero primary key before insert so rows can be created on
// drivers without a uuid default (SQLite in tests).
func assignID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}

// BeforeCreate assigns the primary key.
func (w *Warehouse) BeforeCreate(*gorm.DB) error { assignID(&w.ID); return nil }

// BeforeCreate assigns the primary key.
func (p *Product) BeforeCreate(*gorm.DB) error { assignID(&p.ID); return nil }

// BeforeCreate assigns the primary key.
func (l *Lot) BeforeCreate(*gorm.DB) error { assignID(&l.ID); return nil }

// BeforeCreate assigns the primary key.
func (e *WarehouseStockEntry) BeforeCreate(*gorm.DB) error { assignID(&e.ID); return nil }

// BeforeCreate assigns the primary key.
func (a *AllocationRecord) BeforeCreate(*gorm.DB) error { assignID(&a.ID); return nil }

// BeforeCreate assigns the primary key.
func (o *Order) BeforeCreate(*gorm.DB) error { assignID(&o.ID); return nil }

// BeforeCreate assigns the primary key.
func (l *OrderLine) BeforeCreate(*gorm.DB) error { assignID(&l.ID); return nil }

// BeforeCreate assigns the primary key.
func (e *OutboxEvent) BeforeCreate(*gorm.DB) error { assignID(&e.ID); return nil }

// All lists every persisted model, in dependency order, for AutoMigrate.
func All() []any {
	return []any{
		&Warehouse{},
		&Product{},
		&Lot{},
		&WarehouseStockEntry{},
		&Order{},
		&OrderLine{},
		&AllocationRecord{},
		&OutboxEvent{},
	}
}
