package models

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type SequenceName string

// SchemaVersionSequence numbers the schema versions of a single target.
func SchemaVersionSequence(targetID uuid.UUID) SequenceName {
	return SequenceName("SCHEMA_VERSIONS:" + targetID.String())
}

type Sequence struct {
	Name      SequenceName `gorm:"primarykey"`
	NextValue int64
}

// NextSequenceID returns the next value of the named sequence, starting at 1.
func NextSequenceID(db *gorm.DB, name SequenceName) (int64, error) {
	var next int64

	err := db.Transaction(func(tx *gorm.DB) error {
		sequence := &Sequence{Name: name}
		if err := tx.Where("name = ?", name).First(sequence).Error; err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("error getting sequence %s: %w", name, err)
		}

		sequence.NextValue++
		if err := tx.Save(sequence).Error; err != nil {
			return fmt.Errorf("error saving sequence %s: %w", name, err)
		}

		next = sequence.NextValue
		return nil
	})
	if err != nil {
		return 0, err
	}

	return next, nil
}
