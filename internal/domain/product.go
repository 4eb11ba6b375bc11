package domain

import (
	"time"

	"github.com/google/uuid"
)

// Product represents one sellable item in the catalog
type Product struct {
	ID          uuid.UUID `json:"id" db:"id"`
	Name        string    `json:"name" db:"name"`
	Type        string    `json:"type" db:"type"`
	Brand       string    `json:"brand" db:"brand"`
	Price       float64   `json:"price" db:"price"`
	Stock       int       `json:"stock" db:"stock"`
	ExpiredDate *Date     `json:"expiredDate" db:"expired_date"`
	ImageURL    string    `json:"imageUrl" db:"image_url"`
	CreatedAt   time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt   time.Time `json:"updatedAt" db:"updated_at"`
}

// KnownProductTypes lists the categories offered by the admin form.
// The type column is open-ended; other values are accepted.
var KnownProductTypes = []string{
	"Foundation",
	"Lipstick",
	"Eyeliner",
	"Blush On",
	"Mascara",
	"Eye Shadow",
	"Moisturizer",
	"Serum",
	"Sunscreen",
	"Toner",
	"Cleanser",
	"Face Mask",
	"Exfoliator",
	"Lip Balm",
}

// IsKnownProductType reports whether t is one of KnownProductTypes
func IsKnownProductType(t string) bool {
	for _, known := range KnownProductTypes {
		if known == t {
			return true
		}
	}
	return false
}
