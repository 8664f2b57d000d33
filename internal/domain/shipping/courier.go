package shipping

import (
	"context"
	"strings"
	"time"
)

// Regions are the administrative regions of Ghana a courier may serve.
var Regions = []string{
	"Greater Accra",
	"Ashanti",
	"Western",
	"Eastern",
	"Central",
	"Northern",
	"Upper East",
	"Upper West",
	"Volta",
	"Brong Ahafo",
	"Western North",
	"Ahafo",
	"Bono East",
	"North East",
	"Savannah",
	"Oti",
}

// CanonicalRegion returns the canonical spelling of region, matching
// case-insensitively.
func CanonicalRegion(region string) (string, bool) {
	region = strings.TrimSpace(region)
	for _, r := range Regions {
		if strings.EqualFold(r, region) {
			return r, true
		}
	}
	return "", false
}

// Courier delivers shipments. Phone is unique; Email is unique when set and
// stored lower-cased.
type Courier struct {
	ID        string
	Name      string
	Phone     string
	Email     string
	Region    string
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CourierFilter narrows ListCouriers. Zero values match everything.
type CourierFilter struct {
	Region string
	Active *bool
}

// CourierUpdate holds the courier fields to change. Nil fields are left as
// they are.
type CourierUpdate struct {
	Name     *string
	Phone    *string
	Email    *string
	Region   *string
	IsActive *bool
}

// CourierRepository defines persistence operations for couriers.
//
// CreateCourier and UpdateCourier return an error wrapping
// fault.ErrValidation when the phone or email is already taken. GetCourierForShare holds a shared lock on the
// courier until the transaction ends so it cannot be deactivated
// concurrently; GetCourierForUpdate holds an exclusive one.
type CourierRepository interface {
	CreateCourier(ctx context.Context, c *Courier) error
	GetCourier(ctx context.Context, id string) (*Courier, error)
	GetCourierForShare(ctx context.Context, id string) (*Courier, error)
	GetCourierForUpdate(ctx context.Context, id string) (*Courier, error)
	ListCouriers(ctx context.Context, f CourierFilter) ([]Courier, error)
	CountInFlight(ctx context.Context, courierID string) (int, error)
	SetCourierActive(ctx context.Context, id string, active bool, at time.Time) error
	UpdateCourier(ctx context.Context, c *Courier) error
}
