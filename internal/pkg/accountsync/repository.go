package accountsync

import (
	"github.com/MarcReynaud/MissionPay/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository provides DB operations used by the synchronizer.
type Repository interface {
	GetProfileByID(id uint) (*models.Profile, error)
	GetProfileByCustomerID(customerID string) (*models.Profile, error)
	GetProfileByAccountID(accountID string) (*models.Profile, error)
	// UpsertPlaceholderByCustomerID atomically creates a minimal profile for
	// a customer id that has no profile yet and returns the stored row
	// (whether freshly created or concurrently created by another delivery).
	UpsertPlaceholderByCustomerID(customerID, email string) (*models.Profile, error)
	// UpdateProfileFields applies a partial column update; callers include
	// only the fields present in the incoming payload.
	UpdateProfileFields(id uint, fields map[string]interface{}) error
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a synchronizer repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) GetProfileByID(id uint) (*models.Profile, error) {
	var p models.Profile
	if err := r.db.First(&p, id).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *gormRepository) GetProfileByCustomerID(customerID string) (*models.Profile, error) {
	var p models.Profile
	if err := r.db.Where("stripe_customer_id = ?", customerID).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *gormRepository) GetProfileByAccountID(accountID string) (*models.Profile, error) {
	var p models.Profile
	if err := r.db.Where("stripe_account_id = ?", accountID).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *gormRepository) UpsertPlaceholderByCustomerID(customerID, email string) (*models.Profile, error) {
	placeholder := &models.Profile{
		StripeCustomerID: &customerID,
		Email:            email,
		Placeholder:      true,
	}
	if err := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "stripe_customer_id"}},
		DoNothing: true,
	}).Create(placeholder).Error; err != nil {
		return nil, err
	}

	// Re-read so a concurrent creation wins consistently.
	return r.GetProfileByCustomerID(customerID)
}

func (r *gormRepository) UpdateProfileFields(id uint, fields map[string]interface{}) error {
	if len(fields) == 0 {
		return nil
	}
	return r.db.Model(&models.Profile{}).Where("id = ?", id).Updates(fields).Error
}
