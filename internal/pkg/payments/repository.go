package payments

import (
	"time"

	"github.com/MarcReynaud/MissionPay/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RetryCandidate identifies a skipped/failed transfer whose recipient is now
// payout-enabled and whose payment carries no open dispute.
type RetryCandidate struct {
	PaymentID uint
	ProfileID uint
}

// Repository provides DB operations used by the payment services.
type Repository interface {
	GetMission(id uint) (*models.Mission, error)
	GetProfile(id uint) (*models.Profile, error)

	CreatePayment(p *models.MissionPayment) error
	GetPayment(id uint) (*models.MissionPayment, error)
	GetLatestPaymentByMission(missionID uint) (*models.MissionPayment, error)
	GetPaymentByCheckoutSession(sessionID string) (*models.MissionPayment, error)
	// UpdatePaymentStatusIf performs a conditional forward transition and
	// reports whether a row changed. Lost races at worst delay a transition.
	UpdatePaymentStatusIf(id uint, from, to string, fields map[string]interface{}) (bool, error)

	CreateFinanceRows(rows []models.MissionFinance) error
	// BindFinanceToPayment claims the mission's allocation rows for a
	// payment. Unbound rows and rows bound to an abandoned earlier cycle
	// are rebound; rows owned by a settled payment are never touched.
	BindFinanceToPayment(missionID, paymentID uint) error
	ListFinanceByMission(missionID uint) ([]models.MissionFinance, error)
	ListFinanceByPayment(paymentID uint) ([]models.MissionFinance, error)

	// UpsertTransfer inserts or updates the single row per
	// (payment, recipient); the unique index prevents duplicates under
	// concurrent retries.
	UpsertTransfer(t *models.MissionTransfer) error
	GetTransfer(paymentID, destProfileID uint) (*models.MissionTransfer, error)
	ListTransfersByPayment(paymentID uint) ([]models.MissionTransfer, error)

	HasOpenDispute(paymentID uint) (bool, error)
	GetOpenDisputeByPayment(paymentID uint) (*models.MissionDispute, error)
	CreateDispute(d *models.MissionDispute) error
	GetDispute(id uint) (*models.MissionDispute, error)
	ResolveDispute(id uint, status string) (bool, error)

	ListRetryCandidates(limit int) ([]RetryCandidate, error)
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a payments repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) GetMission(id uint) (*models.Mission, error) {
	var m models.Mission
	if err := r.db.First(&m, id).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *gormRepository) GetProfile(id uint) (*models.Profile, error) {
	var p models.Profile
	if err := r.db.First(&p, id).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *gormRepository) CreatePayment(p *models.MissionPayment) error {
	return r.db.Create(p).Error
}

func (r *gormRepository) GetPayment(id uint) (*models.MissionPayment, error) {
	var p models.MissionPayment
	if err := r.db.First(&p, id).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *gormRepository) GetLatestPaymentByMission(missionID uint) (*models.MissionPayment, error) {
	var p models.MissionPayment
	err := r.db.Where("mission_id = ?", missionID).
		Order("created_at DESC, id DESC").
		First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *gormRepository) GetPaymentByCheckoutSession(sessionID string) (*models.MissionPayment, error) {
	var p models.MissionPayment
	if err := r.db.Where("checkout_session_id = ?", sessionID).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *gormRepository) UpdatePaymentStatusIf(id uint, from, to string, fields map[string]interface{}) (bool, error) {
	updates := map[string]interface{}{"status": to}
	for k, v := range fields {
		updates[k] = v
	}
	tx := r.db.Model(&models.MissionPayment{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

func (r *gormRepository) CreateFinanceRows(rows []models.MissionFinance) error {
	if len(rows) == 0 {
		return nil
	}
	return r.db.Create(&rows).Error
}

func (r *gormRepository) BindFinanceToPayment(missionID, paymentID uint) error {
	// Rows held by a superseded payment that never captured funds follow
	// the new row; rows owned by a received or distributed payment stay put.
	settled := r.db.Model(&models.MissionPayment{}).
		Select("id").
		Where("mission_id = ? AND status IN ?", missionID,
			[]string{models.PaymentStatusReceived, models.PaymentStatusDistributed})
	return r.db.Model(&models.MissionFinance{}).
		Where("mission_id = ? AND mission_payment_id <> ?", missionID, paymentID).
		Where("mission_payment_id NOT IN (?)", settled).
		Update("mission_payment_id", paymentID).Error
}

func (r *gormRepository) ListFinanceByMission(missionID uint) ([]models.MissionFinance, error) {
	var rows []models.MissionFinance
	err := r.db.Where("mission_id = ?", missionID).Find(&rows).Error
	return rows, err
}

func (r *gormRepository) ListFinanceByPayment(paymentID uint) ([]models.MissionFinance, error) {
	var rows []models.MissionFinance
	err := r.db.Where("mission_payment_id = ?", paymentID).Find(&rows).Error
	return rows, err
}

func (r *gormRepository) UpsertTransfer(t *models.MissionTransfer) error {
	if err := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "mission_payment_id"},
			{Name: "destination_profile_id"},
		},
		DoUpdates: clause.AssignmentColumns([]string{
			"status",
			"amount",
			"external_transfer_id",
			"last_error",
			"updated_at",
		}),
	}).Create(t).Error; err != nil {
		return err
	}

	// Ensure ID is populated after upsert.
	return r.db.Where("mission_payment_id = ? AND destination_profile_id = ?", t.MissionPaymentID, t.DestinationProfileID).
		First(t).Error
}

func (r *gormRepository) GetTransfer(paymentID, destProfileID uint) (*models.MissionTransfer, error) {
	var t models.MissionTransfer
	err := r.db.Where("mission_payment_id = ? AND destination_profile_id = ?", paymentID, destProfileID).
		First(&t).Error
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *gormRepository) ListTransfersByPayment(paymentID uint) ([]models.MissionTransfer, error) {
	var rows []models.MissionTransfer
	err := r.db.Where("mission_payment_id = ?", paymentID).Find(&rows).Error
	return rows, err
}

func (r *gormRepository) HasOpenDispute(paymentID uint) (bool, error) {
	var count int64
	err := r.db.Model(&models.MissionDispute{}).
		Where("mission_payment_id = ? AND status = ?", paymentID, models.DisputeStatusOpen).
		Count(&count).Error
	return count > 0, err
}

func (r *gormRepository) GetOpenDisputeByPayment(paymentID uint) (*models.MissionDispute, error) {
	var d models.MissionDispute
	err := r.db.Where("mission_payment_id = ? AND status = ?", paymentID, models.DisputeStatusOpen).
		Order("created_at DESC").
		First(&d).Error
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *gormRepository) CreateDispute(d *models.MissionDispute) error {
	return r.db.Create(d).Error
}

func (r *gormRepository) GetDispute(id uint) (*models.MissionDispute, error) {
	var d models.MissionDispute
	if err := r.db.First(&d, id).Error; err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *gormRepository) ResolveDispute(id uint, status string) (bool, error) {
	now := time.Now()
	tx := r.db.Model(&models.MissionDispute{}).
		Where("id = ? AND status = ?", id, models.DisputeStatusOpen).
		Updates(map[string]interface{}{
			"status":      status,
			"resolved_at": &now,
		})
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

func (r *gormRepository) ListRetryCandidates(limit int) ([]RetryCandidate, error) {
	if limit <= 0 {
		limit = 50
	}
	var out []RetryCandidate
	err := r.db.Model(&models.MissionTransfer{}).
		Select("mission_transfers.mission_payment_id AS payment_id, mission_transfers.destination_profile_id AS profile_id").
		Joins("JOIN profiles ON profiles.id = mission_transfers.destination_profile_id").
		Joins("JOIN mission_payments ON mission_payments.id = mission_transfers.mission_payment_id").
		Where("mission_transfers.status IN ?", []string{models.TransferStatusSkipped, models.TransferStatusFailed}).
		Where("profiles.payouts_enabled = ?", true).
		Where("mission_payments.status = ?", models.PaymentStatusReceived).
		Where("NOT EXISTS (SELECT 1 FROM mission_disputes d WHERE d.mission_payment_id = mission_transfers.mission_payment_id AND d.status = ?)", models.DisputeStatusOpen).
		Limit(limit).
		Scan(&out).Error
	return out, err
}
