package staff

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"wholesale-backend/internal/audit"
	"wholesale-backend/internal/auth"
	"wholesale-backend/internal/httpx"
	"wholesale-backend/internal/models"
	"wholesale-backend/internal/phone"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	errAlreadyClockedIn = errors.New("already clocked in")
	errNotClockedIn     = errors.New("not clocked in")
)

type ContactRequest struct {
	Email   string `json:"email" validate:"omitempty,email"`
	Phone   string `json:"phone" validate:"max=50"`
	Address string `json:"address" validate:"max=255"`
}

type CreateStaffRequest struct {
	UserID      uint            `json:"user_id" validate:"required"`
	FirstName   string          `json:"first_name" validate:"required,max=100"`
	LastName    string          `json:"last_name" validate:"required,max=100"`
	Position    string          `json:"position" validate:"required,max=100"`
	Department  string          `json:"department" validate:"max=100"`
	ContactInfo *ContactRequest `json:"contact_info"`
}

type UpdateStaffRequest struct {
	FirstName   *string         `json:"first_name" validate:"omitempty,max=100"`
	LastName    *string         `json:"last_name" validate:"omitempty,max=100"`
	Position    *string         `json:"position" validate:"omitempty,max=100"`
	Department  *string         `json:"department" validate:"omitempty,max=100"`
	ContactInfo *ContactRequest `json:"contact_info"`
	IsActive    *bool           `json:"is_active"`
}

type PerformanceRequest struct {
	SalesTarget    *decimal.Decimal `json:"sales_target"`
	SalesAchieved  *decimal.Decimal `json:"sales_achieved"`
	TasksCompleted *int             `json:"tasks_completed" validate:"omitempty,gte=0"`
}

type ActivityRequest struct {
	Type        string `json:"type" validate:"required"`
	Description string `json:"description" validate:"required,max=500"`
}

type StaffResponse struct {
	models.Staff
	FullName              string          `json:"full_name"`
	PerformancePercentage decimal.Decimal `json:"performance_percentage"`
}

func toResponse(s models.Staff) StaffResponse {
	return StaffResponse{
		Staff:                 s,
		FullName:              s.FullName(),
		PerformancePercentage: s.Performance.Percentage(),
	}
}

// GET /api/staff
func ListStaffHandler(db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var members []models.Staff
		if err := db.WithContext(c.UserContext()).
			Preload("User").
			Order("last_name asc, first_name asc").
			Find(&members).Error; err != nil {
			return err
		}

		resp := make([]StaffResponse, 0, len(members))
		for _, s := range members {
			resp = append(resp, toResponse(s))
		}
		return c.JSON(resp)
	}
}

// GET /api/staff/:id
func GetStaffHandler(db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := httpx.ParamID(c, "id", "Staff not found")
		if err != nil {
			return err
		}

		s, err := loadStaff(db.WithContext(c.UserContext()), id)
		if err != nil {
			return err
		}
		return c.JSON(toResponse(*s))
	}
}

// POST /api/staff (admin)
func CreateStaffHandler(db *gorm.DB, phoneRegion string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := auth.ActorFrom(c)
		if err != nil {
			return err
		}

		var body CreateStaffRequest
		if err := httpx.ParseBody(c, &body); err != nil {
			return err
		}

		s := models.Staff{
			UserID:     body.UserID,
			FirstName:  strings.TrimSpace(body.FirstName),
			LastName:   strings.TrimSpace(body.LastName),
			Position:   strings.TrimSpace(body.Position),
			Department: strings.TrimSpace(body.Department),
			IsActive:   true,
			Performance: models.Performance{
				SalesTarget:   decimal.Zero,
				SalesAchieved: decimal.Zero,
			},
		}
		if body.ContactInfo != nil {
			if s.ContactInfo, err = contact(*body.ContactInfo, phoneRegion); err != nil {
				return err
			}
		}

		err = db.WithContext(c.UserContext()).Transaction(func(tx *gorm.DB) error {
			var user models.User
			if err := tx.First(&user, body.UserID).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return fiber.NewError(fiber.StatusNotFound, "User not found")
				}
				return err
			}

			var existing int64
			if err := tx.Model(&models.Staff{}).Where("user_id = ?", body.UserID).Count(&existing).Error; err != nil {
				return err
			}
			if existing > 0 {
				return fiber.NewError(fiber.StatusConflict, "Staff profile already exists for this user")
			}

			if s.ContactInfo.Email == "" {
				s.ContactInfo.Email = user.Email
			}
			if err := tx.Create(&s).Error; err != nil {
				if errors.Is(err, gorm.ErrDuplicatedKey) {
					return fiber.NewError(fiber.StatusConflict, "Staff profile already exists for this user")
				}
				return err
			}

			return audit.WriteLog(tx, audit.LogOptions{
				UserID:      actor.UserID,
				UserName:    actor.Name,
				EntityType:  audit.EntityStaff,
				EntityID:    s.ID,
				Action:      models.AuditActionCreate,
				Description: fmt.Sprintf("Staff profile created: %s", s.FullName()),
				After:       s,
			})
		})
		if err != nil {
			return err
		}

		created, err := loadStaff(db.WithContext(c.UserContext()), s.ID)
		if err != nil {
			return err
		}
		return c.Status(fiber.StatusCreated).JSON(toResponse(*created))
	}
}

// PUT /api/staff/:id (admin)
func UpdateStaffHandler(db *gorm.DB, phoneRegion string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := auth.ActorFrom(c)
		if err != nil {
			return err
		}
		id, err := httpx.ParamID(c, "id", "Staff not found")
		if err != nil {
			return err
		}

		var body UpdateStaffRequest
		if err := httpx.ParseBody(c, &body); err != nil {
			return err
		}

		var info models.ContactInfo
		if body.ContactInfo != nil {
			if info, err = contact(*body.ContactInfo, phoneRegion); err != nil {
				return err
			}
		}

		return mutate(c, db, actor, id, "Staff profile updated", func(s *models.Staff) error {
			if body.FirstName != nil && strings.TrimSpace(*body.FirstName) != "" {
				s.FirstName = strings.TrimSpace(*body.FirstName)
			}
			if body.LastName != nil && strings.TrimSpace(*body.LastName) != "" {
				s.LastName = strings.TrimSpace(*body.LastName)
			}
			if body.Position != nil && strings.TrimSpace(*body.Position) != "" {
				s.Position = strings.TrimSpace(*body.Position)
			}
			if body.Department != nil {
				s.Department = strings.TrimSpace(*body.Department)
			}
			if body.ContactInfo != nil {
				s.ContactInfo = info
			}
			if body.IsActive != nil {
				s.IsActive = *body.IsActive
			}
			return nil
		})
	}
}

// PUT /api/staff/:id/performance (admin)
func UpdatePerformanceHandler(db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := auth.ActorFrom(c)
		if err != nil {
			return err
		}
		id, err := httpx.ParamID(c, "id", "Staff not found")
		if err != nil {
			return err
		}

		var body PerformanceRequest
		if err := httpx.ParseBody(c, &body); err != nil {
			return err
		}
		if (body.SalesTarget != nil && body.SalesTarget.IsNegative()) ||
			(body.SalesAchieved != nil && body.SalesAchieved.IsNegative()) {
			return fiber.NewError(fiber.StatusBadRequest, "Sales figures cannot be negative")
		}

		return mutate(c, db, actor, id, "Staff performance updated", func(s *models.Staff) error {
			if body.SalesTarget != nil {
				s.Performance.SalesTarget = *body.SalesTarget
			}
			if body.SalesAchieved != nil {
				s.Performance.SalesAchieved = *body.SalesAchieved
			}
			if body.TasksCompleted != nil {
				s.Performance.TasksCompleted = *body.TasksCompleted
			}
			return nil
		})
	}
}

// POST /api/staff/clock-in
func ClockInHandler(db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := auth.ActorFrom(c)
		if err != nil {
			return err
		}

		var entry models.ClockEntry
		err = db.WithContext(c.UserContext()).Transaction(func(tx *gorm.DB) error {
			s, err := staffForUser(tx, actor.UserID)
			if err != nil {
				return err
			}

			if _, err := openEntry(tx, s.ID); err == nil {
				return errAlreadyClockedIn
			} else if !errors.Is(err, errNotClockedIn) {
				return err
			}

			entry = models.ClockEntry{StaffID: s.ID, ClockIn: time.Now()}
			return tx.Create(&entry).Error
		})
		if err != nil {
			if errors.Is(err, errAlreadyClockedIn) {
				return fiber.NewError(fiber.StatusBadRequest, "Already clocked in")
			}
			return err
		}

		return c.Status(fiber.StatusCreated).JSON(entry)
	}
}

// POST /api/staff/clock-out
func ClockOutHandler(db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := auth.ActorFrom(c)
		if err != nil {
			return err
		}

		var entry *models.ClockEntry
		err = db.WithContext(c.UserContext()).Transaction(func(tx *gorm.DB) error {
			s, err := staffForUser(tx, actor.UserID)
			if err != nil {
				return err
			}

			entry, err = openEntry(tx, s.ID)
			if err != nil {
				return err
			}

			now := time.Now()
			entry.ClockOut = &now
			entry.TotalHours = WorkedHours(entry.ClockIn, now)
			return tx.Save(entry).Error
		})
		if err != nil {
			if errors.Is(err, errNotClockedIn) {
				return fiber.NewError(fiber.StatusBadRequest, "Not clocked in")
			}
			return err
		}

		return c.JSON(entry)
	}
}

// POST /api/staff/:id/activity
func AddActivityHandler(db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := httpx.ParamID(c, "id", "Staff not found")
		if err != nil {
			return err
		}

		var body ActivityRequest
		if err := httpx.ParseBody(c, &body); err != nil {
			return err
		}

		kind := models.ActivityKind(body.Type)
		if !kind.Valid() {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid activity type")
		}

		ctxDB := db.WithContext(c.UserContext())
		var exists int64
		if err := ctxDB.Model(&models.Staff{}).Where("id = ?", id).Count(&exists).Error; err != nil {
			return err
		}
		if exists == 0 {
			return fiber.NewError(fiber.StatusNotFound, "Staff not found")
		}

		activity := models.StaffActivity{
			StaffID:     id,
			Kind:        kind,
			Description: strings.TrimSpace(body.Description),
			Timestamp:   time.Now(),
		}
		if err := ctxDB.Create(&activity).Error; err != nil {
			return err
		}
		return c.Status(fiber.StatusCreated).JSON(activity)
	}
}

// WorkedHours is the span between clock-in and clock-out in hours,
// rounded to two decimals.
func WorkedHours(in, out time.Time) float64 {
	hours := out.Sub(in).Hours()
	return math.Round(hours*100) / 100
}

func mutate(c *fiber.Ctx, db *gorm.DB, actor auth.Actor, id uint, description string, apply func(*models.Staff) error) error {
	var s models.Staff
	err := db.WithContext(c.UserContext()).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&s, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fiber.NewError(fiber.StatusNotFound, "Staff not found")
			}
			return err
		}
		before := s

		if err := apply(&s); err != nil {
			return err
		}
		if err := tx.Omit(clause.Associations).Save(&s).Error; err != nil {
			return err
		}

		return audit.WriteLog(tx, audit.LogOptions{
			UserID:      actor.UserID,
			UserName:    actor.Name,
			EntityType:  audit.EntityStaff,
			EntityID:    s.ID,
			Action:      models.AuditActionUpdate,
			Description: fmt.Sprintf("%s: %s", description, s.FullName()),
			Before:      before,
			After:       s,
		})
	})
	if err != nil {
		return err
	}

	updated, err := loadStaff(db.WithContext(c.UserContext()), id)
	if err != nil {
		return err
	}
	return c.JSON(toResponse(*updated))
}

func loadStaff(db *gorm.DB, id uint) (*models.Staff, error) {
	var s models.Staff
	err := db.
		Preload("User").
		Preload("ClockInHistory", func(db *gorm.DB) *gorm.DB { return db.Order("id asc") }).
		Preload("Activities", func(db *gorm.DB) *gorm.DB { return db.Order("id asc") }).
		First(&s, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fiber.NewError(fiber.StatusNotFound, "Staff not found")
		}
		return nil, err
	}
	return &s, nil
}

func staffForUser(tx *gorm.DB, userID uint) (*models.Staff, error) {
	var s models.Staff
	if err := tx.Where("user_id = ?", userID).First(&s).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fiber.NewError(fiber.StatusNotFound, "Staff profile not found")
		}
		return nil, err
	}
	return &s, nil
}

func openEntry(tx *gorm.DB, staffID uint) (*models.ClockEntry, error) {
	var entry models.ClockEntry
	err := tx.Where("staff_id = ? AND clock_out IS NULL", staffID).Order("id desc").First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errNotClockedIn
		}
		return nil, err
	}
	return &entry, nil
}

func contact(r ContactRequest, phoneRegion string) (models.ContactInfo, error) {
	info := models.ContactInfo{
		Email:   strings.TrimSpace(strings.ToLower(r.Email)),
		Address: strings.TrimSpace(r.Address),
	}
	if number := strings.TrimSpace(r.Phone); number != "" {
		normalized, err := phone.Normalize(number, phoneRegion)
		if err != nil {
			return models.ContactInfo{}, fiber.NewError(fiber.StatusBadRequest, "Phone number is not valid")
		}
		info.Phone = normalized
	}
	return info, nil
}
