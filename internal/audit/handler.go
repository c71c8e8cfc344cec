package audit

import (
	"errors"

	"wholesale-backend/internal/auth"
	"wholesale-backend/internal/httpx"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type AuditLogResponse struct {
	ID          uint    `json:"id"`
	CreatedAt   string  `json:"created_at"`
	UserID      uint    `json:"user_id"`
	UserName    string  `json:"user_name"`
	EntityType  string  `json:"entity_type"`
	EntityID    uint    `json:"entity_id"`
	Action      string  `json:"action"`
	Description string  `json:"description"`
	IsUndone    bool    `json:"is_undone"`
	UndoneBy    *uint   `json:"undone_by"`
	UndoneAt    *string `json:"undone_at"`
}

// GET /api/audit-logs?entity_type=inventory&entity_id=1&user_id=2&limit=50
func ListAuditLogsHandler(db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		logs, err := List(c.UserContext(), db, ListFilter{
			EntityType: c.Query("entity_type"),
			EntityID:   uint(c.QueryInt("entity_id")),
			UserID:     uint(c.QueryInt("user_id")),
			Limit:      c.QueryInt("limit", 100),
		})
		if err != nil {
			return err
		}

		resp := make([]AuditLogResponse, 0, len(logs))
		for _, l := range logs {
			var undoneAt *string
			if l.UndoneAt != nil {
				formatted := l.UndoneAt.Format("2006-01-02 15:04:05")
				undoneAt = &formatted
			}
			resp = append(resp, AuditLogResponse{
				ID:          l.ID,
				CreatedAt:   l.CreatedAt.Format("2006-01-02 15:04:05"),
				UserID:      l.UserID,
				UserName:    l.UserName,
				EntityType:  l.EntityType,
				EntityID:    l.EntityID,
				Action:      string(l.Action),
				Description: l.Description,
				IsUndone:    l.IsUndone,
				UndoneBy:    l.UndoneBy,
				UndoneAt:    undoneAt,
			})
		}
		return c.JSON(resp)
	}
}

// POST /api/audit-logs/:id/undo
func UndoAuditLogHandler(db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := auth.ActorFrom(c)
		if err != nil {
			return err
		}
		id, err := httpx.ParamID(c, "id", "Audit log not found")
		if err != nil {
			return err
		}

		err = UndoLog(c.UserContext(), db, id, actor.UserID, actor.Name)
		switch {
		case errors.Is(err, ErrLogNotFound):
			return fiber.NewError(fiber.StatusNotFound, "Audit log not found")
		case errors.Is(err, ErrAlreadyUndone):
			return fiber.NewError(fiber.StatusConflict, "This change was already undone")
		case errors.Is(err, ErrEntityInUse):
			return fiber.NewError(fiber.StatusConflict, "This change cannot be undone while the record is in use")
		case errors.Is(err, ErrNotUndoable):
			return fiber.NewError(fiber.StatusBadRequest, "This change cannot be undone")
		case err != nil:
			return err
		}

		return c.JSON(fiber.Map{"message": "Change undone"})
	}
}
