package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yeremiapane/order-dispatch/services"
	"github.com/yeremiapane/order-dispatch/utils"
	"gorm.io/gorm"
)

type AssignmentController struct {
	DB       *gorm.DB
	Registry *services.AssignmentRegistry
}

func NewAssignmentController(db *gorm.DB, registry *services.AssignmentRegistry) *AssignmentController {
	return &AssignmentController{DB: db, Registry: registry}
}

func (ac *AssignmentController) CreateAssignment(c *gin.Context) {
	op, ok := operatorFrom(c)
	if !ok {
		return
	}

	var body services.CreateAssignmentInput
	if err := c.ShouldBindJSON(&body); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}

	assignment, err := ac.Registry.Create(op, body)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusCreated, "Assignment created", assignment)
}

// GetActiveAssignments -> ?bartender_id=&waiter_id=&cash_session_id=
func (ac *AssignmentController) GetActiveAssignments(c *gin.Context) {
	var filter services.AssignmentFilter
	var err error
	if filter.BartenderID, err = queryUint(c, "bartender_id"); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}
	if filter.WaiterID, err = queryUint(c, "waiter_id"); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}
	if filter.CashSessionID, err = queryUint(c, "cash_session_id"); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}

	assignments, err := ac.Registry.ListActive(ac.DB, filter)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Active assignments", assignments)
}

func (ac *AssignmentController) DeactivateAssignment(c *gin.Context) {
	op, ok := operatorFrom(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "assignment_id")
	if !ok {
		return
	}

	assignment, err := ac.Registry.Deactivate(op, id)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Assignment deactivated", assignment)
}
