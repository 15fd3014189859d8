package medicine

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/opdclinic/clinic-api/internal/handler"
	"github.com/opdclinic/clinic-api/internal/model"
	"github.com/opdclinic/clinic-api/internal/repository"
	"github.com/opdclinic/clinic-api/internal/service/stock"
	apperrors "github.com/opdclinic/clinic-api/pkg/errors"
	"github.com/opdclinic/clinic-api/pkg/validator"
)

type Handler struct {
	ledger    *stock.Ledger
	medicines repository.MedicineRepository
	validator *validator.Validator
}

func NewHandler(ledger *stock.Ledger, medicines repository.MedicineRepository, v *validator.Validator) *Handler {
	return &Handler{ledger: ledger, medicines: medicines, validator: v}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	medicines := r.Group("/medicines")
	{
		medicines.POST("", h.Ensure)
		medicines.GET("", h.List)
		medicines.GET("/:id", h.Get)
		medicines.PATCH("/:id/stock", h.AdjustStock)
	}
}

// Ensure is the idempotent master-data upsert invoked before items hit
// the ledger.
func (h *Handler) Ensure(c *gin.Context) {
	var req model.EnsureMedicineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}
	if err := h.validator.Validate(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	medicine, err := h.ledger.EnsureMedicine(c.Request.Context(), req.Name, req.Strength, req.Form, req.Stock)
	if err != nil {
		handler.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(medicine))
}

func (h *Handler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid medicine ID"))
		return
	}

	medicine, err := h.medicines.Get(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNoRows) {
			handler.RespondError(c, apperrors.NotFound("medicine", err))
			return
		}
		handler.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(medicine))
}

func (h *Handler) List(c *gin.Context) {
	medicines, err := h.medicines.List(c.Request.Context())
	if err != nil {
		handler.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(medicines))
}

// AdjustStock is the manual correction entry point, e.g. receiving new
// inventory. Dispensary movements go through the ledger instead.
func (h *Handler) AdjustStock(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid medicine ID"))
		return
	}

	var req model.AdjustStockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	if err := h.medicines.AdjustStock(c.Request.Context(), id, req.Delta); err != nil {
		if errors.Is(err, repository.ErrNoRows) {
			handler.RespondError(c, apperrors.NotFound("medicine", err))
			return
		}
		handler.RespondError(c, err)
		return
	}

	medicine, err := h.medicines.Get(c.Request.Context(), id)
	if err != nil {
		handler.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(medicine))
}
